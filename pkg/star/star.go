package star

import(
	"errors"
	"fmt"
	"math"

	"github.com/abworrall/varstar/pkg/frame"
)

type Position struct {
	X, Y float64
}

func (p Position)String() string { return fmt.Sprintf("(%.2f,%.2f)", p.X, p.Y) }

// Geometry of the photometric aperture: a circle of radius R around the
// star, and a sky annulus from R+Gap to R+Gap+Width.
type Geometry struct {
	R      float64
	Gap    float64  // d_d
	Width  float64  // d_a
}

func (g Geometry)Inner() float64 { return g.R + g.Gap }
func (g Geometry)Outer() float64 { return g.R + g.Gap + g.Width }

func (g Geometry)String() string {
	return fmt.Sprintf("r=%.2f, sky %.2f~%.2f", g.R, g.Inner(), g.Outer())
}

// SeedGeometry derives the aperture from a fitted profile: the radius is
// the FWHM, and the annulus gap and width are the same again.
func SeedGeometry(p Profile) Geometry {
	r := p.FWHM()
	return Geometry{R: r, Gap: r, Width: r}
}

// An Entry is a star's measurement setup on one frame.
type Entry struct {
	Frame     *frame.Frame
	Position
	Geometry
	Refined   bool  // position came from a successful centroid fit on this frame
}

func (e Entry)String() string {
	str := fmt.Sprintf("%s @%s %s", e.Frame.Name, e.Position, e.Geometry)
	if !e.Refined {
		str += " (unrefined)"
	}
	return str
}

// A Star is a point source tracked across a sequence of frames. It is
// either a reference star with a known catalog magnitude, or the
// variable whose magnitude we're after.
type Star struct {
	Name       string
	Magnitude  float64 // NaN for a variable
	IsVar      bool
	Profile             // as fitted on the defining frame

	geom       Geometry // as last averaged across the star's latest frame
	entries  []Entry
	index      map[*frame.Frame]int
}

func newStar(name string, mag *float64) *Star {
	s := &Star{
		Name:      name,
		Magnitude: math.NaN(),
		IsVar:     mag == nil,
		index:     map[*frame.Frame]int{},
	}
	if mag != nil {
		s.Magnitude = *mag
	}
	return s
}

// MissingFrameEntryError means a star was asked about a frame it was
// never placed on. The tracker never produces this; it means some
// caller has mixed up frames from different sequences.
type MissingFrameEntryError struct {
	Star  string
	Frame string
}

func (e *MissingFrameEntryError)Error() string {
	return fmt.Sprintf("star %s has no entry for frame %s", e.Star, e.Frame)
}

// ErrFrameSkipped is returned when placing a star on a frame would
// leave a gap in its sequence of entries.
var ErrFrameSkipped = errors.New("frame skipped")

// At returns the star's entry for frame `f`.
func (s *Star)At(f *frame.Frame) (Entry, error) {
	if f == nil {
		return Entry{}, &MissingFrameEntryError{Star: s.Name, Frame: "<nil>"}
	}
	i, exists := s.index[f]
	if !exists {
		return Entry{}, &MissingFrameEntryError{Star: s.Name, Frame: f.String()}
	}
	return s.entries[i], nil
}

// Has is true if the star has been placed on `f`.
func (s *Star)Has(f *frame.Frame) bool {
	_, exists := s.index[f]
	return exists
}

// Last is the entry for the most recent frame the star was placed on.
func (s *Star)Last() Entry {
	if len(s.entries) == 0 {
		panic(fmt.Sprintf("star %s has no entries", s.Name))
	}
	return s.entries[len(s.entries)-1]
}

func (s *Star)Len() int { return len(s.entries) }

// Entries returns the entries in registration order. The slice is a copy.
func (s *Star)Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Star)Geometry() Geometry { return s.geom }

func (s *Star)String() string {
	str := "Variable star "
	if !s.IsVar {
		str = fmt.Sprintf("Reference star (%.2fmag) ", s.Magnitude)
	}
	str += s.Name
	if len(s.entries) > 0 {
		str += fmt.Sprintf(" at %s on %d frames", s.Last().Position, len(s.entries))
	} else {
		str += ", not placed"
	}
	return str
}

func (s *Star)append(e Entry) {
	s.index[e.Frame] = len(s.entries)
	s.entries = append(s.entries, e)
}
