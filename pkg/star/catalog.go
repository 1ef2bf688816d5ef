package star

import(
	"fmt"
	"log"

	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/varstar/pkg/frame"
)

// Spec is how a user names a star: roughly where it is on the first
// frame, and its catalog magnitude if it's a reference star.
type Spec struct {
	X     int      `yaml:"x"`
	Y     int      `yaml:"y"`
	Mag  *float64  `yaml:"mag,omitempty"`
	Name  string   `yaml:"name,omitempty"`
}

func (s Spec)String() string {
	str := fmt.Sprintf("(%d,%d)", s.X, s.Y)
	if s.Name != "" { str = s.Name + str }
	if s.Mag != nil { str += fmt.Sprintf(" %.2fmag", *s.Mag) }
	return str
}

// A Catalog is the set of stars being tracked through one frame
// sequence, and the sequence itself in the order frames were
// registered. It keeps the aperture geometry consistent across a
// frame: every time a star is placed, all the stars on that frame are
// given the average geometry of the stars on it.
type Catalog struct {
	Verbosity  int

	stars    []*Star
	names      map[string]*Star
	frames   []*frame.Frame
	frameIdx   map[*frame.Frame]int
	onFrame    map[*frame.Frame][]*Star
	nextName   int
}

func NewCatalog() *Catalog {
	return &Catalog{
		names:    map[string]*Star{},
		frameIdx: map[*frame.Frame]int{},
		onFrame:  map[*frame.Frame][]*Star{},
	}
}

// Add defines a new star on the first frame of the sequence, fitting a
// Gaussian over the window of half-size (hw,hh) around the spec's pixel
// to find its center and seed its geometry. Stars can only be defined
// on the first frame; everything after that is placed by a tracker.
func (c *Catalog)Add(f *frame.Frame, spec Spec, hw, hh int) (*Star, error) {
	if len(c.frames) > 1 || (len(c.frames) == 1 && c.frames[0] != f) {
		return nil, fmt.Errorf("star %s: stars can only be added on the first frame", spec)
	}

	name := spec.Name
	if name == "" {
		c.nextName++
		name = fmt.Sprintf("Star_%d", c.nextName)
	}
	if _, exists := c.names[name]; exists {
		return nil, fmt.Errorf("star %s: name '%s' already in use", spec, name)
	}

	prof, err := FitGaussian(f.Pix(), FitWindow(float64(spec.X), float64(spec.Y), hw, hh))
	if err != nil {
		return nil, fmt.Errorf("star %s on %s: %w", spec, f.Name, err)
	}

	s := newStar(name, spec.Mag)
	s.Profile = prof
	c.stars = append(c.stars, s)
	c.names[name] = s

	c.registerFrame(f)
	c.place(s, f, Entry{Frame: f, Position: Position{prof.X, prof.Y}, Geometry: SeedGeometry(prof), Refined: true})

	if c.Verbosity > 0 {
		log.Printf("catalog: added %s, %s\n", s, prof)
	}
	return s, nil
}

// AddFrame appends the next frame of the sequence. Frames must be added
// before any star is placed on them.
func (c *Catalog)AddFrame(f *frame.Frame) error {
	if _, exists := c.frameIdx[f]; exists {
		return fmt.Errorf("catalog: %s already registered", f)
	}
	c.registerFrame(f)
	return nil
}

func (c *Catalog)registerFrame(f *frame.Frame) {
	if _, exists := c.frameIdx[f]; !exists {
		c.frameIdx[f] = len(c.frames)
		c.frames = append(c.frames, f)
	}
}

// Place puts star `s` on frame `f` at `pos`, with the geometry the star
// had on its last frame. `f` must be the frame straight after the
// star's last frame, in the catalog's frame order.
func (c *Catalog)Place(s *Star, f *frame.Frame, pos Position, refined bool) error {
	idx, exists := c.frameIdx[f]
	if !exists {
		return fmt.Errorf("catalog: place %s on unregistered %s", s.Name, f)
	} else if s.Has(f) {
		return fmt.Errorf("catalog: %s already placed on %s", s.Name, f.Name)
	} else if idx != s.Len() {
		return fmt.Errorf("catalog: place %s on %s (frame %d, star has %d entries): %w", s.Name, f.Name, idx, s.Len(), ErrFrameSkipped)
	}

	c.place(s, f, Entry{Frame: f, Position: pos, Geometry: s.geom, Refined: refined})
	return nil
}

func (c *Catalog)place(s *Star, f *frame.Frame, e Entry) {
	s.geom = e.Geometry
	s.append(e)
	c.onFrame[f] = append(c.onFrame[f], s)
	c.average(f)
}

// average sets every star on `f` to the mean geometry of the stars on
// `f`. This is applied to entries already placed on the frame, so
// adding a star changes the apertures of the ones before it.
func (c *Catalog)average(f *frame.Frame) {
	stars := c.onFrame[f]
	if len(stars) == 0 {
		return
	}

	var rs, gaps, widths []float64
	for _, s := range stars {
		g := s.entries[s.index[f]].Geometry
		rs = append(rs, g.R)
		gaps = append(gaps, g.Gap)
		widths = append(widths, g.Width)
	}
	avg := Geometry{
		R:     stat.Mean(rs, nil),
		Gap:   stat.Mean(gaps, nil),
		Width: stat.Mean(widths, nil),
	}

	for _, s := range stars {
		s.entries[s.index[f]].Geometry = avg
		if s.entries[len(s.entries)-1].Frame == f {
			s.geom = avg
		}
	}
}

func (c *Catalog)Stars() []*Star              { return c.stars }
func (c *Catalog)Frames() []*frame.Frame      { return c.frames }
func (c *Catalog)OnFrame(f *frame.Frame) []*Star { return c.onFrame[f] }
func (c *Catalog)Lookup(name string) *Star    { return c.names[name] }

// FrameIndex is the position of `f` in the sequence, or -1.
func (c *Catalog)FrameIndex(f *frame.Frame) int {
	if i, exists := c.frameIdx[f]; exists {
		return i
	}
	return -1
}

// Variable returns the first star without a catalog magnitude, or nil.
func (c *Catalog)Variable() *Star {
	for _, s := range c.stars {
		if s.IsVar {
			return s
		}
	}
	return nil
}

// References returns the stars with a catalog magnitude.
func (c *Catalog)References() []*Star {
	refs := []*Star{}
	for _, s := range c.stars {
		if !s.IsVar {
			refs = append(refs, s)
		}
	}
	return refs
}

func (c *Catalog)String() string {
	str := fmt.Sprintf("Catalog[%d stars, %d frames]\n", len(c.stars), len(c.frames))
	for _, s := range c.stars {
		str += "  " + s.String() + "\n"
	}
	return str
}
