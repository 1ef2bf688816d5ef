// Package track follows a set of stars through a sequence of frames.
//
// The user places stars on the first frame; from then on each frame is
// registered against the one before it, and every star is carried
// forward by the offset between the two frames, then re-centered with
// a Gaussian fit. Positions are sub-pixel throughout.
package track

import(
	"errors"
	"fmt"
	"image"
	"log"
	"math"

	"github.com/abworrall/varstar/pkg/emath"
	"github.com/abworrall/varstar/pkg/frame"
	"github.com/abworrall/varstar/pkg/star"
	"github.com/abworrall/varstar/pkg/xcorr"
)

type Config struct {
	Verbosity         int

	// One offset per frame pair, from the whole frame, applied to every
	// star. Otherwise each star gets its own offset from the window
	// around it.
	GlobalOffset      bool

	// Re-center each star with a Gaussian fit after carrying it forward.
	Gauss             bool

	// Half-size of the correlation window around each star.
	HalfHeight        int
	HalfWidth         int

	// Half-size of the Gaussian fitting window. Also used to find the
	// stars on the first frame.
	RefineHalfHeight  int
	RefineHalfWidth   int

	// In global mode, only correlate the central +/-GlobalCrop pixels.
	// 0 means the whole frame.
	GlobalCrop        int

	Upsample          int
}

func DefaultConfig() Config {
	return Config{
		Gauss:      true,
		HalfHeight: 20,
		HalfWidth:  20,
		Upsample:   20,
	}
}

func (c Config)withDefaults() Config {
	if c.HalfHeight <= 0 { c.HalfHeight = 20 }
	if c.HalfWidth <= 0  { c.HalfWidth = 20 }
	if c.RefineHalfHeight <= 0 { c.RefineHalfHeight = c.HalfHeight / 2 }
	if c.RefineHalfWidth <= 0  { c.RefineHalfWidth = c.HalfWidth / 2 }
	if c.Upsample <= 0 { c.Upsample = 20 }
	return c
}

func (c Config)String() string {
	mode := "local"
	if c.GlobalOffset { mode = "global" }
	if c.Gauss { mode += "+gauss" }
	return fmt.Sprintf("track[%s, window %dx%d, refine %dx%d, up=%d]", mode,
		2*c.HalfWidth, 2*c.HalfHeight, 2*c.RefineHalfWidth+1, 2*c.RefineHalfHeight+1, c.Upsample)
}

type State int

const(
	Uninitialized State = iota
	Anchored  // stars placed on the first frame
	Tracking  // at least one frame registered after the first
	Finished
)

func (s State)String() string {
	switch s {
	case Uninitialized: return "uninitialized"
	case Anchored:      return "anchored"
	case Tracking:      return "tracking"
	case Finished:      return "finished"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var(
	ErrNotAnchored = errors.New("tracker has no stars yet")
	ErrFinished    = errors.New("tracker has reached the last frame")
)

// A SoftFail is a step that didn't go to plan for one star, but which
// the tracker worked around.
type SoftFail struct {
	Star    string  // "*" for the global offset
	Frame   string
	Reason  string
}

func (sf SoftFail)String() string { return fmt.Sprintf("%s on %s: %s", sf.Star, sf.Frame, sf.Reason) }

// Result is everything a finished tracker knows.
type Result struct {
	Catalog      *star.Catalog
	Frames     []*frame.Frame
	Offsets    []xcorr.Shift  // cumulative, frame i relative to frame 0
	SoftFails  []SoftFail

	// How far each successful Gaussian fit moved a star away from where
	// the correlation put it, in pixels.
	Corrections []float64

	Config       Config
}

// A Tracker is bound to one sequence of single channel frames, and one
// catalog of stars.
type Tracker struct {
	Config

	state      State
	frames   []*frame.Frame
	cat       *star.Catalog
	next       int           // index of the next frame to register
	offsets  []xcorr.Shift
	pairwise   xcorr.Shift   // most recent successful global offset
	lastDisp   map[*star.Star]xcorr.Shift
	softFails []SoftFail
	corrections []float64
}

func New(frames []*frame.Frame, cfg Config) (*Tracker, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("track: no frames")
	}
	for _, f := range frames {
		if f.Kind != frame.SingleChannel {
			return nil, fmt.Errorf("track: %s is not single channel", f)
		} else if f.Channel != frames[0].Channel {
			return nil, fmt.Errorf("track: %s is not the same channel as %s", f, frames[0])
		} else if !f.Pix().SameSize(*frames[0].Pix()) {
			return nil, fmt.Errorf("track: %s is not the same size as %s", f, frames[0])
		}
	}

	cat := star.NewCatalog()
	cat.Verbosity = cfg.Verbosity

	return &Tracker{
		Config:   cfg.withDefaults(),
		frames:   frames,
		cat:      cat,
		lastDisp: map[*star.Star]xcorr.Shift{},
	}, nil
}

func (t *Tracker)State() State { return t.state }
func (t *Tracker)Catalog() *star.Catalog { return t.cat }

// Anchor places the stars on the first frame.
func (t *Tracker)Anchor(specs []star.Spec) error {
	if t.state != Uninitialized {
		return fmt.Errorf("track: anchor when %s", t.state)
	} else if len(specs) == 0 {
		return fmt.Errorf("track: anchor with no stars")
	}

	f0 := t.frames[0]
	for _, spec := range specs {
		if _, err := t.cat.Add(f0, spec, t.RefineHalfWidth, t.RefineHalfHeight); err != nil {
			return fmt.Errorf("track: anchor: %w", err)
		}
	}

	t.offsets = []xcorr.Shift{{}}
	t.next = 1
	t.state = Anchored
	if t.next == len(t.frames) {
		t.state = Finished
	}

	if t.Verbosity > 0 {
		log.Printf("%s anchored on %s\n%s", t.Config, f0.Name, t.cat)
	}
	return nil
}

// Step registers the next frame, placing every star on it.
func (t *Tracker)Step() error {
	switch t.state {
	case Uninitialized: return ErrNotAnchored
	case Finished:      return ErrFinished
	}

	prev, cur := t.frames[t.next-1], t.frames[t.next]
	if err := t.cat.AddFrame(cur); err != nil {
		return fmt.Errorf("track: %w", err)
	}

	var pair xcorr.Shift
	var err error
	if t.GlobalOffset {
		pair, err = t.stepGlobal(prev, cur)
	} else {
		pair, err = t.stepLocal(prev, cur)
	}
	if err != nil {
		return err
	}

	t.offsets = append(t.offsets, t.offsets[len(t.offsets)-1].Add(pair))
	if t.Verbosity > 0 {
		log.Printf("%s: offset %s from %s, cumulative %s\n", cur.Name, pair, prev.Name, t.offsets[len(t.offsets)-1])
	}

	t.next++
	t.state = Tracking
	if t.next == len(t.frames) {
		t.state = Finished
	}
	return nil
}

// Run anchors the stars and steps through every frame.
func (t *Tracker)Run(specs []star.Spec) (*Result, error) {
	if err := t.Anchor(specs); err != nil {
		return nil, err
	}
	for t.state != Finished {
		if err := t.Step(); err != nil {
			return nil, err
		}
	}
	return t.Result(), nil
}

func (t *Tracker)Result() *Result {
	return &Result{
		Catalog:     t.cat,
		Frames:      t.cat.Frames(),
		Offsets:     append([]xcorr.Shift{}, t.offsets...),
		SoftFails:   append([]SoftFail{}, t.softFails...),
		Corrections: append([]float64{}, t.corrections...),
		Config:      t.Config,
	}
}

func (t *Tracker)opts() xcorr.Options {
	return xcorr.Options{Upsample: t.Upsample}
}

func (t *Tracker)softFail(s string, f *frame.Frame, reason string) {
	sf := SoftFail{Star: s, Frame: f.Name, Reason: reason}
	t.softFails = append(t.softFails, sf)
	log.Printf("soft fail: %s\n", sf)
}

// stepGlobal computes one offset between the frames and moves every
// star by it. If the frames can't be correlated, the previous pair's
// offset is used.
func (t *Tracker)stepGlobal(prev, cur *frame.Frame) (xcorr.Shift, error) {
	r := prev.Pix().Bounds()
	if t.GlobalCrop > 0 {
		r = prev.Pix().Clip(xcorr.WindowRect(r.Dx()/2, r.Dy()/2, t.GlobalCrop, t.GlobalCrop))
	}

	pair, err := xcorr.Estimate(prev.Pix().Sub(r), cur.Pix().Sub(r), t.opts())
	var dwe *xcorr.DegenerateWindowError
	if errors.As(err, &dwe) {
		t.softFail("*", cur, fmt.Sprintf("%v, reusing offset %s", err, t.pairwise))
		pair = t.pairwise
	} else if err != nil {
		return xcorr.Shift{}, fmt.Errorf("track: global offset %s->%s: %w", prev.Name, cur.Name, err)
	}
	t.pairwise = pair

	move := emath.Identity().Translate(pair.DX, pair.DY)
	for _, s := range t.cat.Stars() {
		last := s.Last()
		x, y := move.Apply(last.X, last.Y)
		carried := star.Position{X: x, Y: y}
		if err := t.place(s, cur, carried); err != nil {
			return xcorr.Shift{}, err
		}
	}
	return pair, nil
}

// stepLocal correlates the window around each star separately. The
// offset for the frame pair is the median of how far the stars moved.
func (t *Tracker)stepLocal(prev, cur *frame.Frame) (xcorr.Shift, error) {
	var dys, dxs []float64

	for _, s := range t.cat.Stars() {
		last := s.Last()
		cx, cy := int(math.Round(last.X)), int(math.Round(last.Y))

		d, err := xcorr.EstimateAt(prev.Pix(), cur.Pix(), cx, cy, t.HalfWidth, t.HalfHeight, t.opts())
		var dwe *xcorr.DegenerateWindowError
		if errors.As(err, &dwe) {
			d = t.lastDisp[s]
			t.softFail(s.Name, cur, fmt.Sprintf("%v, reusing displacement %s", err, d))
		} else if err != nil {
			return xcorr.Shift{}, fmt.Errorf("track: %s %s->%s: %w", s.Name, prev.Name, cur.Name, err)
		}

		carried := star.Position{X: last.X + d.DX, Y: last.Y + d.DY}
		if err := t.place(s, cur, carried); err != nil {
			return xcorr.Shift{}, err
		}

		now := s.Last()
		disp := xcorr.Shift{DY: now.Y - last.Y, DX: now.X - last.X}
		t.lastDisp[s] = disp
		dys = append(dys, disp.DY)
		dxs = append(dxs, disp.DX)
	}

	return xcorr.Shift{DY: emath.Median(dys), DX: emath.Median(dxs)}, nil
}

// place puts the star on the frame, at the Gaussian center near
// `carried` if that can be found; otherwise at `carried`.
func (t *Tracker)place(s *star.Star, f *frame.Frame, carried star.Position) error {
	pos, refined := carried, false

	if t.Gauss {
		win := star.FitWindow(carried.X, carried.Y, t.RefineHalfWidth, t.RefineHalfHeight)
		prof, err := star.FitGaussian(f.Pix(), win)
		var cfe *star.CentroidFitError
		if errors.As(err, &cfe) {
			t.softFail(s.Name, f, fmt.Sprintf("%v, frozen at %s", err, carried))
		} else if err != nil {
			return fmt.Errorf("track: %s on %s: %w", s.Name, f.Name, err)
		} else {
			pos, refined = star.Position{X: prof.X, Y: prof.Y}, true
			t.corrections = append(t.corrections, math.Hypot(prof.X - carried.X, prof.Y - carried.Y))
		}
	}

	if t.Verbosity > 1 {
		log.Printf("  %s on %s: carried %s, placed %s (refined:%v)\n", s.Name, f.Name, carried, pos, refined)
	}
	if err := t.cat.Place(s, f, pos, refined); err != nil {
		return fmt.Errorf("track: %w", err)
	}
	return nil
}

// Window is the local correlation window around a position.
func (r *Result)Window(p star.Position) image.Rectangle {
	return r.Frames[0].Pix().Clip(xcorr.WindowRect(int(math.Round(p.X)), int(math.Round(p.Y)), r.Config.HalfWidth, r.Config.HalfHeight))
}
