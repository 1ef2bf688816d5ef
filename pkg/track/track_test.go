package track

import(
	"errors"
	"image"
	"math"
	"testing"

	"github.com/abworrall/varstar/pkg/emath"
	"github.com/abworrall/varstar/pkg/frame"
	"github.com/abworrall/varstar/pkg/star"
)

type blob struct{ x, y float64 }

// sequence makes one 64x64 frame per entry, each with sigma=2 stars at
// the given positions on a flat sky.
func sequence(positions ...[]blob) []*frame.Frame {
	n := frame.NewNamer()
	frames := []*frame.Frame{}
	for _, blobs := range positions {
		g := emath.NewFloatGrid(64, 64)
		for y:=0; y<64; y++ {
			for x:=0; x<64; x++ {
				v := 100.0
				for _, b := range blobs {
					dx, dy := float64(x)-b.x, float64(y)-b.y
					v += 2000 * math.Exp(-(dx*dx + dy*dy) / 8.0)
				}
				g.Set(x, y, v)
			}
		}
		f := frame.NewMono(g, frame.Green, frame.Light)
		n.Name(f)
		frames = append(frames, f)
	}
	return frames
}

func near(a, b, tol float64) bool { return math.Abs(a - b) <= tol }

func TestLocalTracking(t *testing.T) {
	frames := sequence(
		[]blob{{32, 32}},
		[]blob{{34, 30}},
		[]blob{{36, 28}},
	)

	tr, err := New(frames, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := tr.Run([]star.Spec{{X:32, Y:32}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	s := res.Catalog.Stars()[0]
	want := []blob{{32, 32}, {34, 30}, {36, 28}}
	for i, f := range frames {
		e, err := s.At(f)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !near(e.X, want[i].x, 1) || !near(e.Y, want[i].y, 1) {
			t.Errorf("frame %d: star at %s, want ~(%.0f,%.0f)", i, e.Position, want[i].x, want[i].y)
		}
		if !e.Refined {
			t.Errorf("frame %d: entry not refined", i)
		}
	}

	wantOff := [][2]float64{{0, 0}, {-2, 2}, {-4, 4}}
	if len(res.Offsets) != 3 {
		t.Fatalf("%d offsets, want 3", len(res.Offsets))
	}
	for i, o := range res.Offsets {
		if !near(o.DY, wantOff[i][0], 0.25) || !near(o.DX, wantOff[i][1], 0.25) {
			t.Errorf("offset %d = %s, want (dy=%+.0f, dx=%+.0f)", i, o, wantOff[i][0], wantOff[i][1])
		}
	}

	if len(res.SoftFails) != 0 {
		t.Errorf("unexpected soft fails: %v", res.SoftFails)
	}
	if len(res.Corrections) != 2 {
		t.Errorf("%d corrections, want 2", len(res.Corrections))
	}
	if tr.State() != Finished {
		t.Errorf("state = %s, want finished", tr.State())
	}
}

func TestGlobalTrackingAligned(t *testing.T) {
	stars := []blob{{20, 20}, {44, 40}}
	frames := sequence(stars, stars, stars, stars)

	cfg := DefaultConfig()
	cfg.GlobalOffset = true
	tr, _ := New(frames, cfg)
	res, err := tr.Run([]star.Spec{{X:20, Y:20}, {X:44, Y:40}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i, o := range res.Offsets {
		if !near(o.DY, 0, 0.1) || !near(o.DX, 0, 0.1) {
			t.Errorf("offset %d = %s, want ~(0,0)", i, o)
		}
	}

	// N frames, N entries each, in order, with one geometry per frame.
	for _, s := range res.Catalog.Stars() {
		if s.Len() != len(frames) {
			t.Errorf("%s has %d entries, want %d", s.Name, s.Len(), len(frames))
		}
		for i, e := range s.Entries() {
			if e.Frame != frames[i] {
				t.Errorf("%s entry %d is for %s", s.Name, i, e.Frame.Name)
			}
		}
	}
	for _, f := range frames {
		on := res.Catalog.OnFrame(f)
		e0, _ := on[0].At(f)
		e1, _ := on[1].At(f)
		if e0.Geometry != e1.Geometry {
			t.Errorf("%s: stars have different geometry, %v vs %v", f.Name, e0.Geometry, e1.Geometry)
		}
	}
}

func TestGlobalTrackingShifted(t *testing.T) {
	frames := sequence(
		[]blob{{20, 44}, {44, 20}},
		[]blob{{23, 43}, {47, 19}},
	)

	cfg := DefaultConfig()
	cfg.GlobalOffset = true
	cfg.Gauss = false
	tr, _ := New(frames, cfg)
	res, err := tr.Run([]star.Spec{{X:20, Y:44}, {X:44, Y:20}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if o := res.Offsets[1]; !near(o.DY, -1, 0.1) || !near(o.DX, 3, 0.1) {
		t.Errorf("offset = %s, want (dy=-1, dx=+3)", o)
	}
	e, _ := res.Catalog.Lookup("Star_2").At(frames[1])
	if !near(e.X, 47, 0.1) || !near(e.Y, 19, 0.1) || e.Refined {
		t.Errorf("Star_2 on frame 1: %s", e)
	}

	// The correlation window around the carried position runs off the top
	// and right of the frame.
	if w := res.Window(e.Position); w != image.Rect(27, 0, 64, 39) {
		t.Errorf("window around %s = %v, want clipped to (27,0)-(64,39)", e.Position, w)
	}
}

func TestSoftFailFreezes(t *testing.T) {
	// The star vanishes on the last frame; the window there is flat.
	frames := sequence(
		[]blob{{32, 32}},
		[]blob{{34, 30}},
		[]blob{},
	)

	tr, _ := New(frames, DefaultConfig())
	res, err := tr.Run([]star.Spec{{X:32, Y:32, Name:"Var"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	e, _ := res.Catalog.Lookup("Var").At(frames[2])
	if e.Refined {
		t.Errorf("entry on the empty frame should not be refined")
	}
	// The correlation fails too, so the star keeps its last displacement.
	if !near(e.X, 36, 0.1) || !near(e.Y, 28, 0.1) {
		t.Errorf("frozen at %s, want ~(36,28)", e.Position)
	}
	if len(res.SoftFails) != 2 {
		t.Errorf("soft fails = %v, want 2", res.SoftFails)
	}
	for _, sf := range res.SoftFails {
		if sf.Star != "Var" || sf.Frame != frames[2].Name {
			t.Errorf("soft fail %s, want Var on %s", sf, frames[2].Name)
		}
	}
}

func TestStateMachine(t *testing.T) {
	frames := sequence([]blob{{32, 32}}, []blob{{32, 32}})
	tr, _ := New(frames, DefaultConfig())

	if err := tr.Step(); !errors.Is(err, ErrNotAnchored) {
		t.Errorf("step before anchor: err = %v", err)
	}
	if err := tr.Anchor([]star.Spec{{X:32, Y:32}}); err != nil {
		t.Fatalf("anchor: %v", err)
	}
	if tr.State() != Anchored {
		t.Errorf("state = %s, want anchored", tr.State())
	}
	if err := tr.Anchor([]star.Spec{{X:32, Y:32}}); err == nil {
		t.Errorf("second anchor accepted")
	}
	if err := tr.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if err := tr.Step(); !errors.Is(err, ErrFinished) {
		t.Errorf("step past the end: err = %v", err)
	}
}

func TestNewRejectsMixedFrames(t *testing.T) {
	frames := sequence([]blob{{32, 32}})
	small := frame.NewMono(emath.NewFloatGrid(32, 32), frame.Green, frame.Light)
	if _, err := New(append(frames, small), DefaultConfig()); err == nil {
		t.Errorf("frames of different sizes accepted")
	}
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Errorf("empty sequence accepted")
	}
}
