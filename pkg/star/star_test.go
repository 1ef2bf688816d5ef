package star

import(
	"errors"
	"image"
	"math"
	"testing"

	"github.com/abworrall/varstar/pkg/emath"
	"github.com/abworrall/varstar/pkg/frame"
)

type blob struct {
	x, y, sigma, amp float64
}

func field(w, h int, bg float64, blobs ...blob) *frame.Frame {
	g := emath.NewFloatGrid(w, h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			v := bg
			for _, b := range blobs {
				dx, dy := float64(x)-b.x, float64(y)-b.y
				v += b.amp * math.Exp(-(dx*dx + dy*dy) / (2*b.sigma*b.sigma))
			}
			g.Set(x, y, v)
		}
	}
	f := frame.NewMono(g, frame.Green, frame.Light)
	return f
}

func TestFitGaussian(t *testing.T) {
	tests := []blob{
		{20.0, 20.0, 2.0, 1000},
		{20.3, 19.6, 2.0, 1000},
		{18.7, 21.2, 1.5, 400},
		{21.5, 20.5, 3.0, 5000},
	}

	for _, b := range tests {
		f := field(41, 41, 100, b)
		prof, err := FitGaussian(f.Pix(), FitWindow(20, 20, 10, 10))
		if err != nil {
			t.Errorf("%v: unexpected error: %v", b, err)
			continue
		}
		if math.Abs(prof.X - b.x) > 0.05 || math.Abs(prof.Y - b.y) > 0.05 {
			t.Errorf("%v: center = (%.3f,%.3f), want ~(%.2f,%.2f)", b, prof.X, prof.Y, b.x, b.y)
		}
		wantFWHM := 2.0 * math.Sqrt(2.0*math.Log(2.0)) * b.sigma
		if math.Abs(prof.FWHM() - wantFWHM) > 0.05*wantFWHM {
			t.Errorf("%v: FWHM = %.3f, want ~%.3f", b, prof.FWHM(), wantFWHM)
		}
		if math.Abs(prof.Background - 100) > 5 {
			t.Errorf("%v: background = %.2f, want ~100", b, prof.Background)
		}
	}
}

func TestFitGaussianFailures(t *testing.T) {
	flat := field(41, 41, 100)
	bright := field(41, 41, 100, blob{20, 20, 2, 1000})

	tests := []struct {
		name string
		f    *frame.Frame
		r    image.Rectangle
	}{
		{"flat", flat, FitWindow(20, 20, 10, 10)},
		{"off frame", bright, FitWindow(2, 20, 10, 10)},
		{"empty", bright, image.Rectangle{}},
	}

	for _, test := range tests {
		_, err := FitGaussian(test.f.Pix(), test.r)
		var cfe *CentroidFitError
		if !errors.As(err, &cfe) {
			t.Errorf("%s: err = %v, want a CentroidFitError", test.name, err)
		}
	}
}

func TestCatalogGeometryAveraging(t *testing.T) {
	f := field(64, 64, 50, blob{20, 20, 1.5, 800}, blob{44, 44, 2.5, 800})
	c := NewCatalog()

	mag := 11.0
	s1, err := c.Add(f, Spec{X:20, Y:20}, 8, 8)
	if err != nil {
		t.Fatalf("add s1: %v", err)
	}
	r1 := s1.Last().R
	if want := 2.0 * math.Sqrt(2.0*math.Log(2.0)) * 1.5; math.Abs(r1 - want) > 0.1 {
		t.Errorf("s1 alone: r = %.3f, want ~%.3f", r1, want)
	}
	if g := s1.Last().Geometry; g.Gap != g.R || g.Width != g.R {
		t.Errorf("seed geometry %v, want gap and width equal to r", g)
	}

	s2, err := c.Add(f, Spec{X:44, Y:44, Mag:&mag}, 8, 8)
	if err != nil {
		t.Fatalf("add s2: %v", err)
	}

	// Adding s2 changes s1's aperture on the same frame.
	e1, _ := s1.At(f)
	e2, _ := s2.At(f)
	if e1.Geometry != e2.Geometry {
		t.Errorf("geometry differs on one frame: %v vs %v", e1.Geometry, e2.Geometry)
	}
	want := 2.0 * math.Sqrt(2.0*math.Log(2.0)) * 2.0
	if math.Abs(e1.R - want) > 0.1 {
		t.Errorf("averaged r = %.3f, want ~%.3f", e1.R, want)
	}
	if s1.Geometry() != e1.Geometry {
		t.Errorf("s1 current geometry %v, want %v", s1.Geometry(), e1.Geometry)
	}

	if c.Variable() != s1 {
		t.Errorf("variable = %v, want %v", c.Variable(), s1)
	}
	if refs := c.References(); len(refs) != 1 || refs[0] != s2 {
		t.Errorf("references = %v, want [%v]", refs, s2)
	}
	if s1.Name != "Star_1" || s2.Name != "Star_2" {
		t.Errorf("names = %s,%s, want Star_1,Star_2", s1.Name, s2.Name)
	}
}

func TestCatalogPlacement(t *testing.T) {
	frames := []*frame.Frame{}
	for i:=0; i<4; i++ {
		frames = append(frames, field(48, 48, 50, blob{24, 24, 2, 800}))
	}

	c := NewCatalog()
	s, err := c.Add(frames[0], Spec{X:24, Y:24, Name:"Var"}, 8, 8)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := c.Add(frames[0], Spec{X:24, Y:24, Name:"Var"}, 8, 8); err == nil {
		t.Errorf("duplicate name accepted")
	}

	for _, f := range frames[1:] {
		if err := c.AddFrame(f); err != nil {
			t.Fatalf("add frame: %v", err)
		}
	}

	// frame 2 before frame 1 leaves a gap
	if err := c.Place(s, frames[2], Position{24, 24}, true); !errors.Is(err, ErrFrameSkipped) {
		t.Errorf("place out of order: err = %v, want ErrFrameSkipped", err)
	}

	for i, f := range frames[1:] {
		if err := c.Place(s, f, Position{24 + float64(i), 24}, i != 1); err != nil {
			t.Fatalf("place on %d: %v", i+1, err)
		}
	}

	if _, err := c.Add(frames[0], Spec{X:24, Y:24}, 8, 8); err == nil {
		t.Errorf("star added after tracking started")
	}

	entries := s.Entries()
	if len(entries) != len(frames) {
		t.Fatalf("%d entries, want %d", len(entries), len(frames))
	}
	for i, e := range entries {
		if e.Frame != frames[i] {
			t.Errorf("entry %d is for %v, want %v", i, e.Frame, frames[i])
		}
		if e.Geometry != entries[0].Geometry {
			t.Errorf("entry %d geometry %v, want it carried from %v", i, e.Geometry, entries[0].Geometry)
		}
	}
	if entries[2].Refined {
		t.Errorf("entry 2 should be unrefined")
	}

	stray := field(48, 48, 50)
	_, err = s.At(stray)
	var mfe *MissingFrameEntryError
	if !errors.As(err, &mfe) {
		t.Errorf("At(stray) err = %v, want MissingFrameEntryError", err)
	} else if mfe.Star != "Var" {
		t.Errorf("error names star %q, want Var", mfe.Star)
	}

	_, err = s.At(nil)
	if !errors.As(err, &mfe) {
		t.Errorf("At(nil) err = %v, want MissingFrameEntryError", err)
	} else if mfe.Frame != "<nil>" {
		t.Errorf("At(nil) names frame %q, want <nil>", mfe.Frame)
	}
}
