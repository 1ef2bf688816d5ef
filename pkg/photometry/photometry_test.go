package photometry

import(
	"errors"
	"math"
	"testing"

	"github.com/abworrall/varstar/pkg/emath"
	"github.com/abworrall/varstar/pkg/frame"
	"github.com/abworrall/varstar/pkg/star"
)

const(
	sigma = 2.0
	amp   = 1000.0
	sky   = 100.0
)

type blob struct{ x, y float64 }

func field(blobs ...blob) *frame.Frame {
	g := emath.NewFloatGrid(64, 64)
	for y:=0; y<64; y++ {
		for x:=0; x<64; x++ {
			v := sky
			for _, b := range blobs {
				dx, dy := float64(x)-b.x, float64(y)-b.y
				v += amp * math.Exp(-(dx*dx + dy*dy) / (2*sigma*sigma))
			}
			g.Set(x, y, v)
		}
	}
	f := frame.NewMono(g, frame.Green, frame.Light)
	f.Name = "light_0_G"
	return f
}

func entry(f *frame.Frame, x, y float64) star.Entry {
	return star.Entry{
		Frame:    f,
		Position: star.Position{X: x, Y: y},
		Geometry: star.Geometry{R: 6, Gap: 3, Width: 5},
	}
}

func TestMeasureFlux(t *testing.T) {
	f := field(blob{32, 32})
	m, err := Measure("Var", f, entry(f, 32, 32), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := 2 * math.Pi * sigma * sigma * amp * (1 - math.Exp(-36/(2*sigma*sigma)))
	if math.Abs(m.Flux - want) > 0.01*want {
		t.Errorf("flux = %.1f, want ~%.1f", m.Flux, want)
	}
	if math.Abs(m.Background - sky) > 0.5 {
		t.Errorf("background = %.2f, want ~%.0f", m.Background, sky)
	}
	// pixel centers within r=6 of a pixel center
	if m.ApertureArea != 113 {
		t.Errorf("aperture area = %d, want 113", m.ApertureArea)
	}
	if m.SNR <= 0 {
		t.Errorf("SNR = %f, want positive", m.SNR)
	}
}

func TestMeasureOutOfBounds(t *testing.T) {
	f := field(blob{2, 32})
	_, err := Measure("Var", f, entry(f, 2, 32), DefaultOptions())
	var oob *OutOfBoundsError
	if !errors.As(err, &oob) {
		t.Fatalf("err = %v, want OutOfBoundsError", err)
	}
	if oob.Star != "Var" || oob.Frame != "light_0_G" {
		t.Errorf("error names %s on %s", oob.Star, oob.Frame)
	}

	if _, err := Measure("Var", f, entry(f, 61, 61), DefaultOptions()); !errors.As(err, &oob) {
		t.Errorf("near the far corner: err = %v, want OutOfBoundsError", err)
	}
}

func TestBackgroundMethods(t *testing.T) {
	f := field()
	e := entry(f, 32, 32)
	// hot pixels in the annulus
	for _, x := range []int{42, 43, 44} {
		f.Pix().Set(x, 32, 10000)
	}

	tests := []struct {
		method  Method
		robust  bool
	}{
		{Median, true},
		{SigmaClipMean, true},
		{SigmaClipMedian, true},
		{Mean, false},
	}
	for _, test := range tests {
		opts := DefaultOptions()
		opts.Method = test.method
		m, err := Measure("Ref1", f, e, opts)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", test.method, err)
			continue
		}
		if test.robust && math.Abs(m.Background - sky) > 1e-9 {
			t.Errorf("%s: background = %f, want %f", test.method, m.Background, sky)
		} else if !test.robust && m.Background <= sky+1 {
			t.Errorf("%s: background = %f, want it pulled up by the hot pixels", test.method, m.Background)
		}
		if test.robust && math.Abs(m.Flux) > 1e-6 {
			t.Errorf("%s: flux of empty sky = %f, want 0", test.method, m.Flux)
		}
	}

	opts := DefaultOptions()
	opts.NoBackground = true
	if m, _ := Measure("Ref1", f, e, opts); m.Flux != m.Sum {
		t.Errorf("without background subtraction flux %f != sum %f", m.Flux, m.Sum)
	}

	if _, err := ParseMethod("average"); err == nil {
		t.Errorf("ParseMethod accepted an unknown method")
	}
}

func TestMeasureAllSkipsEdgeStars(t *testing.T) {
	f := field(blob{8, 32}, blob{40, 32})
	cat := star.NewCatalog()
	mag := 10.0
	if _, err := cat.Add(f, star.Spec{X:8, Y:32, Name:"Edge"}, 5, 5); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := cat.Add(f, star.Spec{X:40, Y:32, Mag:&mag, Name:"Ref1"}, 5, 5); err != nil {
		t.Fatalf("add: %v", err)
	}

	tab, err := MeasureAll(cat, DefaultOptions())
	if err != nil {
		t.Fatalf("MeasureAll: %v", err)
	}
	if len(tab.Skips) != 1 || tab.Skips[0].Star != "Edge" {
		t.Fatalf("skips = %v, want just Edge", tab.Skips)
	}
	var oob *OutOfBoundsError
	if !errors.As(tab.Skips[0].Err, &oob) {
		t.Errorf("skip error %v, want OutOfBoundsError", tab.Skips[0].Err)
	}
	if tab.Get(0, 0) != nil {
		t.Errorf("Edge should have no measurement")
	}
	if m := tab.Get(1, 0); m == nil || m.Flux <= 0 {
		t.Errorf("Ref1 measurement = %v", m)
	}
	if col := tab.Column(1); len(col) != 1 || col[0] == nil {
		t.Errorf("Ref1 column = %v", col)
	}
}

func TestMeasureAllMissingEntry(t *testing.T) {
	f0 := field(blob{32, 32})
	f1 := field(blob{32, 32})
	f1.Name = "light_1_G"

	cat := star.NewCatalog()
	if _, err := cat.Add(f0, star.Spec{X:32, Y:32, Name:"Var"}, 5, 5); err != nil {
		t.Fatalf("add: %v", err)
	}
	// f1 is part of the sequence, but the star was never placed on it
	if err := cat.AddFrame(f1); err != nil {
		t.Fatalf("AddFrame: %v", err)
	}

	tab, err := MeasureAll(cat, DefaultOptions())
	var mfe *star.MissingFrameEntryError
	if !errors.As(err, &mfe) {
		t.Fatalf("MeasureAll = %v, %v; want MissingFrameEntryError", tab, err)
	}
	if mfe.Star != "Var" {
		t.Errorf("error names star %q, want Var", mfe.Star)
	}
	if tab != nil {
		t.Errorf("got a table alongside the error")
	}
}
