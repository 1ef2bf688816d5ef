package xcorr

import(
	"errors"
	"math"
	"testing"

	"github.com/abworrall/varstar/pkg/emath"
)

// starfield renders a few Gaussian blobs onto a flat background. The
// blobs are all offset by (dx,dy).
func starfield(w, h int, dx, dy float64) emath.FloatGrid {
	blobs := []struct{ x, y, sigma, amp float64 }{
		{float64(w)/2, float64(h)/2, 3.0, 1000},
		{float64(w)/2 - 8, float64(h)/2 + 5, 2.0, 400},
		{float64(w)/2 + 6, float64(h)/2 - 9, 2.5, 250},
	}

	g := emath.NewFloatGrid(w, h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			v := 10.0
			for _, b := range blobs {
				ddx, ddy := float64(x)-b.x-dx, float64(y)-b.y-dy
				v += b.amp * math.Exp(-(ddx*ddx + ddy*ddy) / (2*b.sigma*b.sigma))
			}
			g.Set(x, y, v)
		}
	}
	return g
}

func TestEstimateIdentical(t *testing.T) {
	ref := starfield(64, 64, 0, 0)
	s, err := Estimate(ref, *ref.Copy(), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(s.DX) > 0.1 || math.Abs(s.DY) > 0.1 {
		t.Errorf("identical windows gave %s, want ~(0,0)", s)
	}
	// The smooth field has almost no power at high frequencies; those
	// bins are floored, so the peak lands well under 1.
	if s.Peak <= 0 || s.Peak > 1+1e-9 {
		t.Errorf("peak = %.3f, want in (0,1]", s.Peak)
	}
}

func TestEstimateIntegerShifts(t *testing.T) {
	ref := starfield(64, 64, 0, 0)
	for dy:=-5; dy<=5; dy++ {
		for dx:=-5; dx<=5; dx++ {
			mov := starfield(64, 64, float64(dx), float64(dy))
			s, err := Estimate(ref, mov, DefaultOptions())
			if err != nil {
				t.Errorf("(%d,%d): unexpected error: %v", dy, dx, err)
				continue
			}
			if math.Abs(s.DX - float64(dx)) > 0.5 || math.Abs(s.DY - float64(dy)) > 0.5 {
				t.Errorf("shift (dy=%d,dx=%d) estimated as %s", dy, dx, s)
			}
		}
	}
}

func TestEstimateSubpixel(t *testing.T) {
	ref := starfield(64, 64, 0, 0)
	tests := []struct{ dx, dy float64 }{
		{0.4, 0.0},
		{-1.3, 2.6},
		{3.25, -0.75},
	}
	for _, test := range tests {
		mov := starfield(64, 64, test.dx, test.dy)
		s, err := Estimate(ref, mov, DefaultOptions())
		if err != nil {
			t.Errorf("%v: unexpected error: %v", test, err)
			continue
		}
		if math.Abs(s.DX - test.dx) > 0.15 || math.Abs(s.DY - test.dy) > 0.15 {
			t.Errorf("shift (dy=%.2f,dx=%.2f) estimated as %s", test.dy, test.dx, s)
		}
	}
}

func TestRefineStaysNearCoarsePeak(t *testing.T) {
	ref := starfield(64, 64, 0, 0)
	coarseOpts := DefaultOptions()
	coarseOpts.Upsample = 0
	for _, dx := range []float64{0.4, 0.5, -1.3, 2.7} {
		mov := starfield(64, 64, dx, 0)
		coarse, err := Estimate(ref, mov, coarseOpts)
		if err != nil {
			t.Fatalf("dx=%.2f coarse: %v", dx, err)
		}
		fine, err := Estimate(ref, mov, DefaultOptions())
		if err != nil {
			t.Fatalf("dx=%.2f fine: %v", dx, err)
		}
		if math.Abs(fine.DX - coarse.DX) > 0.75 || math.Abs(fine.DY - coarse.DY) > 0.75 {
			t.Errorf("dx=%.2f: refined %s is more than 0.75px from whole pixel %s", dx, fine, coarse)
		}
	}
}

func TestEstimateBrightnessChange(t *testing.T) {
	ref := starfield(64, 64, 0, 0)
	mov := starfield(64, 64, 2, -3)
	mov.Scale(2.5)

	s, err := Estimate(ref, mov, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(s.DX - 2) > 0.5 || math.Abs(s.DY + 3) > 0.5 {
		t.Errorf("scaled window gave %s, want ~(dy=-3,dx=+2)", s)
	}
}

func TestEstimateDegenerate(t *testing.T) {
	ref := starfield(32, 32, 0, 0)
	uniform := emath.NewFloatGrid(32, 32)
	for y:=0; y<32; y++ {
		for x:=0; x<32; x++ {
			uniform.Set(x, y, 42.0)
		}
	}

	tests := []struct {
		name     string
		ref, mov emath.FloatGrid
		which    string
	}{
		{"zero ref", emath.NewFloatGrid(32, 32), ref, "reference"},
		{"zero mov", ref, emath.NewFloatGrid(32, 32), "moving"},
		{"uniform", ref, uniform, "moving"},
		{"tiny", emath.NewFloatGrid(3, 3), emath.NewFloatGrid(3, 3), "reference"},
	}

	for _, test := range tests {
		_, err := Estimate(test.ref, test.mov, DefaultOptions())
		var dwe *DegenerateWindowError
		if !errors.As(err, &dwe) {
			t.Errorf("%s: err = %v, want DegenerateWindowError", test.name, err)
		} else if dwe.Which != test.which {
			t.Errorf("%s: error blames %s window, want %s", test.name, dwe.Which, test.which)
		}
	}
}

func TestEstimateSizeMismatch(t *testing.T) {
	_, err := Estimate(starfield(32, 32, 0, 0), starfield(32, 16, 0, 0), DefaultOptions())
	var dwe *DegenerateWindowError
	if err == nil || errors.As(err, &dwe) {
		t.Errorf("size mismatch: err = %v, want a plain error", err)
	}
}

func TestEstimateAt(t *testing.T) {
	ref := starfield(96, 96, 0, 0)
	mov := starfield(96, 96, -2, 3)

	s, err := EstimateAt(&ref, &mov, 48, 48, 20, 20, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(s.DX + 2) > 0.5 || math.Abs(s.DY - 3) > 0.5 {
		t.Errorf("EstimateAt gave %s, want ~(dy=+3,dx=-2)", s)
	}

	_, err = EstimateAt(&ref, &mov, -30, 48, 20, 20, DefaultOptions())
	var dwe *DegenerateWindowError
	if !errors.As(err, &dwe) {
		t.Errorf("window off the frame: err = %v, want DegenerateWindowError", err)
	}
}

func TestWindow(t *testing.T) {
	g := starfield(32, 32, 0, 0)
	w := Window(&g, 2, 16, 5, 5)
	if w.Dx() != 7 || w.Dy() != 10 {
		t.Errorf("clipped window is %dx%d, want 7x10", w.Dx(), w.Dy())
	}
	if w.Get(0, 0) != g.Get(0, 11) {
		t.Errorf("window origin = %f, want %f", w.Get(0,0), g.Get(0,11))
	}
}
