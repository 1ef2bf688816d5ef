// Package xcorr estimates the translation between two same-sized
// pixel windows, by phase correlation with an upsampled DFT around the
// correlation peak (Guizar-Sicairos, Thurman & Fienup, 2008), which
// gets the shift to a fraction of a pixel without upsampling the whole
// correlation surface.
package xcorr

import(
	"fmt"
	"image"
	"math"
	"math/cmplx"

	"github.com/abworrall/varstar/pkg/emath"
)

// Shift is the displacement of the content of the moving window
// relative to the reference window: something at (x,y) in the
// reference shows up at (x+DX, y+DY) in the moving window. To carry a
// position from the reference frame onto the moving frame, add it.
type Shift struct {
	DY, DX float64
	Peak   float64 // height of the correlation peak, at most 1. See Estimate
}

func (s Shift)String() string { return fmt.Sprintf("(dy=%+.2f, dx=%+.2f)", s.DY, s.DX) }

func (s Shift)Add(s2 Shift) Shift { return Shift{DY: s.DY+s2.DY, DX: s.DX+s2.DX} }

// Options for the estimator.
type Options struct {
	// The correlation peak is located to 1/Upsample of a pixel. Values
	// below 2 give whole pixels only.
	Upsample int

	// Plain cross-correlation instead of phase correlation.
	NoPhaseNormalization bool
}

func DefaultOptions() Options {
	return Options{Upsample: 20}
}

// DegenerateWindowError means a window has no signal to correlate on,
// e.g. it is all zero, saturated flat, or mostly off the frame.
type DegenerateWindowError struct {
	Which   string // "reference" or "moving"
	Reason  string
}

func (e *DegenerateWindowError)Error() string {
	return fmt.Sprintf("degenerate %s window: %s", e.Which, e.Reason)
}

const(
	minWindowSide = 4
	phaseFloor    = 1e-10 // relative to the largest cross-power amplitude
)

// Estimate returns the shift that maps `ref` onto `mov`. Each window is
// divided by its own mean first, so a change in sky background or
// exposure between the frames doesn't bias the result.
//
// With phase normalization every cross-power bin has magnitude at most
// 1, so Peak is at most 1. It only reaches 1 when every bin carries
// signal; bins below the floor are damped, so a smooth star field
// scores well under 1 even against itself.
func Estimate(ref, mov emath.FloatGrid, opts Options) (Shift, error) {
	if !ref.SameSize(mov) {
		return Shift{}, fmt.Errorf("xcorr: window sizes differ, %dx%d vs %dx%d", ref.Dx(), ref.Dy(), mov.Dx(), mov.Dy())
	}
	w, h := ref.Dx(), ref.Dy()
	if w < minWindowSide || h < minWindowSide {
		return Shift{}, &DegenerateWindowError{"reference", fmt.Sprintf("too small (%dx%d)", w, h)}
	}

	a, err := normalized(ref, "reference")
	if err != nil {
		return Shift{}, err
	}
	b, err := normalized(mov, "moving")
	if err != nil {
		return Shift{}, err
	}

	p := newPlan2d(w, h)
	p.forward(a)
	p.forward(b)

	// The cross-power spectrum; its inverse peaks at the displacement.
	cp := make([]complex128, len(a))
	maxAmp := 0.0
	for i := range a {
		cp[i] = cmplx.Conj(a[i]) * b[i]
		if amp := cmplx.Abs(cp[i]); amp > maxAmp {
			maxAmp = amp
		}
	}
	if !opts.NoPhaseNormalization {
		floor := maxAmp * phaseFloor
		for i := range cp {
			amp := cmplx.Abs(cp[i])
			if amp < floor {
				amp = floor
			}
			cp[i] /= complex(amp, 0)
		}
	}

	corr := make([]complex128, len(cp))
	copy(corr, cp)
	p.inverse(corr)

	iMax := 0
	for i := range corr {
		if real(corr[i]) > real(corr[iMax]) {
			iMax = i
		}
	}
	s := Shift{
		DY:   float64(freq(iMax / w, h)),
		DX:   float64(freq(iMax % w, w)),
		Peak: real(corr[iMax]),
	}

	if opts.Upsample >= 2 {
		s = refine(cp, w, h, s, opts.Upsample)
	}

	if math.IsNaN(s.DX) || math.IsNaN(s.DY) {
		return Shift{}, &DegenerateWindowError{"moving", "correlation has no peak"}
	}
	return s, nil
}

// normalized returns the window divided by its mean, as complex values.
func normalized(g emath.FloatGrid, which string) ([]complex128, error) {
	vals := g.Values()
	mean := g.Mean()

	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return nil, &DegenerateWindowError{which, "non-finite pixel values"}
	} else if mean <= 1e-12 {
		return nil, &DegenerateWindowError{which, fmt.Sprintf("mean %g, no usable signal", mean)}
	}

	min, max := vals[0], vals[0]
	for _, v := range vals {
		if v < min { min = v }
		if v > max { max = v }
	}
	if (max - min) <= 1e-9 * math.Abs(mean) {
		return nil, &DegenerateWindowError{which, "uniform window, no contrast"}
	}

	out := make([]complex128, len(vals))
	for i, v := range vals {
		out[i] = complex(v / mean, 0)
	}
	return out, nil
}

// refine evaluates the inverse DFT of the cross-power spectrum on a grid
// 1/up pixels apart, spanning 1.5 pixels in total (±0.75) around the
// whole pixel peak, and returns the best point on it.
func refine(cp []complex128, w, h int, coarse Shift, up int) Shift {
	n := int(math.Ceil(1.5 * float64(up)))
	mid := n / 2

	ys := make([]float64, n)
	xs := make([]float64, n)
	for j:=0; j<n; j++ {
		ys[j] = coarse.DY + float64(j - mid)/float64(up)
		xs[j] = coarse.DX + float64(j - mid)/float64(up)
	}

	// kernel[k][j] = exp(2πi f(k) pos[j] / N)
	kernel := func(pos []float64, size int) [][]complex128 {
		k := make([][]complex128, size)
		for i:=0; i<size; i++ {
			k[i] = make([]complex128, len(pos))
			f := float64(freq(i, size))
			for j, p := range pos {
				k[i][j] = cmplx.Exp(complex(0, 2*math.Pi*f*p/float64(size)))
			}
		}
		return k
	}
	kx := kernel(xs, w)
	ky := kernel(ys, h)

	// Sum over x frequencies first, then over y frequencies.
	partial := make([][]complex128, h)
	for iy:=0; iy<h; iy++ {
		partial[iy] = make([]complex128, n)
		row := cp[iy*w:(iy+1)*w]
		for j:=0; j<n; j++ {
			var sum complex128
			for ix:=0; ix<w; ix++ {
				sum += row[ix] * kx[ix][j]
			}
			partial[iy][j] = sum
		}
	}

	best := coarse
	bestVal := math.Inf(-1)
	scale := 1.0 / float64(w*h)
	for yi:=0; yi<n; yi++ {
		for xj:=0; xj<n; xj++ {
			var sum complex128
			for iy:=0; iy<h; iy++ {
				sum += ky[iy][yi] * partial[iy][xj]
			}
			if v := real(sum) * scale; v > bestVal {
				bestVal = v
				best = Shift{DY: ys[yi], DX: xs[xj], Peak: v}
			}
		}
	}

	return best
}

// WindowRect is the rectangle of half-size (hw,hh) centered on (cx,cy).
// It is not clipped to anything.
func WindowRect(cx, cy, hw, hh int) image.Rectangle {
	return image.Rect(cx-hw, cy-hh, cx+hw, cy+hh)
}

// Window copies out the window of half-size (hw,hh) around (cx,cy),
// clipped to the grid.
func Window(g *emath.FloatGrid, cx, cy, hw, hh int) emath.FloatGrid {
	return g.Sub(g.Clip(WindowRect(cx, cy, hw, hh)))
}

// EstimateAt correlates the same window of two frames' pixels, centered
// on (cx,cy). The window is clipped to the frame; the returned shift is
// for the content of that window.
func EstimateAt(ref, mov *emath.FloatGrid, cx, cy, hw, hh int, opts Options) (Shift, error) {
	if !ref.SameSize(*mov) {
		return Shift{}, fmt.Errorf("xcorr: frame sizes differ")
	}
	r := ref.Clip(WindowRect(cx, cy, hw, hh))
	if r.Dx() < minWindowSide || r.Dy() < minWindowSide {
		return Shift{}, &DegenerateWindowError{"reference", fmt.Sprintf("window %v is off the frame", r)}
	}
	return Estimate(ref.Sub(r), mov.Sub(r), opts)
}
