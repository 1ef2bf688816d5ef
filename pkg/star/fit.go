package star

import(
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/abworrall/varstar/pkg/emath"
)

// A Profile is an axis-aligned 2-D Gaussian plus a flat background,
// fitted to the pixels around a star. X,Y are in frame pixel coords.
type Profile struct {
	Amplitude  float64
	X, Y       float64
	SigmaX     float64
	SigmaY     float64
	Background float64
}

// FWHM is the full width at half maximum, averaged over both axes.
func (p Profile)FWHM() float64 {
	return math.Sqrt(2.0 * math.Log(2.0)) * (p.SigmaX + p.SigmaY)
}

func (p Profile)String() string {
	return fmt.Sprintf("gauss(%.2f,%.2f σ=%.2f/%.2f amp=%.1f bg=%.1f)",
		p.X, p.Y, p.SigmaX, p.SigmaY, p.Amplitude, p.Background)
}

// CentroidFitError means a Gaussian could not be fitted to the window;
// either the window leaves the frame, or the fit did not settle on
// something that looks like a star inside the window.
type CentroidFitError struct {
	Window image.Rectangle
	Reason string
}

func (e *CentroidFitError)Error() string {
	return fmt.Sprintf("centroid fit in %v: %s", e.Window, e.Reason)
}

// FitWindow is the fitting window of half-size (hw,hh) around the pixel
// containing (x,y).
func FitWindow(x, y float64, hw, hh int) image.Rectangle {
	cx, cy := int(math.Round(x)), int(math.Round(y))
	return image.Rect(cx-hw, cy-hh, cx+hw+1, cy+hh+1)
}

// FitGaussian fits a Profile to the pixels of `g` inside `r`. The whole
// window must be on the grid; there is no fallback to a clipped window,
// since a star at the very edge can't be measured anyway.
func FitGaussian(g *emath.FloatGrid, r image.Rectangle) (Profile, error) {
	if r.Empty() || !r.In(g.Bounds()) {
		return Profile{}, &CentroidFitError{r, "window leaves the frame"}
	}

	win := g.Sub(r)
	w, h := win.Dx(), win.Dy()
	vals := win.Values()

	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		if v < lo { lo = v }
		if v > hi { hi = v }
	}
	if hi - lo <= 1e-9 * math.Max(1.0, math.Abs(hi)) {
		return Profile{}, &CentroidFitError{r, "flat window"}
	}

	// Fit in units where the window spans [0,1].
	span := hi - lo
	norm := make([]float64, len(vals))
	for i, v := range vals {
		norm[i] = (v - lo) / span
	}

	init := initialGuess(norm, w, h)

	model := func(p []float64, x, y float64) float64 {
		sx, sy := math.Abs(p[3]), math.Abs(p[4])
		dx, dy := (x - p[1]) / sx, (y - p[2]) / sy
		return p[0] * math.Exp(-0.5*(dx*dx + dy*dy)) + p[5]
	}
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			if math.Abs(p[3]) < 1e-3 || math.Abs(p[4]) < 1e-3 {
				return math.Inf(1)
			}
			sum := 0.0
			for y:=0; y<h; y++ {
				for x:=0; x<w; x++ {
					d := model(p, float64(x), float64(y)) - norm[y*w+x]
					sum += d*d
				}
			}
			return sum
		},
	}

	settings := &optimize.Settings{
		MajorIterations: 5000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 200,
		},
	}

	res, err := optimize.Minimize(problem, init, settings, &optimize.NelderMead{SimplexSize: 0.3})
	if res == nil {
		return Profile{}, &CentroidFitError{r, fmt.Sprintf("optimizer failed: %v", err)}
	}
	p := res.X

	prof := Profile{
		Amplitude:  p[0] * span,
		X:          p[1] + float64(r.Min.X),
		Y:          p[2] + float64(r.Min.Y),
		SigmaX:     math.Abs(p[3]),
		SigmaY:     math.Abs(p[4]),
		Background: p[5]*span + lo,
	}

	switch {
	case err != nil && res.Status != optimize.IterationLimit:
		return prof, &CentroidFitError{r, fmt.Sprintf("optimizer: %v", err)}
	case p[0] <= 0:
		return prof, &CentroidFitError{r, "fitted a hole, not a star"}
	case p[1] < 0 || p[1] > float64(w-1) || p[2] < 0 || p[2] > float64(h-1):
		return prof, &CentroidFitError{r, fmt.Sprintf("center %.1f,%.1f outside window", prof.X, prof.Y)}
	case prof.SigmaX < 0.3 || prof.SigmaY < 0.3:
		return prof, &CentroidFitError{r, fmt.Sprintf("too narrow (%.2f,%.2f), hot pixel?", prof.SigmaX, prof.SigmaY)}
	case prof.SigmaX > float64(w)/2 || prof.SigmaY > float64(h)/2:
		return prof, &CentroidFitError{r, fmt.Sprintf("too wide (%.2f,%.2f)", prof.SigmaX, prof.SigmaY)}
	}

	return prof, nil
}

// initialGuess starts from the median as background, the brightest
// pixel as the center, and a width taken from how many pixels are
// above half of the peak.
func initialGuess(norm []float64, w, h int) []float64 {
	bg := emath.Median(norm)

	iMax := 0
	for i, v := range norm {
		if v > norm[iMax] {
			iMax = i
		}
	}
	amp := norm[iMax] - bg
	cx, cy := float64(iMax % w), float64(iMax / w)

	nHalf := 0
	for _, v := range norm {
		if v - bg >= amp/2 {
			nHalf++
		}
	}
	fwhm := 2.0 * math.Sqrt(float64(nHalf) / math.Pi)
	sigma := fwhm / (2.0 * math.Sqrt(2.0 * math.Log(2.0)))
	if sigma < 0.7 { sigma = 0.7 }
	if max := float64(w)/4; sigma > max { sigma = max }

	return []float64{amp, cx, cy, sigma, sigma, bg}
}
