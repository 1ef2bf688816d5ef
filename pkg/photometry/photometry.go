package photometry

import(
	"errors"
	"fmt"
	"image"
	"log"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/varstar/pkg/emath"
	"github.com/abworrall/varstar/pkg/frame"
	"github.com/abworrall/varstar/pkg/star"
)

// Method is how the sky background is estimated from the annulus.
type Method string

const(
	Median          Method = "median"
	SigmaClipMean   Method = "sigmaclip-mean"
	SigmaClipMedian Method = "sigmaclip-median"
	Mean            Method = "mean"     // annulus mean, scaled to the aperture area
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case Median, SigmaClipMean, SigmaClipMedian, Mean:
		return m, nil
	case "":
		return Median, nil
	}
	return "", fmt.Errorf("no background method '%s' (median, sigmaclip-mean, sigmaclip-median, mean)", s)
}

type Options struct {
	Method       Method
	ClipSigma    float64  // default 3
	ClipIters    int      // default 5
	NoBackground bool     // report the raw aperture sum as the flux
}

func DefaultOptions() Options {
	return Options{Method: Median, ClipSigma: 3.0, ClipIters: 5}
}

// OutOfBoundsError means the annulus around a star does not fit inside
// the frame. There is no partial measurement.
type OutOfBoundsError struct {
	Star    string
	Frame   string
	Center  star.Position
	Outer   float64
	Bounds  image.Rectangle
}

func (e *OutOfBoundsError)Error() string {
	return fmt.Sprintf("%s on %s: annulus of radius %.2f at %s leaves the frame %v",
		e.Star, e.Frame, e.Outer, e.Center, e.Bounds)
}

// A Measurement is the photometry of one star on one frame.
type Measurement struct {
	Star          string
	star.Entry                // Frame, Position and Geometry measured with

	Sum           float64  // raw aperture sum
	Background    float64  // sky level per pixel
	Flux          float64  // Sum less the sky under the aperture
	ApertureArea  int      // pixels whose centers are in the aperture
	AnnulusArea   int
	SkyStdDev     float64
	SNR           float64
}

func (m Measurement)String() string {
	return fmt.Sprintf("%s on %s: flux %.1f (sum %.1f, sky %.2f/px over %d px), SNR %.1f",
		m.Star, m.Frame.Name, m.Flux, m.Sum, m.Background, m.ApertureArea, m.SNR)
}

// Measure does aperture photometry for the star entry `e` on `f`.
func Measure(name string, f *frame.Frame, e star.Entry, opts Options) (Measurement, error) {
	if e.Frame != f {
		return Measurement{}, fmt.Errorf("measure %s: entry is for %s, not %s", name, e.Frame, f)
	}
	if opts.ClipSigma <= 0 { opts.ClipSigma = 3.0 }
	if opts.ClipIters <= 0 { opts.ClipIters = 5 }

	pix := f.Pix()
	outer := e.Geometry.Outer()
	bounds := pix.Bounds()
	if e.X - outer < 0 || e.Y - outer < 0 || e.X + outer > float64(bounds.Max.X-1) || e.Y + outer > float64(bounds.Max.Y-1) {
		return Measurement{}, &OutOfBoundsError{name, f.Name, e.Position, outer, bounds}
	}

	ap, sky := apertureAndAnnulus(pix, e)
	if len(ap) == 0 || len(sky) == 0 {
		return Measurement{}, fmt.Errorf("measure %s on %s: empty aperture (%d px) or annulus (%d px) for %s",
			name, f.Name, len(ap), len(sky), e.Geometry)
	}

	m := Measurement{
		Star:         name,
		Entry:        e,
		ApertureArea: len(ap),
		AnnulusArea:  len(sky),
	}
	for _, v := range ap {
		m.Sum += v
	}

	switch opts.Method {
	case Median, "":
		m.Background = emath.Median(sky)
	case SigmaClipMean:
		m.Background = emath.SigmaClip(sky, opts.ClipSigma, opts.ClipIters).Mean
	case SigmaClipMedian:
		m.Background = emath.SigmaClip(sky, opts.ClipSigma, opts.ClipIters).Median
	case Mean:
		m.Background = stat.Mean(sky, nil)
	default:
		return Measurement{}, fmt.Errorf("measure: no background method '%s'", opts.Method)
	}

	m.Flux = m.Sum
	if !opts.NoBackground {
		m.Flux -= m.Background * float64(m.ApertureArea)
	}

	_, m.SkyStdDev = stat.PopMeanStdDev(sky, nil)
	area := float64(m.ApertureArea)
	m.SNR = (m.Sum / area) / m.SkyStdDev * math.Sqrt(area)

	return m, nil
}

// apertureAndAnnulus collects the pixel values whose centers are within
// the aperture, and within the annulus.
func apertureAndAnnulus(pix *emath.FloatGrid, e star.Entry) ([]float64, []float64) {
	r, inner, outer := e.R, e.Inner(), e.Outer()
	x0, x1 := int(math.Floor(e.X - outer)), int(math.Ceil(e.X + outer))
	y0, y1 := int(math.Floor(e.Y - outer)), int(math.Ceil(e.Y + outer))

	ap, sky := []float64{}, []float64{}
	for y:=y0; y<=y1; y++ {
		for x:=x0; x<=x1; x++ {
			d := math.Hypot(float64(x) - e.X, float64(y) - e.Y)
			switch {
			case d <= r:
				ap = append(ap, pix.Get(x,y))
			case d > inner && d <= outer:
				sky = append(sky, pix.Get(x,y))
			}
		}
	}
	return ap, sky
}

// A Skip is a star/frame pair that could not be measured.
type Skip struct {
	Star   string
	Frame  string
	Err    error
}

// A Table holds the measurements for every star on every frame of a
// catalog. Rows follow the catalog's frame order, columns its star
// order; a nil cell is a skipped pair.
type Table struct {
	Frames []*frame.Frame
	Stars  []*star.Star
	Rows   [][]*Measurement
	Skips  []Skip
}

func (t *Table)Get(s, f int) *Measurement { return t.Rows[f][s] }

// Column returns the measurements of star `s`, one per frame.
func (t *Table)Column(s int) []*Measurement {
	col := make([]*Measurement, len(t.Rows))
	for i := range t.Rows {
		col[i] = t.Rows[i][s]
	}
	return col
}

// MeasureAll measures every star on every frame of the catalog. A star
// whose annulus leaves a frame is logged and skipped there; the other
// stars on that frame are still measured. A star without an entry for
// every frame, in frame order, is an error.
func MeasureAll(cat *star.Catalog, opts Options) (*Table, error) {
	t := &Table{
		Frames: cat.Frames(),
		Stars:  cat.Stars(),
	}
	t.Rows = make([][]*Measurement, len(t.Frames))
	for i := range t.Rows {
		t.Rows[i] = make([]*Measurement, len(t.Stars))
	}

	for si, s := range t.Stars {
		entries := s.Entries()
		for fi, f := range t.Frames {
			if fi >= len(entries) || entries[fi].Frame != f {
				return nil, fmt.Errorf("photometry: %w", &star.MissingFrameEntryError{Star: s.Name, Frame: f.String()})
			}

			m, err := Measure(s.Name, f, entries[fi], opts)
			var oob *OutOfBoundsError
			if errors.As(err, &oob) {
				t.Skips = append(t.Skips, Skip{s.Name, f.Name, err})
				log.Printf("photometry: skipping %s on %s: %v\n", s.Name, f.Name, err)
				continue
			} else if err != nil {
				return nil, err
			}
			t.Rows[fi][si] = &m
		}
	}

	return t, nil
}
