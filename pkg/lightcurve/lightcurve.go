package lightcurve

import(
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/varstar/pkg/photometry"
)

// A Point is the variable star's magnitude on one frame.
type Point struct {
	Frame  string
	JD     float64
	Mag    float64
	Err    float64
	SNR    float64  // of the variable
	NRefs  int      // reference stars that went into Mag
}

type Curve struct {
	Star    string
	Points  []Point
	Dropped []string  // frames with no usable measurement
}

func (c *Curve)Times() []float64 { return c.column(func(p Point) float64 { return p.JD }) }
func (c *Curve)Mags() []float64  { return c.column(func(p Point) float64 { return p.Mag }) }
func (c *Curve)Errs() []float64  { return c.column(func(p Point) float64 { return p.Err }) }

func (c *Curve)column(f func(Point) float64) []float64 {
	out := make([]float64, len(c.Points))
	for i, p := range c.Points {
		out[i] = f(p)
	}
	return out
}

func (c *Curve)String() string {
	return fmt.Sprintf("Lightcurve[%s, %d points, %d dropped]", c.Star, len(c.Points), len(c.Dropped))
}

// Differential turns a table of instrumental fluxes into magnitudes for
// the variable star, one per frame. Each reference star with a positive
// flux gives a magnitude, m_ref - 2.5 log10(F_var/F_ref); the frame's
// value is their mean. With several references the error is their
// spread; with one it comes from the variable's SNR.
func Differential(tab *photometry.Table) (*Curve, error) {
	iVar := -1
	iRefs := []int{}
	for i, s := range tab.Stars {
		if s.IsVar && iVar < 0 {
			iVar = i
		} else if !s.IsVar {
			iRefs = append(iRefs, i)
		}
	}
	if iVar < 0 {
		return nil, fmt.Errorf("lightcurve: no variable star")
	} else if len(iRefs) == 0 {
		return nil, fmt.Errorf("lightcurve: no reference stars")
	}

	c := &Curve{Star: tab.Stars[iVar].Name}

	for fi, f := range tab.Frames {
		v := tab.Get(iVar, fi)
		if v == nil || v.Flux <= 0 {
			c.Dropped = append(c.Dropped, f.Name)
			log.Printf("lightcurve: dropping %s, variable has no positive flux\n", f.Name)
			continue
		}

		mags := []float64{}
		for _, ir := range iRefs {
			r := tab.Get(ir, fi)
			if r == nil || r.Flux <= 0 {
				continue
			}
			mags = append(mags, tab.Stars[ir].Magnitude - 2.5*math.Log10(v.Flux / r.Flux))
		}
		if len(mags) == 0 {
			c.Dropped = append(c.Dropped, f.Name)
			log.Printf("lightcurve: dropping %s, no reference star has a positive flux\n", f.Name)
			continue
		}

		p := Point{Frame: f.Name, JD: f.JD, SNR: v.SNR, NRefs: len(mags)}
		if len(mags) > 1 {
			p.Mag, p.Err = stat.PopMeanStdDev(mags, nil)
		} else {
			p.Mag = mags[0]
			p.Err = 2.5 / math.Ln10 / v.SNR  // 1.0857/SNR
		}
		c.Points = append(c.Points, p)
	}

	if len(c.Points) == 0 {
		return c, fmt.Errorf("lightcurve: no usable frames out of %d", len(tab.Frames))
	}
	return c, nil
}
