package frame

import (
	"fmt"
	"log"
	"math"

	"github.com/abworrall/varstar/pkg/emath"
)

// How a set of calibration frames is combined into a master frame.
type StackMode string

const(
	StackMedian StackMode = "median"
	StackMean   StackMode = "mean"
)

// Stack combines single channel frames of the same type, channel and
// size, pixel by pixel. The result takes its metadata from the first
// frame.
func Stack(frames []*Frame, mode StackMode) (*Frame, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("stack: no frames")
	}
	base := frames[0]
	for _, f := range frames {
		if f.Kind != SingleChannel {
			return nil, fmt.Errorf("stack: %s is not single channel", f)
		} else if f.Channel != base.Channel {
			return nil, fmt.Errorf("stack: frames must be the same color (%s vs %s)", f, base)
		} else if f.Type != base.Type {
			return nil, fmt.Errorf("stack: frames must be the same type (%s vs %s)", f, base)
		} else if !f.Pix().SameSize(*base.Pix()) {
			return nil, fmt.Errorf("stack: frames must be the same size (%s vs %s)", f, base)
		}
	}

	out := base.Pix().NewFromThis()
	col := make([]float64, len(frames))
	for y:=0; y<out.Dy(); y++ {
		for x:=0; x<out.Dx(); x++ {
			for i, f := range frames {
				col[i] = f.Pix().Get(x, y)
			}
			switch mode {
			case StackMedian:
				out.Set(x, y, emath.Median(col))
			case StackMean:
				sum := 0.0
				for _, v := range col { sum += v }
				out.Set(x, y, sum / float64(len(col)))
			default:
				return nil, fmt.Errorf("stack: no mode named '%s'", mode)
			}
		}
	}

	master := NewMono(out, base.Channel, base.Type)
	master.ExposureTime = base.ExposureTime
	master.JD           = base.JD
	master.BinX, master.BinY = base.BinX, base.BinY
	master.Name = fmt.Sprintf("master_%s_%s", base.Type, base.Channel)
	return master, nil
}

// A CalibrationSet holds the raw calibration frames for one channel.
type CalibrationSet struct {
	Bias    []*Frame
	Darks   []*Frame
	Flats   []*Frame
	Mode    StackMode
}

func checkAll(frames []*Frame, t ImageType, c Channel) error {
	for _, f := range frames {
		if f.Kind != SingleChannel {
			return fmt.Errorf("%s is not single channel", f)
		} else if f.Type != t {
			return fmt.Errorf("%s should be a %s frame", f, t)
		} else if f.Channel != c {
			return fmt.Errorf("frames must be the same color; %s is not %s", f, c)
		}
	}
	return nil
}

// Calibrate subtracts the master bias and dark from each light frame,
// and divides by the normalized master flat. The light frames are
// modified in place. The darks must have the same exposure time as the
// lights. Any of bias/darks/flats may be empty, in which case that
// step is skipped.
func Calibrate(lights []*Frame, cs CalibrationSet) error {
	if len(lights) == 0 {
		return nil
	}
	if cs.Mode == "" {
		cs.Mode = StackMedian
	}
	c := lights[0].Channel

	if err := checkAll(lights, Light, c); err != nil {
		return fmt.Errorf("calibrate: %v", err)
	} else if err := checkAll(cs.Bias, Bias, c); err != nil {
		return fmt.Errorf("calibrate: %v", err)
	} else if err := checkAll(cs.Darks, Dark, c); err != nil {
		return fmt.Errorf("calibrate: %v", err)
	} else if err := checkAll(cs.Flats, Flat, c); err != nil {
		return fmt.Errorf("calibrate: %v", err)
	}

	var bias, dark, flat *Frame
	var err error

	if len(cs.Bias) > 0 {
		if bias, err = Stack(cs.Bias, cs.Mode); err != nil {
			return fmt.Errorf("calibrate bias: %v", err)
		}
	}

	if len(cs.Darks) > 0 {
		darks := cs.Darks
		if bias != nil {
			darks = make([]*Frame, len(cs.Darks))
			for i, d := range cs.Darks {
				if darks[i], err = subtracted(d, bias); err != nil {
					return fmt.Errorf("calibrate dark: %v", err)
				}
			}
		}
		if dark, err = Stack(darks, cs.Mode); err != nil {
			return fmt.Errorf("calibrate dark: %v", err)
		}
	}

	if len(cs.Flats) > 0 {
		flats := cs.Flats
		if bias != nil {
			flats = make([]*Frame, len(cs.Flats))
			for i, fl := range cs.Flats {
				if flats[i], err = subtracted(fl, bias); err != nil {
					return fmt.Errorf("calibrate flat: %v", err)
				}
			}
		}
		if flat, err = Stack(flats, cs.Mode); err != nil {
			return fmt.Errorf("calibrate flat: %v", err)
		}
		// Turn the flat into a multiplicative correction: mean/flat.
		pix := flat.Pix()
		mean := pix.Mean()
		for i, v := range pix.Values() {
			if v <= 0 {
				pix.Values()[i] = 1.0
			} else {
				pix.Values()[i] = mean / v
			}
		}
	}

	for _, l := range lights {
		for _, m := range []*Frame{bias, dark, flat} {
			if m != nil && !l.Pix().SameSize(*m.Pix()) {
				return fmt.Errorf("calibrate: %s and %s differ in size", l, m)
			}
		}
		if dark != nil && math.Abs(l.ExposureTime - dark.ExposureTime) > 1e-6 {
			return fmt.Errorf("calibrate: dark frames must have the same exposure as the light frames (%gs vs %gs for %s)",
				dark.ExposureTime, l.ExposureTime, l)
		}

		vals := l.Pix().Values()
		for i := range vals {
			if dark != nil { vals[i] -= dark.Pix().Values()[i] }
			if bias != nil { vals[i] -= bias.Pix().Values()[i] }
			if flat != nil { vals[i] *= flat.Pix().Values()[i] }
		}
	}

	log.Printf("Calibrated %d %s frames (bias:%d dark:%d flat:%d, %s)\n",
		len(lights), c, len(cs.Bias), len(cs.Darks), len(cs.Flats), cs.Mode)
	return nil
}

func subtracted(f, m *Frame) (*Frame, error) {
	if !f.Pix().SameSize(*m.Pix()) {
		return nil, fmt.Errorf("%s and %s differ in size", f, m)
	}
	out := *f
	pix := f.Pix().Copy()
	vals := pix.Values()
	for i := range vals {
		vals[i] -= m.Pix().Values()[i]
	}
	out.Planes = []emath.FloatGrid{*pix}
	return &out, nil
}
