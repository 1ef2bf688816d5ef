package frame

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/abworrall/varstar/pkg/emath"
)

// Bin averages bx*by blocks of pixels, on every plane of the frame.
func Bin(f *Frame, bx, by int) {
	if by <= 0 { by = bx }
	if bx <= 1 && by <= 1 {
		return
	}
	for i := range f.Planes {
		f.Planes[i] = f.Planes[i].Bin(bx, by)
	}
	f.BinX *= bx
	f.BinY *= by
}

// ExtractChannel returns a new single channel frame holding plane `c`
// of a raw frame. The pixels are copied, so the new frame is owned
// independently of `f`. Extracting from a single channel frame is only
// allowed for its own channel, and copies it.
func ExtractChannel(f *Frame, c Channel, n *Namer) (*Frame, error) {
	var pix emath.FloatGrid

	switch f.Kind {
	case RawMultiChannel:
		if c < Red || c > Blue {
			return nil, fmt.Errorf("extract %s from %s: bad channel", c, f)
		}
		pix = *f.Planes[c].Copy()

	case SingleChannel:
		if c != f.Channel {
			return nil, fmt.Errorf("extract %s from %s: frame only has %s", c, f, f.Channel)
		}
		pix = *f.Planes[0].Copy()

	default:
		return nil, fmt.Errorf("extract %s: unknown frame kind %s", c, f.Kind)
	}

	mono := NewMono(pix, c, f.Type)
	mono.JD           = f.JD
	mono.ExposureTime = f.ExposureTime
	mono.LoadFilename = f.LoadFilename
	mono.BinX, mono.BinY = f.BinX, f.BinY
	if n != nil {
		n.Name(mono)
	}
	return mono, nil
}

// Demosaic turns a single plane RGGB Bayer mosaic into a raw frame at
// half the resolution; each 2x2 cell becomes one pixel, with the two
// greens averaged. An odd trailing row or column is dropped.
func Demosaic(mosaic emath.FloatGrid, t ImageType) *Frame {
	width  := mosaic.Dx() / 2
	height := mosaic.Dy() / 2
	r := emath.NewFloatGrid(width, height)
	g := emath.NewFloatGrid(width, height)
	b := emath.NewFloatGrid(width, height)

	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			r.Set(x, y, mosaic.Get(2*x,   2*y))
			g.Set(x, y, (mosaic.Get(2*x+1, 2*y) + mosaic.Get(2*x, 2*y+1)) / 2.0)
			b.Set(x, y, mosaic.Get(2*x+1, 2*y+1))
		}
	}

	return NewRaw(r, g, b, t)
}

// Shift returns a copy of a single channel frame with its content moved
// by (dx,dy) pixels. Whole pixel shifts are exact, and pixels shifted in
// from outside the frame are zero. Anything else uses Catmull-Rom
// interpolation, with values quantized to 16 bits across the frame's
// range on the way through; pixels from outside are the frame's minimum.
func Shift(f *Frame, dx, dy float64) (*Frame, error) {
	if f.Kind != SingleChannel {
		return nil, fmt.Errorf("shift %s: not single channel", f)
	}
	pix := f.Pix()

	if dx == math.Trunc(dx) && dy == math.Trunc(dy) {
		return shifted(f, pix.Translate(int(dx), int(dy))), nil
	}

	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range pix.Values() {
		min, max = math.Min(min, v), math.Max(max, v)
	}
	scale := 1.0
	if max > min {
		scale = (max - min) / 0xFFFF
	}

	src := image.NewGray16(pix.Bounds())
	for y:=0; y<pix.Dy(); y++ {
		for x:=0; x<pix.Dx(); x++ {
			src.SetGray16(x, y, color.Gray16{uint16(math.Round((pix.Get(x,y) - min) / scale))})
		}
	}

	dst := image.NewGray16(pix.Bounds())
	xform := emath.Identity().Translate(dx, dy)
	draw.CatmullRom.Transform(dst, f64.Aff3(xform), src, src.Bounds(), draw.Src, nil)

	out := pix.NewFromThis()
	for y:=0; y<out.Dy(); y++ {
		for x:=0; x<out.Dx(); x++ {
			out.Set(x, y, float64(dst.Gray16At(x,y).Y) * scale + min)
		}
	}

	return shifted(f, out), nil
}

func shifted(f *Frame, pix emath.FloatGrid) *Frame {
	s := NewMono(pix, f.Channel, f.Type)
	s.JD           = f.JD
	s.ExposureTime = f.ExposureTime
	s.LoadFilename = f.LoadFilename
	s.Name         = f.Name
	s.BinX, s.BinY = f.BinX, f.BinY
	return s
}
