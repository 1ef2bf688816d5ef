package frame

import(
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/mdouchement/hdr/tmo"
)

// HDRImage presents a frame as an hdr.Image, so calibrated frames can be
// dumped without losing the range (calibrated values go negative, and
// above 0xFFFF after flat correction). Values are scaled so that 0xFFFF
// maps to 1.0.
type HDRImage struct {
	F *Frame
}

var _ hdr.Image = HDRImage{}

// Implement image.Image
func (hi HDRImage)ColorModel() color.Model       { return hdrcolor.RGBModel }
func (hi HDRImage)Bounds() image.Rectangle       { return hi.F.Planes[0].Bounds() }
func (hi HDRImage)At(x, y int) color.Color       { return hi.HDRAt(x,y) }

// Implement hdr.Image
func (hi HDRImage)Size() int                     { return hi.F.Dx() * hi.F.Dy() }
func (hi HDRImage)HDRAt(x, y int) hdrcolor.Color {
	norm := func(v float64) float64 {
		if v < 0 { return 0 }
		return v / float64(0xFFFF)
	}

	p := hi.F.Planes
	if hi.F.Kind == RawMultiChannel {
		return hdrcolor.RGB{R:norm(p[0].Get(x,y)), G:norm(p[1].Get(x,y)), B:norm(p[2].Get(x,y))}
	}
	v := norm(p[0].Get(x,y))
	return hdrcolor.RGB{R:v, G:v, B:v}
}

// WriteHDR outputs the frame as a Radiance RGBE file.
func WriteHDR(f *Frame, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("WriteHDR, open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		if err := rgbe.Encode(writer, HDRImage{f}); err != nil {
			return fmt.Errorf("WriteHDR, encoding RGBE file '%s': %v", filename, err)
		}
		return nil
	}
}

func WritePNG(img image.Image, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return png.Encode(writer, img)
	}
}

func ListTonemappers() string { return "drago03, durand, icam06, linear, reinhard05" }

// Tonemap renders a frame down to an 8 bit image. Star fields are
// almost all sky, with a few very bright pixels, so the operators are
// tuned to keep faint stars visible.
func Tonemap(f *Frame, name string) (image.Image, error) {
	var op tmo.ToneMappingOperator
	hi := HDRImage{f}

	switch name {
	case "drago03":
		d := tmo.NewDefaultDrago03(hi)
		d.Bias = 0.7
		op = d
	case "durand":
		op = tmo.NewDefaultDurand(hi)
	case "icam06":
		op = tmo.NewDefaultICam06(hi)
	case "linear":
		op = tmo.NewLinear(hi)
	case "reinhard05":
		r := tmo.NewDefaultReinhard05(hi)
		r.Chromatic = 0
		op = r
	default:
		return nil, fmt.Errorf("tonemapper '%s' not recognized, wanted %s", name, ListTonemappers())
	}

	return op.Perform(), nil
}
