package emath

import(
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/fogleman/gg" // Move to https://pkg.go.dev/golang.org/x/image/font#Drawer sometime
)

// A FloatGrid is a grid of floats, with some operations. It holds the
// pixel data for a single plane of a frame; (x,y) has the origin at
// the top left, y goes downwards.
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

func (g1 *FloatGrid)NewFromThis() FloatGrid  { return NewFloatGrid(g1.Dx(), g1.Dy()) }
func (fg *FloatGrid)Set(x, y int, v float64) { fg.values[fg.stride*y + x] = v }
func (fg *FloatGrid)Get(x, y int) float64    { return fg.values[fg.stride*y + x] }
func (fg *FloatGrid)Add(x, y int, v float64) { fg.values[fg.stride*y + x] += v }
func (fg *FloatGrid)Dx() int                 { return fg.stride }
func (fg *FloatGrid)Dy() int                 {
	if fg.stride == 0 { return 0 }
	return len(fg.values) / fg.stride
}
func (fg *FloatGrid)Bounds() image.Rectangle { return image.Rect(0, 0, fg.Dx(), fg.Dy()) }
func (fg *FloatGrid)Values() []float64       { return fg.values }

func (g1 *FloatGrid)Copy() *FloatGrid {
	g2 := FloatGrid{stride: g1.stride, values:make([]float64, len(g1.values))}
	copy(g2.values, g1.values)
	return &g2
}

// SameSize is true if both grids have the same dimensions.
func (g1 *FloatGrid)SameSize(g2 FloatGrid) bool {
	return g1.Dx() == g2.Dx() && g1.Dy() == g2.Dy()
}

func (fg *FloatGrid)Sum() float64 {
	sum := 0.0
	for _, v := range fg.values {
		sum += v
	}
	return sum
}

func (fg *FloatGrid)Mean() float64 {
	if len(fg.values) == 0 {
		return 0.0
	}
	return fg.Sum() / float64(len(fg.values))
}

// Scale multiplies every value by `f`, in place.
func (fg *FloatGrid)Scale(f float64) {
	for i := range fg.values {
		fg.values[i] *= f
	}
}

// Sub returns the copied rectangle `r` of the grid. The rectangle must
// lie within the grid; use Clip first if it might not.
func (fg *FloatGrid)Sub(r image.Rectangle) FloatGrid {
	if !r.In(fg.Bounds()) {
		panic(fmt.Sprintf("FloatGrid.Sub: %v not inside %v", r, fg.Bounds()))
	}
	g2 := NewFloatGrid(r.Dx(), r.Dy())
	for y:=r.Min.Y; y<r.Max.Y; y++ {
		copy(g2.values[(y-r.Min.Y)*g2.stride:(y-r.Min.Y+1)*g2.stride],
			fg.values[y*fg.stride+r.Min.X:y*fg.stride+r.Max.X])
	}
	return g2
}

// Clip trims `r` so that it fits inside the grid.
func (fg *FloatGrid)Clip(r image.Rectangle) image.Rectangle {
	return r.Intersect(fg.Bounds())
}

// Bin returns a grid that is 1/(bx*by) of the size, averaging the
// values from each bx*by block of the original. Trailing rows and
// columns that don't fill a block are dropped.
func (g1 *FloatGrid)Bin(bx, by int) FloatGrid {
	if bx <= 1 && by <= 1 {
		return *g1.Copy()
	}
	if bx < 1 { bx = 1 }
	if by < 1 { by = 1 }

	width := g1.Dx() / bx
	height := g1.Dy() / by
	g2 := NewFloatGrid(width, height)
	n := float64(bx*by)

	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			p := 0.0
			for j:=0; j<by; j++ {
				for i:=0; i<bx; i++ {
					p += g1.Get(bx*x+i, by*y+j)
				}
			}
			g2.Set(x, y, p/n)
		}
	}

	return g2
}

// Translate returns a copy of the grid with the contents moved by
// (dx,dy) whole pixels. Pixels that move in from outside are zero.
func (g1 *FloatGrid)Translate(dx, dy int) FloatGrid {
	width := g1.Dx()
	height := g1.Dy()
	g2 := g1.NewFromThis()

	for y:=0; y<height; y++ {
		sy := y - dy
		if sy < 0 || sy >= height { continue }
		for x:=0; x<width; x++ {
			sx := x - dx
			if sx < 0 || sx >= width { continue }
			g2.Set(x, y, g1.Get(sx, sy))
		}
	}

	return g2
}

func (I *FloatGrid)FindMaxMinLumAtPercentile(minPrct, maxPrct float64) (float64, float64) {
	vI := []float64{}

	for i:=0 ; i<len(I.values) ; i++ {
		if val := I.values[i]; val != 0.0 {
			vI = append(vI, val)
		}
	}
	if len(vI) == 0 {
		return 0.0, 0.0
	}

	sort.Float64s(vI)

	iMin := int(minPrct * float64(len(vI)))
	iMax := int(maxPrct * float64(len(vI)))
	if iMin < 0        { iMin = 0 }
	if iMax >= len(vI) { iMax = len(vI)-1 }

	return vI[iMin], vI[iMax]
}

func (fg *FloatGrid)Stats() string {
	min := math.MaxFloat64
	max := -1.0  * min

	for i:=0 ; i<len(fg.values) ; i++ {
		if fg.values[i] > max { max = fg.values[i] }
		if fg.values[i] < min { min = fg.values[i] }
	}
	return fmt.Sprintf("fg[%dx%d, vals{%f,%f}]", fg.Dx(), fg.Dy(), min, max)
}

// ToGray renders the grid as a grayscale image, stretching the values
// between the 0.5th and 99.5th percentile and gamma scaling the gray to
// look normal for human vision. Star fields are mostly background, so
// a min/max stretch would leave everything black.
func (fg *FloatGrid)ToGray() *image.RGBA64 {
	min, max := fg.FindMaxMinLumAtPercentile(0.005, 0.995)
	if max <= min {
		max = min + 1.0
	}

	img := image.NewRGBA64(image.Rectangle{Max:image.Point{fg.Dx(), fg.Dy()}})
	for x:=0; x<fg.Dx(); x++ {
		for y:=0; y<fg.Dy(); y++ {
			lum := (fg.Get(x,y) - min) / (max - min)
			if lum < 0.0 { lum = 0.0 }
			if lum > 1.0 { lum = 1.0 }
			gray := uint16(GammaExpand_F64(lum) * 65535.0)
			img.Set(x, y, color.RGBA64{gray, gray, gray, 0xFFFF})
		}
	}
	return img
}

// ToImg saves the grid as a grayscale PNG, with a title.
func (fg *FloatGrid)ToImg(title, filename string) error {
	dc := gg.NewContextForImage(fg.ToGray())
	dc.SetRGB(1,1,1)
	dc.DrawString(title, 10, 20)
	return dc.SavePNG(filename)
}
