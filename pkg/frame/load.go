package frame

import (
	"fmt"
	"image"
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/tiff"

	"github.com/abworrall/varstar/pkg/emath"
)

// JulianDate converts a UTC time into a Julian date.
func JulianDate(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(24*time.Hour) + 2440587.5
}

// LoadOptions control how a file is turned into a Frame.
type LoadOptions struct {
	// A single plane image is an undebayered RGGB sensor readout, and
	// should be demosaiced into a raw frame.
	CFA bool
}

// LoadTIFF reads a TIFF exported from the camera's raw file. The
// exposure time and start time come from the EXIF data. Three channel
// images (and CFA mosaics) become raw frames; single plane images
// become green single channel frames.
func LoadTIFF(filename string, t ImageType, opts LoadOptions) (*Frame, error) {
	var exptime, jd float64

	// First, try to load the EXIF metadata.
	if reader, err := os.Open(filename); err != nil {
		return nil, fmt.Errorf("open+r exif '%s': %v", filename, err)

	} else if ex, err := exif.Decode(reader); err != nil {
		reader.Close()
		return nil, fmt.Errorf("exif parsing '%s': %v", filename, err)

	} else {
		reader.Close()

		if tag,err := ex.Get(exif.ExposureTime); err != nil {
			return nil, fmt.Errorf("exif ExposureTime '%s': %v", filename, err)
		} else if num,denom,err := tag.Rat2(0); err != nil {
			return nil, fmt.Errorf("exif ExposureTime '%s': %v", filename, err)
		} else if denom == 0 {
			return nil, fmt.Errorf("exif ExposureTime '%s': zero denominator", filename)
		} else {
			exptime = float64(num) / float64(denom)
		}

		// Cameras write local time with no zone; we treat it as UTC, so
		// set the camera clock to UTC.
		if tm, err := ex.DateTime(); err != nil {
			return nil, fmt.Errorf("exif DateTimeOriginal '%s': %v", filename, err)
		} else {
			jd = JulianDate(time.Date(tm.Year(), tm.Month(), tm.Day(), tm.Hour(), tm.Minute(), tm.Second(), tm.Nanosecond(), time.UTC))
		}
	}

	// Re-open the file, now for the image data
	reader, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open+r img '%s': %v", filename, err)
	}
	defer reader.Close()

	img, err := tiff.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("tiff loading '%s': %v", filename, err)
	}

	f := FromImage(img, t, opts)
	f.JD = jd
	f.ExposureTime = exptime
	f.LoadFilename = filename
	return f, nil
}

// FromImage copies an image.Image into a frame, with pixel values in
// the range [0, 0xFFFF].
func FromImage(img image.Image, t ImageType, opts LoadOptions) *Frame {
	b := img.Bounds()

	switch img.(type) {
	case *image.Gray, *image.Gray16:
		g := emath.NewFloatGrid(b.Dx(), b.Dy())
		for y:=b.Min.Y; y<b.Max.Y; y++ {
			for x:=b.Min.X; x<b.Max.X; x++ {
				v, _, _, _ := img.At(x, y).RGBA()
				g.Set(x-b.Min.X, y-b.Min.Y, float64(v))
			}
		}
		if opts.CFA {
			return Demosaic(g, t)
		}
		return NewMono(g, Green, t)
	}

	r := emath.NewFloatGrid(b.Dx(), b.Dy())
	g := emath.NewFloatGrid(b.Dx(), b.Dy())
	bl := emath.NewFloatGrid(b.Dx(), b.Dy())
	for y:=b.Min.Y; y<b.Max.Y; y++ {
		for x:=b.Min.X; x<b.Max.X; x++ {
			rr, gg, bb, _ := img.At(x, y).RGBA()
			r.Set(x-b.Min.X, y-b.Min.Y, float64(rr))
			g.Set(x-b.Min.X, y-b.Min.Y, float64(gg))
			bl.Set(x-b.Min.X, y-b.Min.Y, float64(bb))
		}
	}
	return NewRaw(r, g, bl, t)
}
