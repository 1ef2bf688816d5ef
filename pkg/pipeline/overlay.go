package pipeline

import(
	"fmt"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/abworrall/varstar/pkg/star"
	"github.com/abworrall/varstar/pkg/track"
)

// starColor gives each star its own hue; the variable is always red.
func starColor(i int, s *star.Star) colorful.Color {
	if s.IsVar {
		return colorful.Hsv(0, 1, 1)
	}
	return colorful.Hsv(float64(60 + (i*47) % 300), 0.8, 1)
}

// Overlay renders frame `fi` of the run with every star's aperture and
// annulus drawn over it, and its correlation window.
func Overlay(tr *track.Result, fi int) (*gg.Context, error) {
	f := tr.Frames[fi]
	dc := gg.NewContextForImage(f.Pix().ToGray())

	for i, s := range tr.Catalog.Stars() {
		entries := s.Entries()
		if fi >= len(entries) || entries[fi].Frame != f {
			return nil, fmt.Errorf("overlay: %w", &star.MissingFrameEntryError{Star: s.Name, Frame: f.String()})
		}
		e := entries[fi]
		col := starColor(i, s)
		dc.SetColor(col)

		dc.SetLineWidth(1.5)
		dc.DrawCircle(e.X, e.Y, e.R)
		dc.Stroke()

		dc.SetLineWidth(1)
		dc.DrawCircle(e.X, e.Y, e.Inner())
		dc.Stroke()
		dc.DrawCircle(e.X, e.Y, e.Outer())
		dc.Stroke()

		if !e.Refined {
			dc.SetDash(3, 3)
		}
		w := tr.Window(e.Position)
		dc.DrawRectangle(float64(w.Min.X), float64(w.Min.Y), float64(w.Dx()), float64(w.Dy()))
		dc.Stroke()
		dc.SetDash()

		dc.DrawString(s.Name, e.X + e.Outer() + 2, e.Y)
	}

	dc.SetRGB(1,1,1)
	dc.DrawString(fmt.Sprintf("%s JD %.5f", f.Name, f.JD), 10, 20)
	return dc, nil
}

func writeOverlays(dir string, res ChannelResult) error {
	for fi, f := range res.Track.Frames {
		dc, err := Overlay(res.Track, fi)
		if err != nil {
			return err
		}
		filename := filepath.Join(dir, "overlay_" + f.Name + ".png")
		if err := dc.SavePNG(filename); err != nil {
			return fmt.Errorf("overlay '%s': %v", filename, err)
		}
	}
	return nil
}
