package pipeline

import(
	"fmt"

	"github.com/codahale/hdrhistogram"
	"github.com/skypies/util/histogram"

	"github.com/abworrall/varstar/pkg/photometry"
	"github.com/abworrall/varstar/pkg/track"
)

const maxCorrectionMilliPx = 100000 // 100px; anything bigger is a lost star

// A Report summarizes how tracking and photometry went for a channel.
type Report struct {
	Frames       int
	Stars        int
	SoftFails    int
	Skipped      int

	// How far the Gaussian fits moved stars from where the correlation
	// put them, in thousandths of a pixel.
	Corrections *hdrhistogram.Histogram

	// Sky background levels across all measurements, in ADU/256.
	Sky          histogram.Histogram
}

func newReport(tr *track.Result, tab *photometry.Table) Report {
	r := Report{
		Frames:      len(tr.Frames),
		Stars:       len(tr.Catalog.Stars()),
		SoftFails:   len(tr.SoftFails),
		Skipped:     len(tab.Skips),
		Corrections: hdrhistogram.New(0, maxCorrectionMilliPx, 3),
		Sky:         histogram.Histogram{NumBuckets:64, ValMin:0, ValMax:256},
	}

	for _, c := range tr.Corrections {
		v := int64(c * 1000)
		if v > maxCorrectionMilliPx { v = maxCorrectionMilliPx }
		r.Corrections.RecordValue(v)
	}

	for _, row := range tab.Rows {
		for _, m := range row {
			if m != nil && m.Background >= 0 {
				r.Sky.Add(histogram.ScalarVal(int(m.Background / 256.0)))
			}
		}
	}

	return r
}

func (r Report)String() string {
	str := fmt.Sprintf("%d stars over %d frames, %d soft fails, %d measurements skipped\n",
		r.Stars, r.Frames, r.SoftFails, r.Skipped)
	if r.Corrections.TotalCount() > 0 {
		str += fmt.Sprintf("  fit corrections (px): p50 %.3f, p90 %.3f, p99 %.3f, max %.3f (n=%d)\n",
			float64(r.Corrections.ValueAtQuantile(50)) / 1000.0,
			float64(r.Corrections.ValueAtQuantile(90)) / 1000.0,
			float64(r.Corrections.ValueAtQuantile(99)) / 1000.0,
			float64(r.Corrections.Max()) / 1000.0,
			r.Corrections.TotalCount())
	}
	str += fmt.Sprintf("  sky levels (ADU/256): %v\n", r.Sky)
	return str
}

// CorrectionQuantile is the fit correction at quantile `q` (0-100), in
// pixels.
func (r Report)CorrectionQuantile(q float64) float64 {
	return float64(r.Corrections.ValueAtQuantile(q)) / 1000.0
}
