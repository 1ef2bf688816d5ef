package lightcurve

import(
	"math"
	"testing"

	"github.com/abworrall/varstar/pkg/frame"
	"github.com/abworrall/varstar/pkg/photometry"
	"github.com/abworrall/varstar/pkg/star"
)

func table(fluxes [][]float64, snr float64) *photometry.Table {
	tab := &photometry.Table{
		Stars: []*star.Star{
			{Name: "Var", IsVar: true, Magnitude: math.NaN()},
			{Name: "Ref1", Magnitude: 10.0},
			{Name: "Ref2", Magnitude: 10.75},
		},
	}
	for i, row := range fluxes {
		f := &frame.Frame{Name: "light_" + string(rune('0'+i)) + "_G", JD: 2459000.5 + float64(i)*0.01}
		tab.Frames = append(tab.Frames, f)
		cells := make([]*photometry.Measurement, len(row))
		for j, flux := range row {
			if flux != 0 {
				cells[j] = &photometry.Measurement{Star: tab.Stars[j].Name, Flux: flux, SNR: snr}
			}
		}
		tab.Rows = append(tab.Rows, cells)
	}
	return tab
}

func TestDifferential(t *testing.T) {
	tab := table([][]float64{
		{1000, 2000, 1000},
		{1000, 2000, 0},     // Ref2 skipped
		{-5, 2000, 1000},    // variable lost
		{500, -1, 0},        // no usable reference
	}, 100)

	c, err := Differential(tab)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Points) != 2 || len(c.Dropped) != 2 {
		t.Fatalf("%d points, %d dropped; want 2 and 2", len(c.Points), len(c.Dropped))
	}

	m1 := 10.0 - 2.5*math.Log10(0.5)
	m2 := 10.75
	p := c.Points[0]
	if math.Abs(p.Mag - (m1+m2)/2) > 1e-9 || p.NRefs != 2 {
		t.Errorf("frame 0: %+v, want mag %f from 2 refs", p, (m1+m2)/2)
	}
	if math.Abs(p.Err - math.Abs(m1-m2)/2) > 1e-9 {
		t.Errorf("frame 0: err = %f, want %f", p.Err, math.Abs(m1-m2)/2)
	}

	p = c.Points[1]
	if math.Abs(p.Mag - m1) > 1e-9 || math.Abs(p.Err - 1.0857/100) > 1e-5 {
		t.Errorf("frame 1: %+v, want mag %f err ~0.010857", p, m1)
	}
	if p.JD != tab.Frames[1].JD {
		t.Errorf("frame 1: JD %f, want %f", p.JD, tab.Frames[1].JD)
	}
}

func TestDifferentialNeedsStars(t *testing.T) {
	tab := table([][]float64{{1, 1, 1}}, 10)
	tab.Stars[0].IsVar = false
	if _, err := Differential(tab); err == nil {
		t.Errorf("no variable star accepted")
	}
}

// sinusoid samples a sine wave of the given period at uneven times.
func sinusoid(period float64, n int) ([]float64, []float64, []float64) {
	times, mags, errs := []float64{}, []float64{}, []float64{}
	for i:=0; i<n; i++ {
		t := float64(i)*0.037 + 0.011*math.Sin(float64(i)*1.7)
		times = append(times, t)
		mags = append(mags, 11.0 + 0.3*math.Sin(2*math.Pi*t/period))
		errs = append(errs, 0.01)
	}
	return times, mags, errs
}

func TestLombScargle(t *testing.T) {
	times, mags, errs := sinusoid(0.7, 300)
	pg, err := LombScargle(times, mags, errs, PeriodRange{Min:0.2, Max:3, Step:0.001})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ests := pg.EstimatePeriods(2, 20, false)
	if len(ests) == 0 {
		t.Fatalf("no peaks found")
	}
	best := ests[0]
	if math.Abs(best.Period - 0.7) > 0.005 {
		t.Errorf("best period %s, want ~0.7", best)
	}
	if best.Power < 0.95 || best.Power > 1.0+1e-9 {
		t.Errorf("power at the true period = %f, want ~1", best.Power)
	}
	if math.IsNaN(best.Err) || best.Err <= 0 || best.Err > 0.05 {
		t.Errorf("period error %f, want small and positive", best.Err)
	}
	if len(ests) > 1 && ests[1].Power > best.Power {
		t.Errorf("estimates not sorted by power: %v", ests)
	}

	rounded := pg.EstimatePeriods(1, 20, true)[0]
	digits := math.Ceil(-math.Log10(rounded.Err))
	if scaled := rounded.Period * math.Pow(10, digits); math.Abs(scaled - math.Round(scaled)) > 1e-6 {
		t.Errorf("period %g not rounded to match error %g", rounded.Period, rounded.Err)
	}
}

func TestLombScargleBadInput(t *testing.T) {
	if _, err := LombScargle([]float64{1, 2}, []float64{1, 2}, []float64{1, 1}, DefaultPeriodRange()); err == nil {
		t.Errorf("two points accepted")
	}
	flat := []float64{5, 5, 5, 5}
	if _, err := LombScargle([]float64{0, 1, 2, 3}, flat, []float64{1, 1, 1, 1}, DefaultPeriodRange()); err == nil {
		t.Errorf("constant magnitudes accepted")
	}
}

func TestDefaultStep(t *testing.T) {
	if got := DefaultStep([]float64{10, 10.5, 10.2, 10.3, 10.35}); math.Abs(got - 0.05) > 1e-9 {
		t.Errorf("DefaultStep = %f, want 0.05", got)
	}
}

func TestPeaks(t *testing.T) {
	pg := &Periodogram{Power: []float64{0, 1, 0, 0, 5, 5, 5, 0, 2, 0, 0, 0, 3, 0}}
	got := pg.Peaks(1)
	want := []int{5, 12, 8, 1}
	if len(got) != len(want) {
		t.Fatalf("Peaks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Peaks = %v, want %v", got, want)
			break
		}
	}

	if thinned := pg.Peaks(4); len(thinned) != 3 || thinned[0] != 5 || thinned[1] != 12 || thinned[2] != 1 {
		t.Errorf("Peaks(4) = %v, want [5 12 1]", thinned)
	}
}

func TestRoundUp(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0.0123, 0.02},
		{0.3, 0.3},
		{0.07, 0.07},
		{1.2, 2},
	}
	for _, test := range tests {
		if got := roundUp(test.in); math.Abs(got - test.want) > 1e-12 {
			t.Errorf("roundUp(%g) = %g, want %g", test.in, got, test.want)
		}
	}
}
