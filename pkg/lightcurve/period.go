package lightcurve

import(
	"fmt"
	"log"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/abworrall/varstar/pkg/emath"
)

// PeriodRange is the grid of trial periods, in days: Min, Min+Step, ...
// up to but not including Max.
type PeriodRange struct {
	Min   float64  `yaml:"min"`
	Max   float64  `yaml:"max"`
	Step  float64  `yaml:"step"` // 0 means derive it from the data
}

func DefaultPeriodRange() PeriodRange {
	return PeriodRange{Min: 0.02, Max: 10, Step: 0.01}
}

type Periodogram struct {
	Periods  []float64
	Freqs    []float64
	Power    []float64
}

// DefaultStep is the smallest positive change in magnitude between
// successive points; the period grid is made that fine.
func DefaultStep(mags []float64) float64 {
	step := math.Inf(1)
	for i:=1; i<len(mags); i++ {
		if d := mags[i] - mags[i-1]; d > 0 && d < step {
			step = d
		}
	}
	return step
}

// LombScargle computes the generalised (floating mean, error weighted)
// Lomb-Scargle periodogram of the curve over the trial periods, with
// the standard normalisation: power is the fraction of the variance
// explained by a sinusoid at that frequency, in [0,1].
func LombScargle(times, mags, errs []float64, pr PeriodRange) (*Periodogram, error) {
	n := len(times)
	if n < 3 || len(mags) != n || len(errs) != n {
		return nil, fmt.Errorf("periodogram: need at least 3 points with times, mags and errors (have %d/%d/%d)",
			len(times), len(mags), len(errs))
	}

	step := pr.Step
	if step <= 0 {
		step = DefaultStep(mags)
		if math.IsInf(step, 1) {
			return nil, fmt.Errorf("periodogram: magnitudes never increase, can't pick a step")
		}
	}
	if pr.Min <= 0 || pr.Max <= pr.Min {
		return nil, fmt.Errorf("periodogram: bad period range %g~%g", pr.Min, pr.Max)
	} else if (pr.Max - pr.Min) / step > 5e6 {
		return nil, fmt.Errorf("periodogram: %g~%g in steps of %g is too many periods", pr.Min, pr.Max, step)
	}

	// Normalised weights; equal if any error is unusable.
	w := make([]float64, n)
	for i, e := range errs {
		if e <= 0 || math.IsNaN(e) || math.IsInf(e, 0) {
			log.Printf("periodogram: point %d has error %g, using equal weights\n", i, e)
			for j := range w { w[j] = 1 }
			break
		}
		w[i] = 1.0 / (e*e)
	}
	floats.Scale(1.0/floats.Sum(w), w)

	Y := floats.Dot(w, mags)
	YYhat := 0.0
	for i := range mags {
		YYhat += w[i] * mags[i] * mags[i]
	}
	YY := YYhat - Y*Y
	if YY <= 0 {
		return nil, fmt.Errorf("periodogram: magnitudes are constant")
	}

	pg := &Periodogram{}
	for i:=0; ; i++ {
		p := pr.Min + float64(i)*step
		if p >= pr.Max {
			break
		}
		pg.Periods = append(pg.Periods, p)
	}
	pg.Freqs = make([]float64, len(pg.Periods))
	pg.Power = make([]float64, len(pg.Periods))

	for k, p := range pg.Periods {
		f := 1.0 / p
		pg.Freqs[k] = f
		omega := 2 * math.Pi * f

		var C, S, YC, YS, CC, SS, CS float64
		for i, t := range times {
			c, s := math.Cos(omega*t), math.Sin(omega*t)
			C += w[i] * c
			S += w[i] * s
			YC += w[i] * mags[i] * c
			YS += w[i] * mags[i] * s
			CC += w[i] * c * c
			SS += w[i] * s * s
			CS += w[i] * c * s
		}
		YC -= Y * C
		YS -= Y * S
		CC -= C * C
		SS -= S * S
		CS -= C * S

		D := CC*SS - CS*CS
		if D <= 0 {
			continue
		}
		pg.Power[k] = (SS*YC*YC + CC*YS*YS - 2*CS*YC*YS) / (YY * D)
	}

	return pg, nil
}

// Peaks returns the indices of the local maxima of the power, highest
// first, with lower peaks closer than `distance` samples to a higher
// one removed. A flat-topped peak is reported at its middle.
func (pg *Periodogram)Peaks(distance int) []int {
	p := pg.Power
	peaks := []int{}
	for i:=1; i<len(p)-1; i++ {
		if p[i-1] >= p[i] {
			continue
		}
		ahead := i + 1
		for ahead < len(p)-1 && p[ahead] == p[i] {
			ahead++
		}
		if p[ahead] < p[i] {
			peaks = append(peaks, (i + ahead - 1) / 2)
			i = ahead - 1
		}
	}

	sort.SliceStable(peaks, func(a, b int) bool { return p[peaks[a]] > p[peaks[b]] })
	if distance <= 1 {
		return peaks
	}

	kept := []int{}
	for _, i := range peaks {
		ok := true
		for _, j := range kept {
			if abs(i - j) < distance {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, i)
		}
	}
	return kept
}

func abs(i int) int {
	if i < 0 { return -i }
	return i
}

// An Estimate is a candidate period, with the error taken from the
// width of its peak.
type Estimate struct {
	Period  float64
	Err     float64  // NaN if the peak doesn't fall to half height on both sides
	Power   float64
	Index   int
}

func (e Estimate)String() string { return fmt.Sprintf("%g ± %g (power %.3f)", e.Period, e.Err, e.Power) }

// EstimatePeriods returns the `n` strongest peaks (at least `distance`
// samples apart) as period estimates, strongest first. The error is
// the half width at half maximum of the peak, found by interpolating
// in frequency on each side; if `round` is set, the error is rounded up
// to one significant digit and the period rounded to match.
func (pg *Periodogram)EstimatePeriods(n, distance int, round bool) []Estimate {
	peaks := pg.Peaks(distance)
	if len(peaks) > n {
		peaks = peaks[:n]
	}

	ests := []Estimate{}
	for _, i := range peaks {
		e := Estimate{Period: pg.Periods[i], Power: pg.Power[i], Index: i, Err: pg.halfWidth(i)}
		if round && !math.IsNaN(e.Err) && e.Err > 0 {
			e.Err = roundUp(e.Err)
			e.Period = emath.Round(e.Period, int(math.Ceil(-math.Log10(e.Err))))
		}
		ests = append(ests, e)
	}
	return ests
}

// halfWidth is the error in period for the peak at `i`, from where the
// power drops below half the peak's on either side.
func (pg *Periodogram)halfWidth(i int) float64 {
	p, f := pg.Power, pg.Freqs
	half := p[i] * 0.5

	left := -1
	for j:=i-1; j>=0; j-- {
		if p[j] < half {
			left = j
			break
		}
	}
	right := -1
	for j:=i; j<len(p); j++ {
		if p[j] < half {
			right = j
			break
		}
	}
	if left < 0 || right < 0 {
		return math.NaN()
	}

	// Periods go up, so frequencies go down: the left side is at higher
	// frequency than the peak.
	leftErr := intercept(half, f[left+1], p[left+1], f[left], p[left]) - f[i]
	rightErr := f[i] - intercept(half, f[right-1], p[right-1], f[right], p[right])

	meanRel := (leftErr/f[i] + rightErr/f[i]) / 2
	return meanRel * pg.Periods[i]
}

// intercept is the x where the line through (x1,y1),(x2,y2) reaches y.
func intercept(y, x1, y1, x2, y2 float64) float64 {
	return (y - y1) * (x2 - x1) / (y2 - y1) + x1
}

// roundUp rounds a positive value up to one significant digit.
func roundUp(x float64) float64 {
	sd := math.Floor(math.Log10(x))
	x = math.Ceil(x / math.Pow(10, sd) - 1e-9) * math.Pow(10, sd)
	return emath.Round(x, int(math.Ceil(-math.Log10(x))))
}
