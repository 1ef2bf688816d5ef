package emath

import(
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Median returns the median of `vals`, averaging the two middle values
// for an even count. `vals` is not modified. NaN for an empty slice.
func Median(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	s := make([]float64, len(vals))
	copy(s, vals)
	sort.Float64s(s)
	return sortedMedian(s)
}

func sortedMedian(s []float64) float64 {
	n := len(s)
	if n % 2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2.0
}

// ClippedStats is the result of iterative sigma clipping.
type ClippedStats struct {
	Mean    float64
	Median  float64
	StdDev  float64
	N       int // values that survived clipping
	Rounds  int
}

// SigmaClip iteratively discards values further than `sigma` standard
// deviations from the median, until nothing more is discarded or
// `maxIters` rounds have run. The standard deviation is the population
// one, so a sample of identical values clips nothing.
func SigmaClip(vals []float64, sigma float64, maxIters int) ClippedStats {
	cs := ClippedStats{Mean: math.NaN(), Median: math.NaN(), StdDev: math.NaN()}
	if len(vals) == 0 {
		return cs
	}

	s := make([]float64, len(vals))
	copy(s, vals)
	sort.Float64s(s)

	for cs.Rounds < maxIters {
		med := sortedMedian(s)
		_, std := stat.PopMeanStdDev(s, nil)

		kept := s[:0:0]
		for _, v := range s {
			if math.Abs(v - med) <= sigma*std {
				kept = append(kept, v)
			}
		}
		cs.Rounds++
		if len(kept) == len(s) || len(kept) == 0 {
			break
		}
		s = kept // still sorted
	}

	cs.Median = sortedMedian(s)
	cs.Mean, cs.StdDev = stat.PopMeanStdDev(s, nil)
	cs.N = len(s)
	return cs
}
