// Package analysis provides statistical analysis of search latency samples.
package analysis

import (
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Summary holds descriptive statistics of a latency sample, in
// microseconds.
type Summary struct {
	N      int
	Mean   float64
	StdDev float64
	Min    float64
	P50    float64
	P90    float64
	P99    float64
	Max    float64
}

// Micros converts durations to microseconds.
func Micros(ds []time.Duration) []float64 {
	out := make([]float64, len(ds))
	for i, d := range ds {
		out[i] = float64(d) / float64(time.Microsecond)
	}
	return out
}

// Describe summarizes a latency sample.
func Describe(sample []time.Duration) Summary {
	if len(sample) == 0 {
		return Summary{}
	}

	xs := Micros(sample)
	slices.Sort(xs)

	s := Summary{
		N:    len(xs),
		Mean: stat.Mean(xs, nil),
		Min:  xs[0],
		P50:  stat.Quantile(0.50, stat.Empirical, xs, nil),
		P90:  stat.Quantile(0.90, stat.Empirical, xs, nil),
		P99:  stat.Quantile(0.99, stat.Empirical, xs, nil),
		Max:  xs[len(xs)-1],
	}
	if len(xs) > 1 {
		s.StdDev = stat.StdDev(xs, nil)
	}
	return s
}

// MannWhitneyResult contains the result of a Mann-Whitney U test.
type MannWhitneyResult struct {
	U           float64 // U statistic.
	Z           float64 // Z score (normal approximation).
	PValue      float64 // Two-tailed p-value.
	Significant bool    // True if p < 0.05.
}

// MannWhitneyU tests whether two samples come from different
// distributions.
func MannWhitneyU(sample1, sample2 []float64) MannWhitneyResult {
	n1 := float64(len(sample1))
	n2 := float64(len(sample2))
	if n1 == 0 || n2 == 0 {
		return MannWhitneyResult{}
	}

	type ranked struct {
		value float64
		first bool
	}
	combined := make([]ranked, 0, len(sample1)+len(sample2))
	for _, v := range sample1 {
		combined = append(combined, ranked{value: v, first: true})
	}
	for _, v := range sample2 {
		combined = append(combined, ranked{value: v})
	}
	slices.SortFunc(combined, func(a, b ranked) int {
		switch {
		case a.value < b.value:
			return -1
		case a.value > b.value:
			return 1
		}
		return 0
	})

	// Ties share their average rank.
	var r1 float64
	for i := 0; i < len(combined); {
		j := i
		for j < len(combined) && combined[j].value == combined[i].value {
			j++
		}
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if combined[k].first {
				r1 += avg
			}
		}
		i = j
	}

	u1 := r1 - n1*(n1+1)/2
	u := math.Min(u1, n1*n2-u1)

	mu := n1 * n2 / 2
	sigma := math.Sqrt(n1 * n2 * (n1 + n2 + 1) / 12)
	var z float64
	if sigma > 0 {
		z = (u - mu) / sigma
	}
	p := 2 * normalCDF(-math.Abs(z))

	return MannWhitneyResult{U: u, Z: z, PValue: p, Significant: p < 0.05}
}

func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// CohensD returns the standardized mean difference of two samples and its
// conventional interpretation.
func CohensD(sample1, sample2 []float64) (float64, string) {
	if len(sample1) < 2 || len(sample2) < 2 {
		return 0, "undefined"
	}

	n1, n2 := float64(len(sample1)), float64(len(sample2))
	sd1, sd2 := stat.StdDev(sample1, nil), stat.StdDev(sample2, nil)
	pooled := math.Sqrt(((n1-1)*sd1*sd1 + (n2-1)*sd2*sd2) / (n1 + n2 - 2))

	var d float64
	if pooled > 0 {
		d = (stat.Mean(sample1, nil) - stat.Mean(sample2, nil)) / pooled
	}

	switch ad := math.Abs(d); {
	case ad < 0.2:
		return d, "negligible"
	case ad < 0.5:
		return d, "small"
	case ad < 0.8:
		return d, "medium"
	default:
		return d, "large"
	}
}
