package analysis

import (
	"fmt"
	"sort"
	"time"
)

// Comparison contrasts the latency of two query classes.
type Comparison struct {
	Name1, Name2    string
	Summary1        Summary
	Summary2        Summary
	MannWhitney     MannWhitneyResult
	CohensD         float64
	Interpretation  string
	Faster          string // Name of the class with the lower median, or "tie".
	FasterConfident bool   // True if statistically significant.
}

// Compare contrasts two latency samples.
func Compare(name1 string, sample1 []time.Duration, name2 string, sample2 []time.Duration) *Comparison {
	xs1, xs2 := Micros(sample1), Micros(sample2)
	d, interp := CohensD(xs1, xs2)

	c := &Comparison{
		Name1:          name1,
		Name2:          name2,
		Summary1:       Describe(sample1),
		Summary2:       Describe(sample2),
		MannWhitney:    MannWhitneyU(xs1, xs2),
		CohensD:        d,
		Interpretation: interp,
	}

	switch {
	case c.Summary1.P50 < c.Summary2.P50:
		c.Faster = name1
	case c.Summary2.P50 < c.Summary1.P50:
		c.Faster = name2
	default:
		c.Faster = "tie"
	}
	c.FasterConfident = c.Faster != "tie" && c.MannWhitney.Significant
	return c
}

// Summary returns a human-readable summary of the comparison.
func (c *Comparison) Summary() string {
	sig := "not statistically significant"
	if c.MannWhitney.Significant {
		sig = fmt.Sprintf("statistically significant (p=%.4f)", c.MannWhitney.PValue)
	}

	return fmt.Sprintf(
		"%s vs %s:\n"+
			"  %s: p50=%.1fµs, p99=%.1fµs\n"+
			"  %s: p50=%.1fµs, p99=%.1fµs\n"+
			"  Effect size: %.2f (%s)\n"+
			"  Faster: %s, %s",
		c.Name1, c.Name2,
		c.Name1, c.Summary1.P50, c.Summary1.P99,
		c.Name2, c.Summary2.P50, c.Summary2.P99,
		c.CohensD, c.Interpretation,
		c.Faster, sig,
	)
}

// CompareAll compares every sample against the baseline, in name order.
// It returns nil if the baseline is missing.
func CompareAll(samples map[string][]time.Duration, baseline string) []*Comparison {
	base, ok := samples[baseline]
	if !ok {
		return nil
	}

	names := make([]string, 0, len(samples))
	for name := range samples {
		if name != baseline {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]*Comparison, 0, len(names))
	for _, name := range names {
		out = append(out, Compare(baseline, base, name, samples[name]))
	}
	return out
}
