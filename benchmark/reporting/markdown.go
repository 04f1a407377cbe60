// Package reporting provides report generation for benchmark results.
package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/discochess/pricecache/benchmark/analysis"
	"github.com/discochess/pricecache/benchmark/simulation"
)

// MarkdownReport generates benchmark reports in Markdown format.
type MarkdownReport struct {
	w io.Writer
}

// NewMarkdownReport creates a new Markdown report writer.
func NewMarkdownReport(w io.Writer) *MarkdownReport {
	return &MarkdownReport{w: w}
}

// WriteHeader writes the report header.
func (r *MarkdownReport) WriteHeader(title string) {
	fmt.Fprintf(r.w, "# %s\n\n", title)
	fmt.Fprintf(r.w, "Generated: %s\n\n", time.Now().Format(time.RFC3339))
}

// WriteMethodology writes the methodology section.
func (r *MarkdownReport) WriteMethodology(records, queries, rounds int) {
	fmt.Fprintln(r.w, "## Methodology")
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "- **Records indexed:** %d\n", records)
	fmt.Fprintf(r.w, "- **Queries per round:** %d\n", queries)
	fmt.Fprintf(r.w, "- **Rounds:** %d\n", rounds)
	fmt.Fprintln(r.w, "- **Metric:** local search latency per query class (lower is better)")
	fmt.Fprintln(r.w, "- **Statistical tests:** Mann-Whitney U (non-parametric), Cohen's d effect size")
	fmt.Fprintln(r.w)
}

// WriteLatencyTable writes one row of latency percentiles per query class.
func (r *MarkdownReport) WriteLatencyTable(res *simulation.Result) {
	fmt.Fprintln(r.w, "## Latency")
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, "| Class | N | Avg results | p50 (µs) | p90 (µs) | p99 (µs) | Max (µs) |")
	fmt.Fprintln(r.w, "|-------|---|-------------|----------|----------|----------|----------|")

	for _, class := range simulation.Classes {
		samples := res.Latencies[class]
		if len(samples) == 0 {
			continue
		}
		s := analysis.Describe(samples)
		avg := float64(res.Results[class]) / float64(len(samples))
		fmt.Fprintf(r.w, "| %s | %d | %.1f | %.1f | %.1f | %.1f | %.1f |\n",
			class, s.N, avg, s.P50, s.P90, s.P99, s.Max)
	}
	fmt.Fprintln(r.w)
}

// WriteComparison writes a detailed comparison section.
func (r *MarkdownReport) WriteComparison(comp *analysis.Comparison) {
	fmt.Fprintf(r.w, "## %s vs %s\n\n", comp.Name1, comp.Name2)

	fmt.Fprintln(r.w, "| Metric | "+comp.Name1+" | "+comp.Name2+" |")
	fmt.Fprintln(r.w, "|--------|"+strings.Repeat("-", len(comp.Name1)+2)+"|"+strings.Repeat("-", len(comp.Name2)+2)+"|")
	fmt.Fprintf(r.w, "| Mean | %.1f | %.1f |\n", comp.Summary1.Mean, comp.Summary2.Mean)
	fmt.Fprintf(r.w, "| p50 | %.1f | %.1f |\n", comp.Summary1.P50, comp.Summary2.P50)
	fmt.Fprintf(r.w, "| Std Dev | %.1f | %.1f |\n", comp.Summary1.StdDev, comp.Summary2.StdDev)
	fmt.Fprintln(r.w)

	fmt.Fprintf(r.w, "- **Mann-Whitney U:** %.2f (z=%.2f, p=%.4f)\n",
		comp.MannWhitney.U, comp.MannWhitney.Z, comp.MannWhitney.PValue)
	fmt.Fprintf(r.w, "- **Effect size (Cohen's d):** %.2f (%s)\n", comp.CohensD, comp.Interpretation)
	if comp.FasterConfident {
		fmt.Fprintf(r.w, "- **Faster:** %s (p < 0.05)\n", comp.Faster)
	} else {
		fmt.Fprintln(r.w, "- **Faster:** no statistically significant difference")
	}
	fmt.Fprintln(r.w)
}

// WriteShardBalance writes how evenly each strategy spreads records.
func (r *MarkdownReport) WriteShardBalance(balances []simulation.Balance) {
	fmt.Fprintln(r.w, "## Shard balance")
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, "| Strategy | Shards | Used | Min | Max | Gini |")
	fmt.Fprintln(r.w, "|----------|--------|------|-----|-----|------|")
	for _, b := range balances {
		fmt.Fprintf(r.w, "| %s | %d | %d | %d | %d | %.3f |\n",
			b.StrategyName, b.Shards, b.UsedShards, b.MinRecords, b.MaxRecords, b.Gini)
	}
	fmt.Fprintln(r.w)
}

// WriteFooter writes the report footer.
func (r *MarkdownReport) WriteFooter() {
	fmt.Fprintln(r.w, "---")
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, "*Report generated by pricecache bench*")
}
