package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/discochess/pricecache/benchmark/analysis"
	"github.com/discochess/pricecache/benchmark/reporting"
	"github.com/discochess/pricecache/benchmark/simulation"
	"github.com/discochess/pricecache/internal/cache"
	"github.com/discochess/pricecache/internal/shard"
	"github.com/discochess/pricecache/internal/store/memstore"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark local search on a synthetic catalog",
	Long: `Generate a synthetic pricing catalog, index it in memory and measure
local search latency per query class. Shard balance is reported for each
sharding strategy.

Examples:
  pricecache bench --records 50000
  pricecache bench --format markdown --output report.md`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

var (
	benchRecords    int
	benchQueries    int
	benchRounds     int
	benchSeed       uint64
	benchShards     int
	benchStrategies []string
	outputFormat    string
	outputFile      string
)

func init() {
	benchCmd.Flags().IntVar(&benchRecords, "records", 20000, "catalog size")
	benchCmd.Flags().IntVar(&benchQueries, "queries", 400, "queries per round")
	benchCmd.Flags().IntVar(&benchRounds, "rounds", 5, "workload rounds")
	benchCmd.Flags().Uint64Var(&benchSeed, "seed", 1, "random seed")
	benchCmd.Flags().IntVar(&benchShards, "shards", cache.DefaultShards, "shards for the balance report")
	benchCmd.Flags().StringSliceVarP(&benchStrategies, "strategies", "s", []string{"fnv32", "prefix"}, "strategies to compare")
	benchCmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "output format: text, markdown")
	benchCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchRecords <= 0 || benchQueries <= 0 || benchRounds <= 0 || benchShards <= 0 {
		return fmt.Errorf("--records, --queries, --rounds and --shards must be positive")
	}

	strategies := make([]shard.Strategy, 0, len(benchStrategies))
	for _, name := range benchStrategies {
		c := *cfg
		c.ShardStrategy = strings.ToLower(name)
		s, err := c.NewShardStrategy()
		if err != nil {
			return err
		}
		strategies = append(strategies, s)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Generating %d records...\n", benchRecords)
	}
	catalog := simulation.Catalog(benchRecords, benchSeed)
	queries := simulation.Queries(catalog, benchQueries, benchSeed)

	engine := cache.New(memstore.New(), cache.WithShards(benchShards))
	defer engine.Close()
	engine.Initialize(context.Background())
	engine.Upsert(catalog)
	if err := engine.Flush(context.Background()); err != nil {
		return fmt.Errorf("flushing cache: %w", err)
	}

	if verbose {
		fmt.Fprintln(os.Stderr, "Running workload...")
	}
	res := simulation.Run(engine.Search, queries, benchRounds)
	comparisons := analysis.CompareAll(res.Latencies, simulation.ClassExact)

	balances := make([]simulation.Balance, 0, len(strategies))
	for _, s := range strategies {
		balances = append(balances, simulation.ShardBalance(catalog, s, benchShards))
	}

	var output io.Writer = cmd.OutOrStdout()
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	switch outputFormat {
	case "markdown":
		report := reporting.NewMarkdownReport(output)
		report.WriteHeader("Pricecache Search Benchmark")
		report.WriteMethodology(len(catalog), len(queries), benchRounds)
		report.WriteLatencyTable(res)
		for _, comp := range comparisons {
			report.WriteComparison(comp)
		}
		report.WriteShardBalance(balances)
		report.WriteFooter()
	default:
		writeTextReport(output, len(catalog), res, comparisons, balances)
	}
	return nil
}

func writeTextReport(w io.Writer, records int, res *simulation.Result, comparisons []*analysis.Comparison, balances []simulation.Balance) {
	fmt.Fprintf(w, "Pricecache Search Benchmark\n")
	fmt.Fprintf(w, "===========================\n\n")
	fmt.Fprintf(w, "Records: %d\n", records)
	fmt.Fprintf(w, "Rounds:  %d\n\n", benchRounds)

	fmt.Fprintf(w, "Latency:\n")
	fmt.Fprintf(w, "--------\n\n")
	for _, class := range simulation.Classes {
		samples := res.Latencies[class]
		if len(samples) == 0 {
			continue
		}
		s := analysis.Describe(samples)
		fmt.Fprintf(w, "%s:\n", class)
		fmt.Fprintf(w, "  Searches:     %d\n", s.N)
		fmt.Fprintf(w, "  Avg results:  %.1f\n", float64(res.Results[class])/float64(s.N))
		fmt.Fprintf(w, "  p50:          %.1fµs\n", s.P50)
		fmt.Fprintf(w, "  p99:          %.1fµs\n\n", s.P99)
	}

	if len(comparisons) > 0 {
		fmt.Fprintf(w, "Statistical Analysis:\n")
		fmt.Fprintf(w, "---------------------\n\n")
		for _, comp := range comparisons {
			fmt.Fprintln(w, comp.Summary())
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintf(w, "Shard Balance:\n")
	fmt.Fprintf(w, "--------------\n\n")
	for _, b := range balances {
		fmt.Fprintf(w, "%s: %d/%d shards used, min %d, max %d, gini %.3f\n",
			b.StrategyName, b.UsedShards, b.Shards, b.MinRecords, b.MaxRecords, b.Gini)
	}
}
