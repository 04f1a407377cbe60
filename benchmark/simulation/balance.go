package simulation

import (
	"slices"

	"github.com/discochess/pricecache/internal/record"
	"github.com/discochess/pricecache/internal/shard"
)

// Balance describes how evenly a strategy spreads records over shards.
type Balance struct {
	StrategyName string
	Shards       int
	UsedShards   int
	MinRecords   int
	MaxRecords   int
	// Gini is 0 for a perfectly even spread and approaches 1 when a few
	// shards hold everything.
	Gini float64
}

// ShardBalance assigns every record to a shard and measures the spread.
// Unused shards count as empty.
func ShardBalance(records []record.Record, strategy shard.Strategy, totalShards int) Balance {
	counts := make([]int, totalShards)
	for _, r := range records {
		counts[strategy.ShardID(record.NormalizeCode(r.RawCode), totalShards)]++
	}

	b := Balance{StrategyName: strategy.Name(), Shards: totalShards}
	if totalShards == 0 {
		return b
	}

	for _, c := range counts {
		if c > 0 {
			b.UsedShards++
		}
	}
	sorted := slices.Clone(counts)
	slices.Sort(sorted)
	b.MinRecords = sorted[0]
	b.MaxRecords = sorted[len(sorted)-1]
	b.Gini = gini(sorted)
	return b
}

// gini computes the Gini coefficient of ascending values.
func gini(sorted []int) float64 {
	n := float64(len(sorted))
	var sum, weighted float64
	for i, v := range sorted {
		sum += float64(v)
		weighted += float64(i+1) * float64(v)
	}
	if sum == 0 {
		return 0
	}
	return (2*weighted)/(n*sum) - (n+1)/n
}
