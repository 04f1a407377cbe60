// Package prefixshard implements labeler-prefix sharding for product codes.
//
// Codes sharing a leading prefix (the labeler segment of an NDC, for
// example) land in the same shard. A resync that touches one
// manufacturer's catalog then dirties few shards.
package prefixshard

import (
	"github.com/discochess/pricecache/internal/record"
	"github.com/discochess/pricecache/internal/shard"
	"github.com/discochess/pricecache/internal/shard/fnvshard"
)

// DefaultPrefixLength is the labeler segment length of a normalized NDC.
const DefaultPrefixLength = 5

// Strategy implements prefix-based sharding.
type Strategy struct {
	length int
}

// Ensure Strategy implements shard.Strategy.
var _ shard.Strategy = (*Strategy)(nil)

// New creates a prefix strategy using the first length characters of the
// normalized code. A non-positive length means DefaultPrefixLength.
func New(length int) *Strategy {
	if length <= 0 {
		length = DefaultPrefixLength
	}
	return &Strategy{length: length}
}

// Name returns the strategy name.
func (s *Strategy) Name() string {
	return "prefix"
}

// ShardID hashes the code prefix. Codes shorter than the prefix hash whole.
func (s *Strategy) ShardID(code string, totalShards int) int {
	if totalShards <= 1 {
		return 0
	}
	normalized := record.NormalizeCode(code)
	if len(normalized) > s.length {
		normalized = normalized[:s.length]
	}
	return int(fnvshard.Hash(normalized) % uint32(totalShards))
}
