// Package fnvshard implements FNV-1a hash-based sharding for product codes.
//
// This provides uniform distribution across shards but no locality benefits.
package fnvshard

import (
	"github.com/discochess/pricecache/internal/record"
	"github.com/discochess/pricecache/internal/shard"
)

// Strategy implements FNV-1a hash-based sharding.
type Strategy struct{}

// Ensure Strategy implements shard.Strategy.
var _ shard.Strategy = (*Strategy)(nil)

// New creates a new FNV-based sharding strategy.
func New() *Strategy {
	return &Strategy{}
}

// Name returns the strategy name.
func (s *Strategy) Name() string {
	return "fnv32"
}

// ShardID computes a shard ID using FNV-1a hash of the normalized code.
func (s *Strategy) ShardID(code string, totalShards int) int {
	if totalShards <= 1 {
		return 0
	}
	h := Hash(record.NormalizeCode(code))
	return int(h % uint32(totalShards))
}

// Hash computes the FNV-1a 32-bit hash of a string.
func Hash(s string) uint32 {
	var h uint32 = 2166136261 // FNV offset basis
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619 // FNV prime
	}
	return h
}
