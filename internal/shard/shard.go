// Package shard defines the sharding strategy interface for distributing
// pricing records across persisted shard objects.
package shard

// Strategy defines a sharding algorithm that maps product codes to shard IDs.
type Strategy interface {
	// Name returns a human-readable name for this strategy. It is written
	// to the persisted metadata so a strategy change can be detected.
	Name() string

	// ShardID computes the shard ID for a given product code.
	// The returned value is in the range [0, totalShards).
	//
	// Implementations normalize the code internally so the raw and
	// canonical forms of a code map to the same shard.
	ShardID(code string, totalShards int) int
}
