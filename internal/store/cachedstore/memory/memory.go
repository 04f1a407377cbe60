// Package memory implements an in-memory cache backend.
package memory

import (
	"slices"
	"sync/atomic"

	"github.com/discochess/pricecache/internal/stats"
	"github.com/discochess/pricecache/internal/store/cachedstore"
	"github.com/discochess/pricecache/internal/store/cachedstore/cachestrategy"
)

// Compile-time check that Backend implements cachedstore.Backend.
var _ cachedstore.Backend = (*Backend)(nil)

// Backend is a thread-safe in-memory cache backend. Values are copied on
// the way in and out so callers may reuse their buffers.
type Backend struct {
	strategy  cachestrategy.Strategy
	collector stats.Collector

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a new memory backend with the given eviction strategy.
// The collector is optional; if nil, a no-op collector is used.
func New(strategy cachestrategy.Strategy, collector stats.Collector) *Backend {
	if collector == nil {
		collector = stats.NewNoop()
	}
	return &Backend{
		strategy:  strategy,
		collector: collector,
	}
}

// Get retrieves a value from the cache.
func (b *Backend) Get(key string) ([]byte, bool) {
	val, ok := b.strategy.Get(key)
	if ok {
		b.hits.Add(1)
		b.collector.IncCounter(stats.MetricStoreCacheHits, 1)
		return slices.Clone(val), true
	}
	b.misses.Add(1)
	b.collector.IncCounter(stats.MetricStoreCacheMisses, 1)
	return nil, false
}

// Set stores a value in the cache.
func (b *Backend) Set(key string, data []byte) {
	b.strategy.Add(key, slices.Clone(data))
	b.collector.SetGauge(stats.MetricStoreCacheSize, int64(b.strategy.Len()))
}

// Remove evicts key from the cache.
func (b *Backend) Remove(key string) {
	if b.strategy.Remove(key) {
		b.collector.SetGauge(stats.MetricStoreCacheSize, int64(b.strategy.Len()))
	}
}

// Stats returns current cache statistics.
func (b *Backend) Stats() cachedstore.Stats {
	return cachedstore.Stats{
		Hits:   b.hits.Load(),
		Misses: b.misses.Load(),
		Size:   b.strategy.Len(),
	}
}

// Len returns the number of items in the cache.
func (b *Backend) Len() int {
	return b.strategy.Len()
}
