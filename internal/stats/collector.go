// Package stats provides a unified interface for collecting metrics.
package stats

// Metric names used throughout the library.
const (
	// Cache engine metrics.
	MetricLookups         = "pricecache_lookups_total"
	MetricLookupHits      = "pricecache_lookup_hits_total"
	MetricLookupMisses    = "pricecache_lookup_misses_total"
	MetricSearches        = "pricecache_searches_total"
	MetricSearchResults   = "pricecache_search_results"
	MetricUpsertedRecords = "pricecache_upserted_records_total"
	MetricPersistFailures = "pricecache_persist_failures_total"
	MetricRecords         = "pricecache_records"

	// Sync controller metrics.
	MetricRemoteSearches  = "pricecache_remote_searches_total"
	MetricRemoteDiscarded = "pricecache_remote_discarded_total"
	MetricResyncPages     = "pricecache_resync_pages_total"

	// Store read-through cache metrics.
	MetricStoreCacheHits   = "pricecache_store_cache_hits_total"
	MetricStoreCacheMisses = "pricecache_store_cache_misses_total"
	MetricStoreCacheSize   = "pricecache_store_cache_size"
)

// Collector defines the interface for collecting metrics.
type Collector interface {
	// IncCounter increments a counter metric by delta.
	IncCounter(name string, delta int64)

	// SetGauge sets a gauge metric to value.
	SetGauge(name string, value int64)

	// ObserveHistogram records a value in a histogram metric.
	ObserveHistogram(name string, value float64)
}
