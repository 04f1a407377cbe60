// Package prometheus provides a Prometheus-based stats collector.
package prometheus

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/discochess/pricecache/internal/stats"
)

// help describes the metrics the library emits. Unknown names use the
// metric name as help text.
var help = map[string]string{
	stats.MetricLookups:          "Exact code lookups against the local cache.",
	stats.MetricLookupHits:       "Exact code lookups that found a record.",
	stats.MetricLookupMisses:     "Exact code lookups that found nothing.",
	stats.MetricSearches:         "Local searches executed.",
	stats.MetricSearchResults:    "Number of records returned per local search.",
	stats.MetricUpsertedRecords:  "Records written into the cache.",
	stats.MetricPersistFailures:  "Persistence attempts that failed.",
	stats.MetricRecords:          "Distinct records held by the cache.",
	stats.MetricRemoteSearches:   "Remote searches issued by the sync controller.",
	stats.MetricRemoteDiscarded:  "Remote responses discarded as superseded.",
	stats.MetricResyncPages:      "Index pages merged during resync.",
	stats.MetricStoreCacheHits:   "Store reads served by the read-through cache.",
	stats.MetricStoreCacheMisses: "Store reads that went to the underlying store.",
	stats.MetricStoreCacheSize:   "Entries held by the store read-through cache.",
}

// defaultBuckets maps histogram names to bucket layouts. Histograms not
// listed use prometheus.DefBuckets.
var defaultBuckets = map[string][]float64{
	stats.MetricSearchResults: prometheus.ExponentialBuckets(1, 2, 7),
}

// Collector implements stats.Collector using Prometheus metrics.
type Collector struct {
	registry prometheus.Registerer

	mu         sync.RWMutex
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
}

// Compile-time check that Collector implements stats.Collector.
var _ stats.Collector = (*Collector)(nil)

// New creates a new Prometheus collector.
// If registry is nil, prometheus.DefaultRegisterer is used.
func New(registry prometheus.Registerer) *Collector {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	return &Collector{
		registry:   registry,
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// IncCounter increments a counter metric.
func (c *Collector) IncCounter(name string, delta int64) {
	counter := getOrCreate(c, c.counters, name, func() prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: helpFor(name)})
	})
	counter.Add(float64(delta))
}

// SetGauge sets a gauge metric.
func (c *Collector) SetGauge(name string, value int64) {
	gauge := getOrCreate(c, c.gauges, name, func() prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: helpFor(name)})
	})
	gauge.Set(float64(value))
}

// ObserveHistogram records a value in a histogram.
func (c *Collector) ObserveHistogram(name string, value float64) {
	histogram := getOrCreate(c, c.histograms, name, func() prometheus.Histogram {
		buckets, ok := defaultBuckets[name]
		if !ok {
			buckets = prometheus.DefBuckets
		}
		return prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    name,
			Help:    helpFor(name),
			Buckets: buckets,
		})
	})
	histogram.Observe(value)
}

// getOrCreate returns the metric cached under name, creating and
// registering it on first use. A metric already registered elsewhere under
// the same name is reused.
func getOrCreate[M prometheus.Collector](c *Collector, cache map[string]M, name string, create func() M) M {
	c.mu.RLock()
	m, ok := cache[name]
	c.mu.RUnlock()
	if ok {
		return m
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock.
	if m, ok = cache[name]; ok {
		return m
	}

	m = create()
	if err := c.registry.Register(m); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(M); ok {
				m = existing
			}
		}
		// Otherwise keep the unregistered metric; it still counts.
	}
	cache[name] = m
	return m
}

func helpFor(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return name
}
