package syncer

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/discochess/pricecache/internal/stats"
)

const (
	// DefaultHitDebounce delays the background reconcile after a local hit.
	DefaultHitDebounce = 800 * time.Millisecond

	// DefaultMissDebounce delays the foreground search after a local miss.
	DefaultMissDebounce = 300 * time.Millisecond

	// DefaultStalenessWindow is how long a persisted cache counts as fresh.
	DefaultStalenessWindow = 24 * time.Hour

	// DefaultPageSize is the number of records requested per index page.
	DefaultPageSize = 500

	// DefaultRemoteLimit caps remote search results.
	DefaultRemoteLimit = 50

	// DefaultResyncRate is the number of index pages fetched per second.
	DefaultResyncRate = 10
)

// Option configures a Controller.
type Option interface {
	apply(*options)
}

type options struct {
	hitDebounce  time.Duration
	missDebounce time.Duration
	staleness    time.Duration
	pageSize     int
	remoteLimit  int
	resyncLimit  rate.Limit
	resyncBurst  int
	onChange     func(State)
	stats        stats.Collector
	logger       *zap.Logger
	now          func() time.Time
}

func defaultOptions() options {
	return options{
		hitDebounce:  DefaultHitDebounce,
		missDebounce: DefaultMissDebounce,
		staleness:    DefaultStalenessWindow,
		pageSize:     DefaultPageSize,
		remoteLimit:  DefaultRemoteLimit,
		resyncLimit:  rate.Limit(DefaultResyncRate),
		resyncBurst:  1,
		stats:        stats.NewNoop(),
		logger:       zap.NewNop(),
		now:          time.Now,
	}
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithDebounce sets the delays before the background search after a local
// hit and the foreground search after a local miss.
func WithDebounce(hit, miss time.Duration) Option {
	return optionFunc(func(o *options) {
		o.hitDebounce = hit
		o.missDebounce = miss
	})
}

// WithStalenessWindow sets how long after the last persist the cache is
// considered fresh by EnsureFresh.
func WithStalenessWindow(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.staleness = d
	})
}

// WithPageSize sets the index page size used by resyncs.
func WithPageSize(n int) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	})
}

// WithRemoteLimit caps the number of results requested from remote search.
func WithRemoteLimit(n int) Option {
	return optionFunc(func(o *options) {
		o.remoteLimit = n
	})
}

// WithResyncRate limits index page fetches to perSecond. A non-positive
// value disables the limit.
func WithResyncRate(perSecond float64) Option {
	return optionFunc(func(o *options) {
		if perSecond <= 0 {
			o.resyncLimit = rate.Inf
			return
		}
		o.resyncLimit = rate.Limit(perSecond)
	})
}

// WithOnChange registers a callback invoked with every published state.
// Callbacks run on a single goroutine, in publish order, and may observe
// coalesced states when they fall behind.
func WithOnChange(fn func(State)) Option {
	return optionFunc(func(o *options) {
		o.onChange = fn
	})
}

// WithStats sets the stats collector.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

// WithClock overrides the time source used to stamp resyncs.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *options) {
		o.now = now
	})
}
