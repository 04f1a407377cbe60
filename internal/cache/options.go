package cache

import (
	"time"

	"go.uber.org/zap"

	"github.com/discochess/pricecache/internal/shard"
	"github.com/discochess/pricecache/internal/shard/fnvshard"
	"github.com/discochess/pricecache/internal/stats"
)

const (
	// DefaultShards is the number of persisted record shards.
	DefaultShards = 16

	// DefaultLoadConcurrency bounds concurrent shard reads during Initialize.
	DefaultLoadConcurrency = 4
)

// Option configures an Engine.
type Option interface {
	apply(*options)
}

type options struct {
	strategy        shard.Strategy
	shards          int
	loadConcurrency int
	searchLimit     int
	stats           stats.Collector
	logger          *zap.Logger
	now             func() time.Time
}

func defaultOptions() options {
	return options{
		strategy:        fnvshard.New(),
		shards:          DefaultShards,
		loadConcurrency: DefaultLoadConcurrency,
		stats:           stats.NewNoop(),
		logger:          zap.NewNop(),
		now:             time.Now,
	}
}

type optionFunc func(*options)

var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithShardStrategy sets how records are assigned to persisted shards.
func WithShardStrategy(s shard.Strategy) Option {
	return optionFunc(func(o *options) {
		o.strategy = s
	})
}

// WithShards sets the number of persisted shards. Values below 1 are
// treated as 1.
func WithShards(n int) Option {
	return optionFunc(func(o *options) {
		o.shards = max(n, 1)
	})
}

// WithLoadConcurrency bounds concurrent shard reads during Initialize.
func WithLoadConcurrency(n int) Option {
	return optionFunc(func(o *options) {
		o.loadConcurrency = max(n, 1)
	})
}

// WithSearchLimit caps the number of results returned by Search.
func WithSearchLimit(n int) Option {
	return optionFunc(func(o *options) {
		o.searchLimit = n
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

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *options) {
		o.now = now
	})
}
