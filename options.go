package pricecache

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/pricecache/internal/cache"
	"github.com/discochess/pricecache/internal/codec/zstdcodec"
	"github.com/discochess/pricecache/internal/remote/httpapi"
	"github.com/discochess/pricecache/internal/shard"
	"github.com/discochess/pricecache/internal/stats"
	"github.com/discochess/pricecache/internal/store"
	"github.com/discochess/pricecache/internal/store/diskstore"
	"github.com/discochess/pricecache/internal/syncer"
)

// Option configures a Client.
type Option interface {
	apply(*options)
}

// options holds the client configuration.
type options struct {
	store         store.Store
	api           API
	shardStrategy shard.Strategy
	shards        int
	searchLimit   int
	autoRefresh   bool
	syncOpts      []syncer.Option
	stats         stats.Collector
	logger        *zap.Logger
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		shards:      cache.DefaultShards,
		autoRefresh: true,
		stats:       stats.NewNoop(),
		logger:      zap.NewNop(),
	}
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithStore sets the storage backend for the persisted cache.
func WithStore(s store.Store) Option {
	return optionFunc(func(o *options) {
		o.store = s
	})
}

// WithAPI sets the remote pricing API. Without it the client is offline.
func WithAPI(api API) Option {
	return optionFunc(func(o *options) {
		o.api = api
	})
}

// WithShardStrategy sets how records are assigned to persisted shards.
// If not set, FNV-1a hashing of the product code is used.
func WithShardStrategy(s shard.Strategy) Option {
	return optionFunc(func(o *options) {
		o.shardStrategy = s
	})
}

// WithShards sets the number of persisted shards.
// Default is 16.
func WithShards(n int) Option {
	return optionFunc(func(o *options) {
		o.shards = n
	})
}

// WithSearchLimit caps the number of local search results.
func WithSearchLimit(n int) Option {
	return optionFunc(func(o *options) {
		o.searchLimit = n
	})
}

// WithDebounce sets the delay before the background remote search after a
// local hit and before the foreground remote search after a local miss.
func WithDebounce(hit, miss time.Duration) Option {
	return optionFunc(func(o *options) {
		o.syncOpts = append(o.syncOpts, syncer.WithDebounce(hit, miss))
	})
}

// WithStalenessWindow sets how long a persisted cache counts as fresh.
// Default is 24 hours.
func WithStalenessWindow(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.syncOpts = append(o.syncOpts, syncer.WithStalenessWindow(d))
	})
}

// WithPageSize sets the number of records fetched per resync page.
func WithPageSize(n int) Option {
	return optionFunc(func(o *options) {
		o.syncOpts = append(o.syncOpts, syncer.WithPageSize(n))
	})
}

// WithResyncRate limits resync page fetches per second. Zero disables the
// limit.
func WithResyncRate(perSecond float64) Option {
	return optionFunc(func(o *options) {
		o.syncOpts = append(o.syncOpts, syncer.WithResyncRate(perSecond))
	})
}

// WithOnChange registers a callback invoked with every published search
// state.
func WithOnChange(fn func(State)) Option {
	return optionFunc(func(o *options) {
		o.syncOpts = append(o.syncOpts, syncer.WithOnChange(fn))
	})
}

// WithAutoRefresh controls whether Initialize resyncs a stale cache.
// Default is true.
func WithAutoRefresh(enabled bool) Option {
	return optionFunc(func(o *options) {
		o.autoRefresh = enabled
	})
}

// WithStats sets the stats collector.
// If not set, a no-op collector is used.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithLogger sets the logger.
// If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

// WithDataDir persists the cache under dir with zstd compression.
// This is the recommended way to create a client for local data.
func WithDataDir(dir string) (Option, error) {
	st, err := diskstore.New(dir, zstdcodec.New())
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	return optionFunc(func(o *options) {
		o.store = st
	}), nil
}

// WithAPIURL connects the client to the HTTP pricing API at baseURL.
func WithAPIURL(baseURL string, opts ...httpapi.Option) (Option, error) {
	api, err := httpapi.New(baseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating API client: %w", err)
	}
	return WithAPI(api), nil
}
