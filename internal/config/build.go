package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/discochess/pricecache/internal/codec"
	"github.com/discochess/pricecache/internal/codec/gzipcodec"
	"github.com/discochess/pricecache/internal/codec/noopcodec"
	"github.com/discochess/pricecache/internal/codec/zstdcodec"
	"github.com/discochess/pricecache/internal/remote/httpapi"
	"github.com/discochess/pricecache/internal/shard"
	"github.com/discochess/pricecache/internal/shard/fnvshard"
	"github.com/discochess/pricecache/internal/shard/prefixshard"
	"github.com/discochess/pricecache/internal/stats"
	"github.com/discochess/pricecache/internal/store"
	"github.com/discochess/pricecache/internal/store/cachedstore"
	"github.com/discochess/pricecache/internal/store/cachedstore/cachestrategy/lru"
	"github.com/discochess/pricecache/internal/store/cachedstore/memory"
	"github.com/discochess/pricecache/internal/store/diskstore"
	"github.com/discochess/pricecache/internal/store/gcsstore"
	"github.com/discochess/pricecache/internal/store/memstore"
	"github.com/discochess/pricecache/internal/store/redisstore"
	"github.com/discochess/pricecache/internal/store/s3store"
)

// ErrNoAPI is returned by NewAPI when no API URL is configured.
var ErrNoAPI = errors.New("config: no API URL configured")

// NewCodec returns the payload codec named by c.Codec.
func (c *Config) NewCodec() (codec.Codec, error) {
	switch c.Codec {
	case "zstd":
		return zstdcodec.New(), nil
	case "gzip":
		return gzipcodec.New(), nil
	case "none", "noop":
		return noopcodec.New(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", c.Codec)
	}
}

// NewShardStrategy returns the strategy named by c.ShardStrategy.
func (c *Config) NewShardStrategy() (shard.Strategy, error) {
	switch c.ShardStrategy {
	case "fnv32":
		return fnvshard.New(), nil
	case "prefix":
		return prefixshard.New(prefixshard.DefaultPrefixLength), nil
	default:
		return nil, fmt.Errorf("unknown shard strategy %q", c.ShardStrategy)
	}
}

// OpenStore opens the configured store. Remote stores are wrapped in an
// LRU read-through cache when StoreCacheSize is positive.
func (c *Config) OpenStore(ctx context.Context, collector stats.Collector) (store.Store, error) {
	cd, err := c.NewCodec()
	if err != nil {
		return nil, err
	}

	var st store.Store
	switch c.Store {
	case StoreMemory:
		return memstore.New(), nil
	case StoreDisk:
		st, err = diskstore.New(c.DataDir, cd)
	case StoreS3:
		opts := []s3store.Option{s3store.WithPrefix(c.Prefix)}
		if c.S3Region != "" {
			opts = append(opts, s3store.WithRegion(c.S3Region))
		}
		if c.S3Endpoint != "" {
			opts = append(opts, s3store.WithEndpoint(c.S3Endpoint))
		}
		st, err = s3store.New(ctx, c.Bucket, cd, opts...)
	case StoreGCS:
		st, err = gcsstore.New(ctx, c.Bucket, cd, gcsstore.WithPrefix(c.Prefix))
	case StoreRedis:
		st, err = redisstore.Dial(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB, cd, redisstore.WithPrefix(c.Prefix))
	default:
		return nil, fmt.Errorf("unknown store %q", c.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", c.Store, err)
	}

	if c.StoreCacheSize > 0 && c.Store != StoreDisk {
		strategy, err := lru.New(c.StoreCacheSize)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("creating store cache: %w", err)
		}
		st = cachedstore.New(st, memory.New(strategy, collector))
	}
	return st, nil
}

// NewAPI returns an HTTP client for the configured API URL.
func (c *Config) NewAPI(logger *zap.Logger) (*httpapi.Client, error) {
	if c.APIURL == "" {
		return nil, ErrNoAPI
	}
	return httpapi.New(c.APIURL,
		httpapi.WithHTTPClient(&http.Client{Timeout: c.APITimeout}),
		httpapi.WithRetry(c.APIRetries, 200*time.Millisecond, 5*time.Second),
		httpapi.WithLogger(logger),
	)
}

// NewLogger returns a production zap logger at c.LogLevel.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
