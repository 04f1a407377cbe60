// Package config loads pricecache settings from PRICECACHE_* environment
// variables and builds the components they select.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "PRICECACHE_"

// Store kinds.
const (
	StoreDisk   = "disk"
	StoreMemory = "memory"
	StoreS3     = "s3"
	StoreGCS    = "gcs"
	StoreRedis  = "redis"
)

// Config holds all pricecache settings.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Persistence
	Store          string `env:"STORE" envDefault:"disk"`
	DataDir        string `env:"DATA_DIR" envDefault:"./pricecache-data"`
	Codec          string `env:"CODEC" envDefault:"zstd"`
	Bucket         string `env:"BUCKET"`
	Prefix         string `env:"PREFIX"`
	S3Region       string `env:"S3_REGION"`
	S3Endpoint     string `env:"S3_ENDPOINT"`
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	StoreCacheSize int    `env:"STORE_CACHE_SIZE" envDefault:"0"`

	// Shard layout
	Shards        int    `env:"SHARDS" envDefault:"16"`
	ShardStrategy string `env:"SHARD_STRATEGY" envDefault:"fnv32"`

	// Remote API
	APIURL     string        `env:"API_URL"`
	APITimeout time.Duration `env:"API_TIMEOUT" envDefault:"15s"`
	APIRetries int           `env:"API_RETRIES" envDefault:"3"`

	// Sync
	HitDebounce     time.Duration `env:"HIT_DEBOUNCE" envDefault:"800ms"`
	MissDebounce    time.Duration `env:"MISS_DEBOUNCE" envDefault:"300ms"`
	StalenessWindow time.Duration `env:"STALENESS_WINDOW" envDefault:"24h"`
	PageSize        int           `env:"PAGE_SIZE" envDefault:"500"`
	ResyncRate      float64       `env:"RESYNC_RATE" envDefault:"10"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreDisk:
		if c.DataDir == "" {
			return fmt.Errorf("%sDATA_DIR is required for the disk store", EnvPrefix)
		}
	case StoreMemory:
	case StoreS3, StoreGCS:
		if c.Bucket == "" {
			return fmt.Errorf("%sBUCKET is required for the %s store", EnvPrefix, c.Store)
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%sREDIS_ADDR is required for the redis store", EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	if c.Shards < 1 {
		return fmt.Errorf("invalid shard count: %d", c.Shards)
	}
	if c.PageSize < 1 {
		return fmt.Errorf("invalid page size: %d", c.PageSize)
	}
	if c.HitDebounce < 0 || c.MissDebounce < 0 {
		return fmt.Errorf("debounce intervals must not be negative")
	}
	if c.StoreCacheSize < 0 {
		return fmt.Errorf("invalid store cache size: %d", c.StoreCacheSize)
	}
	if c.APIURL != "" {
		u, err := url.Parse(c.APIURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid API URL: %q", c.APIURL)
		}
	}
	return nil
}
