package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// Name identifies the breaker in logs.
	Name string

	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32

	// Interval clears the failure counts while closed. 0 never clears.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// FailureRatio trips the breaker once reached.
	FailureRatio float64

	// MinRequests must be seen before FailureRatio is evaluated.
	MinRequests uint32
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "pricing-api",
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// Option configures a Client.
type Option interface {
	apply(*options)
}

type options struct {
	httpClient   *http.Client
	logger       *zap.Logger
	breaker      BreakerConfig
	maxRetries   int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

func defaultOptions() options {
	return options{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       zap.NewNop(),
		breaker:      DefaultBreakerConfig(),
		maxRetries:   3,
		retryWaitMin: 250 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}
}

type optionFunc func(*options)

var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(o *options) {
		o.httpClient = hc
	})
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		if l != nil {
			o.logger = l
		}
	})
}

// WithRetry sets the retry count and the backoff bounds.
func WithRetry(maxRetries int, waitMin, waitMax time.Duration) Option {
	return optionFunc(func(o *options) {
		o.maxRetries = max(maxRetries, 0)
		o.retryWaitMin = waitMin
		o.retryWaitMax = waitMax
	})
}

// WithBreaker sets the circuit breaker configuration.
func WithBreaker(cfg BreakerConfig) Option {
	return optionFunc(func(o *options) {
		o.breaker = cfg
	})
}
