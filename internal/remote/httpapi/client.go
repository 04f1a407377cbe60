// Package httpapi implements remote.API over HTTP+JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/discochess/pricecache/internal/remote"
)

// Compile-time check that Client implements remote.API.
var _ remote.API = (*Client)(nil)

// RequestIDHeader carries a per-call identifier for server-side tracing.
const RequestIDHeader = "X-Request-ID"

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 32 << 20

// ErrCircuitOpen is returned while the circuit breaker rejects requests.
var ErrCircuitOpen = gobreaker.ErrOpenState

// Client calls the pricing API. It retries transient failures with
// exponential backoff and trips a circuit breaker when the server keeps
// failing.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *zap.Logger

	maxRetries   int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

// New creates a client for the API rooted at baseURL,
// e.g. "https://api.example.com/v1".
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	c := &Client{
		base:         base,
		httpClient:   cfg.httpClient,
		logger:       cfg.logger.Named("remote"),
		maxRetries:   cfg.maxRetries,
		retryWaitMin: cfg.retryWaitMin,
		retryWaitMax: cfg.retryWaitMax,
	}

	bc := cfg.breaker
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        bc.Name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return c, nil
}

// Search calls GET {base}/pricing/search.
func (c *Client) Search(ctx context.Context, term string, limit int) (*remote.SearchResponse, error) {
	q := url.Values{}
	q.Set("q", term)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp remote.SearchResponse
	if err := c.get(ctx, "pricing/search", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Index calls GET {base}/pricing/index.
func (c *Client) Index(ctx context.Context, limit, offset int, updatedAfter time.Time) (*remote.IndexPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	if !updatedAfter.IsZero() {
		q.Set("updated_after", updatedAfter.UTC().Format(time.RFC3339))
	}

	var page remote.IndexPage
	if err := c.get(ctx, "pricing/index", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// State returns the circuit breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.base.JoinPath(path)
	u.RawQuery = q.Encode()

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, u.String())
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("remote %s: %w", path, err)
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// do performs a GET with retries and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	requestID := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
			if wait > c.retryWaitMax {
				wait = c.retryWaitMax
			}

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		body, err := c.attempt(ctx, rawURL, requestID)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !retryable(ctx, err) {
			break
		}
		c.logger.Debug("retrying request",
			zap.String("url", rawURL),
			zap.String("requestID", requestID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, rawURL, requestID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, &remote.StatusError{StatusCode: resp.StatusCode, Body: msg}
	}
	return body, nil
}

// retryable reports whether another attempt may succeed.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var se *remote.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}

	var ne net.Error
	return errors.As(err, &ne)
}

// isSuccessful decides what counts against the breaker. Cancellation and
// client errors say nothing about server health.
func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}

	var se *remote.StatusError
	if errors.As(err, &se) {
		return !se.Temporary()
	}
	return false
}
