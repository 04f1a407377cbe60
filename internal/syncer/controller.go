// Package syncer keeps the local cache consistent with the remote pricing
// API. A Controller drives interactive search sessions, answering from the
// cache first and reconciling with the network in the background, and runs
// paginated bulk resyncs.
package syncer

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/discochess/pricecache/internal/record"
	"github.com/discochess/pricecache/internal/remote"
	"github.com/discochess/pricecache/internal/stats"
)

// MinQueryLength is the shortest trimmed term that triggers a search.
const MinQueryLength = 2

// ErrClosed is returned by operations on a closed controller.
var ErrClosed = errors.New("syncer: controller closed")

// Cache is the part of the cache engine the controller depends on.
type Cache interface {
	Search(query string) []*record.Record
	Upsert(records []record.Record) []*record.Record
	IsStale(window time.Duration) bool
	LastResync() time.Time
	MarkResynced(t time.Time)
}

// Controller runs search sessions against a Cache and a remote.API.
// A Controller is safe for concurrent use.
type Controller struct {
	cache   Cache
	api     remote.API
	limiter *rate.Limiter

	hitDebounce  time.Duration
	missDebounce time.Duration
	staleness    time.Duration
	pageSize     int
	remoteLimit  int
	onChange     func(State)
	stats        stats.Collector
	logger       *zap.Logger
	now          func() time.Time

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu     sync.Mutex
	gen    uint64
	seq    uint64
	timer  *time.Timer
	cancel context.CancelFunc
	state  State
	subs   []chan State
	closed bool

	// inflight tracks scheduled and running remote searches.
	inflight sync.WaitGroup

	notify       chan struct{}
	dispatchDone chan struct{}

	// resyncMu serializes bulk resyncs.
	resyncMu sync.Mutex
}

// New creates a controller and starts its state dispatcher. Call Close to
// release it.
func New(cache Cache, api remote.API, opts ...Option) *Controller {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cache:        cache,
		api:          api,
		limiter:      rate.NewLimiter(cfg.resyncLimit, cfg.resyncBurst),
		hitDebounce:  cfg.hitDebounce,
		missDebounce: cfg.missDebounce,
		staleness:    cfg.staleness,
		pageSize:     cfg.pageSize,
		remoteLimit:  cfg.remoteLimit,
		onChange:     cfg.onChange,
		stats:        cfg.stats,
		logger:       cfg.logger.Named("sync"),
		now:          cfg.now,
		baseCtx:      ctx,
		cancelBase:   cancel,
		notify:       make(chan struct{}, 1),
		dispatchDone: make(chan struct{}),
	}
	go c.dispatch()
	return c
}

// Search starts a new session for term, superseding any previous one.
// Results are delivered through State, Subscribe and the OnChange callback.
func (c *Controller) Search(term string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.gen++
	c.stopLocked()

	query := strings.TrimSpace(term)
	if utf8.RuneCountInString(query) < MinQueryLength {
		c.publishLocked(State{Query: query, Phase: PhaseIdle})
		return
	}

	gen := c.gen
	if results := c.cache.Search(query); len(results) > 0 {
		c.publishLocked(State{
			Query:   query,
			Results: results,
			Source:  SourceCache,
			Phase:   PhaseLocalHit,
		})
		c.scheduleLocked(c.hitDebounce, gen, query, true)
		return
	}

	c.publishLocked(State{Query: query, Loading: true, Phase: PhaseLocalMiss})
	c.scheduleLocked(c.missDebounce, gen, query, false)
}

// ClearResults cancels the current session and publishes an idle state.
func (c *Controller) ClearResults() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.gen++
	c.stopLocked()
	c.publishLocked(State{Phase: PhaseIdle})
}

// State returns the latest published state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe returns a channel that receives published states. The channel
// holds only the latest state: a slow reader skips intermediate ones. It
// starts with the current state and is closed by Close.
func (c *Controller) Subscribe() <-chan State {
	ch := make(chan State, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch
	}
	ch <- c.state.clone()
	c.subs = append(c.subs, ch)
	return ch
}

// Close cancels pending and in-flight work, waits for it to finish and
// closes subscriber channels. Responses arriving after Close are dropped.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	c.gen++
	c.stopLocked()
	c.mu.Unlock()

	c.cancelBase()
	c.inflight.Wait()

	// Wait out a running resync.
	c.resyncMu.Lock()
	c.resyncMu.Unlock()

	<-c.dispatchDone

	c.mu.Lock()
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = nil
	c.mu.Unlock()
	return nil
}

// scheduleLocked arms the debounce timer for a remote search.
// c.mu must be held.
func (c *Controller) scheduleLocked(delay time.Duration, gen uint64, query string, background bool) {
	c.inflight.Add(1)
	c.timer = time.AfterFunc(delay, func() {
		c.remoteSearch(gen, query, background)
	})
}

// stopLocked stops the pending timer and cancels the in-flight request.
// c.mu must be held.
func (c *Controller) stopLocked() {
	if c.timer != nil {
		if c.timer.Stop() {
			c.inflight.Done()
		}
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) remoteSearch(gen uint64, query string, background bool) {
	defer c.inflight.Done()

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	defer cancel()
	c.timer = nil
	c.cancel = cancel
	if background {
		st := c.state
		st.Phase = PhaseBackgroundReconciling
		c.publishLocked(st)
	}
	c.mu.Unlock()

	c.stats.IncCounter(stats.MetricRemoteSearches, 1)
	resp, err := c.api.Search(ctx, query, c.remoteLimit)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.gen {
		c.stats.IncCounter(stats.MetricRemoteDiscarded, 1)
		c.logger.Debug("discarding superseded response", zap.String("query", query))
		return
	}
	c.cancel = nil

	if err != nil {
		c.handleErrorLocked(query, background, err)
		return
	}

	var wire []remote.WireRecord
	if resp != nil {
		wire = resp.Results
	}
	stored := dedupe(c.cache.Upsert(remote.Records(wire)))

	if background && len(stored) <= len(c.state.Results) {
		st := c.state
		st.Phase = PhaseResolved
		c.publishLocked(st)
		return
	}

	c.publishLocked(State{
		Query:   query,
		Results: stored,
		Source:  SourceNetwork,
		Phase:   PhaseResolved,
	})
}

func (c *Controller) handleErrorLocked(query string, background bool, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	if background {
		c.logger.Debug("background search failed",
			zap.String("query", query),
			zap.Error(err),
		)
		st := c.state
		st.Phase = PhaseResolved
		c.publishLocked(st)
		return
	}

	c.logger.Warn("remote search failed",
		zap.String("query", query),
		zap.Error(err),
	)
	c.publishLocked(State{Query: query, Err: err, Phase: PhaseResolved})
}

// publishLocked stores s as the current state and wakes the dispatcher.
// c.mu must be held.
func (c *Controller) publishLocked(s State) {
	c.seq++
	s.Seq = c.seq
	c.state = s

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// dispatch delivers the latest state to the callback and subscribers.
func (c *Controller) dispatch() {
	defer close(c.dispatchDone)

	var last uint64
	for {
		select {
		case <-c.notify:
		case <-c.baseCtx.Done():
			return
		}

		c.mu.Lock()
		st := c.state.clone()
		subs := slices.Clone(c.subs)
		c.mu.Unlock()

		if st.Seq == last {
			continue
		}
		last = st.Seq

		if c.onChange != nil {
			c.onChange(st)
		}
		for _, ch := range subs {
			offer(ch, st)
		}
	}
}

// offer replaces whatever ch holds with s.
func offer(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// dedupe drops repeated codes, keeping the first position and the last
// stored record.
func dedupe(records []*record.Record) []*record.Record {
	pos := make(map[string]int, len(records))
	out := make([]*record.Record, 0, len(records))
	for _, r := range records {
		if i, ok := pos[r.Code]; ok {
			out[i] = r
			continue
		}
		pos[r.Code] = len(out)
		out = append(out, r)
	}
	return out
}
