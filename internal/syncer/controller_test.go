package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/discochess/pricecache/internal/cache"
	"github.com/discochess/pricecache/internal/record"
	"github.com/discochess/pricecache/internal/remote"
	"github.com/discochess/pricecache/internal/store/memstore"
)

// fakeAPI serves canned responses and records calls.
type fakeAPI struct {
	mu          sync.Mutex
	searchCalls []string
	indexCalls  []indexCall

	search func(ctx context.Context, term string) (*remote.SearchResponse, error)
	index  func(ctx context.Context, limit, offset int) (*remote.IndexPage, error)
}

type indexCall struct {
	limit, offset int
	since         time.Time
}

func (f *fakeAPI) Search(ctx context.Context, term string, limit int) (*remote.SearchResponse, error) {
	f.mu.Lock()
	f.searchCalls = append(f.searchCalls, term)
	fn := f.search
	f.mu.Unlock()
	if fn == nil {
		return &remote.SearchResponse{SearchTerm: term}, nil
	}
	return fn(ctx, term)
}

func (f *fakeAPI) Index(ctx context.Context, limit, offset int, since time.Time) (*remote.IndexPage, error) {
	f.mu.Lock()
	f.indexCalls = append(f.indexCalls, indexCall{limit: limit, offset: offset, since: since})
	fn := f.index
	f.mu.Unlock()
	if fn == nil {
		return &remote.IndexPage{Limit: limit, Offset: offset}, nil
	}
	return fn(ctx, limit, offset)
}

func (f *fakeAPI) searches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searchCalls...)
}

func (f *fakeAPI) indexes() []indexCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]indexCall(nil), f.indexCalls...)
}

func wire(code, name string, prices ...float64) remote.WireRecord {
	w := remote.WireRecord{Code: code, ProductName: name}
	for i, p := range prices {
		w.Distributors = append(w.Distributors, remote.WireQuote{
			Name:          fmt.Sprintf("D%d", i),
			FullUnitPrice: decimal.NewNullDecimal(decimal.NewFromFloat(p)),
		})
	}
	return w
}

func seed(e *cache.Engine, codes ...string) {
	records := make([]record.Record, len(codes))
	for i, code := range codes {
		records[i] = record.Record{RawCode: code, ProductName: "Aspirin tablets"}
	}
	e.Upsert(records)
}

func newTestController(t *testing.T, api remote.API, opts ...Option) (*Controller, *cache.Engine) {
	t.Helper()
	engine := cache.New(memstore.New())
	opts = append([]Option{WithDebounce(5*time.Millisecond, time.Millisecond)}, opts...)
	c := New(engine, api, opts...)
	t.Cleanup(func() {
		c.Close()
		engine.Close()
	})
	return c, engine
}

func waitFor(t *testing.T, c *Controller, desc string, ok func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := c.State()
		if ok(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last state %+v", desc, st)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func resolved(st State) bool { return st.Phase == PhaseResolved }

func TestController_ShortTermIsIdle(t *testing.T) {
	api := &fakeAPI{}
	c, _ := newTestController(t, api)

	for _, term := range []string{"", "a", "  b  "} {
		c.Search(term)
		st := c.State()
		if st.Phase != PhaseIdle || len(st.Results) != 0 || st.Loading {
			t.Errorf("Search(%q) state = %+v, want idle", term, st)
		}
	}

	time.Sleep(20 * time.Millisecond)
	if got := api.searches(); len(got) != 0 {
		t.Errorf("remote searches = %v, want none", got)
	}
}

func TestController_LocalMissUsesForegroundSearch(t *testing.T) {
	api := &fakeAPI{
		search: func(ctx context.Context, term string) (*remote.SearchResponse, error) {
			return &remote.SearchResponse{Results: []remote.WireRecord{
				wire("11-22", "Aspirin 81mg", 3, 9, 5),
				wire("33-44", "Aspirin 325mg", 1),
			}}, nil
		},
	}
	c, engine := newTestController(t, api, WithDebounce(time.Hour, 5*time.Millisecond))

	c.Search("aspirin")
	st := c.State()
	if st.Phase != PhaseLocalMiss || !st.Loading || len(st.Results) != 0 {
		t.Fatalf("State() = %+v, want loading local miss", st)
	}

	st = waitFor(t, c, "resolved", resolved)
	if st.Source != SourceNetwork || st.Loading || st.Err != nil {
		t.Errorf("State() = %+v, want network results", st)
	}
	if len(st.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(st.Results))
	}
	if got := st.Results[0].RecommendedDistributorName; got != "D1" {
		t.Errorf("RecommendedDistributorName = %q, want %q", got, "D1")
	}

	r, ok := engine.Lookup("11-22")
	if !ok {
		t.Fatal("Lookup(11-22) missing after remote search")
	}
	if r != st.Results[0] {
		t.Error("published record is not the indexed record")
	}
}

func TestController_LocalHitPublishesImmediately(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		search: func(ctx context.Context, term string) (*remote.SearchResponse, error) {
			<-release
			return &remote.SearchResponse{}, nil
		},
	}
	c, engine := newTestController(t, api)
	seed(engine, "A-1", "A-2")

	c.Search("aspirin")
	st := c.State()
	if st.Phase != PhaseLocalHit || st.Source != SourceCache || st.Loading {
		t.Errorf("State() = %+v, want cache-sourced local hit", st)
	}
	if len(st.Results) != 2 {
		t.Errorf("len(Results) = %d, want 2", len(st.Results))
	}

	waitFor(t, c, "background reconcile", func(st State) bool {
		return st.Phase == PhaseBackgroundReconciling
	})
	close(release)
	waitFor(t, c, "resolved", resolved)
}

func TestController_BackgroundReconcile(t *testing.T) {
	tests := []struct {
		name       string
		remote     []remote.WireRecord
		wantSource Source
		wantCount  int
	}{
		{
			name:       "smaller remote set keeps cache results",
			remote:     []remote.WireRecord{wire("A-1", "Aspirin tablets", 2)},
			wantSource: SourceCache,
			wantCount:  3,
		},
		{
			name: "equal remote set keeps cache results",
			remote: []remote.WireRecord{
				wire("A-1", "Aspirin tablets", 2),
				wire("A-2", "Aspirin tablets", 2),
				wire("A-3", "Aspirin tablets", 2),
			},
			wantSource: SourceCache,
			wantCount:  3,
		},
		{
			name: "larger remote set replaces cache results",
			remote: []remote.WireRecord{
				wire("A-1", "Aspirin tablets", 2),
				wire("A-2", "Aspirin tablets", 2),
				wire("A-3", "Aspirin tablets", 2),
				wire("A-4", "Aspirin tablets", 2),
			},
			wantSource: SourceNetwork,
			wantCount:  4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{
				search: func(ctx context.Context, term string) (*remote.SearchResponse, error) {
					return &remote.SearchResponse{Results: tt.remote}, nil
				},
			}
			c, engine := newTestController(t, api)
			seed(engine, "A-1", "A-2", "A-3")

			c.Search("aspirin")
			st := waitFor(t, c, "resolved", resolved)

			if st.Source != tt.wantSource {
				t.Errorf("Source = %v, want %v", st.Source, tt.wantSource)
			}
			if len(st.Results) != tt.wantCount {
				t.Errorf("len(Results) = %d, want %d", len(st.Results), tt.wantCount)
			}
			// Remote records are written through either way.
			if _, ok := engine.Lookup("A-1"); !ok {
				t.Error("Lookup(A-1) missing")
			}
		})
	}
}

func TestController_SupersededResponseIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ctxErr := make(chan error, 1)

	api := &fakeAPI{
		search: func(ctx context.Context, term string) (*remote.SearchResponse, error) {
			if term == "as" {
				close(started)
				<-release
				ctxErr <- ctx.Err()
				// Answer anyway, as a server that ignores cancellation would.
				return &remote.SearchResponse{Results: []remote.WireRecord{wire("STALE-1", "as stale", 1)}}, nil
			}
			return &remote.SearchResponse{Results: []remote.WireRecord{wire("NEW-1", "asp fresh", 1)}}, nil
		},
	}
	engine := cache.New(memstore.New())
	defer engine.Close()
	c := New(engine, api, WithDebounce(time.Millisecond, time.Millisecond))

	c.Search("as")
	<-started
	c.Search("asp")

	st := waitFor(t, c, "asp resolved", func(st State) bool {
		return st.Query == "asp" && st.Phase == PhaseResolved
	})
	close(release)
	if err := <-ctxErr; !errors.Is(err, context.Canceled) {
		t.Errorf("superseded request ctx.Err() = %v, want context.Canceled", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if len(st.Results) != 1 || st.Results[0].Code != "new1" {
		t.Errorf("Results = %v, want [new1]", st.Results)
	}
	if got := c.State(); got.Query != "asp" || got.Seq != st.Seq {
		t.Errorf("State() after stale response = %+v, want unchanged %+v", got, st)
	}
	if _, ok := engine.Lookup("STALE-1"); ok {
		t.Error("stale response was written into the cache")
	}
}

func TestController_ForegroundErrorIsPublished(t *testing.T) {
	boom := errors.New("connection refused")
	api := &fakeAPI{
		search: func(ctx context.Context, term string) (*remote.SearchResponse, error) {
			return nil, boom
		},
	}
	c, _ := newTestController(t, api)

	c.Search("ibuprofen")
	st := waitFor(t, c, "resolved", resolved)

	if !errors.Is(st.Err, boom) {
		t.Errorf("Err = %v, want %v", st.Err, boom)
	}
	if st.Loading || len(st.Results) != 0 {
		t.Errorf("State() = %+v, want no results and not loading", st)
	}
}

func TestController_BackgroundErrorIsDiscarded(t *testing.T) {
	api := &fakeAPI{
		search: func(ctx context.Context, term string) (*remote.SearchResponse, error) {
			return nil, &remote.StatusError{StatusCode: 503}
		},
	}
	c, engine := newTestController(t, api)
	seed(engine, "A-1")

	c.Search("aspirin")
	st := waitFor(t, c, "resolved", resolved)

	if st.Err != nil {
		t.Errorf("Err = %v, want nil", st.Err)
	}
	if st.Source != SourceCache || len(st.Results) != 1 {
		t.Errorf("State() = %+v, want the cache results", st)
	}
}

func TestController_ClearResults(t *testing.T) {
	api := &fakeAPI{}
	c, _ := newTestController(t, api, WithDebounce(time.Hour, 30*time.Millisecond))

	c.Search("aspirin")
	c.ClearResults()

	st := c.State()
	if st.Phase != PhaseIdle || st.Query != "" || st.Loading {
		t.Errorf("State() = %+v, want idle", st)
	}

	time.Sleep(60 * time.Millisecond)
	if got := api.searches(); len(got) != 0 {
		t.Errorf("remote searches = %v, want none after ClearResults", got)
	}
}

func TestController_Subscribe(t *testing.T) {
	api := &fakeAPI{
		search: func(ctx context.Context, term string) (*remote.SearchResponse, error) {
			return &remote.SearchResponse{Results: []remote.WireRecord{wire("X-1", "Xylitol", 1)}}, nil
		},
	}
	c, _ := newTestController(t, api)

	ch := c.Subscribe()
	if st := <-ch; st.Phase != PhaseIdle {
		t.Errorf("initial state = %+v, want idle", st)
	}

	c.Search("xylitol")

	timeout := time.After(2 * time.Second)
	for {
		select {
		case st := <-ch:
			if st.Phase == PhaseResolved {
				if len(st.Results) != 1 || st.Source != SourceNetwork {
					t.Errorf("resolved state = %+v", st)
				}
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for resolved state")
		}
	}
}

func TestController_OnChangeInOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seqs []uint64
	)
	api := &fakeAPI{}
	c, _ := newTestController(t, api, WithOnChange(func(st State) {
		mu.Lock()
		seqs = append(seqs, st.Seq)
		mu.Unlock()
	}))

	c.Search("aspirin")
	waitFor(t, c, "resolved", resolved)
	final := c.State().Seq

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		got := append([]uint64(nil), seqs...)
		mu.Unlock()

		if len(got) > 0 && got[len(got)-1] == final {
			for i := 1; i < len(got); i++ {
				if got[i] <= got[i-1] {
					t.Fatalf("OnChange seqs = %v, want increasing", got)
				}
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("OnChange never saw seq %d; got %v", final, got)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestController_CloseDropsLateResponses(t *testing.T) {
	started := make(chan struct{})
	api := &fakeAPI{
		search: func(ctx context.Context, term string) (*remote.SearchResponse, error) {
			close(started)
			<-ctx.Done()
			return &remote.SearchResponse{Results: []remote.WireRecord{wire("LATE-1", "late", 1)}}, nil
		},
	}
	engine := cache.New(memstore.New())
	defer engine.Close()
	c := New(engine, api, WithDebounce(time.Millisecond, time.Millisecond))
	ch := c.Subscribe()

	c.Search("late")
	<-started
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, ok := engine.Lookup("LATE-1"); ok {
		t.Error("response after Close was written into the cache")
	}
	if err := c.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() = %v, want ErrClosed", err)
	}

	seq := c.State().Seq
	c.Search("again")
	c.ClearResults()
	if got := c.State().Seq; got != seq {
		t.Errorf("state changed after Close: seq %d -> %d", seq, got)
	}

	for range ch {
	}
	if _, ok := <-c.Subscribe(); ok {
		t.Error("Subscribe() after Close returned an open channel")
	}
}

func TestDedupe(t *testing.T) {
	a1 := &record.Record{Code: "a"}
	b := &record.Record{Code: "b"}
	a2 := &record.Record{Code: "a"}

	got := dedupe([]*record.Record{a1, b, a2})
	if len(got) != 2 || got[0] != a2 || got[1] != b {
		t.Errorf("dedupe() = %v, want [a2 b]", got)
	}
}
