package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/pricecache/internal/remote"
	"github.com/discochess/pricecache/internal/stats"
)

// ResyncReport summarizes a bulk resync.
type ResyncReport struct {
	// Pages is the number of pages merged into the cache.
	Pages int
	// Records is the number of wire records merged.
	Records int
	// Total is the record count last reported by the server.
	Total       int
	Incremental bool
	Elapsed     time.Duration
}

// ResyncError is returned when a resync aborts. Pages merged before the
// failure stay in the cache.
type ResyncError struct {
	Report ResyncReport
	// Offset is the offset of the page that failed.
	Offset int
	Err    error
}

func (e *ResyncError) Error() string {
	return fmt.Sprintf("syncer: resync aborted at offset %d after %d pages (%d records): %v",
		e.Offset, e.Report.Pages, e.Report.Records, e.Err)
}

func (e *ResyncError) Unwrap() error {
	return e.Err
}

// FullResync pulls the remote index page by page and upserts every page.
// A non-zero since restricts the pull to records updated after it. The
// loop stops on a short page or once the server-reported total is reached.
// A complete pull records its start time in the cache as the cursor for the
// next incremental pull. Resyncs are serialized, and Close aborts a running
// one.
func (c *Controller) FullResync(ctx context.Context, since time.Time) (ResyncReport, error) {
	c.resyncMu.Lock()
	defer c.resyncMu.Unlock()

	start := time.Now()
	cursor := c.now()
	report := ResyncReport{Incremental: !since.IsZero()}
	if c.baseCtx.Err() != nil {
		return report, ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.baseCtx, cancel)
	defer stop()

	fail := func(offset int, err error) (ResyncReport, error) {
		report.Elapsed = time.Since(start)
		c.logger.Warn("resync aborted",
			zap.Int("offset", offset),
			zap.Int("pages", report.Pages),
			zap.Int("records", report.Records),
			zap.Error(err),
		)
		return report, &ResyncError{Report: report, Offset: offset, Err: err}
	}

	offset := 0
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(offset, err)
		}

		page, err := c.api.Index(ctx, c.pageSize, offset, since)
		if err != nil {
			return fail(offset, err)
		}
		if page == nil {
			page = &remote.IndexPage{}
		}
		if !c.merge(page.Data) {
			return fail(offset, ErrClosed)
		}

		n := len(page.Data)
		report.Pages++
		report.Records += n
		report.Total = page.Total
		offset += n
		c.stats.IncCounter(stats.MetricResyncPages, 1)

		c.logger.Debug("resync page merged",
			zap.Int("offset", offset),
			zap.Int("records", n),
			zap.Int("total", page.Total),
		)

		if n < c.pageSize || (page.Total > 0 && offset >= page.Total) {
			break
		}
	}

	c.cache.MarkResynced(cursor)

	report.Elapsed = time.Since(start)
	c.logger.Info("resync complete",
		zap.Int("pages", report.Pages),
		zap.Int("records", report.Records),
		zap.Bool("incremental", report.Incremental),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// IncrementalResync pulls records updated since the start of the last
// complete resync. A cache that was never resynced gets a full resync.
func (c *Controller) IncrementalResync(ctx context.Context) (ResyncReport, error) {
	return c.FullResync(ctx, c.cache.LastResync())
}

// EnsureFresh runs a full resync when the cache is empty or was last
// persisted longer ago than the staleness window. It reports whether a
// resync ran.
func (c *Controller) EnsureFresh(ctx context.Context) (bool, error) {
	if !c.cache.IsStale(c.staleness) {
		return false, nil
	}

	c.logger.Info("cache is stale, resyncing", zap.Duration("window", c.staleness))
	_, err := c.FullResync(ctx, time.Time{})
	return true, err
}

// merge upserts one page unless the controller is closed.
func (c *Controller) merge(data []remote.WireRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.cache.Upsert(remote.Records(data))
	return true
}

// IsStale reports whether the cache is empty or older than the staleness
// window.
func (c *Controller) IsStale() bool {
	return c.cache.IsStale(c.staleness)
}
