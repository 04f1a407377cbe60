package pricecache

import (
	"context"
	"time"

	"github.com/discochess/pricecache/internal/record"
	"github.com/discochess/pricecache/internal/remote"
	"github.com/discochess/pricecache/internal/syncer"
)

type (
	// Record is a normalized pricing record. Records returned by a Client
	// are shared with the cache and must not be modified.
	Record = record.Record

	// Quote is one distributor offering.
	Quote = record.Quote

	// State is a published search state.
	State = syncer.State

	// Phase is the position of a search session in its lifecycle.
	Phase = syncer.Phase

	// Source tells where published results came from.
	Source = syncer.Source

	// ResyncReport summarizes a cache refresh.
	ResyncReport = syncer.ResyncReport

	// ResyncError is returned when a refresh aborts part way.
	ResyncError = syncer.ResyncError

	// API is the remote pricing service.
	API = remote.API
)

const (
	PhaseIdle                  = syncer.PhaseIdle
	PhaseLocalHit              = syncer.PhaseLocalHit
	PhaseLocalMiss             = syncer.PhaseLocalMiss
	PhaseBackgroundReconciling = syncer.PhaseBackgroundReconciling
	PhaseResolved              = syncer.PhaseResolved

	SourceNone    = syncer.SourceNone
	SourceCache   = syncer.SourceCache
	SourceNetwork = syncer.SourceNetwork
)

// offline is the API used when none is configured.
type offline struct{}

var _ remote.API = offline{}

func (offline) Search(context.Context, string, int) (*remote.SearchResponse, error) {
	return nil, ErrOffline
}

func (offline) Index(context.Context, int, int, time.Time) (*remote.IndexPage, error) {
	return nil, ErrOffline
}
