package syncer

import (
	"slices"

	"github.com/discochess/pricecache/internal/record"
)

// Phase is the position of a search session in its lifecycle.
type Phase int

const (
	// PhaseIdle means no query is active.
	PhaseIdle Phase = iota
	// PhaseLocalHit means cached results are shown and a background
	// remote search is pending.
	PhaseLocalHit
	// PhaseLocalMiss means nothing was cached and a foreground remote
	// search is pending.
	PhaseLocalMiss
	// PhaseBackgroundReconciling means cached results are shown while a
	// remote search runs.
	PhaseBackgroundReconciling
	// PhaseResolved means the remote search finished or failed.
	PhaseResolved
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLocalHit:
		return "local-hit"
	case PhaseLocalMiss:
		return "local-miss"
	case PhaseBackgroundReconciling:
		return "background-reconciling"
	case PhaseResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Source tells where the published results came from.
type Source int

const (
	SourceNone Source = iota
	SourceCache
	SourceNetwork
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceNetwork:
		return "network"
	default:
		return "none"
	}
}

// State is the published search state.
type State struct {
	// Seq increases with every published change.
	Seq     uint64
	Query   string
	Results []*record.Record
	Loading bool
	// Err holds a foreground network error. Background errors are never
	// published.
	Err    error
	Source Source
	Phase  Phase
}

func (s State) clone() State {
	s.Results = slices.Clone(s.Results)
	return s
}
