// Package remote defines the authoritative pricing API the cache
// reconciles against, and its wire format.
package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// API is the remote pricing service.
type API interface {
	// Search runs a server-side search. Results are ranked by the server.
	Search(ctx context.Context, term string, limit int) (*SearchResponse, error)

	// Index returns one page of the bulk export. A zero updatedAfter
	// requests every record.
	Index(ctx context.Context, limit, offset int, updatedAfter time.Time) (*IndexPage, error)
}

// SearchResponse is the body of a search call.
type SearchResponse struct {
	Results    []WireRecord `json:"results"`
	Count      int          `json:"count"`
	SearchTerm string       `json:"searchTerm"`
}

// IndexPage is one page of the bulk export.
type IndexPage struct {
	Data   []WireRecord `json:"data"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote: status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("remote: status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		(e.StatusCode >= 500 && e.StatusCode != http.StatusNotImplemented)
}
