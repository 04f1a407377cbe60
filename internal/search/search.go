// Package search implements ranked local search over the pricing index.
//
// A query is resolved in three tiers, cheapest first:
//
//  1. exact lookup of the normalized code,
//  2. intersection of product-name token matches,
//  3. substring scan over canonical and raw codes, only while the result
//     set is below the limit.
//
// Exact code matches rank first; everything else ranks by best full unit
// price, highest first.
package search

import (
	"slices"
	"strings"

	"github.com/discochess/pricecache/internal/index"
	"github.com/discochess/pricecache/internal/record"
)

const (
	// MinQueryLength is the shortest query that is searched at all.
	MinQueryLength = 2

	// DefaultLimit caps the number of returned records.
	DefaultLimit = 50
)

// Search returns up to limit records matching query, ranked.
// A non-positive limit means DefaultLimit.
func Search(idx *index.Index, query string, limit int) []*record.Record {
	if limit <= 0 {
		limit = DefaultLimit
	}

	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinQueryLength {
		return nil
	}
	normalized := record.NormalizeCode(query)

	rs := newResultSet(limit)

	// Exact code.
	if normalized != "" {
		if r, ok := idx.Get(normalized); ok {
			rs.add(r)
		}
	}

	// Token intersection.
	if tokens := record.Tokenize(query); len(tokens) > 0 {
		for _, code := range tokenCandidates(idx, tokens) {
			if r, ok := idx.Get(code); ok {
				rs.add(r)
			}
		}
	}

	// Substring scan. Every match is collected so ranking sees the
	// highest-priced ones before truncation.
	if rs.len() < limit && normalized != "" {
		lowerQuery := strings.ToLower(query)
		for _, r := range idx.Records() {
			if strings.Contains(r.Code, normalized) ||
				strings.Contains(strings.ToLower(r.RawCode), lowerQuery) {
				rs.add(r)
			}
		}
	}

	return rs.ranked(normalized)
}

// tokenCandidates returns the canonical codes matching every query token,
// sorted. A query token matches an indexed token when either one contains
// the other.
func tokenCandidates(idx *index.Index, tokens []string) []string {
	var candidates map[string]struct{}

	for _, qt := range tokens {
		matched := make(map[string]struct{})
		idx.EachToken(func(token string, codes map[string]struct{}) bool {
			if strings.Contains(token, qt) || strings.Contains(qt, token) {
				for code := range codes {
					matched[code] = struct{}{}
				}
			}
			return true
		})

		if candidates == nil {
			candidates = matched
		} else {
			for code := range candidates {
				if _, ok := matched[code]; !ok {
					delete(candidates, code)
				}
			}
		}

		if len(candidates) == 0 {
			return nil
		}
	}

	out := make([]string, 0, len(candidates))
	for code := range candidates {
		out = append(out, code)
	}
	slices.Sort(out)
	return out
}

// resultSet accumulates distinct records in insertion order.
type resultSet struct {
	records []*record.Record
	seen    map[*record.Record]struct{}
	limit   int
}

func newResultSet(limit int) *resultSet {
	return &resultSet{
		records: make([]*record.Record, 0, limit),
		seen:    make(map[*record.Record]struct{}, limit),
		limit:   limit,
	}
}

func (rs *resultSet) add(r *record.Record) {
	if _, ok := rs.seen[r]; ok {
		return
	}
	rs.seen[r] = struct{}{}
	rs.records = append(rs.records, r)
}

func (rs *resultSet) len() int {
	return len(rs.records)
}

// ranked sorts exact code matches first, then by best full unit price
// descending, and truncates to the limit. The sort is stable.
func (rs *resultSet) ranked(normalized string) []*record.Record {
	out := rs.records
	slices.SortStableFunc(out, func(a, b *record.Record) int {
		aExact, bExact := a.Code == normalized, b.Code == normalized
		switch {
		case aExact && !bExact:
			return -1
		case bExact && !aExact:
			return 1
		case a.BestFullUnitPrice > b.BestFullUnitPrice:
			return -1
		case a.BestFullUnitPrice < b.BestFullUnitPrice:
			return 1
		default:
			return 0
		}
	})
	if len(out) > rs.limit {
		out = out[:rs.limit]
	}
	return out
}
