// Package index implements the in-memory pricing index: a code map keyed by
// canonical and alias codes, plus an inverted index from product-name tokens
// to canonical codes.
//
// An Index is not safe for concurrent use; its owner serializes access.
package index

import (
	"slices"

	"github.com/discochess/pricecache/internal/record"
)

// Index maps codes to records and tokens to codes.
type Index struct {
	// byCode holds each record under its canonical code and, when it
	// differs, its alias code. Both keys share one *record.Record.
	byCode map[string]*record.Record

	// tokens maps a product-name token to the set of canonical codes whose
	// name contains it.
	tokens map[string]map[string]struct{}

	// unique counts distinct records.
	unique int
}

// New creates an empty index.
func New() *Index {
	return &Index{
		byCode: make(map[string]*record.Record),
		tokens: make(map[string]map[string]struct{}),
	}
}

// Put stores a normalized record, replacing any record at the same
// canonical code. Tokens of the replaced record are removed first so no
// stale token keeps pointing at the code.
func (idx *Index) Put(r *record.Record) {
	if prev, ok := idx.byCode[r.Code]; ok && prev.Code == r.Code {
		idx.removeTokens(prev)
		if alias := record.AliasCode(prev.RawCode); alias != prev.Code && idx.byCode[alias] == prev {
			delete(idx.byCode, alias)
		}
	} else {
		idx.unique++
	}

	idx.byCode[r.Code] = r
	if alias := record.AliasCode(r.RawCode); alias != "" && alias != r.Code {
		// A canonical key always wins over another record's alias.
		if other, ok := idx.byCode[alias]; !ok || other.Code != alias {
			idx.byCode[alias] = r
		}
	}

	for _, tok := range record.Tokenize(r.ProductName) {
		codes, ok := idx.tokens[tok]
		if !ok {
			codes = make(map[string]struct{})
			idx.tokens[tok] = codes
		}
		codes[r.Code] = struct{}{}
	}
}

// Get returns the record stored under key, which must already be normalized
// (canonical or alias form).
func (idx *Index) Get(key string) (*record.Record, bool) {
	r, ok := idx.byCode[key]
	return r, ok
}

// Len returns the number of keys in the code map. Records reachable from
// two keys are counted twice.
func (idx *Index) Len() int {
	return len(idx.byCode)
}

// Unique returns the number of distinct records.
func (idx *Index) Unique() int {
	return idx.unique
}

// TokenCount returns the number of distinct indexed tokens.
func (idx *Index) TokenCount() int {
	return len(idx.tokens)
}

// Records returns every distinct record ordered by canonical code.
func (idx *Index) Records() []*record.Record {
	out := make([]*record.Record, 0, idx.unique)
	for key, r := range idx.byCode {
		if key == r.Code {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b *record.Record) int {
		switch {
		case a.Code < b.Code:
			return -1
		case a.Code > b.Code:
			return 1
		default:
			return 0
		}
	})
	return out
}

// EachToken calls fn for every indexed token with its code set. The set
// must not be modified. Iteration stops when fn returns false.
func (idx *Index) EachToken(fn func(token string, codes map[string]struct{}) bool) {
	for tok, codes := range idx.tokens {
		if !fn(tok, codes) {
			return
		}
	}
}

// CodesForToken returns the code set for an exact token.
func (idx *Index) CodesForToken(token string) map[string]struct{} {
	return idx.tokens[token]
}

// Reset drops every record and token.
func (idx *Index) Reset() {
	clear(idx.byCode)
	clear(idx.tokens)
	idx.unique = 0
}

func (idx *Index) removeTokens(r *record.Record) {
	for _, tok := range record.Tokenize(r.ProductName) {
		codes, ok := idx.tokens[tok]
		if !ok {
			continue
		}
		delete(codes, r.Code)
		if len(codes) == 0 {
			delete(idx.tokens, tok)
		}
	}
}
