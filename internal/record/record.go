// Package record defines the pricing record model and the normalization
// applied to every record before it enters the index.
package record

import (
	"slices"
	"strings"
	"time"
)

// MinTokenLength is the shortest product-name token that is indexed.
const MinTokenLength = 2

// Quote is a single distributor offering for a product.
type Quote struct {
	Name             string  `json:"name"`
	ID               string  `json:"id,omitempty"`
	FullUnitPrice    float64 `json:"full_unit_price"`
	PartialUnitPrice float64 `json:"partial_unit_price"`
	Email            string  `json:"email,omitempty"`
	Phone            string  `json:"phone,omitempty"`
	Location         string  `json:"location,omitempty"`
}

// EffectivePrice returns the price used to rank quotes: the full unit
// price when positive, otherwise the partial unit price.
func (q Quote) EffectivePrice() float64 {
	if q.FullUnitPrice > 0 {
		return q.FullUnitPrice
	}
	return q.PartialUnitPrice
}

// Record is the cached pricing entry for one normalized product code.
type Record struct {
	Code         string  `json:"code"`
	RawCode      string  `json:"raw_code"`
	ProductName  string  `json:"product_name"`
	Distributors []Quote `json:"distributors"`

	BestFullUnitPrice    float64 `json:"best_full_unit_price"`
	BestPartialUnitPrice float64 `json:"best_partial_unit_price"`

	RecommendedDistributorName string  `json:"recommended_distributor_name,omitempty"`
	RecommendedDistributorID   string  `json:"recommended_distributor_id,omitempty"`
	Alternatives               []Quote `json:"alternatives,omitempty"`

	LastUpdated time.Time `json:"last_updated"`
}

// Recommended returns the best quote, or nil if the record has no offers.
func (r *Record) Recommended() *Quote {
	if len(r.Distributors) == 0 {
		return nil
	}
	return &r.Distributors[0]
}

// NormalizeCode returns the canonical index key for a product code:
// dashes removed, lower-cased.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}

// AliasCode returns the secondary index key for a raw code: lower-cased
// with dashes kept.
func AliasCode(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Tokenize splits free text into lower-case ASCII alphanumeric tokens of at
// least MinTokenLength characters. Any other character, accented letters
// included, separates tokens. Duplicates are dropped, first occurrence wins.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})

	tokens := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) < MinTokenLength {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// SortQuotes returns a copy of quotes ordered by effective price,
// highest first. Equal prices keep their input order.
func SortQuotes(quotes []Quote) []Quote {
	sorted := slices.Clone(quotes)
	slices.SortStableFunc(sorted, func(a, b Quote) int {
		pa, pb := a.EffectivePrice(), b.EffectivePrice()
		switch {
		case pa > pb:
			return -1
		case pa < pb:
			return 1
		default:
			return 0
		}
	})
	return sorted
}

// Normalize returns a fully populated copy of r: canonical code derived,
// quotes sorted, recommended distributor and best prices filled in,
// alternatives set, and LastUpdated stamped with now.
// The input record and its slices are not modified.
func Normalize(r Record, now time.Time) *Record {
	out := r

	if out.Code == "" {
		out.Code = out.RawCode
	}
	out.Code = NormalizeCode(out.Code)
	if out.RawCode == "" {
		out.RawCode = r.Code
	}

	out.Distributors = SortQuotes(r.Distributors)
	if out.Distributors == nil {
		out.Distributors = []Quote{}
	}

	out.BestFullUnitPrice = 0
	out.BestPartialUnitPrice = 0
	for _, q := range out.Distributors {
		out.BestFullUnitPrice = max(out.BestFullUnitPrice, q.FullUnitPrice)
		out.BestPartialUnitPrice = max(out.BestPartialUnitPrice, q.PartialUnitPrice)
	}

	if best := out.Recommended(); best != nil {
		out.RecommendedDistributorName = best.Name
		out.RecommendedDistributorID = best.ID
		out.Alternatives = slices.Clone(out.Distributors[1:])
	} else {
		out.RecommendedDistributorName = ""
		out.RecommendedDistributorID = ""
		out.Alternatives = nil
	}

	out.LastUpdated = now
	return &out
}
