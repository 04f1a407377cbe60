package remote

import (
	"github.com/shopspring/decimal"

	"github.com/discochess/pricecache/internal/record"
)

// WireQuote is a distributor offering as sent by the server. Prices may be
// JSON numbers, quoted decimal strings or null.
type WireQuote struct {
	Name             string              `json:"name"`
	ID               string              `json:"id,omitempty"`
	FullUnitPrice    decimal.NullDecimal `json:"fullUnitPrice"`
	PartialUnitPrice decimal.NullDecimal `json:"partialUnitPrice"`
	Email            string              `json:"email,omitempty"`
	Phone            string              `json:"phone,omitempty"`
	Location         string              `json:"location,omitempty"`
}

// WireRecord is a pricing record as sent by the server: distributors are
// unsorted and derived fields are optional. Server timestamps such as
// updatedAt are not decoded; records are stamped when they are cached.
type WireRecord struct {
	Code                       string              `json:"code"`
	RawCode                    string              `json:"rawCode,omitempty"`
	ProductName                string              `json:"productName"`
	Distributors               []WireQuote         `json:"distributors"`
	BestFullUnitPrice          decimal.NullDecimal `json:"bestFullUnitPrice"`
	BestPartialUnitPrice       decimal.NullDecimal `json:"bestPartialUnitPrice"`
	RecommendedDistributorName string              `json:"recommendedDistributorName,omitempty"`
	RecommendedDistributorID   string              `json:"recommendedDistributorId,omitempty"`
}

// Record converts the wire shape to the in-memory model. The result still
// needs record.Normalize before it is indexed.
func (w WireRecord) Record() record.Record {
	r := record.Record{
		Code:                       w.Code,
		RawCode:                    w.RawCode,
		ProductName:                w.ProductName,
		RecommendedDistributorName: w.RecommendedDistributorName,
		RecommendedDistributorID:   w.RecommendedDistributorID,
		BestFullUnitPrice:          price(w.BestFullUnitPrice),
		BestPartialUnitPrice:       price(w.BestPartialUnitPrice),
	}
	if r.RawCode == "" {
		r.RawCode = w.Code
	}

	r.Distributors = make([]record.Quote, len(w.Distributors))
	for i, q := range w.Distributors {
		r.Distributors[i] = record.Quote{
			Name:             q.Name,
			ID:               q.ID,
			FullUnitPrice:    price(q.FullUnitPrice),
			PartialUnitPrice: price(q.PartialUnitPrice),
			Email:            q.Email,
			Phone:            q.Phone,
			Location:         q.Location,
		}
	}
	return r
}

// Records converts a batch of wire records.
func Records(ws []WireRecord) []record.Record {
	out := make([]record.Record, len(ws))
	for i, w := range ws {
		out[i] = w.Record()
	}
	return out
}

func price(d decimal.NullDecimal) float64 {
	if !d.Valid {
		return 0
	}
	return d.Decimal.InexactFloat64()
}
