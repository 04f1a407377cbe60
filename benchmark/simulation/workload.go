package simulation

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/discochess/pricecache/internal/record"
)

// Query classes, one per search tier.
const (
	ClassExact     = "exact"
	ClassToken     = "token"
	ClassSubstring = "substring"
	ClassMiss      = "miss"
)

// Classes lists every query class in report order.
var Classes = []string{ClassExact, ClassToken, ClassSubstring, ClassMiss}

// Query is one search in a workload.
type Query struct {
	Class string
	Text  string
}

// Queries builds n queries drawn evenly from every class against catalog.
func Queries(catalog []record.Record, n int, seed uint64) []Query {
	if len(catalog) == 0 {
		return nil
	}

	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]Query, n)
	for i := range out {
		r := catalog[rng.IntN(len(catalog))]
		switch class := Classes[i%len(Classes)]; class {
		case ClassExact:
			out[i] = Query{Class: class, Text: r.RawCode}
		case ClassToken:
			out[i] = Query{Class: class, Text: strings.ToLower(strings.SplitN(r.ProductName, " ", 2)[0])}
		case ClassSubstring:
			// The product segment of the code, which no token contains.
			out[i] = Query{Class: class, Text: strings.Split(r.RawCode, "-")[1]}
		default:
			out[i] = Query{Class: ClassMiss, Text: "zz-no-such-product"}
		}
	}
	return out
}

// SearchFunc runs one search.
type SearchFunc func(query string) []*record.Record

// Result holds per-class latencies and result counts.
type Result struct {
	Latencies map[string][]time.Duration
	Results   map[string]int
}

// Run executes the workload rounds times and records each search's
// latency by class.
func Run(search SearchFunc, queries []Query, rounds int) *Result {
	res := &Result{
		Latencies: make(map[string][]time.Duration, len(Classes)),
		Results:   make(map[string]int, len(Classes)),
	}

	for range rounds {
		for _, q := range queries {
			start := time.Now()
			got := search(q.Text)
			res.Latencies[q.Class] = append(res.Latencies[q.Class], time.Since(start))
			res.Results[q.Class] += len(got)
		}
	}
	return res
}
