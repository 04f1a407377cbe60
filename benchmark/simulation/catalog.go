// Package simulation generates synthetic pricing catalogs and search
// workloads for benchmarking the cache.
package simulation

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/discochess/pricecache/internal/record"
)

var (
	ingredients = []string{
		"amoxicillin", "ibuprofen", "acetaminophen", "lisinopril", "metformin",
		"atorvastatin", "omeprazole", "amlodipine", "sertraline", "gabapentin",
		"prednisone", "cetirizine", "loratadine", "naproxen", "clopidogrel",
	}
	forms         = []string{"tablets", "capsules", "oral suspension", "chewable tablets", "injection"}
	distributors  = []string{"McKesson", "Cardinal", "AmerisourceBergen", "Morris Dickson", "Anda", "HD Smith"}
	strengthsInMg = []int{5, 10, 20, 25, 40, 50, 81, 100, 200, 250, 325, 500, 875}
)

// Catalog returns n deterministic records shaped like NDC-coded drug
// products. The same seed always yields the same catalog.
func Catalog(n int, seed uint64) []record.Record {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]record.Record, n)

	for i := range out {
		labeler := rng.IntN(100000)
		name := fmt.Sprintf("%s %dmg %s",
			titleCase(ingredients[rng.IntN(len(ingredients))]),
			strengthsInMg[rng.IntN(len(strengthsInMg))],
			forms[rng.IntN(len(forms))],
		)

		quotes := make([]record.Quote, 1+rng.IntN(4))
		for j := range quotes {
			q := record.Quote{Name: distributors[rng.IntN(len(distributors))]}
			price := float64(rng.IntN(50000)) / 100
			if rng.IntN(4) == 0 {
				q.PartialUnitPrice = price
			} else {
				q.FullUnitPrice = price
			}
			quotes[j] = q
		}

		out[i] = record.Record{
			RawCode:      fmt.Sprintf("%05d-%04d-%02d", labeler, i%10000, i/10000%100),
			ProductName:  name,
			Distributors: quotes,
		}
	}
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
