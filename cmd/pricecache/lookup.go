package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/discochess/pricecache"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup [CODE]",
	Short: "Look up the pricing record for a product code",
	Long: `Look up a cached pricing record by product code.

The code may be given with or without dashes.

Examples:
  pricecache lookup 00093-2263-01
  pricecache lookup 00093226301 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

var (
	outputJSON bool
	showTiming bool
)

func init() {
	lookupCmd.Flags().BoolVar(&outputJSON, "json", false, "output result as JSON")
	lookupCmd.Flags().BoolVar(&showTiming, "timing", false, "show lookup timing")
	rootCmd.AddCommand(lookupCmd)
}

func runLookup(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	start := time.Now()
	r, err := s.client.Lookup(args[0])
	if err != nil {
		if errors.Is(err, pricecache.ErrNotFound) {
			return fmt.Errorf("code %q not found in cache", args[0])
		}
		return fmt.Errorf("lookup failed: %w", err)
	}
	elapsed := time.Since(start)

	if outputJSON {
		return printRecordJSON(cmd.OutOrStdout(), r, elapsed)
	}
	printRecordText(cmd.OutOrStdout(), r, elapsed)
	return nil
}

func printRecordText(w io.Writer, r *pricecache.Record, elapsed time.Duration) {
	fmt.Fprintf(w, "Code:         %s (%s)\n", r.RawCode, r.Code)
	fmt.Fprintf(w, "Product:      %s\n", r.ProductName)
	fmt.Fprintf(w, "Best full:    %s\n", formatPrice(r.BestFullUnitPrice))
	fmt.Fprintf(w, "Best partial: %s\n", formatPrice(r.BestPartialUnitPrice))
	if r.RecommendedDistributorName != "" {
		fmt.Fprintf(w, "Recommended:  %s\n", r.RecommendedDistributorName)
	}
	for i, q := range r.Distributors {
		fmt.Fprintf(w, "  %d. %-24s full %s  partial %s\n",
			i+1, q.Name, formatPrice(q.FullUnitPrice), formatPrice(q.PartialUnitPrice))
	}
	fmt.Fprintf(w, "Updated:      %s\n", r.LastUpdated.Format(time.RFC3339))
	if showTiming {
		fmt.Fprintf(w, "Time:         %s\n", elapsed)
	}
}

func printRecordJSON(w io.Writer, r *pricecache.Record, elapsed time.Duration) error {
	out := struct {
		*pricecache.Record
		ElapsedMicros *int64 `json:"elapsed_us,omitempty"`
	}{Record: r}
	if showTiming {
		us := elapsed.Microseconds()
		out.ElapsedMicros = &us
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// formatPrice renders a unit price with cents, or "-" when unset.
func formatPrice(p float64) string {
	if p <= 0 {
		return "-"
	}
	return decimal.NewFromFloat(p).StringFixed(2)
}
