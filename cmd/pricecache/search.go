package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/discochess/pricecache"
)

var searchCmd = &cobra.Command{
	Use:   "search [TERM]",
	Short: "Search cached pricing records",
	Long: `Search by product code or product name.

By default the search runs through the sync controller: local results are
shown when the cache has them, and the pricing API is queried otherwise.
With --local only the cache is searched.

Examples:
  pricecache search amoxicillin
  pricecache search 00093-2263 --local`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var (
	localOnly     bool
	searchTimeout time.Duration
)

func init() {
	searchCmd.Flags().BoolVar(&localOnly, "local", false, "search the local cache only")
	searchCmd.Flags().DurationVar(&searchTimeout, "timeout", 15*time.Second, "how long to wait for remote results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	term := strings.Join(args, " ")

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, !localOnly)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	if localOnly {
		start := time.Now()
		results := s.client.LocalSearch(term)
		printResults(out, results)
		if verbose {
			fmt.Fprintf(out, "\n%d results in %s\n", len(results), time.Since(start))
		}
		return nil
	}

	ctx, cancelWait := context.WithTimeout(ctx, searchTimeout)
	defer cancelWait()

	st, err := awaitResolved(ctx, s.client, term)
	if err != nil {
		return err
	}
	if st.Err != nil {
		return fmt.Errorf("search failed: %w", st.Err)
	}

	printResults(out, st.Results)
	if verbose {
		fmt.Fprintf(out, "\n%d results from %s\n", len(st.Results), st.Source)
	}
	return nil
}

// awaitResolved starts a search session and waits for its final state.
func awaitResolved(ctx context.Context, client *pricecache.Client, term string) (pricecache.State, error) {
	query := strings.TrimSpace(term)
	updates := client.Subscribe()
	client.Search(term)

	for {
		select {
		case st, ok := <-updates:
			if !ok {
				return pricecache.State{}, pricecache.ErrClosed
			}
			if st.Query != query {
				continue
			}
			switch st.Phase {
			case pricecache.PhaseIdle, pricecache.PhaseResolved:
				return st, nil
			}
		case <-ctx.Done():
			// Show what the cache had if the API is slow.
			if st := client.State(); len(st.Results) > 0 {
				return st, nil
			}
			return pricecache.State{}, fmt.Errorf("waiting for results: %w", ctx.Err())
		}
	}
}

func printResults(w io.Writer, results []*pricecache.Record) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tPRODUCT\tBEST FULL\tBEST PARTIAL\tRECOMMENDED")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.RawCode, r.ProductName,
			formatPrice(r.BestFullUnitPrice), formatPrice(r.BestPartialUnitPrice),
			r.RecommendedDistributorName)
	}
	tw.Flush()
}
