package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/discochess/pricecache"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the local cache from the pricing API",
	Long: `Pull the pricing index page by page and merge it into the local cache.

A full sync fetches every record. With --incremental only records updated
since the start of the last completed sync are fetched. Records merged before an
interruption are kept.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var incremental bool

func init() {
	syncCmd.Flags().BoolVar(&incremental, "incremental", false, "fetch only records updated since the last completed sync")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	var report pricecache.ResyncReport
	if incremental {
		report, err = s.client.IncrementalRefresh(ctx)
	} else {
		report, err = s.client.RefreshCache(ctx)
	}

	var rerr *pricecache.ResyncError
	if errors.As(err, &rerr) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Sync stopped at offset %d; %d records kept.\n", rerr.Offset, rerr.Report.Records)
	}
	if err != nil {
		return err
	}

	if err := s.client.Flush(ctx); err != nil {
		return fmt.Errorf("flushing cache: %w", err)
	}

	out := cmd.OutOrStdout()
	mode := "full"
	if report.Incremental {
		mode = "incremental"
	}
	fmt.Fprintf(out, "Sync:     %s\n", mode)
	fmt.Fprintf(out, "Pages:    %d\n", report.Pages)
	fmt.Fprintf(out, "Records:  %d\n", report.Records)
	if report.Total > 0 {
		fmt.Fprintf(out, "Total:    %d\n", report.Total)
	}
	fmt.Fprintf(out, "Elapsed:  %s\n", report.Elapsed)
	fmt.Fprintf(out, "Cached:   %d\n", s.client.Stats().UniqueCodes)
	return nil
}
