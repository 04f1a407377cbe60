package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/discochess/pricecache/internal/config"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics about the local cache",
	Long: `Display statistics about the local cache including:
- Number of records and index keys
- Last successful persist and staleness
- Size on disk (disk store only)`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

var showMetrics bool

func init() {
	statsCmd.Flags().BoolVar(&showMetrics, "metrics", false, "dump collected metrics in Prometheus text format")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	st := s.client.Stats()

	fmt.Fprintf(out, "Store:          %s\n", cfg.Store)
	if cfg.Store == config.StoreDisk {
		fmt.Fprintf(out, "Data directory: %s\n", cfg.DataDir)
		if size, err := dirSize(cfg.DataDir); err == nil {
			fmt.Fprintf(out, "Size on disk:   %s\n", formatBytes(size))
		}
	}
	fmt.Fprintf(out, "Records:        %d\n", st.UniqueCodes)
	fmt.Fprintf(out, "Index keys:     %d\n", st.Size)
	fmt.Fprintf(out, "Name tokens:    %d\n", st.TokenCount)

	if st.LastPersisted.IsZero() {
		fmt.Fprintln(out, "Last persisted: never")
	} else {
		age := time.Since(st.LastPersisted).Round(time.Second)
		fmt.Fprintf(out, "Last persisted: %s (%s ago)\n", st.LastPersisted.Format(time.RFC3339), age)
	}
	if st.LastResync.IsZero() {
		fmt.Fprintln(out, "Last resync:    never")
	} else {
		fmt.Fprintf(out, "Last resync:    %s\n", st.LastResync.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Stale:          %t (window %s)\n", st.Stale, cfg.StalenessWindow)

	if showMetrics {
		families, err := s.registry.Gather()
		if err != nil {
			return fmt.Errorf("gathering metrics: %w", err)
		}
		fmt.Fprintln(out)
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
				return fmt.Errorf("writing metrics: %w", err)
			}
		}
	}
	return nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
