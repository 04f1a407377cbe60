package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached record",
	Long: `Empty the local cache and delete its persisted copy. The schema version
marker is kept so the next start does not wipe the store again.`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

var clearYes bool

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearYes {
		return fmt.Errorf("refusing to clear the %s cache without --yes", cfg.Store)
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	n := s.client.Stats().UniqueCodes
	if err := s.client.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records.\n", n)
	return nil
}
