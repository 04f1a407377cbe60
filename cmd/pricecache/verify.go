package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/discochess/pricecache/internal/cache"
	"github.com/discochess/pricecache/internal/record"
	"github.com/discochess/pricecache/internal/shard"
	"github.com/discochess/pricecache/internal/stats"
	"github.com/discochess/pricecache/internal/store"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of the persisted cache",
	Long: `Verify that every persisted shard is valid.

This command checks:
- The metadata and each shard can be decoded
- Each record is stored in the shard its code maps to
- Codes are canonical and unique
- Distributors are ordered by effective price, highest first`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	st, err := cfg.OpenStore(ctx, stats.NewNoop())
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()

	meta, err := cache.ReadMeta(ctx, st)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintln(out, "No persisted cache found.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading metadata: %w", err)
	}
	if meta.Version != cache.SchemaVersion {
		return fmt.Errorf("schema version %q, want %q", meta.Version, cache.SchemaVersion)
	}

	strategyCfg := *cfg
	strategyCfg.ShardStrategy = meta.Strategy
	strategy, err := strategyCfg.NewShardStrategy()
	if err != nil {
		return fmt.Errorf("persisted strategy: %w", err)
	}

	fmt.Fprintf(out, "Verifying %d shards (%s)...\n", meta.Shards, meta.Strategy)

	seen := make(map[string]int, meta.Records)
	var errCount, total int
	for id := 0; id < meta.Shards; id++ {
		records, err := cache.ReadShard(ctx, st, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			fmt.Fprintf(out, "  ERROR: shard %d: %v\n", id, err)
			errCount++
			continue
		}
		if verbose {
			fmt.Fprintf(out, "  [%d/%d] %d records\n", id+1, meta.Shards, len(records))
		}

		total += len(records)
		for _, problem := range checkShard(id, records, strategy, meta.Shards, seen) {
			fmt.Fprintf(out, "  ERROR: shard %d: %s\n", id, problem)
			errCount++
		}
	}

	if total != meta.Records {
		fmt.Fprintf(out, "  ERROR: metadata lists %d records, shards hold %d\n", meta.Records, total)
		errCount++
	}

	if errCount > 0 {
		return fmt.Errorf("verification failed with %d errors", errCount)
	}
	fmt.Fprintf(out, "All %d shards verified, %d records.\n", meta.Shards, total)
	return nil
}

// checkShard returns a description of every invalid record in a shard.
// seen maps codes to the shard they were first found in.
func checkShard(id int, records []record.Record, strategy shard.Strategy, shards int, seen map[string]int) []string {
	var problems []string
	for _, r := range records {
		switch {
		case r.Code == "":
			problems = append(problems, fmt.Sprintf("record %q has no code", r.RawCode))
			continue
		case r.Code != record.NormalizeCode(r.Code):
			problems = append(problems, fmt.Sprintf("code %q is not canonical", r.Code))
		}

		if want := strategy.ShardID(r.Code, shards); want != id {
			problems = append(problems, fmt.Sprintf("code %q belongs in shard %d", r.Code, want))
		}
		if prev, ok := seen[r.Code]; ok {
			problems = append(problems, fmt.Sprintf("code %q duplicated from shard %d", r.Code, prev))
		} else {
			seen[r.Code] = id
		}
		if !slices.Equal(r.Distributors, record.SortQuotes(r.Distributors)) {
			problems = append(problems, fmt.Sprintf("code %q has unsorted distributors", r.Code))
		}
	}
	return problems
}
