package main

import (
	"github.com/spf13/cobra"

	"github.com/discochess/pricecache/internal/config"
)

var (
	// Global flags. Unset flags fall back to PRICECACHE_* variables.
	dataDir   string
	storeKind string
	codecName string
	apiURL    string
	verbose   bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pricecache",
	Short: "Local pricing cache with instant search",
	Long: `Pricecache keeps a local, searchable copy of distributor pricing
records in sync with the remote pricing API.

Settings are read from PRICECACHE_* environment variables; flags override
them.

Examples:
  # Pull the full index into ./pricecache-data
  pricecache sync --api-url https://pricing.example.com/v1

  # Search the local cache
  pricecache search amoxicillin --local

  # Look up a product code
  pricecache lookup 00093-2263-01`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "directory holding the persisted cache")
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", "", "store backend: disk, memory, s3, gcs, redis")
	rootCmd.PersistentFlags().StringVar(&codecName, "codec", "", "payload codec: zstd, gzip, none")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "pricing API base URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		c.DataDir = dataDir
	}
	if flags.Changed("store") {
		c.Store = storeKind
	}
	if flags.Changed("codec") {
		c.Codec = codecName
	}
	if flags.Changed("api-url") {
		c.APIURL = apiURL
	}
	if verbose {
		c.LogLevel = "debug"
	}
	if err := c.Validate(); err != nil {
		return err
	}

	cfg = c
	return nil
}
