// Package main provides the pricecache CLI tool for syncing, searching and
// inspecting a local pricing cache.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
