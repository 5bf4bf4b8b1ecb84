// Package main provides the CLI entry point for memtier.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackms/memtier-go/cmd/memtier/commands"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "memtier",
	Short: "Memtier - tiered semantic memory engine",
	Long: `Memtier is a tiered semantic memory engine.

It provides:
  - Vector search over three durability tiers with caching and
    circuit-breaker protection
  - Automatic promotion of valuable records toward durable tiers
  - Adaptive resource limits with trend forecasting and alerts
  - SQLite persistence with online backup and restore`,
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&commands.ConfigPath, "config", "memtier.yaml", "path to the configuration file")
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.StatsCmd)
	rootCmd.AddCommand(commands.PromoteCmd)
	rootCmd.AddCommand(commands.BackupCmd)
}
