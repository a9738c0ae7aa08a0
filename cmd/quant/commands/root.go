package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags; empty values fall back to the environment (pkg/config)
	strategyPath string
	priceSource  string
	pricesDir    string
	universePath string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Diversified portfolio builder",
	Long: `Diversifier CLI

Screens a universe, selects a low-correlation portfolio under sector caps,
weights it on a simulated efficient frontier and validates the strategy
walk-forward.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant demo --out data
  go run ./cmd/quant run --prices data/prices --universe data/universe.csv --chart frontier.png
  go run ./cmd/quant allocate --amount 3500
  go run ./cmd/quant walkforward
  go run ./cmd/quant api --scheduler`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&strategyPath, "strategy", "", "strategy YAML (default $STRATEGY_PATH or config/strategy.yaml)")
	rootCmd.PersistentFlags().StringVar(&priceSource, "source", "", "price source: csv, postgres or http (default $PRICE_SOURCE)")
	rootCmd.PersistentFlags().StringVar(&pricesDir, "prices", "", "directory of <TICKER>.csv files (csv source)")
	rootCmd.PersistentFlags().StringVar(&universePath, "universe", "", "universe CSV with ticker,sector columns")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
