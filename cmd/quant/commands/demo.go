package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/prices"
)

// demoCmd represents the demo command
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Write a synthetic market for trying the pipeline",
	Long: `Generates factor-driven price histories (same-sector names move together)
and writes them as CSV files plus a universe file.

Output:
  <out>/prices/<TICKER>.csv
  <out>/universe.csv

A benchmark series (--benchmark) is written next to the prices but left
out of the universe, so walk_forward.benchmark can point at it.

Example:
  go run ./cmd/quant demo --out data
  go run ./cmd/quant run --prices data/prices --universe data/universe.csv`,
	RunE: runDemo,
}

var (
	demoOut       string
	demoSectors   []string
	demoPerSector int
	demoYears     int
	demoSeed      int64
	demoBenchmark string
)

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().StringVar(&demoOut, "out", "data", "output directory")
	demoCmd.Flags().StringSliceVar(&demoSectors, "sectors",
		[]string{"Technology", "Healthcare", "Financials", "Energy", "Utilities", "Consumer Staples"}, "sector names")
	demoCmd.Flags().IntVar(&demoPerSector, "per-sector", 8, "tickers per sector")
	demoCmd.Flags().IntVar(&demoYears, "years", 3, "years of history ending today")
	demoCmd.Flags().Int64Var(&demoSeed, "seed", 42, "random seed (0 = time-seeded)")
	demoCmd.Flags().StringVar(&demoBenchmark, "benchmark", "MKT", "benchmark ticker (empty to skip)")
}

func runDemo(cmd *cobra.Command, args []string) error {
	if demoPerSector < 1 || len(demoSectors) == 0 {
		return fmt.Errorf("need at least one sector and one ticker per sector")
	}
	if demoYears < 1 {
		return fmt.Errorf("--years must be >= 1")
	}

	universe := prices.SyntheticUniverse(demoSectors, demoPerSector)
	listings := universe
	if demoBenchmark != "" {
		listings = append(append([]contracts.Listing{}, universe...), contracts.Listing{Ticker: demoBenchmark, Sector: "Index"})
	}

	now := time.Now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(-demoYears, 0, 0)

	cfg := prices.DefaultSyntheticConfig(listings)
	cfg.Start = start
	cfg.Days = businessDaysBetween(start, end)
	cfg.Seed = demoSeed

	series := prices.GenerateSynthetic(cfg)
	priceDir := filepath.Join(demoOut, "prices")
	if err := prices.SaveCSVDir(priceDir, series); err != nil {
		return fmt.Errorf("write prices: %w", err)
	}

	universeFile := filepath.Join(demoOut, "universe.csv")
	f, err := os.Create(universeFile)
	if err != nil {
		return err
	}
	werr := prices.WriteUniverse(f, universe)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("write universe: %w", werr)
	}

	fmt.Printf("✅ %d series × %d days written to %s\n", len(series), cfg.Days, priceDir)
	fmt.Printf("✅ Universe (%d tickers, %d sectors) written to %s\n", len(universe), len(demoSectors), universeFile)
	if demoBenchmark != "" {
		fmt.Printf("   Benchmark %s: set walk_forward.benchmark: %s to report alpha\n", demoBenchmark, demoBenchmark)
	}
	return nil
}

func businessDaysBetween(start, end time.Time) int {
	n := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n++
		}
	}
	return n
}
