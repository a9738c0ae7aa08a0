package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/diversifier/internal/brain"
	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/optimizer"
	"github.com/wonny/diversifier/internal/portfolio"
	"github.com/wonny/diversifier/internal/report"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the portfolio once",
	Long: `Runs screening → returns → correlation → selection → optimisation
over the configured universe and prints the portfolio and its weights.

Flags:
  --as-of    build as of a past date (no later bar is read)
  --chart    write the simulated frontier as PNG
  --save     persist the run (requires DATABASE_URL)
  --json     print the run as JSON instead of tables

Example:
  go run ./cmd/quant run --prices data/prices --universe data/universe.csv
  go run ./cmd/quant run --as-of 2024-06-28 --chart frontier.png --save`,
	RunE: runOnce,
}

// allocateCmd represents the allocate command
var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Turn an amount into whole-share purchases",
	Long: `Builds the portfolio (or loads the latest stored run with --latest)
and rounds each weight × amount down to whole shares at the latest price.

Example:
  go run ./cmd/quant allocate --amount 3500
  go run ./cmd/quant allocate --amount 10000 --weights min_variance --latest`,
	RunE: runAllocate,
}

var (
	runAsOf   string
	runChart  string
	runSave   bool
	runJSON   bool
	amount    float64
	weightsBy string
	useLatest bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(allocateCmd)

	runCmd.Flags().StringVar(&runAsOf, "as-of", "", "cutoff date YYYY-MM-DD (default: latest data)")
	runCmd.Flags().StringVar(&runChart, "chart", "", "write the frontier PNG to this path")
	runCmd.Flags().BoolVar(&runSave, "save", false, "persist the run to PostgreSQL")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print JSON")

	allocateCmd.Flags().Float64Var(&amount, "amount", 0, "amount to invest (required)")
	allocateCmd.Flags().StringVar(&weightsBy, "weights", contracts.WeightsMaxSharpe, "max_sharpe, min_variance or equal_weight")
	allocateCmd.Flags().BoolVar(&useLatest, "latest", false, "use the latest stored run instead of running the pipeline")
	_ = allocateCmd.MarkFlagRequired("amount")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", s)
	}
	return t, nil
}

// buildRecord runs the pipeline and flattens it; a partial portfolio is printed on failure
func buildRecord(ctx context.Context, rt *runtime, asOf time.Time) (*portfolio.Record, *brain.RunResult, error) {
	pipeline, err := rt.pipeline()
	if err != nil {
		return nil, nil, err
	}
	universe, err := rt.universe.Universe(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load universe: %w", err)
	}

	run, err := pipeline.Run(ctx, brain.RunConfig{Provider: rt.provider, Universe: universe, AsOf: asOf})
	if err != nil {
		if run != nil && run.Portfolio != nil {
			report.WritePortfolio(os.Stdout, &portfolio.Record{
				RunID: run.RunID, AsOf: run.Portfolio.AsOf, Portfolio: run.Portfolio,
				Excluded: run.Excluded, Warnings: run.Warnings,
			})
		}
		return nil, run, err
	}

	rec, err := portfolio.NewRecord(run, rt.snapshot)
	if err != nil {
		return nil, run, err
	}
	return rec, run, nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	asOf, err := parseDate(runAsOf)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	rec, run, err := buildRecord(ctx, rt, asOf)
	if err != nil {
		return err
	}

	if runJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return err
		}
	} else {
		report.WritePortfolio(os.Stdout, rec)
		report.WriteWeights(os.Stdout, rec.Weights)
	}

	if runChart != "" {
		if err := writeChart(runChart, run.Frontier); err != nil {
			return err
		}
		fmt.Printf("✅ Frontier chart written to %s\n", runChart)
	}

	if runSave {
		if rt.runRepo == nil {
			return fmt.Errorf("--save requires DATABASE_URL")
		}
		if err := rt.runRepo.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := rt.runRepo.SaveRun(ctx, rec); err != nil {
			return err
		}
		fmt.Printf("✅ Run %s saved\n", rec.RunID)
	}
	return nil
}

func writeChart(path string, frontier *optimizer.Frontier) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	if err := report.RenderFrontier(f, frontier); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runAllocate(cmd *cobra.Command, args []string) error {
	if amount <= 0 {
		return optimizer.ErrInvalidAmount
	}

	ctx, stop := signalContext()
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	var rec *portfolio.Record
	if useLatest {
		if rt.runRepo == nil {
			return fmt.Errorf("--latest requires DATABASE_URL")
		}
		if rec, err = rt.runRepo.GetLatestRun(ctx); err != nil {
			return err
		}
	} else if rec, _, err = buildRecord(ctx, rt, time.Time{}); err != nil {
		return err
	}

	weights, ok := rec.WeightsByName(weightsBy)
	if !ok {
		return fmt.Errorf("run %s has no %s weights", rec.RunID, weightsBy)
	}
	alloc, err := optimizer.Allocate(amount, weights, rec.LatestPrices)
	if err != nil {
		return err
	}

	report.WritePortfolio(os.Stdout, rec)
	report.WriteAllocation(os.Stdout, alloc)
	return nil
}
