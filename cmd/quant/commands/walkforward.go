package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/diversifier/internal/report"
	"github.com/wonny/diversifier/internal/walkforward"
)

// walkforwardCmd represents the walkforward command
var walkforwardCmd = &cobra.Command{
	Use:   "walkforward",
	Short: "Validate the strategy at historical cutoffs",
	Long: `Re-runs the pipeline as of each cutoff (only data up to the cutoff is
visible) and measures the following holding period.

Cutoffs default to walk_forward.offsets_months counted back from --end.
Trailing timeframes (walk_forward.timeframes_months) and parameter draws
(walk_forward.sensitivity) also end at --end; all modes feed one overall score.

Example:
  go run ./cmd/quant walkforward
  go run ./cmd/quant walkforward --end 2024-12-31
  go run ./cmd/quant walkforward --draws 50 --timeframes 6,12,24
  go run ./cmd/quant walkforward --cutoff 2023-06-30 --cutoff 2023-12-29 --save`,
	RunE: runWalkForward,
}

var (
	wfCutoffs    []string
	wfEnd        string
	wfSave       bool
	wfJSON       bool
	wfDraws      int
	wfTimeframes []int
)

func init() {
	rootCmd.AddCommand(walkforwardCmd)

	walkforwardCmd.Flags().StringSliceVar(&wfCutoffs, "cutoff", nil, "explicit cutoff date YYYY-MM-DD (repeatable)")
	walkforwardCmd.Flags().StringVar(&wfEnd, "end", "", "count offsets back from this date (default: today)")
	walkforwardCmd.Flags().BoolVar(&wfSave, "save", false, "persist the report to PostgreSQL")
	walkforwardCmd.Flags().BoolVar(&wfJSON, "json", false, "print JSON")
	walkforwardCmd.Flags().IntVar(&wfDraws, "draws", -1, "parameter sensitivity draws, 0 disables (default: strategy)")
	walkforwardCmd.Flags().IntSliceVar(&wfTimeframes, "timeframes", nil, "trailing timeframes in months (default: strategy)")
}

func runWalkForward(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cutoffs := make([]time.Time, 0, len(wfCutoffs))
	for _, s := range wfCutoffs {
		t, err := parseDate(s)
		if err != nil {
			return err
		}
		cutoffs = append(cutoffs, t)
	}
	end, err := parseDate(wfEnd)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if end.IsZero() {
		now := time.Now().UTC()
		end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	if len(cutoffs) == 0 {
		cutoffs = rt.strategy.Cutoffs(end)
	}

	validator, err := rt.validator(func(c *walkforward.Config) {
		if wfDraws >= 0 {
			c.Sensitivity.Draws = wfDraws
		}
		if cmd.Flags().Changed("timeframes") {
			c.Timeframes = walkforward.TimeframesFromMonths(wfTimeframes)
		}
	})
	if err != nil {
		return err
	}
	universe, err := rt.universe.Universe(ctx)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}

	wf, err := validator.RunSuite(ctx, rt.provider, universe, cutoffs, end)
	if err != nil {
		return err
	}

	if wfJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(wf); err != nil {
			return err
		}
	} else {
		report.WriteWalkForward(os.Stdout, wf)
	}

	if wfSave {
		if rt.runRepo == nil {
			return fmt.Errorf("--save requires DATABASE_URL")
		}
		if err := rt.runRepo.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := rt.runRepo.SaveWalkForward(ctx, wf, rt.snapshot.StrategyID, rt.snapshot.ConfigHash); err != nil {
			return err
		}
		fmt.Printf("✅ Walk-forward %s saved\n", wf.RunID)
	}
	return nil
}
