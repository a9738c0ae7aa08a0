package report

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/optimizer"
	"github.com/wonny/diversifier/internal/portfolio"
	"github.com/wonny/diversifier/internal/walkforward"
)

// WritePortfolio prints members, sector spread and every notice of the run.
// Under-fill and exclusions are always printed.
func WritePortfolio(w io.Writer, rec *portfolio.Record) {
	p := rec.Portfolio
	title(w, "Diversified Portfolio")
	keyValue(w, "Run ID", rec.RunID)
	keyValue(w, "As of", rec.AsOf.Format("2006-01-02"))
	if rec.StrategyID != "" {
		keyValue(w, "Strategy", rec.StrategyID)
	}
	keyValue(w, "Selected", fmt.Sprintf("%d of %d", p.Size(), p.TargetSize))
	keyValue(w, "Sectors", fmt.Sprintf("%d distinct", p.DistinctSectors))
	keyValue(w, "Mean |corr|", fmt.Sprintf("%.3f", p.MeanCorrelation()))
	fmt.Fprintln(w, singleRule)

	t := newTable(w,
		[]string{"#", "Ticker", "Sector", "Stage", "Sharpe", "Vol(d)", "Return", "Avg|corr|"},
		[]int{3, 8, 14, 5, 7, 7, 9, 9})
	t.header()
	for i, m := range p.Members {
		t.row(
			fmt.Sprintf("%d", i+1),
			m.Asset.Ticker,
			truncate(m.Asset.Sector, 14),
			string(m.Stage),
			number(m.Asset.Sharpe, 2),
			pct(m.Asset.Volatility),
			signedPct(m.Asset.TotalReturn),
			number(m.AvgCorrelation, 3),
		)
	}
	fmt.Fprintln(w)

	writeNotices(w, p, rec.Excluded, rec.Warnings)
}

func writeNotices(w io.Writer, p *contracts.Portfolio, excluded map[string]string, warnings []string) {
	if p.Underfilled {
		warning(w, fmt.Sprintf("Under-filled: selected %d of %d (sector caps or too few candidates)", p.Size(), p.TargetSize))
	}
	if !p.MinSectorsMet {
		warning(w, fmt.Sprintf("Sector breadth not met: %d distinct sectors", p.DistinctSectors))
	}

	fmt.Fprintf(w, "Excluded: %d\n", len(excluded))
	tickers := make([]string, 0, len(excluded))
	for t := range excluded {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	for _, t := range tickers {
		fmt.Fprintf(w, "   • %s: %s\n", t, excluded[t])
	}

	for _, msg := range warnings {
		warning(w, msg)
	}
}

// WriteWeights prints the reference portfolios side by side
func WriteWeights(w io.Writer, vectors []contracts.WeightVector) {
	if len(vectors) == 0 {
		fmt.Fprintln(w, "No weights (optimisation skipped)")
		return
	}

	title(w, "Reference Portfolios")
	columns := []string{"Ticker"}
	widths := []int{8}
	for _, v := range vectors {
		columns = append(columns, v.Name)
		widths = append(widths, 12)
	}
	t := newTable(w, columns, widths)
	t.header()

	for i, ticker := range vectors[0].Tickers {
		values := []string{ticker}
		for _, v := range vectors {
			if i < len(v.Weights) {
				values = append(values, pct(v.Weights[i]))
			} else {
				values = append(values, "-")
			}
		}
		t.row(values...)
	}
	fmt.Fprintln(w, singleRule)

	stats := []struct {
		label string
		value func(contracts.WeightVector) string
	}{
		{"Return", func(v contracts.WeightVector) string { return pct(v.ExpectedReturn) }},
		{"Vol", func(v contracts.WeightVector) string { return pct(v.Volatility) }},
		{"Sharpe", func(v contracts.WeightVector) string { return number(v.Sharpe, 3) }},
	}
	for _, s := range stats {
		values := []string{s.label}
		for _, v := range vectors {
			values = append(values, s.value(v))
		}
		t.row(values...)
	}
	fmt.Fprintln(w)
}

// WriteAllocation prints whole-share purchases for an amount
func WriteAllocation(w io.Writer, a *optimizer.Allocation) {
	title(w, fmt.Sprintf("Allocation of $%s (%s)", a.Amount.StringFixed(2), a.Weights))

	t := newTable(w,
		[]string{"Ticker", "Weight", "Price", "Target", "Shares", "Invested", "Leftover"},
		[]int{8, 8, 10, 11, 7, 11, 10})
	t.header()
	for _, l := range a.Lines {
		t.row(
			l.Ticker,
			pct(l.Weight),
			l.Price.StringFixed(2),
			l.Target.StringFixed(2),
			fmt.Sprintf("%d", l.Shares),
			l.Invested.StringFixed(2),
			l.Leftover.StringFixed(2),
		)
	}
	fmt.Fprintln(w, singleRule)
	keyValue(w, "Invested", "$"+a.TotalInvested.StringFixed(2))
	keyValue(w, "Cash", "$"+a.CashRemaining.StringFixed(2))
	keyValue(w, "Efficiency", pct(a.Efficiency))
	fmt.Fprintln(w)

	for _, msg := range a.Warnings {
		warning(w, msg)
	}
}

// WriteWalkForward prints one line per period and the aggregate verdict
func WriteWalkForward(w io.Writer, r *walkforward.Report) {
	title(w, "Walk-Forward Validation")
	keyValue(w, "Run ID", r.RunID)
	keyValue(w, "Holding", fmt.Sprintf("%d trading days", r.Config.HoldingPeriod))
	keyValue(w, "Weights", r.Config.Weights)
	if r.Config.Benchmark != "" {
		keyValue(w, "Benchmark", r.Config.Benchmark)
	}
	fmt.Fprintln(w, singleRule)

	t := newTable(w,
		[]string{"Cutoff", "Days", "Return", "Sharpe", "MaxDD", "VaR95", "Alpha", "Status"},
		[]int{10, 4, 8, 7, 8, 7, 8, 24})
	t.header()
	for _, p := range r.Periods {
		if !p.OK() {
			t.row(p.SelectionDate.Format("2006-01-02"), "-", "-", "-", "-", "-", "-", truncate(p.Error, 24))
			continue
		}
		alpha := "-"
		if p.HasBenchmark {
			alpha = signedPct(p.Alpha)
		}
		t.row(
			p.SelectionDate.Format("2006-01-02"),
			fmt.Sprintf("%d", p.TradingDays),
			signedPct(p.TotalReturn),
			number(p.Sharpe, 2),
			pct(p.MaxDrawdown),
			pct(p.VaR),
			alpha,
			"ok",
		)
	}
	fmt.Fprintln(w, singleRule)

	s := r.Summary
	keyValue(w, "Evaluated", fmt.Sprintf("%d of %d", s.Evaluated, s.Periods))
	keyValue(w, "Mean return", signedPct(s.MeanReturn))
	keyValue(w, "Mean Sharpe", fmt.Sprintf("%.2f (σ %.2f, CV %.2f)", s.MeanSharpe, s.StdevSharpe, s.CV))
	keyValue(w, "Win rate", pct(s.WinRate))
	keyValue(w, "Worst DD", pct(s.WorstDrawdown))
	if s.HasBenchmark {
		keyValue(w, "Mean alpha", signedPct(s.MeanAlpha))
		keyValue(w, "Mean beta", fmt.Sprintf("%.2f", s.MeanBeta))
	}
	keyValue(w, "Stable", fmt.Sprintf("%t", s.Stable))
	keyValue(w, "Robustness", fmt.Sprintf("%.1f / 100 → %s", s.RobustnessScore, s.Recommendation))
	fmt.Fprintln(w)

	if len(r.Timeframes) > 0 {
		writeTimeframes(w, r.Timeframes)
	}
	if r.Sensitivity != nil {
		writeSensitivity(w, r.Sensitivity)
	}
	if a := r.Assessment; a != nil {
		title(w, "Overall Assessment")
		t := newTable(w, []string{"Component", "Score", "Weight"}, []int{22, 6, 6})
		t.header()
		for _, c := range a.Components {
			t.row(c.Name, fmt.Sprintf("%.1f", c.Score), fmt.Sprintf("%.2f", c.Weight))
		}
		fmt.Fprintln(w, singleRule)
		keyValue(w, "Score", fmt.Sprintf("%.1f / 100 → %s", a.Score, a.Recommendation))
		fmt.Fprintln(w)
	}

	for _, msg := range r.Warnings {
		warning(w, msg)
	}
}

func writeTimeframes(w io.Writer, frames []walkforward.TimeframeResult) {
	title(w, "Trailing Timeframes")
	t := newTable(w,
		[]string{"Window", "Cutoff", "Days", "Return", "Sharpe", "MaxDD", "Status"},
		[]int{6, 10, 4, 8, 7, 8, 24})
	t.header()
	for _, r := range frames {
		if !r.OK() {
			t.row(r.Timeframe.Name, r.SelectionDate.Format("2006-01-02"), "-", "-", "-", "-", truncate(r.Error, 24))
			continue
		}
		t.row(
			r.Timeframe.Name,
			r.SelectionDate.Format("2006-01-02"),
			fmt.Sprintf("%d", r.TradingDays),
			signedPct(r.TotalReturn),
			number(r.Sharpe, 2),
			pct(r.MaxDrawdown),
			"ok",
		)
	}
	fmt.Fprintln(w)
}

func writeSensitivity(w io.Writer, s *walkforward.Sensitivity) {
	title(w, "Parameter Sensitivity")
	keyValue(w, "Window", fmt.Sprintf("%s → %s", s.Cutoff.Format("2006-01-02"), s.End.Format("2006-01-02")))
	keyValue(w, "Draws", fmt.Sprintf("%d evaluated, %d failed", s.Evaluated, s.Failed))
	if s.Evaluated > 0 {
		keyValue(w, "Profitable", fmt.Sprintf("%.1f%%", s.ProfitablePct))
		keyValue(w, "Sharpe > 0", fmt.Sprintf("%.1f%%", s.PositiveSharpePct))
		keyValue(w, "Mean Sharpe", fmt.Sprintf("%.2f (median %.2f, σ %.2f)", s.MeanSharpe, s.MedianSharpe, s.StdevSharpe))
		keyValue(w, "Sharpe IQR", fmt.Sprintf("%.2f to %.2f (spread %.2f)", s.P25Sharpe, s.P75Sharpe, s.SharpeSpread))
		keyValue(w, "Sharpe range", fmt.Sprintf("%.2f to %.2f", s.MinSharpe, s.MaxSharpe))
	}
	fmt.Fprintln(w)
}

func number(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.*f", decimals, v)
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
