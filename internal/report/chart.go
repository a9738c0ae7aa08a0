package report

import (
	"fmt"
	"io"
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/optimizer"
)

// maxPlotted caps drawn samples; larger frontiers are thinned evenly
const maxPlotted = 20000

// RenderFrontier draws every usable sample as volatility vs return and
// marks the max-Sharpe, min-variance and equal-weight portfolios. PNG.
func RenderFrontier(w io.Writer, f *optimizer.Frontier) error {
	if f == nil || len(f.Samples) == 0 {
		return fmt.Errorf("frontier has no samples")
	}

	step := 1
	if len(f.Samples) > maxPlotted {
		step = (len(f.Samples) + maxPlotted - 1) / maxPlotted
	}

	var xs, ys []float64
	for i := 0; i < len(f.Samples); i += step {
		s := f.Samples[i]
		if s.Rejected || !finite(s.Volatility) || !finite(s.Return) {
			continue
		}
		xs = append(xs, s.Volatility*100)
		ys = append(ys, s.Return*100)
	}
	if len(xs) < 2 {
		return fmt.Errorf("frontier has %d plottable samples, need 2", len(xs))
	}

	samples := chart.ContinuousSeries{
		Name: fmt.Sprintf("Simulated (%d)", len(xs)),
		Style: chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    1.5,
			DotColor:    drawing.ColorFromHex("9ca3af").WithAlpha(128), // gray-400
		},
		XValues: xs,
		YValues: ys,
	}

	series := []chart.Series{samples}
	for _, m := range []struct {
		w     contracts.WeightVector
		color string
	}{
		{f.MaxSharpe, "dc2626"},   // red-600
		{f.MinVariance, "2563eb"}, // blue-600
		{f.EqualWeight, "16a34a"}, // green-600
	} {
		if !finite(m.w.Volatility) || !finite(m.w.ExpectedReturn) {
			continue
		}
		series = append(series, chart.ContinuousSeries{
			Name: m.w.Name,
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    6,
				DotColor:    drawing.ColorFromHex(m.color),
			},
			XValues: []float64{m.w.Volatility * 100},
			YValues: []float64{m.w.ExpectedReturn * 100},
		})
	}

	percent := func(v interface{}) string {
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("%.1f%%", f)
		}
		return ""
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("Efficient Frontier (%d assets)", len(f.Tickers)),
		Width:  900,
		Height: 600,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			Name:           "Annualised volatility",
			ValueFormatter: percent,
		},
		YAxis: chart.YAxis{
			Name:           "Annualised return",
			ValueFormatter: percent,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("chart render failed: %w", err)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
