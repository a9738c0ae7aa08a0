package optimizer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/returns"
	"github.com/wonny/diversifier/pkg/logger"
)

// Sample is one random point on the weight simplex
type Sample struct {
	Weights    []float64 `json:"weights"`
	Return     float64   `json:"return"`
	Volatility float64   `json:"volatility"`
	Sharpe     float64   `json:"sharpe"`   // NaN for degenerate samples
	Rejected   bool      `json:"rejected"` // violates MaxWeight
}

// Frontier is the full result of one optimisation run.
// Optima are approximate and tighten as Simulations grows.
type Frontier struct {
	Tickers           []string               `json:"tickers"`
	ExpectedReturns   []float64              `json:"expected_returns"`
	Covariance        [][]float64            `json:"covariance"`
	Observations      int                    `json:"observations"`
	Seed              int64                  `json:"seed"`
	Samples           []Sample               `json:"-"`
	MaxSharpe         contracts.WeightVector `json:"max_sharpe"`
	MinVariance       contracts.WeightVector `json:"min_variance"`
	EqualWeight       contracts.WeightVector `json:"equal_weight"`
	DegenerateSamples int                    `json:"degenerate_samples"`
	RejectedSamples   int                    `json:"rejected_samples"`
	Warnings          []string               `json:"warnings,omitempty"`
}

// Weights returns the three reference portfolios
func (f *Frontier) Weights() []contracts.WeightVector {
	return []contracts.WeightVector{f.MaxSharpe, f.MinVariance, f.EqualWeight}
}

// ByName finds a reference portfolio by name
func (f *Frontier) ByName(name string) (contracts.WeightVector, bool) {
	for _, w := range f.Weights() {
		if w.Name == name {
			return w, true
		}
	}
	return contracts.WeightVector{}, false
}

// Optimizer searches a simulated efficient frontier
// ⭐ SSOT: 비중 최적화는 여기서만
type Optimizer struct {
	config Config
	logger *logger.Logger
}

// NewOptimizer creates a new optimizer
func NewOptimizer(config Config, log *logger.Logger) (*Optimizer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("optimizer config: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Optimizer{config: config, logger: log.WithComponent("optimizer")}, nil
}

// Config returns the optimizer configuration
func (o *Optimizer) Config() Config {
	return o.config
}

// Optimize draws Simulations weight vectors and keeps the max-Sharpe and min-variance
// samples; the equal-weight portfolio is computed directly.
func (o *Optimizer) Optimize(ctx context.Context, rm *returns.Matrix) (*Frontier, error) {
	started := time.Now()
	if rm == nil {
		return nil, &contracts.InsufficientDataError{Op: "optimizer", Detail: "no returns matrix"}
	}

	moments, err := EstimateMoments(rm.Tail(o.config.Lookback))
	if err != nil {
		return nil, err
	}
	n := len(moments.Tickers)

	if o.config.MaxWeight > 0 && o.config.MaxWeight*float64(n) < 1 {
		return nil, fmt.Errorf("optimizer: max_weight %.4f infeasible for %d assets", o.config.MaxWeight, n)
	}

	seed := o.config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	samples, err := o.sample(ctx, moments, seed)
	if err != nil {
		return nil, err
	}

	f := &Frontier{
		Tickers:         moments.Tickers,
		ExpectedReturns: moments.Mean,
		Covariance:      denseRows(moments),
		Observations:    moments.Observations,
		Seed:            seed,
		Samples:         samples,
	}

	bestSharpe, bestVol := -1, -1
	for i, s := range samples {
		if s.Rejected {
			f.RejectedSamples++
			continue
		}
		if math.IsNaN(s.Sharpe) {
			f.DegenerateSamples++
		} else if bestSharpe == -1 || s.Sharpe > samples[bestSharpe].Sharpe {
			bestSharpe = i
		}
		if bestVol == -1 || s.Volatility < samples[bestVol].Volatility {
			bestVol = i
		}
	}

	equal := make([]float64, n)
	for i := range equal {
		equal[i] = 1 / float64(n)
	}
	f.EqualWeight = o.vector(contracts.WeightsEqual, moments, equal)

	switch {
	case bestVol == -1:
		f.Warnings = append(f.Warnings, "no admissible sample; falling back to equal weight")
		f.MaxSharpe = o.vector(contracts.WeightsMaxSharpe, moments, equal)
		f.MinVariance = o.vector(contracts.WeightsMinVariance, moments, equal)
	case bestSharpe == -1:
		f.Warnings = append(f.Warnings, "every admissible sample had zero volatility; max-Sharpe falls back to equal weight")
		f.MaxSharpe = o.vector(contracts.WeightsMaxSharpe, moments, equal)
		f.MinVariance = o.vector(contracts.WeightsMinVariance, moments, samples[bestVol].Weights)
	default:
		f.MaxSharpe = o.vector(contracts.WeightsMaxSharpe, moments, samples[bestSharpe].Weights)
		f.MinVariance = o.vector(contracts.WeightsMinVariance, moments, samples[bestVol].Weights)
	}

	o.logger.WithFields(map[string]interface{}{
		"assets":       n,
		"observations": moments.Observations,
		"simulations":  len(samples),
		"degenerate":   f.DegenerateSamples,
		"rejected":     f.RejectedSamples,
		"max_sharpe":   f.MaxSharpe.Sharpe,
		"min_vol":      f.MinVariance.Volatility,
		"duration_ms":  time.Since(started).Milliseconds(),
	}).Info("Efficient frontier simulated")

	return f, nil
}

func (o *Optimizer) vector(name string, m *Moments, weights []float64) contracts.WeightVector {
	w := append([]float64(nil), weights...)
	ret, vol, sharpe := PortfolioStats(w, m.Mean, m.Covariance, o.config.RiskFreeRate)
	return contracts.WeightVector{
		Name:           name,
		Tickers:        append([]string(nil), m.Tickers...),
		Weights:        w,
		ExpectedReturn: ret,
		Volatility:     vol,
		Sharpe:         sharpe,
	}
}

func denseRows(m *Moments) [][]float64 {
	n := len(m.Tickers)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = m.Covariance.At(i, j)
		}
	}
	return out
}
