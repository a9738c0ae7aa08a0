package walkforward

import (
	"fmt"

	"github.com/wonny/diversifier/internal/contracts"
)

// Config holds walk-forward validation parameters
// ⭐ SSOT: 워크포워드 검증 설정은 여기서만
type Config struct {
	HoldingPeriod  int     `json:"holding_period"`   // trading days measured after each cutoff
	MinForwardDays int     `json:"min_forward_days"` // shorter windows are recorded as failed
	StabilityCV    float64 `json:"stability_cv"`     // stdev/mean Sharpe below this is stable
	Benchmark      string  `json:"benchmark"`        // benchmark ticker, empty = none
	RiskFreeRate   float64 `json:"risk_free_rate"`
	Weights        string  `json:"weights"` // equal_weight, max_sharpe or min_variance
	Workers        int     `json:"workers"` // periods evaluated concurrently

	// Trailing windows ending at the validation end date; empty skips the mode
	Timeframes  []Timeframe       `json:"timeframes,omitempty"`
	Sensitivity SensitivityConfig `json:"sensitivity"`
}

// DefaultConfig returns six-month holding windows on equal weights
func DefaultConfig() Config {
	return Config{
		HoldingPeriod:  126,
		MinForwardDays: 20,
		StabilityCV:    0.3,
		RiskFreeRate:   0.02,
		Weights:        contracts.WeightsEqual,
		Workers:        2,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.HoldingPeriod < 2 {
		return fmt.Errorf("holding_period must be >= 2, got %d", c.HoldingPeriod)
	}
	if c.MinForwardDays < 2 || c.MinForwardDays > c.HoldingPeriod {
		return fmt.Errorf("min_forward_days must be in [2, holding_period], got %d", c.MinForwardDays)
	}
	if c.StabilityCV <= 0 {
		return fmt.Errorf("stability_cv must be > 0, got %v", c.StabilityCV)
	}
	switch c.Weights {
	case contracts.WeightsEqual, contracts.WeightsMaxSharpe, contracts.WeightsMinVariance:
	default:
		return fmt.Errorf("weights must be one of %s, %s, %s; got %q",
			contracts.WeightsEqual, contracts.WeightsMaxSharpe, contracts.WeightsMinVariance, c.Weights)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	seen := make(map[string]bool, len(c.Timeframes))
	for _, tf := range c.Timeframes {
		if tf.Months < 1 {
			return fmt.Errorf("timeframe %q: months must be >= 1, got %d", tf.Name, tf.Months)
		}
		if tf.Name == "" || seen[tf.Name] {
			return fmt.Errorf("timeframe names must be unique and non-empty, got %q", tf.Name)
		}
		seen[tf.Name] = true
	}
	if err := c.Sensitivity.Validate(); err != nil {
		return fmt.Errorf("sensitivity: %w", err)
	}
	return nil
}
