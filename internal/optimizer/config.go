package optimizer

import "fmt"

// TradingDays annualises daily statistics
const TradingDays = 252

// Config holds Monte-Carlo frontier parameters
type Config struct {
	Simulations  int     `json:"simulations"`    // samples drawn on the simplex
	RiskFreeRate float64 `json:"risk_free_rate"` // annual
	Seed         int64   `json:"seed"`           // 0 = time-seeded
	Workers      int     `json:"workers"`        // parallel chunk workers, results do not depend on it
	MaxWeight    float64 `json:"max_weight"`     // per-asset cap, 0 = uncapped
	Lookback     int     `json:"lookback"`       // trailing returns used for mu / sigma, 0 = all
}

// DefaultConfig returns the default optimizer configuration
func DefaultConfig() Config {
	return Config{
		Simulations:  10_000,
		RiskFreeRate: 0.02,
		Seed:         42,
		Workers:      4,
		MaxWeight:    0,
		Lookback:     252,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Simulations < 1 {
		return fmt.Errorf("simulations must be >= 1, got %d", c.Simulations)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.MaxWeight < 0 || c.MaxWeight > 1 {
		return fmt.Errorf("max_weight must be in [0, 1], got %v", c.MaxWeight)
	}
	if c.Lookback < 0 {
		return fmt.Errorf("lookback must be >= 0, got %d", c.Lookback)
	}
	return nil
}
