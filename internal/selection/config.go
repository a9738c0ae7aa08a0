package selection

import (
	"fmt"
	"slices"
)

// Config holds the greedy selector parameters
// ⭐ SSOT: 선택 제약조건은 여기서만
type Config struct {
	TargetSize           int      `json:"target_size"`            // N
	MaxPerSector         int      `json:"max_per_sector"`         // C, hard cap
	MinSectors           int      `json:"min_sectors"`            // S, seeding breadth
	BlendQuality         bool     `json:"blend_quality"`          // quality × (1 − avg_corr) vs −avg_corr
	ClampNegativeQuality bool     `json:"clamp_negative_quality"` // treat quality < 0 as 0 when blending
	BenchSize            int      `json:"bench_size"`             // alternates reported after selection
	BlackList            []string `json:"black_list"`
}

// DefaultConfig returns the default selector configuration
func DefaultConfig() Config {
	return Config{
		TargetSize:           10,
		MaxPerSector:         3,
		MinSectors:           4,
		BlendQuality:         true,
		ClampNegativeQuality: true,
		BenchSize:            10,
		BlackList:            []string{},
	}
}

// IsBlackListed checks if a ticker must never be selected
func (c *Config) IsBlackListed(ticker string) bool {
	return slices.Contains(c.BlackList, ticker)
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.TargetSize < 1 {
		return fmt.Errorf("target_size must be >= 1, got %d", c.TargetSize)
	}
	if c.MaxPerSector < 1 {
		return fmt.Errorf("max_per_sector must be >= 1, got %d", c.MaxPerSector)
	}
	if c.MinSectors < 0 {
		return fmt.Errorf("min_sectors must be >= 0, got %d", c.MinSectors)
	}
	if c.BenchSize < 0 {
		return fmt.Errorf("bench_size must be >= 0, got %d", c.BenchSize)
	}
	return nil
}
