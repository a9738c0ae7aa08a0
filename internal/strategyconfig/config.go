package strategyconfig

import (
	"time"

	"github.com/wonny/diversifier/internal/brain"
	"github.com/wonny/diversifier/internal/optimizer"
	"github.com/wonny/diversifier/internal/screening"
	"github.com/wonny/diversifier/internal/selection"
	"github.com/wonny/diversifier/internal/walkforward"
)

// Config is the full strategy definition loaded from YAML.
// Pointer fields distinguish "unset" (filled by defaults) from an explicit zero.
type Config struct {
	Meta        Meta        `yaml:"meta" json:"meta"`
	Market      Market      `yaml:"market" json:"market"`
	Screening   Screening   `yaml:"screening" json:"screening"`
	Lookback    Lookback    `yaml:"lookback" json:"lookback"`
	Selection   Selection   `yaml:"selection" json:"selection"`
	Optimizer   Optimizer   `yaml:"optimizer" json:"optimizer"`
	WalkForward WalkForward `yaml:"walk_forward" json:"walk_forward"`
}

// Meta 메타 정보
type Meta struct {
	StrategyID  string `yaml:"strategy_id" json:"strategy_id" validate:"required"`
	Version     string `yaml:"version" json:"version" default:"1"`
	Description string `yaml:"description" json:"description"`
}

// Market holds assumptions shared by every stage
type Market struct {
	RiskFreeRate *float64 `yaml:"risk_free_rate" json:"risk_free_rate" default:"0.02" validate:"required,gte=0,lt=1"`
	LoadWorkers  int      `yaml:"load_workers" json:"load_workers" default:"8" validate:"gte=1,lte=64"`
}

// Screening turns the listing universe into ranked candidates
type Screening struct {
	LookbackDays   int     `yaml:"lookback_days" json:"lookback_days" default:"252" validate:"gte=2"`
	MinHistoryDays int     `yaml:"min_history_days" json:"min_history_days" default:"60" validate:"gte=2"`
	MinAvgVolume   float64 `yaml:"min_avg_volume" json:"min_avg_volume" validate:"gte=0"`
	MinVolatility  float64 `yaml:"min_volatility" json:"min_volatility" validate:"gte=0"`
	MaxVolatility  float64 `yaml:"max_volatility" json:"max_volatility" validate:"gte=0"` // 0 = no ceiling
}

// Lookback windows in trading days; 0 uses all history
type Lookback struct {
	CorrelationDays  *int `yaml:"correlation_days" json:"correlation_days" default:"252" validate:"required,gte=0"`
	OptimizationDays *int `yaml:"optimization_days" json:"optimization_days" default:"252" validate:"required,gte=0"`
}

// Selection 분산 선택 제약조건
type Selection struct {
	TargetSize           int      `yaml:"target_size" json:"target_size" default:"10" validate:"gte=1"`
	MaxPerSector         int      `yaml:"max_per_sector" json:"max_per_sector" default:"3" validate:"gte=1"`
	MinSectors           *int     `yaml:"min_sectors" json:"min_sectors" default:"4" validate:"required,gte=0"`
	BlendQuality         *bool    `yaml:"blend_quality" json:"blend_quality" default:"true"`
	ClampNegativeQuality *bool    `yaml:"clamp_negative_quality" json:"clamp_negative_quality" default:"true"`
	BenchSize            *int     `yaml:"bench_size" json:"bench_size" default:"10" validate:"required,gte=0"`
	BlackList            []string `yaml:"black_list" json:"black_list,omitempty"`
}

// Optimizer Monte-Carlo frontier settings
type Optimizer struct {
	Simulations int     `yaml:"simulations" json:"simulations" default:"10000" validate:"gte=1,lte=10000000"`
	Seed        *int64  `yaml:"seed" json:"seed" default:"42" validate:"required"` // 0 = time-seeded
	Workers     int     `yaml:"workers" json:"workers" default:"4" validate:"gte=1,lte=64"`
	MaxWeight   float64 `yaml:"max_weight" json:"max_weight" validate:"gte=0,lte=1"` // 0 = uncapped
}

// WalkForward 워크포워드 검증 설정
type WalkForward struct {
	HoldingDays    int     `yaml:"holding_days" json:"holding_days" default:"126" validate:"gte=2"`
	MinForwardDays int     `yaml:"min_forward_days" json:"min_forward_days" default:"20" validate:"gte=2"`
	OffsetsMonths  []int   `yaml:"offsets_months" json:"offsets_months" default:"[24,18,12,6]" validate:"min=1,dive,gt=0"`
	StabilityCV    float64 `yaml:"stability_cv" json:"stability_cv" default:"0.3" validate:"gt=0"`
	Benchmark      string  `yaml:"benchmark" json:"benchmark"`
	Weights        string  `yaml:"weights" json:"weights" default:"equal_weight" validate:"oneof=equal_weight max_sharpe min_variance"`
	Workers        int     `yaml:"workers" json:"workers" default:"2" validate:"gte=1,lte=64"`

	TimeframesMonths []int       `yaml:"timeframes_months" json:"timeframes_months" default:"[6,12,24,60,120]" validate:"dive,gt=0"`
	Sensitivity      Sensitivity `yaml:"sensitivity" json:"sensitivity"`
}

// Sensitivity 파라미터 민감도: [min, max] 범위에서 무작위 추출
type Sensitivity struct {
	Draws                int    `yaml:"draws" json:"draws" validate:"gte=0,lte=10000"` // 0 = off
	Seed                 *int64 `yaml:"seed" json:"seed" default:"42" validate:"required"`
	Months               int    `yaml:"months" json:"months" default:"12" validate:"gte=1"`
	TargetSize           []int  `yaml:"target_size" json:"target_size" default:"[8,15]" validate:"omitempty,len=2,dive,gte=1"`
	MaxPerSector         []int  `yaml:"max_per_sector" json:"max_per_sector" default:"[2,4]" validate:"omitempty,len=2,dive,gte=1"`
	MinSectors           []int  `yaml:"min_sectors" json:"min_sectors" default:"[3,5]" validate:"omitempty,len=2,dive,gte=0"`
	ScreeningLookback    []int  `yaml:"screening_lookback" json:"screening_lookback" default:"[126,504]" validate:"omitempty,len=2,dive,gte=2"`
	CorrelationLookback  []int  `yaml:"correlation_lookback" json:"correlation_lookback" default:"[126,504]" validate:"omitempty,len=2,dive,gte=0"`
	OptimizationLookback []int  `yaml:"optimization_lookback" json:"optimization_lookback" default:"[126,504]" validate:"omitempty,len=2,dive,gte=0"`
}

// Pipeline converts the strategy into the orchestrator configuration
func (c *Config) Pipeline() brain.Config {
	rf := deref(c.Market.RiskFreeRate)
	return brain.Config{
		Screening: screening.Config{
			Lookback:      c.Screening.LookbackDays,
			MinHistory:    c.Screening.MinHistoryDays,
			MinAvgVolume:  c.Screening.MinAvgVolume,
			MinVolatility: c.Screening.MinVolatility,
			MaxVolatility: c.Screening.MaxVolatility,
			RiskFreeRate:  rf,
		},
		Selection: selection.Config{
			TargetSize:           c.Selection.TargetSize,
			MaxPerSector:         c.Selection.MaxPerSector,
			MinSectors:           deref(c.Selection.MinSectors),
			BlendQuality:         deref(c.Selection.BlendQuality),
			ClampNegativeQuality: deref(c.Selection.ClampNegativeQuality),
			BenchSize:            deref(c.Selection.BenchSize),
			BlackList:            append([]string{}, c.Selection.BlackList...),
		},
		Optimizer: optimizer.Config{
			Simulations:  c.Optimizer.Simulations,
			RiskFreeRate: rf,
			Seed:         deref(c.Optimizer.Seed),
			Workers:      c.Optimizer.Workers,
			MaxWeight:    c.Optimizer.MaxWeight,
			Lookback:     deref(c.Lookback.OptimizationDays),
		},
		CorrelationLookback: deref(c.Lookback.CorrelationDays),
		LoadWorkers:         c.Market.LoadWorkers,
	}
}

// Validation converts the strategy into the walk-forward configuration
func (c *Config) Validation() walkforward.Config {
	sens := c.WalkForward.Sensitivity
	return walkforward.Config{
		HoldingPeriod:  c.WalkForward.HoldingDays,
		MinForwardDays: c.WalkForward.MinForwardDays,
		StabilityCV:    c.WalkForward.StabilityCV,
		Benchmark:      c.WalkForward.Benchmark,
		RiskFreeRate:   deref(c.Market.RiskFreeRate),
		Weights:        c.WalkForward.Weights,
		Workers:        c.WalkForward.Workers,
		Timeframes:     walkforward.TimeframesFromMonths(c.WalkForward.TimeframesMonths),
		Sensitivity: walkforward.SensitivityConfig{
			Draws:                sens.Draws,
			Seed:                 deref(sens.Seed),
			Months:               sens.Months,
			TargetSize:           intRange(sens.TargetSize),
			MaxPerSector:         intRange(sens.MaxPerSector),
			MinSectors:           intRange(sens.MinSectors),
			ScreeningLookback:    intRange(sens.ScreeningLookback),
			CorrelationLookback:  intRange(sens.CorrelationLookback),
			OptimizationLookback: intRange(sens.OptimizationLookback),
		},
	}
}

// intRange maps a [min, max] pair; anything else keeps the base value
func intRange(pair []int) walkforward.IntRange {
	if len(pair) != 2 {
		return walkforward.IntRange{}
	}
	return walkforward.IntRange{Min: pair[0], Max: pair[1]}
}

// Cutoffs returns the walk-forward cutoff dates counted back from end
func (c *Config) Cutoffs(end time.Time) []time.Time {
	return walkforward.CutoffsFromOffsets(end, c.WalkForward.OffsetsMonths)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
