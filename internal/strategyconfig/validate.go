package strategyconfig

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	// report yaml paths (selection.target_size) instead of Go field names
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks field rules, then cross-field constraints.
// Expects defaults to be applied already.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fieldError(fieldErrs[0])
		}
		return err
	}

	// === Screening ===
	s := cfg.Screening
	if s.MinHistoryDays > s.LookbackDays {
		return ValidationError{"screening.min_history_days", fmt.Sprintf("must be <= lookback_days=%d", s.LookbackDays)}
	}
	if s.MaxVolatility > 0 && s.MinVolatility >= s.MaxVolatility {
		return ValidationError{"screening", "min_volatility must be < max_volatility"}
	}

	// === Selection ===
	sel := cfg.Selection
	if deref(sel.MinSectors) > sel.TargetSize {
		return ValidationError{"selection.min_sectors", fmt.Sprintf("must be <= target_size=%d", sel.TargetSize)}
	}
	seen := make(map[string]bool, len(sel.BlackList))
	for i, t := range sel.BlackList {
		if strings.TrimSpace(t) == "" {
			return ValidationError{fmt.Sprintf("selection.black_list[%d]", i), "must not be empty"}
		}
		if seen[t] {
			return ValidationError{fmt.Sprintf("selection.black_list[%d]", i), fmt.Sprintf("duplicate ticker %s", t)}
		}
		seen[t] = true
	}

	// === Optimizer ===
	// 상한이 있으면 target_size 종목으로 100% 채울 수 있어야 함
	if w := cfg.Optimizer.MaxWeight; w > 0 && w*float64(sel.TargetSize) < 1 {
		return ValidationError{"optimizer.max_weight", fmt.Sprintf("%.4f × target_size=%d cannot reach 100%%", w, sel.TargetSize)}
	}

	// === WalkForward ===
	wf := cfg.WalkForward
	if wf.MinForwardDays > wf.HoldingDays {
		return ValidationError{"walk_forward.min_forward_days", fmt.Sprintf("must be <= holding_days=%d", wf.HoldingDays)}
	}
	sens := wf.Sensitivity
	ranges := []struct {
		field string
		pair  []int
	}{
		{"target_size", sens.TargetSize},
		{"max_per_sector", sens.MaxPerSector},
		{"min_sectors", sens.MinSectors},
		{"screening_lookback", sens.ScreeningLookback},
		{"correlation_lookback", sens.CorrelationLookback},
		{"optimization_lookback", sens.OptimizationLookback},
	}
	for _, r := range ranges {
		if len(r.pair) == 2 && r.pair[0] > r.pair[1] {
			return ValidationError{"walk_forward.sensitivity." + r.field, fmt.Sprintf("min %d > max %d", r.pair[0], r.pair[1])}
		}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if cfg.Optimizer.Simulations < 1000 {
		warnings = append(warnings, Warning{
			Code:    "LOW_SIMULATIONS",
			Message: fmt.Sprintf("simulations=%d: frontier extremes are noisy below 1000 samples", cfg.Optimizer.Simulations),
		})
	}
	if deref(cfg.Optimizer.Seed) == 0 {
		warnings = append(warnings, Warning{
			Code:    "TIME_SEEDED",
			Message: "seed=0: optimizer results are not reproducible",
		})
	}
	if days := deref(cfg.Lookback.CorrelationDays); days > 0 && days < 60 {
		warnings = append(warnings, Warning{
			Code:    "SHORT_CORRELATION_WINDOW",
			Message: fmt.Sprintf("correlation_days=%d: fewer than 60 returns per pair", days),
		})
	}
	if deref(cfg.Selection.MinSectors) < 2 {
		warnings = append(warnings, Warning{
			Code:    "NARROW_SECTORS",
			Message: "min_sectors < 2: no sector breadth is enforced",
		})
	}
	if cfg.WalkForward.Benchmark == "" {
		warnings = append(warnings, Warning{
			Code:    "NO_BENCHMARK",
			Message: "walk_forward.benchmark is empty: alpha is not reported",
		})
	}
	if d := cfg.WalkForward.Sensitivity.Draws; d > 0 && d < 20 {
		warnings = append(warnings, Warning{
			Code:    "FEW_DRAWS",
			Message: fmt.Sprintf("sensitivity.draws=%d: percentiles are unreliable below 20 draws", d),
		})
	}
	if len(cfg.WalkForward.OffsetsMonths) < 3 {
		warnings = append(warnings, Warning{
			Code:    "FEW_PERIODS",
			Message: "fewer than 3 walk-forward periods: consistency cannot be judged",
		})
	}

	return warnings
}

func fieldError(fe validator.FieldError) ValidationError {
	// Namespace is "Config.selection.target_size"; drop the root type
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "required"
	case "gt":
		msg = "must be > " + fe.Param()
	case "gte":
		msg = "must be >= " + fe.Param()
	case "lt":
		msg = "must be < " + fe.Param()
	case "lte":
		msg = "must be <= " + fe.Param()
	case "min":
		msg = "must have at least " + fe.Param() + " entries"
	case "len":
		msg = "must have exactly " + fe.Param() + " entries"
	case "oneof":
		msg = "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		msg = "failed validation: " + fe.Tag()
	}
	return ValidationError{Field: field, Message: msg}
}
