package contracts

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by providers for unknown tickers
	ErrNotFound = errors.New("price series not found")

	// ErrInsufficientData means too few overlapping observations for an operation
	ErrInsufficientData = errors.New("insufficient data")

	// ErrConstraintUnsatisfiable means selection could not reach its target size
	ErrConstraintUnsatisfiable = errors.New("constraint unsatisfiable")

	// ErrTemporalLeakage means data past an as-of cutoff reached the selection phase
	ErrTemporalLeakage = errors.New("temporal leakage")
)

// InsufficientDataError carries which operation failed and on what
type InsufficientDataError struct {
	Op      string
	Tickers []string
	Detail  string
}

func (e *InsufficientDataError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": insufficient data")
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.Tickers) > 0 {
		fmt.Fprintf(&b, " (tickers: %s)", strings.Join(e.Tickers, ","))
	}
	return b.String()
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// TemporalLeakageError is a contract violation: a bar after AsOf was served during selection.
// Never recovered.
type TemporalLeakageError struct {
	Ticker   string
	AsOf     time.Time
	Observed time.Time
}

func (e *TemporalLeakageError) Error() string {
	return fmt.Sprintf("temporal leakage: %s served %s after cutoff %s",
		e.Ticker, e.Observed.Format("2006-01-02"), e.AsOf.Format("2006-01-02"))
}

func (e *TemporalLeakageError) Unwrap() error { return ErrTemporalLeakage }
