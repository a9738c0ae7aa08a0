package prices

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/pkg/logger"
)

// AsOfView is the data boundary of a historical selection.
// Every read goes through PriceSeriesAsOf(cutoff) and every returned bar is
// checked against the cutoff, so a provider that leaks future bars is caught
// rather than trusted.
// ⭐ SSOT: 워크포워드 SELECT 단계의 가격 조회는 이 뷰를 통해서만
type AsOfView struct {
	provider contracts.PriceProvider
	cutoff   time.Time
	logger   *logger.Logger

	mu          sync.Mutex
	maxObserved time.Time
	reads       int
	violations  int
	onViolation func(*contracts.TemporalLeakageError)
}

// NewAsOfView wraps provider so that nothing after cutoff is visible
func NewAsOfView(provider contracts.PriceProvider, cutoff time.Time, log *logger.Logger) *AsOfView {
	if log == nil {
		log = logger.Nop()
	}
	return &AsOfView{
		provider: provider,
		cutoff:   cutoff,
		logger:   log.WithComponent("asof").WithField("cutoff", cutoff.Format(DateLayout)),
	}
}

// OnViolation registers a hook called for every leakage detected (metrics)
func (v *AsOfView) OnViolation(fn func(*contracts.TemporalLeakageError)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onViolation = fn
}

// Cutoff returns the boundary date
func (v *AsOfView) Cutoff() time.Time {
	return v.cutoff
}

// PriceSeries returns history truncated to the cutoff
func (v *AsOfView) PriceSeries(ctx context.Context, ticker string) (*contracts.PriceSeries, error) {
	return v.PriceSeriesAsOf(ctx, ticker, v.cutoff)
}

// PriceSeriesAsOf never looks past the cutoff even when asOf is later
func (v *AsOfView) PriceSeriesAsOf(ctx context.Context, ticker string, asOf time.Time) (*contracts.PriceSeries, error) {
	if asOf.After(v.cutoff) {
		asOf = v.cutoff
	}
	ps, err := v.provider.PriceSeriesAsOf(ctx, ticker, asOf)
	if err != nil {
		return nil, err
	}

	last, ok := ps.Last()
	latest := time.Time{}
	for _, b := range ps.Bars {
		if b.Date.After(latest) {
			latest = b.Date
		}
	}

	v.mu.Lock()
	v.reads++
	if ok && latest.After(v.maxObserved) {
		v.maxObserved = latest
	}
	if !latest.After(v.cutoff) {
		v.mu.Unlock()
		return ps, nil
	}
	v.violations++
	hook := v.onViolation
	v.mu.Unlock()

	leak := &contracts.TemporalLeakageError{Ticker: ticker, AsOf: v.cutoff, Observed: latest}
	v.logger.WithFields(map[string]interface{}{
		"ticker":   ticker,
		"observed": latest.Format(DateLayout),
		"last_bar": last.Date.Format(DateLayout),
	}).Error("Temporal leakage: provider returned data after cutoff")
	if hook != nil {
		hook(leak)
	}
	return nil, leak
}

// MaxObserved is the latest bar date ever returned through the view
func (v *AsOfView) MaxObserved() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.maxObserved
}

// Reads is the number of series served
func (v *AsOfView) Reads() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reads
}

// Violations is the number of leaks detected
func (v *AsOfView) Violations() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.violations
}
