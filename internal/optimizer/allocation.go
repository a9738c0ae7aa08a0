package optimizer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wonny/diversifier/internal/contracts"
)

// ErrInvalidAmount is returned when the investment amount is not positive
var ErrInvalidAmount = errors.New("investment amount must be positive")

// AllocationLine is the whole-share purchase for one asset
type AllocationLine struct {
	Ticker   string          `json:"ticker"`
	Weight   float64         `json:"weight"`
	Price    decimal.Decimal `json:"price"`
	Target   decimal.Decimal `json:"target"`   // weight × amount
	Shares   int64           `json:"shares"`   // floor(target / price)
	Invested decimal.Decimal `json:"invested"` // shares × price
	Leftover decimal.Decimal `json:"leftover"` // target - invested
}

// Allocation converts a weight vector into whole shares
type Allocation struct {
	Weights       string            `json:"weights"`
	Amount        decimal.Decimal   `json:"amount"`
	Lines         []AllocationLine  `json:"lines"`
	TotalInvested decimal.Decimal   `json:"total_invested"`
	CashRemaining decimal.Decimal   `json:"cash_remaining"`
	Efficiency    float64           `json:"efficiency"` // invested / amount
	Skipped       map[string]string `json:"skipped,omitempty"`
	Warnings      []string          `json:"warnings,omitempty"`
}

// Purchased returns lines that buy at least one share
func (a *Allocation) Purchased() []AllocationLine {
	out := make([]AllocationLine, 0, len(a.Lines))
	for _, l := range a.Lines {
		if l.Shares > 0 {
			out = append(out, l)
		}
	}
	return out
}

// Allocate rounds each asset's dollar target down to whole shares at the latest price.
// Assets without a usable price are skipped; their target stays in cash.
// ⭐ SSOT: 금액 계산은 decimal로만
func Allocate(amount float64, weights contracts.WeightVector, prices map[string]float64) (*Allocation, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	if err := weights.Validate(1e-6); err != nil {
		return nil, fmt.Errorf("allocate: %w", err)
	}

	total := decimal.NewFromFloat(amount)
	a := &Allocation{
		Weights:       weights.Name,
		Amount:        total,
		TotalInvested: decimal.Zero,
		Skipped:       make(map[string]string),
	}

	for i, ticker := range weights.Tickers {
		w := weights.Weights[i]
		price, ok := prices[ticker]
		if !ok {
			a.Skipped[ticker] = "no price"
			a.Warnings = append(a.Warnings, fmt.Sprintf("%s: no price, %.2f%% left in cash", ticker, w*100))
			continue
		}
		if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
			a.Skipped[ticker] = fmt.Sprintf("invalid price %v", price)
			a.Warnings = append(a.Warnings, fmt.Sprintf("%s: invalid price %v", ticker, price))
			continue
		}

		p := decimal.NewFromFloat(price)
		target := total.Mul(decimal.NewFromFloat(w))
		shares := target.Div(p).Floor()
		invested := shares.Mul(p)

		a.Lines = append(a.Lines, AllocationLine{
			Ticker:   ticker,
			Weight:   w,
			Price:    p,
			Target:   target,
			Shares:   shares.IntPart(),
			Invested: invested,
			Leftover: target.Sub(invested),
		})
		a.TotalInvested = a.TotalInvested.Add(invested)
	}

	sort.SliceStable(a.Lines, func(i, j int) bool {
		return a.Lines[i].Weight > a.Lines[j].Weight
	})

	a.CashRemaining = total.Sub(a.TotalInvested)
	a.Efficiency = a.TotalInvested.Div(total).InexactFloat64()
	if len(a.Skipped) == 0 {
		a.Skipped = nil
	}
	return a, nil
}
