package returns

import (
	"math"
	"sort"
	"time"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/pkg/logger"
)

// Options controls a single Build call
type Options struct {
	// Lookback keeps the trailing Lookback returns per ticker (Lookback+1 prices).
	// 0 keeps the full history.
	Lookback int
}

// Result is a built matrix plus the tickers rejected along the way
type Result struct {
	Matrix   *Matrix
	Excluded map[string]string // ticker -> reason
}

// Builder aligns price series onto a common calendar and differences them
type Builder struct {
	logger *logger.Logger
}

// NewBuilder creates a returns matrix builder
func NewBuilder(log *logger.Logger) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{logger: log.WithComponent("returns")}
}

type tickerReturns struct {
	ticker string
	dates  []time.Time
	values []float64
	first  time.Time // first observed (finite) return
	last   time.Time // last observed (finite) return
}

// Build derives daily simple returns and aligns them on the maximal common window.
// Invalid series are excluded individually; fewer than 2 usable tickers or an empty
// window fails with an InsufficientDataError.
func (b *Builder) Build(series []*contracts.PriceSeries, opts Options) (*Result, error) {
	result := &Result{Excluded: make(map[string]string)}

	seen := make(map[string]bool, len(series))
	usable := make([]tickerReturns, 0, len(series))

	for _, s := range series {
		if s == nil {
			continue
		}
		if seen[s.Ticker] {
			result.Excluded[s.Ticker] = "duplicate ticker in input"
			continue
		}
		seen[s.Ticker] = true

		tr, reason := differentiate(s, opts.Lookback)
		if reason != "" {
			result.Excluded[s.Ticker] = reason
			continue
		}
		usable = append(usable, tr)
	}

	if len(result.Excluded) > 0 {
		b.logger.WithFields(map[string]interface{}{
			"excluded": len(result.Excluded),
			"usable":   len(usable),
		}).Warn("Tickers excluded from returns matrix")
	}

	if len(usable) < 2 {
		return result, &contracts.InsufficientDataError{
			Op:      "returns",
			Tickers: excludedTickers(result.Excluded),
			Detail:  "fewer than 2 tickers with valid returns",
		}
	}

	// maximal common window: latest first date .. earliest last date
	start, end := usable[0].first, usable[0].last
	for _, tr := range usable[1:] {
		if tr.first.After(start) {
			start = tr.first
		}
		if tr.last.Before(end) {
			end = tr.last
		}
	}
	if start.After(end) {
		return result, &contracts.InsufficientDataError{
			Op:     "returns",
			Detail: "empty overlap window " + start.Format("2006-01-02") + " > " + end.Format("2006-01-02"),
		}
	}

	// outer join on date inside the window
	rowOf := make(map[int64]int)
	var dates []time.Time
	for _, tr := range usable {
		for _, d := range tr.dates {
			if d.Before(start) || d.After(end) {
				continue
			}
			if _, ok := rowOf[d.Unix()]; !ok {
				rowOf[d.Unix()] = 0
				dates = append(dates, d)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	for i, d := range dates {
		rowOf[d.Unix()] = i
	}

	tickers := make([]string, len(usable))
	values := make([][]float64, len(dates))
	for i := range values {
		values[i] = make([]float64, len(usable))
		for j := range values[i] {
			values[i][j] = Missing()
		}
	}
	for j, tr := range usable {
		tickers[j] = tr.ticker
		for k, d := range tr.dates {
			if i, ok := rowOf[d.Unix()]; ok && !d.Before(start) && !d.After(end) {
				values[i][j] = tr.values[k]
			}
		}
	}

	// rows where nothing was observed carry no information
	keptDates := dates[:0:0]
	keptValues := values[:0:0]
	for i, row := range values {
		for _, v := range row {
			if !IsMissing(v) {
				keptDates = append(keptDates, dates[i])
				keptValues = append(keptValues, row)
				break
			}
		}
	}

	m, err := NewMatrix(keptDates, tickers, keptValues)
	if err != nil {
		return result, err
	}
	result.Matrix = m

	b.logger.WithFields(map[string]interface{}{
		"tickers": m.Cols(),
		"rows":    m.Rows(),
		"from":    start.Format("2006-01-02"),
		"to":      end.Format("2006-01-02"),
	}).Debug("Returns matrix built")

	return result, nil
}

// differentiate turns one price series into dated returns.
// A non-empty reason means the ticker is rejected.
func differentiate(s *contracts.PriceSeries, lookback int) (tickerReturns, string) {
	bars := make([]contracts.PriceBar, 0, len(s.Bars))
	for _, bar := range s.Bars {
		if !bar.Date.IsZero() {
			bars = append(bars, bar)
		}
	}

	clean := &contracts.PriceSeries{Ticker: s.Ticker, Bars: bars}
	if err := clean.Validate(); err != nil {
		return tickerReturns{}, "invalid series: " + err.Error()
	}

	// K returns need K+1 prices
	if lookback > 0 && len(bars) > lookback+1 {
		bars = bars[len(bars)-lookback-1:]
	}
	if len(bars) < 2 {
		return tickerReturns{}, "fewer than 2 prices"
	}

	tr := tickerReturns{
		ticker: s.Ticker,
		dates:  make([]time.Time, 0, len(bars)-1),
		values: make([]float64, 0, len(bars)-1),
	}
	for t := 1; t < len(bars); t++ {
		prev, cur := bars[t-1].Price(), bars[t].Price()
		r := Missing()
		if validPrice(prev) && validPrice(cur) {
			r = cur/prev - 1
			if tr.first.IsZero() {
				tr.first = bars[t].Date
			}
			tr.last = bars[t].Date
		}
		tr.dates = append(tr.dates, bars[t].Date)
		tr.values = append(tr.values, r)
	}

	if tr.first.IsZero() {
		return tickerReturns{}, "no valid returns"
	}
	return tr, ""
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

func excludedTickers(excluded map[string]string) []string {
	out := make([]string, 0, len(excluded))
	for t := range excluded {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
