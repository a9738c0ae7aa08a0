package walkforward

import (
	"fmt"
	"sort"
	"time"

	"github.com/wonny/diversifier/internal/contracts"
)

// forwardWindow holds the out-of-sample daily returns after one cutoff
type forwardWindow struct {
	dates     []time.Time
	portfolio []float64
	benchmark []float64 // nil without a usable benchmark
	dropped   []string  // members without a price on or before the cutoff
}

// quoteTrack walks one ticker's bars forward from its last price on or before the cutoff
type quoteTrack struct {
	prices map[int64]float64
	prev   float64
}

func newQuoteTrack(s *contracts.PriceSeries, cutoff time.Time) (*quoteTrack, bool) {
	t := &quoteTrack{prices: make(map[int64]float64, s.Len())}
	for _, b := range s.Bars {
		p := b.Price()
		if p <= 0 {
			continue
		}
		if b.Date.After(cutoff) {
			t.prices[b.Date.Unix()] = p
		} else {
			t.prev = p
		}
	}
	return t, t.prev > 0
}

// next returns the return into day d, or false when the ticker is not quoted that day
func (t *quoteTrack) next(d time.Time) (float64, bool) {
	p, ok := t.prices[d.Unix()]
	if !ok {
		return 0, false
	}
	r := p/t.prev - 1
	t.prev = p
	return r, true
}

// measureForward applies fixed weights to the first `holding` trading days after cutoff.
// A non-zero end drops days after it; holding 0 means no day limit.
// The calendar is the union of member quote dates; a member missing on a day is left out
// and the remaining weights are re-normalised.
func measureForward(weights contracts.WeightVector, series map[string]*contracts.PriceSeries, benchmark *contracts.PriceSeries, cutoff, end time.Time, holding int) (*forwardWindow, error) {
	fw := &forwardWindow{}

	type member struct {
		weight float64
		track  *quoteTrack
	}
	members := make([]member, 0, len(weights.Tickers))
	calendar := make(map[int64]time.Time)
	for i, ticker := range weights.Tickers {
		s, ok := series[ticker]
		if !ok {
			fw.dropped = append(fw.dropped, ticker)
			continue
		}
		track, ok := newQuoteTrack(s, cutoff)
		if !ok {
			fw.dropped = append(fw.dropped, ticker)
			continue
		}
		members = append(members, member{weight: weights.Weights[i], track: track})
		for _, b := range s.Bars {
			if b.Date.After(cutoff) && b.Price() > 0 {
				calendar[b.Date.Unix()] = b.Date
			}
		}
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("no member priced on or before %s", cutoff.Format("2006-01-02"))
	}

	for _, d := range calendar {
		if !end.IsZero() && d.After(end) {
			continue
		}
		fw.dates = append(fw.dates, d)
	}
	sort.Slice(fw.dates, func(i, j int) bool { return fw.dates[i].Before(fw.dates[j]) })
	if holding > 0 && len(fw.dates) > holding {
		fw.dates = fw.dates[:holding]
	}

	var bench *quoteTrack
	if benchmark != nil {
		if t, ok := newQuoteTrack(benchmark, cutoff); ok {
			bench = t
			fw.benchmark = make([]float64, 0, len(fw.dates))
		}
	}

	fw.portfolio = make([]float64, 0, len(fw.dates))
	for _, d := range fw.dates {
		sum, weight := 0.0, 0.0
		for _, m := range members {
			if r, ok := m.track.next(d); ok {
				sum += m.weight * r
				weight += m.weight
			}
		}
		daily := 0.0
		if weight > 0 {
			daily = sum / weight
		}
		fw.portfolio = append(fw.portfolio, daily)

		if bench != nil {
			// an unquoted benchmark day carries its move into the next quote
			r, _ := bench.next(d)
			fw.benchmark = append(fw.benchmark, r)
		}
	}
	return fw, nil
}
