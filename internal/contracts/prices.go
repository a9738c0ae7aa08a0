package contracts

import (
	"fmt"
	"time"
)

// PriceBar is one daily observation of a ticker
type PriceBar struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close"` // 0 = not provided, Close is used
	Volume   int64     `json:"volume"`
}

// Price returns the adjusted close, falling back to close
func (b PriceBar) Price() float64 {
	if b.AdjClose > 0 {
		return b.AdjClose
	}
	return b.Close
}

// PriceSeries is the ordered daily history of one ticker
// ⭐ SSOT: 가격 데이터 전달 형식은 이 구조체만 사용
type PriceSeries struct {
	Ticker string     `json:"ticker"`
	Bars   []PriceBar `json:"bars"`
}

// Len returns the number of bars
func (s *PriceSeries) Len() int {
	return len(s.Bars)
}

// First returns the oldest bar
func (s *PriceSeries) First() (PriceBar, bool) {
	if len(s.Bars) == 0 {
		return PriceBar{}, false
	}
	return s.Bars[0], true
}

// Last returns the most recent bar
func (s *PriceSeries) Last() (PriceBar, bool) {
	if len(s.Bars) == 0 {
		return PriceBar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Validate checks that dates are strictly increasing (sorted, no duplicates)
func (s *PriceSeries) Validate() error {
	for i := 1; i < len(s.Bars); i++ {
		prev, cur := s.Bars[i-1].Date, s.Bars[i].Date
		if cur.Equal(prev) {
			return fmt.Errorf("%s: duplicate date %s", s.Ticker, cur.Format("2006-01-02"))
		}
		if cur.Before(prev) {
			return fmt.Errorf("%s: dates not ascending at %s", s.Ticker, cur.Format("2006-01-02"))
		}
	}
	return nil
}

// AsOf returns a copy truncated to bars dated on or before asOf.
// Bars must already be ascending.
func (s *PriceSeries) AsOf(asOf time.Time) *PriceSeries {
	n := 0
	for n < len(s.Bars) && !s.Bars[n].Date.After(asOf) {
		n++
	}
	out := &PriceSeries{Ticker: s.Ticker, Bars: make([]PriceBar, n)}
	copy(out.Bars, s.Bars[:n])
	return out
}

// Clone returns a deep copy
func (s *PriceSeries) Clone() *PriceSeries {
	out := &PriceSeries{Ticker: s.Ticker, Bars: make([]PriceBar, len(s.Bars))}
	copy(out.Bars, s.Bars)
	return out
}
