package prices

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/pkg/config"
	"github.com/wonny/diversifier/pkg/httputil"
)

const quotePage = `<html><body>
<table class="nav"><tr><td>menu</td></tr></table>
<table class="type2">
<tr><th>날짜</th><th>종가</th><th>전일비</th><th>시가</th><th>고가</th><th>저가</th><th>거래량</th></tr>
<tr><td colspan="7"></td></tr>
%s
</table>
</body></html>`

func quoteRow(date string, close string, volume string) string {
	return fmt.Sprintf(`<tr><td><span>%s</span></td><td>%s</td><td>상승 100</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
		date, close, close, close, close, volume)
}

func TestParseQuoteTable(t *testing.T) {
	html := fmt.Sprintf(quotePage, quoteRow("2024.01.03", "71,200", "12,345,678")+quoteRow("2024.01.02", "70,900", "-"))

	bars, err := ParseQuoteTable(strings.NewReader(html))
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, 71200.0, bars[0].Close)
	assert.Equal(t, 71200.0, bars[0].Open)
	assert.Equal(t, int64(12345678), bars[0].Volume)
	assert.Equal(t, int64(0), bars[1].Volume, "dash means missing")

	_, err = ParseQuoteTable(strings.NewReader(`<table><tr><th>name</th></tr></table>`))
	assert.Error(t, err)

	_, err = ParseQuoteTable(strings.NewReader(fmt.Sprintf(quotePage, quoteRow("2024.01.03", "n/a", "1"))))
	assert.Error(t, err)
}

func TestHTMLSource_Pages(t *testing.T) {
	pages := map[string]string{
		"1": quoteRow("2024.01.03", "12", "100") + quoteRow("2024.01.02", "11", "100"),
		"2": quoteRow("2024.01.01", "10", "100"),
	}
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Query().Get("code") != "AAA" {
			_, _ = fmt.Fprintf(w, quotePage, "")
			return
		}
		rows, ok := pages[r.URL.Query().Get("page")]
		if !ok {
			rows = pages["2"] // sites repeat the last page
		}
		_, _ = fmt.Fprintf(w, quotePage, rows)
	}))
	defer server.Close()

	client := httputil.New(config.PriceSourceConfig{RequestsPerSec: 100, Timeout: time.Second}, nil)
	src, err := NewHTMLSource(client, server.URL+"/sise?code={ticker}&page={page}", 10)
	require.NoError(t, err)

	s, err := src.PriceSeries(context.Background(), "AAA")
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	closes := make([]float64, 0, s.Len())
	for _, b := range s.Bars {
		closes = append(closes, b.Close)
	}
	assert.Equal(t, []float64{10, 11, 12}, closes, "ascending by date")
	assert.Equal(t, int32(3), requests.Load(), "stops at the first page without new dates")

	asOf, err := src.PriceSeriesAsOf(context.Background(), "AAA", day(2))
	require.NoError(t, err)
	assert.Equal(t, 2, asOf.Len())

	_, err = src.PriceSeries(context.Background(), "ZZZ")
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	_, err = NewHTMLSource(client, server.URL+"/sise", 10)
	assert.Error(t, err)
}
