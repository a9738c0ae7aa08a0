package prices

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/pkg/httputil"
)

// headerAliases maps quote-table headers onto priceColumns
var headerAliases = map[string]string{
	"date": "date", "날짜": "date",
	"open": "open", "시가": "open",
	"high": "high", "고가": "high",
	"low": "low", "저가": "low",
	"close": "close", "종가": "close",
	"adj close": "adj_close", "adj_close": "adj_close", "수정종가": "adj_close",
	"volume": "volume", "거래량": "volume",
}

// HTMLSource scrapes daily history from paginated quote-page tables.
// The URL template must contain {ticker}; with {page} pages 1..maxPages are read
// until a page brings no new dates.
type HTMLSource struct {
	client      *httputil.Client
	urlTemplate string
	maxPages    int
}

// NewHTMLSource creates a quote-page provider
func NewHTMLSource(client *httputil.Client, urlTemplate string, maxPages int) (*HTMLSource, error) {
	if !strings.Contains(urlTemplate, "{ticker}") {
		return nil, fmt.Errorf("url template %q has no {ticker} placeholder", urlTemplate)
	}
	if maxPages < 1 || !strings.Contains(urlTemplate, "{page}") {
		maxPages = 1
	}
	return &HTMLSource{client: client, urlTemplate: urlTemplate, maxPages: maxPages}, nil
}

func (s *HTMLSource) url(ticker string, page int) string {
	u := strings.ReplaceAll(s.urlTemplate, "{ticker}", url.PathEscape(ticker))
	return strings.ReplaceAll(u, "{page}", strconv.Itoa(page))
}

// PriceSeries reads every page and merges the rows by date
func (s *HTMLSource) PriceSeries(ctx context.Context, ticker string) (*contracts.PriceSeries, error) {
	byDate := make(map[time.Time]contracts.PriceBar)

	for page := 1; page <= s.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := s.client.GetBody(ctx, s.url(ticker, page))
		if err != nil {
			var statusErr *httputil.StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
				break
			}
			return nil, fmt.Errorf("download %s page %d: %w", ticker, page, err)
		}

		bars, err := ParseQuoteTable(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%s page %d: %w", ticker, page, err)
		}

		added := 0
		for _, b := range bars {
			if _, seen := byDate[b.Date]; !seen {
				byDate[b.Date] = b
				added++
			}
		}
		// past the last page sites repeat it or return an empty table
		if added == 0 {
			break
		}
	}

	if len(byDate) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, contracts.ErrNotFound)
	}

	series := &contracts.PriceSeries{Ticker: ticker, Bars: make([]contracts.PriceBar, 0, len(byDate))}
	for _, b := range byDate {
		series.Bars = append(series.Bars, b)
	}
	sort.Slice(series.Bars, func(i, j int) bool {
		return series.Bars[i].Date.Before(series.Bars[j].Date)
	})
	return series, nil
}

// PriceSeriesAsOf reads the full history and truncates it locally
func (s *HTMLSource) PriceSeriesAsOf(ctx context.Context, ticker string, asOf time.Time) (*contracts.PriceSeries, error) {
	series, err := s.PriceSeries(ctx, ticker)
	if err != nil {
		return nil, err
	}
	out := series.AsOf(asOf)
	if out.Len() == 0 {
		return nil, notFoundAsOf(ticker, asOf)
	}
	return out, nil
}

// ParseQuoteTable extracts bars from the first table whose header row names a
// date and a close column. Spacer rows and rows without a date are skipped.
func ParseQuoteTable(r io.Reader) ([]contracts.PriceBar, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var (
		bars   []contracts.PriceBar
		found  bool
		rowErr error
	)
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		col := tableColumns(table)
		if col == nil {
			return true
		}
		found = true

		table.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
			cells := row.Find("td")
			if cells.Length() == 0 {
				return true
			}
			rec := make([]string, cells.Length())
			cells.Each(func(i int, cell *goquery.Selection) {
				rec[i] = cleanCell(cell.Text())
			})
			if i, ok := col["date"]; !ok || i >= len(rec) || rec[i] == "" {
				return true
			}
			rec[col["date"]] = strings.ReplaceAll(rec[col["date"]], ".", "-")

			bar, err := parseBar(rec, col)
			if err != nil {
				rowErr = err
				return false
			}
			bars = append(bars, bar)
			return true
		})
		return false
	})

	if rowErr != nil {
		return nil, rowErr
	}
	if !found {
		return nil, fmt.Errorf("no table with date and close columns")
	}
	return bars, nil
}

// tableColumns maps column names to cell indexes, or nil when the table is not a quote table
func tableColumns(table *goquery.Selection) map[string]int {
	col := make(map[string]int)
	table.Find("tr").First().Find("th").Each(func(i int, th *goquery.Selection) {
		name := strings.ToLower(strings.TrimSpace(th.Text()))
		if alias, ok := headerAliases[name]; ok {
			col[alias] = i
		}
	})
	if _, ok := col["date"]; !ok {
		return nil
	}
	if _, ok := col["close"]; !ok {
		return nil
	}
	return col
}

// cleanCell strips thousands separators and the whitespace quote pages pad cells with
func cleanCell(s string) string {
	s = strings.Join(strings.Fields(s), "")
	s = strings.ReplaceAll(s, ",", "")
	if s == "-" {
		return ""
	}
	return s
}
