package prices

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/diversifier/internal/contracts"
)

// DateLayout is the date format of price and universe files
const DateLayout = "2006-01-02"

var priceColumns = []string{"date", "open", "high", "low", "close", "adj_close", "volume"}

// ParseCSV reads one ticker's history with header
// date,open,high,low,close,adj_close,volume. adj_close and volume may be empty.
// Rows are sorted by date; duplicate dates are kept for the caller to reject.
func ParseCSV(r io.Reader, ticker string) (*contracts.PriceSeries, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", ticker, err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"date", "close"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("%s: missing %q column", ticker, required)
		}
	}

	series := &contracts.PriceSeries{Ticker: ticker}
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", ticker, line, err)
		}
		bar, err := parseBar(rec, col)
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", ticker, line, err)
		}
		series.Bars = append(series.Bars, bar)
	}

	sort.SliceStable(series.Bars, func(i, j int) bool {
		return series.Bars[i].Date.Before(series.Bars[j].Date)
	})
	return series, nil
}

func parseBar(rec []string, col map[string]int) (contracts.PriceBar, error) {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	num := func(name string) (float64, error) {
		v := field(name)
		if v == "" || strings.EqualFold(v, "null") || strings.EqualFold(v, "na") {
			return 0, nil
		}
		return strconv.ParseFloat(v, 64)
	}

	var bar contracts.PriceBar
	date, err := time.Parse(DateLayout, field("date"))
	if err != nil {
		return bar, fmt.Errorf("date: %w", err)
	}
	bar.Date = date

	targets := []*float64{&bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.AdjClose}
	for i, name := range priceColumns[1:6] {
		v, err := num(name)
		if err != nil {
			return bar, fmt.Errorf("%s: %w", name, err)
		}
		*targets[i] = v
	}

	if v := field("volume"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return bar, fmt.Errorf("volume: %w", err)
		}
		bar.Volume = int64(f)
	}
	return bar, nil
}

// WriteCSV writes series in the format ParseCSV reads
func WriteCSV(w io.Writer, series *contracts.PriceSeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(priceColumns); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, b := range series.Bars {
		rec := []string{
			b.Date.Format(DateLayout),
			f(b.Open), f(b.High), f(b.Low), f(b.Close), f(b.AdjClose),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// LoadCSVDir loads every <TICKER>.csv in dir into a MemoryStore.
// Files that fail to parse are returned in skipped with the reason.
func LoadCSVDir(dir string) (*MemoryStore, map[string]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, nil, fmt.Errorf("list %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("no price files in %s", dir)
	}

	store := NewMemoryStore()
	skipped := make(map[string]string)
	for _, path := range paths {
		ticker := strings.ToUpper(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		series, err := readCSVFile(path, ticker)
		if err != nil {
			skipped[ticker] = err.Error()
			continue
		}
		store.Put(series)
	}
	return store, skipped, nil
}

func readCSVFile(path, ticker string) (*contracts.PriceSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCSV(f, ticker)
}

// SaveCSVDir writes each series to <dir>/<TICKER>.csv
func SaveCSVDir(dir string, series []*contracts.PriceSeries) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, s := range series {
		f, err := os.Create(filepath.Join(dir, s.Ticker+".csv"))
		if err != nil {
			return err
		}
		werr := WriteCSV(f, s)
		cerr := f.Close()
		if werr != nil {
			return fmt.Errorf("%s: %w", s.Ticker, werr)
		}
		if cerr != nil {
			return cerr
		}
	}
	return nil
}

// ParseUniverse reads ticker,sector rows (header required)
func ParseUniverse(r io.Reader) ([]contracts.Listing, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read universe: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("universe is empty")
	}

	tickerCol, sectorCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "ticker", "symbol":
			tickerCol = i
		case "sector":
			sectorCol = i
		}
	}
	if tickerCol < 0 || sectorCol < 0 {
		return nil, fmt.Errorf("universe header needs ticker and sector columns")
	}

	out := make([]contracts.Listing, 0, len(rows)-1)
	for _, rec := range rows[1:] {
		ticker := strings.ToUpper(strings.TrimSpace(rec[tickerCol]))
		if ticker == "" {
			continue
		}
		out = append(out, contracts.Listing{Ticker: ticker, Sector: strings.TrimSpace(rec[sectorCol])})
	}
	return out, nil
}

// LoadUniverse reads a universe file
func LoadUniverse(path string) ([]contracts.Listing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseUniverse(f)
}

// WriteUniverse writes listings in the format ParseUniverse reads
func WriteUniverse(w io.Writer, universe []contracts.Listing) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ticker", "sector"}); err != nil {
		return err
	}
	for _, l := range universe {
		if err := cw.Write([]string{l.Ticker, l.Sector}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
