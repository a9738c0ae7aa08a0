package prices

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/pkg/httputil"
)

// HTTPSource downloads daily CSV history from a vendor endpoint.
// The URL template must contain {ticker}.
type HTTPSource struct {
	client      *httputil.Client
	urlTemplate string
}

// NewHTTPSource creates an HTTP-backed provider
func NewHTTPSource(client *httputil.Client, urlTemplate string) (*HTTPSource, error) {
	if !strings.Contains(urlTemplate, "{ticker}") {
		return nil, fmt.Errorf("url template %q has no {ticker} placeholder", urlTemplate)
	}
	return &HTTPSource{client: client, urlTemplate: urlTemplate}, nil
}

func (s *HTTPSource) url(ticker string) string {
	return strings.ReplaceAll(s.urlTemplate, "{ticker}", url.PathEscape(ticker))
}

// PriceSeries downloads and parses the full history
func (s *HTTPSource) PriceSeries(ctx context.Context, ticker string) (*contracts.PriceSeries, error) {
	body, err := s.client.GetBody(ctx, s.url(ticker))
	if err != nil {
		var statusErr *httputil.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", ticker, contracts.ErrNotFound)
		}
		return nil, fmt.Errorf("download %s: %w", ticker, err)
	}

	series, err := ParseCSV(bytes.NewReader(body), ticker)
	if err != nil {
		return nil, err
	}
	if series.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, contracts.ErrNotFound)
	}
	return series, nil
}

// PriceSeriesAsOf downloads the full history and truncates it locally
func (s *HTTPSource) PriceSeriesAsOf(ctx context.Context, ticker string, asOf time.Time) (*contracts.PriceSeries, error) {
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
