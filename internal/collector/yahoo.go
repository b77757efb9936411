package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"SectorPulse/internal/model"
)

// DefaultYahooURL is the Yahoo Finance chart API root.
const DefaultYahooURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements Fetcher using the Yahoo Finance public chart API.
type YahooFetcher struct {
	httpBase
	// Aliases resolves index names used in config to Yahoo symbols.
	Aliases map[string]string
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(opts ...Option) *YahooFetcher {
	return &YahooFetcher{
		httpBase: newHTTPBase(DefaultYahooURL, opts),
		Aliases: map[string]string{
			"TOPIX":  "1306.T",
			"NIKKEI": "^N225",
			"SPX":    "^GSPC",
		},
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) resolve(symbol string) string {
	if s, ok := f.Aliases[strings.ToUpper(symbol)]; ok {
		return s
	}
	return symbol
}

// chartResponse mirrors the parts of the v8 chart payload we read. Price
// arrays hold null for sessions without trades.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

type chartQuote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// value returns vals[i], or false for a null or missing entry.
func value(vals []*float64, i int) (float64, bool) {
	if i >= len(vals) || vals[i] == nil {
		return 0, false
	}
	return *vals[i], true
}

// bars converts the first quote series, skipping sessions without a close.
func (r *chartResult) bars() []model.Bar {
	if len(r.Indicators.Quote) == 0 {
		return []model.Bar{}
	}
	q := r.Indicators.Quote[0]
	out := make([]model.Bar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		c, ok := value(q.Close, i)
		if !ok || c == 0 {
			continue
		}
		b := model.Bar{Time: time.Unix(ts, 0).UTC(), Close: c}
		b.Open, _ = value(q.Open, i)
		b.High, _ = value(q.High, i)
		b.Low, _ = value(q.Low, i)
		b.Volume, _ = value(q.Volume, i)
		out = append(out, b)
	}
	return out
}

// yahooRange picks the smallest chart range covering days sessions.
func yahooRange(days int) string {
	switch {
	case days <= 20:
		return "1mo"
	case days <= 60:
		return "3mo"
	case days <= 120:
		return "6mo"
	case days <= 245:
		return "1y"
	case days <= 490:
		return "2y"
	default:
		return "5y"
	}
}

// FetchDailyBars returns up to days daily bars, oldest first.
func (f *YahooFetcher) FetchDailyBars(ctx context.Context, symbol string, days int) ([]model.Bar, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("yahoo rate limit: %w", err)
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%s",
		f.baseURL, url.PathEscape(f.resolve(symbol)), yahooRange(days))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch %s: %v: %w", symbol, err, model.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %v: %w", err, model.ErrProviderUnavailable)
	}
	if resp.StatusCode == http.StatusNotFound {
		return []model.Bar{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo %s: status %d: %w", symbol, resp.StatusCode, model.ErrProviderUnavailable)
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %v: %w", err, model.ErrMalformedResponse)
	}
	if chart.Chart.Error != nil || len(chart.Chart.Result) == 0 {
		// Unknown symbols come back as a chart error, not a 404.
		return []model.Bar{}, nil
	}

	bars := chart.Chart.Result[0].bars()
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if days > 0 && len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}
