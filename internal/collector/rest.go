package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"SectorPulse/internal/model"
)

// RESTFetcher reads daily bars from a generic JSON bar API:
// GET {base}/api/v1/bars/daily?symbol=X&limit=N returning [{timestamp,open,...}].
type RESTFetcher struct {
	httpBase
	apiKey string
}

// NewRESTFetcher creates a fetcher for baseURL.
func NewRESTFetcher(baseURL, apiKey string, opts ...Option) *RESTFetcher {
	return &RESTFetcher{
		httpBase: newHTTPBase(baseURL, opts),
		apiKey:   apiKey,
	}
}

func (f *RESTFetcher) Name() string { return "rest" }

// restBar is the expected JSON shape of one bar.
type restBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

func (f *RESTFetcher) FetchDailyBars(ctx context.Context, symbol string, days int) ([]model.Bar, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rest rate limit: %w", err)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", fmt.Sprint(days))
	endpoint := fmt.Sprintf("%s/api/v1/bars/daily?%s", f.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bars %s: %v: %w", symbol, err, model.ErrProviderUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return []model.Bar{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch bars %s: status %d, body: %s: %w", symbol, resp.StatusCode, string(body), model.ErrProviderUnavailable)
	}

	var raw []restBar
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode bars: %v: %w", err, model.ErrMalformedResponse)
	}
	bars := make([]model.Bar, len(raw))
	for i, rb := range raw {
		bars[i] = model.Bar{
			Time:   time.Unix(rb.Timestamp, 0).UTC(),
			Open:   rb.Open,
			High:   rb.High,
			Low:    rb.Low,
			Close:  rb.Close,
			Volume: rb.Volume,
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}
