package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"SectorPulse/internal/model"
)

const chartBody = `{"chart":{"result":[{"timestamp":[1704412800,1704326400,1704499200],
"indicators":{"quote":[{"open":[101,100,null],"high":[103,102,null],"low":[99,98,null],
"close":[102,101,null],"volume":[2000,1000,null]}]}}],"error":null}}`

func TestYahooFetcher_FetchDailyBars(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	f := NewYahooFetcher(WithBaseURL(srv.URL), WithRateLimit(0))
	bars, err := f.FetchDailyBars(context.Background(), "7203.T", 100)
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/7203.T", gotPath)
	assert.Contains(t, gotQuery, "range=6mo")
	require.Len(t, bars, 2, "null bar dropped")
	assert.True(t, bars[0].Time.Before(bars[1].Time))
	assert.Equal(t, 101.0, bars[0].Close)
	assert.Equal(t, 2000.0, bars[1].Volume)
	assert.Equal(t, "2024-01-05", bars[1].Time.Format("2006-01-02"))
}

func TestYahooFetcher_AliasAndTrim(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	f := NewYahooFetcher(WithBaseURL(srv.URL), WithRateLimit(0))
	bars, err := f.FetchDailyBars(context.Background(), "NIKKEI", 1)
	require.NoError(t, err)
	assert.Equal(t, "/v8/finance/chart/^N225", gotPath)
	require.Len(t, bars, 1)
	assert.Equal(t, 102.0, bars[0].Close)
}

func TestYahooFetcher_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		empty   bool
	}{
		{"server error", http.StatusInternalServerError, "oops", model.ErrProviderUnavailable, false},
		{"bad json", http.StatusOK, "{", model.ErrMalformedResponse, false},
		{"not found is empty", http.StatusNotFound, "", nil, true},
		{"api error is empty", http.StatusOK, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			bars, err := NewYahooFetcher(WithBaseURL(srv.URL)).FetchDailyBars(context.Background(), "X", 10)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, bars)
			assert.Empty(t, bars)
		})
	}
}

func TestRESTFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/bars/daily", r.URL.Path)
		assert.Equal(t, "6758.T", r.URL.Query().Get("symbol"))
		assert.Equal(t, "120", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"timestamp":1704412800,"open":1,"high":2,"low":0.5,"close":1.5,"volume":10},
			{"timestamp":1704326400,"open":1,"high":2,"low":0.5,"close":1.2,"volume":10}]`))
	}))
	defer srv.Close()

	f := NewRESTFetcher(srv.URL, "secret", WithRateLimit(100))
	bars, err := f.FetchDailyBars(context.Background(), "6758.T", 120)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 1.2, bars[0].Close)
	assert.Equal(t, "rest", f.Name())
}

func TestRateLimiterHonoursContext(t *testing.T) {
	f := NewRESTFetcher("http://127.0.0.1:0", "", WithRateLimit(0.001))
	// the first request consumes the single token
	f.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.FetchDailyBars(ctx, "X", 1)
	assert.Error(t, err)
}

func TestFetchQuotes(t *testing.T) {
	m := &MockFetcher{
		Bars: map[string][]model.Bar{
			"^GSPC": {{Close: 100}, {Close: 102}},
			"JPY=X": {{Close: 150}},
		},
		Errs: map[string]error{"^VIX": errors.New("boom")},
	}
	quotes := FetchQuotes(context.Background(), m, map[string]string{
		"^GSPC": "S&P500",
		"JPY=X": "USD/JPY",
		"^VIX":  "VIX",
	}, zap.NewNop())

	require.Len(t, quotes, 1)
	q := quotes["S&P500"]
	assert.Equal(t, 102.0, q.Price)
	assert.InDelta(t, 2.0, q.ChangePct, 1e-9)
}

func TestMockFetcherGenerates(t *testing.T) {
	m := &MockFetcher{Price: 1000}
	bars, err := m.FetchDailyBars(context.Background(), "ANY", 80)
	require.NoError(t, err)
	assert.Len(t, bars, 80)
	assert.True(t, bars[0].Time.Before(bars[79].Time))
}
