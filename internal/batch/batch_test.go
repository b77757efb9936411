package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SectorPulse/internal/collector"
	"SectorPulse/internal/model"
	"SectorPulse/internal/notifier"
	"SectorPulse/internal/recorder"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// dipBars is a long steady uptrend followed by a six session pullback, which
// leaves RSI near 31 with close still above SMA75.
func dipBars() []model.Bar {
	var bars []model.Bar
	price := 1000.0
	for i := 0; i < 126; i++ {
		if i < 120 {
			price += 5
		} else {
			price -= 20
		}
		bars = append(bars, model.Bar{
			Time:   day0.AddDate(0, 0, i),
			Open:   price,
			High:   price * 1.005,
			Low:    price * 0.995,
			Close:  price,
			Volume: 1000,
		})
	}
	return bars
}

type fakeSentiment struct {
	calls int
	s     *model.MacroSentiment
}

func (f *fakeSentiment) Snapshot(context.Context, time.Time, map[string]model.MarketQuote) *model.MacroSentiment {
	f.calls++
	return f.s
}

type captureNotifier struct {
	mu   sync.Mutex
	msgs []notifier.Message
	err  error
}

func (c *captureNotifier) Name() string { return "capture" }

func (c *captureNotifier) Send(_ context.Context, m notifier.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return c.err
}

type capturePublisher struct {
	runID   string
	results []model.AnalysisResult
}

func (p *capturePublisher) PublishResults(_ context.Context, runID string, results []model.AnalysisResult) (int, error) {
	p.runID = runID
	n := 0
	for _, r := range results {
		if r.Signal.Actionable() {
			n++
		}
	}
	p.results = results
	return n, nil
}

func (p *capturePublisher) Close() error { return nil }

func testUniverse() []model.Ticker {
	return []model.Ticker{
		{Symbol: "8306.T", Name: "MUFG", Sector: "Banks"},
		{Symbol: "7203.T", Name: "Toyota", Sector: "Transportation Equipment"},
		{Symbol: "9999.T", Name: "Newly Listed", Sector: "Services"},
		{Symbol: "6758.T", Name: "Sony", Sector: "Electric Appliances"},
	}
}

func testFetcher() *collector.MockFetcher {
	return &collector.MockFetcher{
		Price: 1000,
		Bars: map[string][]model.Bar{
			"7203.T": dipBars(),
			"9999.T": dipBars()[:40],
		},
		Errs: map[string]error{
			"6758.T": errors.New("provider timeout"),
		},
	}
}

func TestRunContainsFailuresAndSkipsShortHistory(t *testing.T) {
	r := NewRunner(Deps{Fetcher: testFetcher()}, Options{Workers: 2, ReferenceSymbol: "^N225"}, nil)

	report, err := r.Run(context.Background(), testUniverse(), model.NeutralSentiment("test"))
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, "7203.T", report.Results[0].Ticker)
	assert.Equal(t, "8306.T", report.Results[1].Ticker)

	require.Contains(t, report.Skipped, "9999.T")
	assert.Contains(t, report.Skipped["9999.T"], "insufficient")

	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Error(), "6758.T")
}

func TestRunDipBuy(t *testing.T) {
	r := NewRunner(Deps{Fetcher: testFetcher()}, Options{ReferenceSymbol: ""}, nil)

	report, err := r.Run(context.Background(), testUniverse()[1:2], model.NeutralSentiment("test"))
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	res := report.Results[0]
	assert.Equal(t, model.SignalBuy, res.Signal)
	assert.NotEmpty(t, res.TrendStrength)
	assert.Equal(t, "自動車・輸送機", res.Sector)
	assert.Equal(t, "Toyota", res.Name)
	assert.Less(t, res.RSI14, 35.0)
	assert.Greater(t, res.UpsideRatio, 2.0)
	assert.Equal(t, day0.AddDate(0, 0, 125), res.Date)
}

func TestRunMacroSuppression(t *testing.T) {
	r := NewRunner(Deps{Fetcher: testFetcher()}, Options{}, nil)
	sent := &model.MacroSentiment{SectorScores: map[string]int{"自動車・輸送機": -2}}

	report, err := r.Run(context.Background(), testUniverse()[1:2], sent)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, model.SignalWait, report.Results[0].Signal)
	assert.Equal(t, -2, report.Results[0].MacroScore)
	assert.Contains(t, report.Results[0].Reason, "macro negative")
}

func TestRunCancelledReturnsSubset(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(Deps{Fetcher: testFetcher()}, Options{}, nil)

	report, err := r.Run(ctx, testUniverse(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, report.Results)
}

func TestRunDailyPersistsNotifiesPublishes(t *testing.T) {
	store, err := recorder.NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	defer store.Close()

	sent := &fakeSentiment{s: &model.MacroSentiment{
		SectorScores: map[string]int{"自動車・輸送機": 1},
		Summary:      "calm",
	}}
	notif := &captureNotifier{}
	pub := &capturePublisher{}
	r := NewRunner(Deps{
		Fetcher:   testFetcher(),
		Sentiment: sent,
		Store:     store,
		Notifier:  notif,
		Publisher: pub,
		Universe:  func(context.Context) ([]model.Ticker, error) { return testUniverse(), nil },
	}, Options{GlobalSymbols: map[string]string{"^N225": "Nikkei 225"}}, nil)

	report, err := r.RunDaily(context.Background(), time.Time{})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, sent.calls)
	assert.Empty(t, report.Warnings)

	stored, err := store.QueryLatest(context.Background(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, stored)

	macro, _, err := store.LatestMacro(context.Background())
	require.NoError(t, err)
	require.NotNil(t, macro)
	assert.Equal(t, "calm", macro.Summary)

	require.Len(t, notif.msgs, 1)
	for _, res := range notif.msgs[0].Results {
		assert.NotEqual(t, model.SignalWait, res.Signal)
	}
	assert.Equal(t, report.RunID, pub.runID)
	assert.Equal(t, len(report.Actionable()), report.Published)
}

func TestRunDailyNotifyFailureIsWarning(t *testing.T) {
	r := NewRunner(Deps{
		Fetcher:  testFetcher(),
		Notifier: &captureNotifier{err: errors.New("webhook down")},
		Universe: func(context.Context) ([]model.Ticker, error) { return testUniverse()[:1], nil },
	}, Options{}, nil)

	report, err := r.RunDaily(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "webhook down")
}

func TestRunDailyAsOfTrimsBars(t *testing.T) {
	r := NewRunner(Deps{
		Fetcher:  testFetcher(),
		Universe: func(context.Context) ([]model.Ticker, error) { return testUniverse()[1:2], nil },
	}, Options{}, nil)

	asOf := day0.AddDate(0, 0, 100)
	report, err := r.RunDaily(context.Background(), asOf)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, asOf, report.Results[0].Date)
}

func TestRunDailyUniverseError(t *testing.T) {
	r := NewRunner(Deps{
		Fetcher:  testFetcher(),
		Universe: func(context.Context) ([]model.Ticker, error) { return nil, errors.New("missing csv") },
	}, Options{}, nil)

	_, err := r.RunDaily(context.Background(), time.Time{})
	assert.Error(t, err)
	assert.False(t, r.Running())
}

func TestRunDailyRejectsOverlap(t *testing.T) {
	r := NewRunner(Deps{Fetcher: testFetcher()}, Options{}, nil)
	r.running.Store(true)
	_, err := r.RunDaily(context.Background(), time.Time{})
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestEvaluateTickerUsesUniverse(t *testing.T) {
	store, err := recorder.NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	defer store.Close()

	r := NewRunner(Deps{
		Fetcher:  testFetcher(),
		Store:    store,
		Universe: func(context.Context) ([]model.Ticker, error) { return testUniverse(), nil },
	}, Options{}, nil)

	res, err := r.EvaluateTicker(context.Background(), "7203.T")
	require.NoError(t, err)
	assert.Equal(t, "Toyota", res.Name)
	// RSI sits between the single ticker and bulk oversold thresholds.
	assert.Equal(t, model.SignalWait, res.Signal)

	stored, err := store.QueryLatest(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestEvaluateTickerKeepsDailyRow(t *testing.T) {
	store, err := recorder.NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	defer store.Close()

	r := NewRunner(Deps{
		Fetcher:  testFetcher(),
		Store:    store,
		Universe: func(context.Context) ([]model.Ticker, error) { return testUniverse()[1:2], nil },
	}, Options{}, nil)

	_, err = r.RunDaily(context.Background(), day0.AddDate(0, 0, 125))
	require.NoError(t, err)
	before, err := store.QueryLatest(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, before, 1)
	require.Equal(t, model.SignalBuy, before[0].Signal)

	res, err := r.EvaluateTicker(context.Background(), "7203.T")
	require.NoError(t, err)
	assert.Equal(t, model.SignalWait, res.Signal)

	after, err := store.QueryLatest(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, model.SignalBuy, after[0].Signal)
	assert.Equal(t, before[0].Reason, after[0].Reason)
}

func TestEvaluateTickerInsufficientData(t *testing.T) {
	r := NewRunner(Deps{Fetcher: testFetcher()}, Options{}, nil)
	_, err := r.EvaluateTicker(context.Background(), "9999.T")
	assert.ErrorIs(t, err, model.ErrInsufficientData)
}
