package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SectorPulse/internal/batch"
	"SectorPulse/internal/model"
	"SectorPulse/internal/recorder"
)

type fakeRunner struct {
	running bool
	calls   chan time.Time
}

func (f *fakeRunner) RunDaily(_ context.Context, asOf time.Time) (*batch.Report, error) {
	f.calls <- asOf
	return &batch.Report{RunID: "r"}, nil
}

func (f *fakeRunner) Running() bool { return f.running }

func newTestScheduler(t *testing.T, runner *fakeRunner) (*Scheduler, *recorder.SQLiteStore) {
	t.Helper()
	store, err := recorder.NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewScheduler(context.Background(), runner, store, nil), store
}

func TestRegisterDaily(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeRunner{})
	require.NoError(t, s.RegisterDaily("0 30 15 * * 1-5"))
	assert.Len(t, s.Cron.Entries(), 1)

	assert.Error(t, s.RegisterDaily("not a cron"))
}

func TestHandleRun(t *testing.T) {
	runner := &fakeRunner{calls: make(chan time.Time, 1)}
	s, _ := newTestScheduler(t, runner)

	reply := s.HandleCommand(context.Background(), "/run@SectorPulseBot 2024-06-03")
	assert.Contains(t, reply, "batch started")

	select {
	case asOf := <-runner.calls:
		assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), asOf)
	case <-time.After(2 * time.Second):
		t.Fatal("batch not started")
	}

	assert.Contains(t, s.HandleCommand(context.Background(), "/run yesterday"), "invalid date")
}

func TestHandleRunWhileRunning(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeRunner{running: true})
	assert.Equal(t, "a batch is already running", s.HandleCommand(context.Background(), "/run"))
}

func TestHandleLatestAndMacro(t *testing.T) {
	s, store := newTestScheduler(t, &fakeRunner{})
	ctx := context.Background()

	assert.Equal(t, "No results stored yet.", s.HandleCommand(ctx, "/latest"))
	assert.Equal(t, "no sentiment stored yet", s.HandleCommand(ctx, "/macro"))

	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertResults(ctx, []model.AnalysisResult{
		{Ticker: "7203.T", Date: day, Signal: model.SignalBuy, TrendStrength: model.TrendA, RSI14: 31},
		{Ticker: "8306.T", Date: day, Signal: model.SignalWait},
	}))
	require.NoError(t, store.UpsertMacro(ctx, day, &model.MacroSentiment{
		SectorScores: map[string]int{"銀行・金融": 2},
		Summary:      "rates up",
	}))

	latest := s.HandleCommand(ctx, "/latest")
	assert.Contains(t, latest, "7203.T BUY A")
	assert.NotContains(t, latest, "8306.T")

	macro := s.HandleCommand(ctx, "/macro")
	assert.Contains(t, macro, "2024-06-03")
	assert.Contains(t, macro, "銀行・金融: +2")
}

func TestHandleHelp(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeRunner{})
	assert.Equal(t, helpText, s.HandleCommand(context.Background(), "hello"))
	assert.Equal(t, helpText, s.HandleCommand(context.Background(), ""))
}
