package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SectorPulse/internal/model"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func newTestPublisher(w *fakeWriter) *KafkaPublisher {
	ts := time.Date(2024, 6, 3, 7, 0, 0, 0, time.UTC)
	return &KafkaPublisher{writer: w, topic: "signals", now: func() time.Time { return ts }}
}

func TestPublishResultsSkipsWait(t *testing.T) {
	w := &fakeWriter{}
	p := newTestPublisher(w)
	results := []model.AnalysisResult{
		{Ticker: "7203.T", Signal: model.SignalBuy},
		{Ticker: "6758.T", Signal: model.SignalWait},
		{Ticker: "8035.T", Signal: model.SignalAggressive},
	}

	n, err := p.PublishResults(context.Background(), "run-1", results)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "7203.T", string(w.msgs[0].Key))
	assert.Equal(t, "8035.T", string(w.msgs[1].Key))

	var ev SignalEvent
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &ev))
	assert.Equal(t, EventSignal, ev.EventType)
	assert.Equal(t, "run-1", ev.RunID)
	assert.Equal(t, model.SignalAggressive, ev.Signal)
	require.NotNil(t, ev.Result)
	assert.Equal(t, "8035.T", ev.Result.Ticker)
}

func TestPublishResultsNothingActionable(t *testing.T) {
	w := &fakeWriter{err: errors.New("must not be called")}
	n, err := newTestPublisher(w).PublishResults(context.Background(), "run-1",
		[]model.AnalysisResult{{Ticker: "6758.T", Signal: model.SignalWait}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPublishResultsWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	_, err := newTestPublisher(w).PublishResults(context.Background(), "run-1",
		[]model.AnalysisResult{{Ticker: "7203.T", Signal: model.SignalSell}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signals")
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newTestPublisher(w).Close())
	assert.True(t, w.closed)
}
