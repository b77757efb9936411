package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"SectorPulse/internal/model"
)

// EventSignal is the event type for an actionable classification.
const EventSignal = "SIGNAL_EMITTED"

// SignalEvent is the JSON payload published for one actionable result.
type SignalEvent struct {
	EventType string                `json:"event_type"`
	RunID     string                `json:"run_id"`
	Ticker    string                `json:"ticker"`
	Signal    model.Signal          `json:"signal"`
	Result    *model.AnalysisResult `json:"result"`
	Timestamp time.Time             `json:"timestamp"`
}

// Publisher emits signal events for a batch run.
type Publisher interface {
	PublishResults(ctx context.Context, runID string, results []model.AnalysisResult) (int, error)
	Close() error
}

// messageWriter is the part of kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per non-WAIT result, keyed by ticker.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer, topic: topic, now: time.Now}
}

// PublishResults sends the actionable results in one batch write and returns
// how many events were written.
func (p *KafkaPublisher) PublishResults(ctx context.Context, runID string, results []model.AnalysisResult) (int, error) {
	msgs, err := buildMessages(runID, results, p.now())
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("failed to write messages to kafka topic %s: %w", p.topic, err)
	}
	return len(msgs), nil
}

// Close closes the Kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func buildMessages(runID string, results []model.AnalysisResult, ts time.Time) ([]kafka.Message, error) {
	var msgs []kafka.Message
	for i := range results {
		r := &results[i]
		if !r.Signal.Actionable() {
			continue
		}
		data, err := json.Marshal(SignalEvent{
			EventType: EventSignal,
			RunID:     runID,
			Ticker:    r.Ticker,
			Signal:    r.Signal,
			Result:    r,
			Timestamp: ts,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event for %s: %w", r.Ticker, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(r.Ticker), Value: data})
	}
	return msgs, nil
}

// NoopPublisher discards events. Used when Kafka is not configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishResults(context.Context, string, []model.AnalysisResult) (int, error) {
	return 0, nil
}

func (NoopPublisher) Close() error { return nil }
