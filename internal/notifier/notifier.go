package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SectorPulse/internal/model"
)

// Message is a channel neutral report. Each notifier renders it in its own
// format.
type Message struct {
	Title   string
	Date    time.Time
	Macro   *model.MacroSentiment
	Results []model.AnalysisResult
	// Text is sent as is when there are no results and no macro.
	Text string
}

// Notifier delivers messages to a chat channel.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Format builds the report for results and the run's macro sentiment.
func Format(results []model.AnalysisResult, macro *model.MacroSentiment) Message {
	date := time.Now()
	if len(results) > 0 {
		date = results[0].Date
	}
	return Message{
		Title:   fmt.Sprintf("SectorPulse report %s (%d signals)", date.Format("2006-01-02"), len(results)),
		Date:    date,
		Macro:   macro,
		Results: results,
	}
}

// Multi fans a message out to several notifiers. One failing channel does not
// stop the others.
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// withRetry runs send with exponential backoff (1s, 2s, 4s...).
func withRetry(ctx context.Context, maxRetries int, base time.Duration, send func() error) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if lastErr = send(); lastErr == nil {
			return nil
		}
		if i == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(base * time.Duration(1<<uint(i))):
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", maxRetries+1, lastErr)
}
