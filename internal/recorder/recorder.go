package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SectorPulse/internal/model"
)

// DateLayout is the storage format of analysis dates.
const DateLayout = "2006-01-02"

// DefaultChunkSize bounds the rows written per upsert call.
const DefaultChunkSize = 500

// Store persists analysis results keyed by (ticker, date) and the macro log
// keyed by date. Writing the same key twice overwrites.
type Store interface {
	UpsertResults(ctx context.Context, results []model.AnalysisResult) error
	UpsertMacro(ctx context.Context, date time.Time, s *model.MacroSentiment) error
	// QueryLatest returns the results of date, or of the most recent stored
	// date when date is nil. Results are ordered by ticker.
	QueryLatest(ctx context.Context, date *time.Time) ([]model.AnalysisResult, error)
	// LatestMacro returns the most recent macro log entry, or nil when empty.
	LatestMacro(ctx context.Context) (*model.MacroSentiment, time.Time, error)
	Close() error
}

// UpsertInChunks writes results in chunks of size. A failed chunk does not stop
// the remaining ones; the failures are returned, each wrapping
// model.ErrPersistence.
func UpsertInChunks(ctx context.Context, st Store, results []model.AnalysisResult, size int) []error {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var errs []error
	for i := 0; i < len(results); i += size {
		end := i + size
		if end > len(results) {
			end = len(results)
		}
		if err := st.UpsertResults(ctx, results[i:end]); err != nil {
			errs = append(errs, fmt.Errorf("rows %d-%d: %v: %w", i, end, err, model.ErrPersistence))
		}
	}
	return errs
}

// macroColumns is the JSON encoded form of the macro log columns.
type macroColumns struct {
	sectors string
	events  string
	quotes  string
}

func encodeMacro(s *model.MacroSentiment) (macroColumns, error) {
	var c macroColumns
	sectors, err := json.Marshal(s.SectorScores)
	if err != nil {
		return c, err
	}
	events, err := json.Marshal(s.RiskEvents)
	if err != nil {
		return c, err
	}
	quotes, err := json.Marshal(s.Quotes)
	if err != nil {
		return c, err
	}
	return macroColumns{sectors: string(sectors), events: string(events), quotes: string(quotes)}, nil
}

func decodeMacro(s *model.MacroSentiment, c macroColumns) error {
	s.SectorScores = map[string]int{}
	if err := json.Unmarshal([]byte(c.sectors), &s.SectorScores); err != nil {
		return fmt.Errorf("decode sector scores: %w", err)
	}
	if s.SectorScores == nil {
		s.SectorScores = map[string]int{}
	}
	if err := json.Unmarshal([]byte(c.events), &s.RiskEvents); err != nil {
		return fmt.Errorf("decode risk events: %w", err)
	}
	if c.quotes != "" && c.quotes != "null" {
		if err := json.Unmarshal([]byte(c.quotes), &s.Quotes); err != nil {
			return fmt.Errorf("decode quotes: %w", err)
		}
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	return time.Parse(DateLayout, s)
}
