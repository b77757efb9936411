package recorder

import (
	"context"
	"time"

	"SectorPulse/internal/model"
)

// NoopStore discards writes and returns nothing. Used when no database is
// configured.
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (n *NoopStore) UpsertResults(context.Context, []model.AnalysisResult) error { return nil }
func (n *NoopStore) UpsertMacro(context.Context, time.Time, *model.MacroSentiment) error {
	return nil
}
func (n *NoopStore) QueryLatest(context.Context, *time.Time) ([]model.AnalysisResult, error) {
	return nil, nil
}
func (n *NoopStore) LatestMacro(context.Context) (*model.MacroSentiment, time.Time, error) {
	return nil, time.Time{}, nil
}
func (n *NoopStore) Close() error { return nil }
