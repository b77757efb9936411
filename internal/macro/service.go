package macro

import (
	"context"
	"time"

	"go.uber.org/zap"

	"SectorPulse/internal/logging"
	"SectorPulse/internal/model"
)

// Service produces the per-run sentiment: headlines, cache, then analyzer.
type Service struct {
	Analyzer *Analyzer
	Source   HeadlineSource
	Cache    Cache // optional
	logger   *zap.Logger
}

// NewService wires the sentiment pipeline. cache may be nil.
func NewService(a *Analyzer, src HeadlineSource, cache Cache, logger *zap.Logger) *Service {
	return &Service{Analyzer: a, Source: src, Cache: cache, logger: logging.OrNop(logger)}
}

// Snapshot returns the sentiment for the analysis date. Neutral results are
// not cached so a later run can retry the model.
func (s *Service) Snapshot(ctx context.Context, asOf time.Time, quotes map[string]model.MarketQuote) *model.MacroSentiment {
	date := asOf
	if date.IsZero() {
		date = time.Now()
	}
	key := date.Format("2006-01-02")

	if s.Cache != nil {
		cached, ok, err := s.Cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("sentiment cache read failed", zap.Error(err))
		} else if ok {
			s.logger.Info("sentiment cache hit", zap.String("date", key))
			return cached
		}
	}

	var headlines []string
	if s.Source != nil {
		h, err := s.Source.Headlines(ctx, asOf)
		if err != nil {
			s.logger.Warn("headline fetch failed", zap.Error(err))
		}
		headlines = h
	}

	sent := s.Analyzer.Analyze(ctx, headlines, quotes)
	if s.Cache != nil && sent.Error == "" {
		if err := s.Cache.Set(ctx, key, sent); err != nil {
			s.logger.Warn("sentiment cache write failed", zap.Error(err))
		}
	}
	return sent
}
