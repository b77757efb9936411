package macro

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"SectorPulse/internal/logging"
	"SectorPulse/internal/model"
	"SectorPulse/internal/telemetry"
)

// Error markers of neutral fallbacks.
const (
	ErrMsgAnalysis = "analysis error"
	ErrMsgNoAPIKey = "api key not configured"
	ErrMsgNoInput  = "no headlines or market data"
)

// Defaults for Analyzer.
const (
	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 3
	DefaultBackoff    = time.Second
)

// Analyzer turns headlines and the global market snapshot into a sector
// sentiment. It never returns an error: failures become a neutral sentiment
// whose Error field is set.
type Analyzer struct {
	gen     Generator
	sectors []string
	logger  *zap.Logger

	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// NewAnalyzer creates an analyzer scoring sectors. gen may be nil when no API
// key is configured.
func NewAnalyzer(gen Generator, sectors []string, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		gen:        gen,
		sectors:    sectors,
		logger:     logging.OrNop(logger),
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		Backoff:    DefaultBackoff,
	}
}

// Analyze runs one sentiment inference.
func (a *Analyzer) Analyze(ctx context.Context, headlines []string, quotes map[string]model.MarketQuote) *model.MacroSentiment {
	ctx, span := telemetry.StartSpan(ctx, "macro.analyze",
		attribute.Int("headlines", len(headlines)), attribute.Int("quotes", len(quotes)))
	defer span.End()

	if a.gen == nil {
		a.logger.Warn("sentiment skipped, no generator configured")
		return withQuotes(model.NeutralSentiment(ErrMsgNoAPIKey), quotes)
	}
	if len(headlines) == 0 && len(quotes) == 0 {
		return withQuotes(model.NeutralSentiment(ErrMsgNoInput), quotes)
	}

	start := time.Now()
	text, err := a.generateWithRetry(ctx, BuildPrompt(a.sectors, headlines, quotes))
	if err != nil {
		telemetry.RecordError(span, err)
		a.logger.Error("sentiment inference failed", zap.Error(err))
		return withQuotes(model.NeutralSentiment(ErrMsgAnalysis), quotes)
	}

	s, err := ParseSentiment(text)
	if err != nil {
		telemetry.RecordError(span, err)
		a.logger.Error("sentiment parse failed", zap.Error(err), zap.Int("response_len", len(text)))
		return withQuotes(model.NeutralSentiment(ErrMsgAnalysis), quotes)
	}
	s.GeneratedAt = time.Now()
	a.logger.Info("sentiment ready",
		zap.Int("sectors", len(s.SectorScores)),
		zap.Int("overall", s.OverallScore),
		zap.Int("risk_events", len(s.RiskEvents)),
		zap.Duration("duration", time.Since(start)))
	return withQuotes(s, quotes)
}

// generateWithRetry retries rate-limited calls with exponential backoff
// (Backoff, 2×Backoff, 4×Backoff...). Other errors fail immediately.
func (a *Analyzer) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for i := 0; i <= a.MaxRetries; i++ {
		callCtx, cancel := context.WithTimeout(ctx, a.Timeout)
		text, err := a.gen.Generate(callCtx, prompt)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", fmt.Errorf("context cancelled: %w", ctx.Err())
		}
		if !isRateLimited(err) || i == a.MaxRetries {
			break
		}

		backoff := a.Backoff * time.Duration(1<<uint(i))
		a.logger.Warn("sentiment rate limited, backing off",
			zap.Int("attempt", i+1), zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
		}
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return "", fmt.Errorf("sentiment call timed out: %v: %w", lastErr, model.ErrProviderUnavailable)
	}
	return "", fmt.Errorf("sentiment call failed: %v: %w", lastErr, model.ErrProviderUnavailable)
}

func withQuotes(s *model.MacroSentiment, quotes map[string]model.MarketQuote) *model.MacroSentiment {
	if len(quotes) > 0 {
		s.Quotes = quotes
	}
	return s
}

// BuildPrompt renders the sentiment prompt. Quotes are listed in name order so
// the prompt is stable.
func BuildPrompt(sectors []string, headlines []string, quotes map[string]model.MarketQuote) string {
	names := make([]string, 0, len(quotes))
	for name := range quotes {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("You are a veteran Japanese equity strategist. Using the data below, score today's investor ")
	b.WriteString("sentiment for each Japanese market sector as an integer from -5 (very bearish) to +5 (very bullish).\n\n")
	b.WriteString("Weighting:\n")
	b.WriteString("1. US markets and FX (70%): Japanese equities track them closely. A rising SOX index is bullish ")
	b.WriteString("for semiconductors, a rising NASDAQ for tech and growth, a weaker yen (higher USD/JPY) for exporters such as autos.\n")
	b.WriteString("2. Domestic and global headlines (30%).\n\n")

	b.WriteString("== US markets and FX ==\n")
	if len(names) == 0 {
		b.WriteString("- (no data)\n")
	}
	for _, name := range names {
		q := quotes[name]
		fmt.Fprintf(&b, "- %s: %.2f (change %+.2f%%)\n", name, q.Price, q.ChangePct)
	}
	b.WriteString("\n== Headlines ==\n")
	if len(headlines) == 0 {
		b.WriteString("- (no headlines)\n")
	}
	for _, h := range headlines {
		fmt.Fprintf(&b, "- %s\n", h)
	}

	fmt.Fprintf(&b, "\nSectors: [%s]. %q is the whole market.\n", strings.Join(sectors, ", "), overallKey)
	b.WriteString("List near-term scheduled macro risk events (central bank meetings, CPI, jobs data) with impact LOW, MEDIUM or HIGH.\n")
	b.WriteString("Respond with JSON only, in this shape:\n")
	b.WriteString(`{"sector_scores": {"<sector>": 0}, "overall_score": 0, "summary": "short market summary (max 50 chars)", ` +
		`"risk_events": [{"name": "FOMC", "date": "YYYY-MM-DD", "impact": "HIGH"}]}`)
	b.WriteString("\n")
	return b.String()
}
