package collector

import (
	"context"
	"time"

	"go.uber.org/zap"

	"SectorPulse/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Price float64
	// Bars overrides generated data per symbol.
	Bars map[string][]model.Bar
	// Errs makes FetchDailyBars fail for a symbol.
	Errs map[string]error
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchDailyBars(ctx context.Context, symbol string, days int) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.Errs[symbol]; ok {
		return nil, err
	}
	if bars, ok := m.Bars[symbol]; ok {
		return bars, nil
	}
	return GenerateMockBars(m.Price, days), nil
}

// GenerateMockBars builds count gently rising daily bars ending yesterday.
func GenerateMockBars(basePrice float64, count int) []model.Bar {
	bars := make([]model.Bar, count)
	today := time.Now().UTC().Truncate(24 * time.Hour)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.Bar{
			Time:   today.AddDate(0, 0, -(count - i)),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}

// FetchQuotes builds the global market snapshot: for every symbol the last
// close and the change from the close before it. Symbols that fail or have
// fewer than two bars are left out.
func FetchQuotes(ctx context.Context, f Fetcher, symbols map[string]string, logger *zap.Logger) map[string]model.MarketQuote {
	quotes := make(map[string]model.MarketQuote, len(symbols))
	for symbol, label := range symbols {
		bars, err := f.FetchDailyBars(ctx, symbol, 5)
		if err != nil {
			logger.Warn("quote fetch failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if len(bars) < 2 {
			continue
		}
		last, prev := bars[len(bars)-1].Close, bars[len(bars)-2].Close
		q := model.MarketQuote{Name: label, Price: last}
		if prev != 0 {
			q.ChangePct = (last - prev) / prev * 100
		}
		quotes[label] = q
	}
	return quotes
}
