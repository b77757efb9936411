package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SectorPulse/internal/model"
)

// dipSnapshot is an oversold ticker in an intact uptrend with room to the band.
func dipSnapshot() *model.IndicatorSnapshot {
	return &model.IndicatorSnapshot{
		Open:         1010,
		Close:        1000,
		Volume:       1000,
		RSI14:        model.Some(32),
		SMA5:         model.Some(1020),
		PrevSMA5:     model.Some(1030),
		SMA20:        model.Some(1040),
		SMA75:        model.Some(900),
		BBUpper:      model.Some(1100),
		BBLower:      model.Some(980),
		ATR14:        model.Some(40),
		MACDHist:     model.Some(5),
		PrevMACDHist: model.Some(3),
		VolumeSMA5:   model.Some(1000),
		PrevHigh5:    model.Some(1050),
	}
}

// breakoutSnapshot is a bullish volume surge below the long-term average.
func breakoutSnapshot() *model.IndicatorSnapshot {
	return &model.IndicatorSnapshot{
		Open:         480,
		Close:        500,
		Volume:       3000,
		RSI14:        model.Some(55),
		SMA5:         model.Some(490),
		PrevSMA5:     model.Some(480),
		SMA75:        model.Some(600),
		BBUpper:      model.Some(495),
		ATR14:        model.Some(10),
		MACDHist:     model.Some(2),
		PrevMACDHist: model.Some(1),
		VolumeSMA5:   model.Some(1400),
		PrevHigh5:    model.Some(498),
	}
}

func TestClassify_BuyWithTrendRank(t *testing.T) {
	v, err := Classify(Input{Snapshot: dipSnapshot(), MacroScore: 1}, BulkThresholds())
	require.NoError(t, err)
	assert.Equal(t, model.SignalBuy, v.Signal)
	assert.Equal(t, model.TrendB, v.TrendStrength)
	assert.InDelta(t, 2.5, v.UpsideRatio, 1e-9)
	assert.Equal(t, "s-stock", v.Rule)
	assert.Empty(t, v.ExitGuidance)
}

func TestClassify_MacroSuppressed(t *testing.T) {
	v, err := Classify(Input{Snapshot: dipSnapshot(), MacroScore: -2}, BulkThresholds())
	require.NoError(t, err)
	assert.Equal(t, model.SignalWait, v.Signal)
	assert.Contains(t, v.Reason, "macro negative, suppressed")
	assert.Empty(t, v.TrendStrength)
}

func TestClassify_AggressiveIgnoresLongTrend(t *testing.T) {
	v, err := Classify(Input{Snapshot: breakoutSnapshot(), MacroScore: -5}, BulkThresholds())
	require.NoError(t, err)
	assert.Equal(t, model.SignalAggressive, v.Signal)
	assert.Equal(t, "volume surge + short-term uptrend", v.Reason)
	assert.Equal(t, model.TrendS, v.TrendStrength)
}

func TestClassify_WaitReasons(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *model.IndicatorSnapshot)
		reason string
	}{
		{"uptrend broken", func(s *model.IndicatorSnapshot) { s.Close = 880; s.BBUpper = model.Some(1000) }, "uptrend broken (close < SMA75)"},
		{"close on sma75", func(s *model.IndicatorSnapshot) { s.Close = 900; s.BBUpper = model.Some(1000) }, "uptrend stalled (close = SMA75)"},
		{"insufficient upside", func(s *model.IndicatorSnapshot) { s.BBUpper = model.Some(1060) }, "RSI reached threshold but insufficient upside (ATR×1.5)"},
		{"neutral rsi", func(s *model.IndicatorSnapshot) { s.RSI14 = model.Some(50) }, "RSI neutral (50.0)"},
		{"rsi unavailable", func(s *model.IndicatorSnapshot) { s.RSI14 = model.None() }, "RSI unavailable"},
		{"zero atr", func(s *model.IndicatorSnapshot) { s.ATR14 = model.Some(0) }, "RSI reached threshold but insufficient upside (ATR×0.0)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := dipSnapshot()
			tt.mutate(s)
			v, err := Classify(Input{Snapshot: s, MacroScore: 1}, BulkThresholds())
			require.NoError(t, err)
			assert.Equal(t, model.SignalWait, v.Signal)
			assert.Equal(t, tt.reason, v.Reason)
		})
	}
}

func TestClassify_InsufficientData(t *testing.T) {
	for _, mutate := range []func(s *model.IndicatorSnapshot){
		func(s *model.IndicatorSnapshot) { s.SMA75 = model.None() },
		func(s *model.IndicatorSnapshot) { s.ATR14 = model.None() },
	} {
		s := dipSnapshot()
		mutate(s)
		_, err := Classify(Input{Snapshot: s}, BulkThresholds())
		assert.ErrorIs(t, err, model.ErrInsufficientData)
	}

	_, err := Classify(Input{}, BulkThresholds())
	assert.ErrorIs(t, err, model.ErrInsufficientData)
}

func TestClassify_OversoldThresholdPresets(t *testing.T) {
	in := Input{Snapshot: dipSnapshot(), MacroScore: 0}

	bulk, err := Classify(in, BulkThresholds())
	require.NoError(t, err)
	assert.Equal(t, model.SignalBuy, bulk.Signal)

	single, err := Classify(in, SingleTickerThresholds())
	require.NoError(t, err)
	assert.Equal(t, model.SignalWait, single.Signal)
	assert.Equal(t, "RSI neutral (32.0)", single.Reason)
}

func TestClassify_SellOnlyWhenEnabled(t *testing.T) {
	s := dipSnapshot()
	s.RSI14 = model.Some(75)

	v, err := Classify(Input{Snapshot: s}, SingleTickerThresholds())
	require.NoError(t, err)
	assert.Equal(t, model.SignalSell, v.Signal)
	assert.Empty(t, v.TrendStrength)

	v, err = Classify(Input{Snapshot: s}, BulkThresholds())
	require.NoError(t, err)
	assert.Equal(t, model.SignalWait, v.Signal)
}

func TestClassify_AggressiveNeedsEveryCondition(t *testing.T) {
	tests := map[string]func(s *model.IndicatorSnapshot){
		"rsi too high":    func(s *model.IndicatorSnapshot) { s.RSI14 = model.Some(60) },
		"below sma5":      func(s *model.IndicatorSnapshot) { s.Close = 489 },
		"sma5 falling":    func(s *model.IndicatorSnapshot) { s.PrevSMA5 = model.Some(495) },
		"no volume surge": func(s *model.IndicatorSnapshot) { s.Volume = 2100 },
		"bearish candle":  func(s *model.IndicatorSnapshot) { s.Open = 505 },
		"no volume avg":   func(s *model.IndicatorSnapshot) { s.VolumeSMA5 = model.None() },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			s := breakoutSnapshot()
			mutate(s)
			v, err := Classify(Input{Snapshot: s}, BulkThresholds())
			require.NoError(t, err)
			assert.NotEqual(t, model.SignalAggressive, v.Signal)
		})
	}
}

func TestExitGuidance(t *testing.T) {
	events := []model.RiskEvent{{Name: "FOMC", Date: "2024-03-20", Impact: model.ImpactHigh}}

	v, err := Classify(Input{Snapshot: breakoutSnapshot(), Correlation: 0.8, RiskEvents: events}, BulkThresholds())
	require.NoError(t, err)
	assert.Equal(t, "caution: FOMC (2024-03-20, HIGH), correlation to reference 0.80", v.ExitGuidance)

	v, err = Classify(Input{Snapshot: breakoutSnapshot(), Correlation: 0.6, RiskEvents: events}, BulkThresholds())
	require.NoError(t, err)
	assert.Empty(t, v.ExitGuidance)

	v, err = Classify(Input{Snapshot: breakoutSnapshot(), Correlation: 0.9}, BulkThresholds())
	require.NoError(t, err)
	assert.Empty(t, v.ExitGuidance)
}

func TestTrendRank(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *model.IndicatorSnapshot)
		want   model.TrendStrength
	}{
		{"all flags", func(s *model.IndicatorSnapshot) {}, model.TrendS},
		{"hist falling", func(s *model.IndicatorSnapshot) { s.PrevMACDHist = model.Some(3) }, model.TrendA},
		{"inside band", func(s *model.IndicatorSnapshot) { s.PrevMACDHist = model.Some(3); s.BBUpper = model.Some(510) }, model.TrendB},
		{"no flags", func(s *model.IndicatorSnapshot) {
			s.MACDHist = model.Some(-1)
			s.BBUpper = model.Some(510)
			s.PrevHigh5 = model.Some(520)
		}, model.TrendC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := breakoutSnapshot()
			tt.mutate(s)
			assert.Equal(t, tt.want, TrendRank(s))
		})
	}
}
