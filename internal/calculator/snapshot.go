package calculator

import (
	"fmt"

	"SectorPulse/internal/model"
)

// Indicator windows used by the pipeline.
const (
	RSIPeriod       = 14
	ShortSMAPeriod  = 5
	MidSMAPeriod    = 20
	LongSMAPeriod   = 75
	BollingerPeriod = 20
	BollingerK      = 2.0
	ATRPeriod       = 14
	MACDFast        = 12
	MACDSlow        = 26
	MACDSignal      = 9
	VolumeSMAPeriod = 5
	NewHighLookback = 5

	// MinBars is the longest window any classifier rule depends on.
	MinBars = LongSMAPeriod
)

// Series holds every indicator series for one bar sequence so several
// sessions can be inspected without recomputing.
type Series struct {
	bars []model.Bar

	rsi       []float64
	sma5      []float64
	sma20     []float64
	sma75     []float64
	bbUpper   []float64
	bbLower   []float64
	atr       []float64
	macd      []float64
	macdSig   []float64
	macdHist  []float64
	volumeSMA []float64
}

// NewSeries computes all indicator series for bars with simple ATR.
func NewSeries(bars []model.Bar) *Series {
	return NewSeriesWith(bars, ATRSmoothingSimple)
}

// NewSeriesWith is NewSeries with the named ATR smoothing.
func NewSeriesWith(bars []model.Bar, atrSmoothing string) *Series {
	closes := model.Closes(bars)
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		volumes[i] = b.Volume
	}

	s := &Series{bars: bars}
	s.rsi = RSISeries(closes, RSIPeriod)
	s.sma5 = SMASeries(closes, ShortSMAPeriod)
	s.sma20, s.bbUpper, s.bbLower = BollingerSeries(closes, BollingerPeriod, BollingerK)
	s.sma75 = SMASeries(closes, LongSMAPeriod)
	s.atr = ATRFor(bars, ATRPeriod, atrSmoothing)
	s.macd, s.macdSig, s.macdHist = MACDSeries(closes, MACDFast, MACDSlow, MACDSignal)
	s.volumeSMA = SMASeries(volumes, VolumeSMAPeriod)
	return s
}

// Len returns the number of sessions.
func (s *Series) Len() int { return len(s.bars) }

// At returns the snapshot at session i. Fields whose window is not filled are
// left invalid.
func (s *Series) At(i int) model.IndicatorSnapshot {
	b := s.bars[i]
	snap := model.IndicatorSnapshot{
		Open:       b.Open,
		Close:      b.Close,
		Volume:     b.Volume,
		RSI14:      model.Some(s.rsi[i]),
		SMA5:       model.Some(s.sma5[i]),
		SMA20:      model.Some(s.sma20[i]),
		SMA75:      model.Some(s.sma75[i]),
		BBUpper:    model.Some(s.bbUpper[i]),
		BBLower:    model.Some(s.bbLower[i]),
		ATR14:      model.Some(s.atr[i]),
		MACD:       model.Some(s.macd[i]),
		MACDSignal: model.Some(s.macdSig[i]),
		MACDHist:   model.Some(s.macdHist[i]),
		VolumeSMA5: model.Some(s.volumeSMA[i]),
	}
	if i > 0 {
		snap.PrevSMA5 = model.Some(s.sma5[i-1])
		snap.PrevMACDHist = model.Some(s.macdHist[i-1])
	}
	if high, ok := HighestClose(s.bars, i, NewHighLookback); ok {
		snap.PrevHigh5 = model.Some(high)
	}
	return snap
}

// Compute returns the snapshot at the last session.
func Compute(bars []model.Bar) (*model.IndicatorSnapshot, error) {
	return ComputeWith(bars, ATRSmoothingSimple)
}

// ComputeWith returns the last session snapshot using the named ATR smoothing.
func ComputeWith(bars []model.Bar, atrSmoothing string) (*model.IndicatorSnapshot, error) {
	if len(bars) < MinBars {
		return nil, fmt.Errorf("%d bars, need %d: %w", len(bars), MinBars, model.ErrInsufficientData)
	}
	snap := NewSeriesWith(bars, atrSmoothing).At(len(bars) - 1)
	return &snap, nil
}

// ComputeAt returns the snapshot at session i using bars[:i+1] only.
func ComputeAt(bars []model.Bar, i int) (*model.IndicatorSnapshot, error) {
	if i < 0 || i >= len(bars) {
		return nil, fmt.Errorf("index %d out of range (%d bars): %w", i, len(bars), model.ErrInsufficientData)
	}
	if i+1 < MinBars {
		return nil, fmt.Errorf("%d bars, need %d: %w", i+1, MinBars, model.ErrInsufficientData)
	}
	snap := NewSeries(bars[:i+1]).At(i)
	return &snap, nil
}
