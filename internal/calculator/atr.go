package calculator

import (
	"math"

	"SectorPulse/internal/model"
)

// ATR smoothing conventions. The pipeline uses the simple rolling mean; the
// upside ratio thresholds are calibrated against it.
const (
	ATRSmoothingSimple = "simple"
	ATRSmoothingWilder = "wilder"
)

// TrueRangeSeries returns max(high-low, |high-prevClose|, |low-prevClose|).
// The first bar has no previous close and uses high-low.
func TrueRangeSeries(bars []model.Bar) []float64 {
	tr := make([]float64, len(bars))
	for i, b := range bars {
		hl := b.High - b.Low
		if i == 0 {
			tr[i] = hl
			continue
		}
		prev := bars[i-1].Close
		tr[i] = math.Max(hl, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
	}
	return tr
}

// ATRSeries is the simple rolling mean of true range.
func ATRSeries(bars []model.Bar, period int) []float64 {
	return SMASeries(TrueRangeSeries(bars), period)
}

// ATRWilderSeries smooths true range with alpha = 1/period, seeded by the
// simple mean of the first window.
func ATRWilderSeries(bars []model.Bar, period int) []float64 {
	tr := TrueRangeSeries(bars)
	out := nanSeries(len(tr))
	if period <= 0 || len(tr) < period {
		return out
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	out[period-1] = sum / float64(period)
	for i := period; i < len(tr); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// ATRFor returns the ATR series for the named smoothing convention.
func ATRFor(bars []model.Bar, period int, smoothing string) []float64 {
	if smoothing == ATRSmoothingWilder {
		return ATRWilderSeries(bars, period)
	}
	return ATRSeries(bars, period)
}
