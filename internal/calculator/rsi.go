package calculator

import (
	"errors"
	"math"

	"SectorPulse/internal/model"
)

// CalculateRSI returns the Wilder-smoothed RSI of the last bar.
func CalculateRSI(bars []model.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(bars) < period+1 {
		return 0, model.ErrInsufficientData
	}
	series := RSISeries(model.Closes(bars), period)
	return series[len(series)-1], nil
}

// RSISeries computes RSI with Wilder smoothing (alpha = 1/period) of gains and
// losses, seeded at the first session with a zero change. Values before index
// period are NaN. A window without losses yields 100.
func RSISeries(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 || len(closes) == 0 {
		return out
	}
	alpha := 1.0 / float64(period)
	var avgGain, avgLoss float64
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (1-alpha)*avgGain + alpha*gain
		avgLoss = (1-alpha)*avgLoss + alpha*loss

		if i < period {
			continue
		}
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	rsi := 100.0 - 100.0/(1.0+rs)
	return math.Max(0, math.Min(100, rsi))
}
