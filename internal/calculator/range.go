package calculator

import (
	"math"

	"SectorPulse/internal/model"
)

// HighestClose returns the highest close of the n sessions ending before index
// end (exclusive). ok is false when fewer than n sessions are available.
func HighestClose(bars []model.Bar, end, n int) (high float64, ok bool) {
	if n <= 0 || end > len(bars) || end-n < 0 {
		return 0, false
	}
	high = math.Inf(-1)
	for i := end - n; i < end; i++ {
		if bars[i].Close > high {
			high = bars[i].Close
		}
	}
	return high, true
}

// IsNewHigh reports whether the close at index i exceeds the closes of the
// previous n sessions.
func IsNewHigh(bars []model.Bar, i, n int) bool {
	high, ok := HighestClose(bars, i, n)
	if !ok {
		return false
	}
	return bars[i].Close > high
}
