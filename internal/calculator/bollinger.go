package calculator

import "math"

// BollingerStdDevSample pins the band width convention: sample standard
// deviation (n-1 denominator), the same as a pandas rolling std.
const BollingerStdDevSample = true

// BollingerSeries returns the middle, upper and lower bands: SMA(period) ± k
// sample standard deviations.
func BollingerSeries(closes []float64, period int, k float64) (mid, upper, lower []float64) {
	mid = SMASeries(closes, period)
	upper = nanSeries(len(closes))
	lower = nanSeries(len(closes))
	if period < 2 {
		return mid, upper, lower
	}
	for i := period - 1; i < len(closes); i++ {
		m := mid[i]
		ss := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - m
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(period-1))
		upper[i] = m + k*sd
		lower[i] = m - k*sd
	}
	return mid, upper, lower
}
