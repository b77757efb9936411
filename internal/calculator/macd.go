package calculator

import "math"

// MACDSeries returns the MACD line (fast EMA - slow EMA), its signal EMA and
// the histogram. The line is defined from index slow-1 and the signal and
// histogram from index slow+signal-2.
func MACDSeries(closes []float64, fast, slow, signal int) (macd, sig, hist []float64) {
	n := len(closes)
	macd = nanSeries(n)
	sig = nanSeries(n)
	hist = nanSeries(n)
	if fast <= 0 || slow <= fast || signal <= 0 || n == 0 {
		return macd, sig, hist
	}

	fastEMA := EMASeries(closes, fast)
	slowEMA := EMASeries(closes, slow)
	raw := make([]float64, n)
	for i := range closes {
		raw[i] = fastEMA[i] - slowEMA[i]
	}
	rawSig := EMASeries(raw, signal)

	for i := slow - 1; i < n; i++ {
		macd[i] = raw[i]
	}
	for i := slow + signal - 2; i < n; i++ {
		sig[i] = rawSig[i]
		hist[i] = raw[i] - rawSig[i]
	}
	return macd, sig, hist
}

func isNaN(v float64) bool { return math.IsNaN(v) }
