package calculator

import (
	"math"

	"SectorPulse/internal/model"
)

// Correlation window defaults.
const (
	CorrelationWindow    = 60
	CorrelationMinPoints = 30
)

// Correlation returns the Pearson correlation of the trailing window of two
// already aligned series. Fewer than minPoints pairs, or a flat series, yields
// 0 so the value stays usable as a numeric gate.
func Correlation(xs, ys []float64, window, minPoints int) float64 {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	xs, ys = xs[len(xs)-n:], ys[len(ys)-n:]
	if window > 0 && n > window {
		xs, ys = xs[n-window:], ys[n-window:]
		n = window
	}
	if n < minPoints || n < 2 {
		return 0
	}

	var sx, sy float64
	for i := 0; i < n; i++ {
		sx += xs[i]
		sy += ys[i]
	}
	mx, my := sx/float64(n), sy/float64(n)

	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	r := cov / math.Sqrt(vx*vy)
	if isNaN(r) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

// CorrelationBars aligns two bar series by trading date and correlates their
// closes over the trailing window.
func CorrelationBars(bars, ref []model.Bar, window, minPoints int) float64 {
	refByDate := make(map[string]float64, len(ref))
	for _, b := range ref {
		refByDate[b.Time.Format("2006-01-02")] = b.Close
	}
	xs := make([]float64, 0, len(bars))
	ys := make([]float64, 0, len(bars))
	for _, b := range bars {
		if c, ok := refByDate[b.Time.Format("2006-01-02")]; ok {
			xs = append(xs, b.Close)
			ys = append(ys, c)
		}
	}
	return Correlation(xs, ys, window, minPoints)
}
