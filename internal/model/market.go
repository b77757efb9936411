package model

import "time"

// Bar represents one trading session of one ticker.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Ticker is one entry of the analysis universe.
type Ticker struct {
	Symbol string `csv:"ticker" json:"ticker"`
	Name   string `csv:"name" json:"name"`
	Sector string `csv:"sector" json:"sector"` // raw industry classification
}

// MarketQuote is the latest close and day-over-day change of a global index.
type MarketQuote struct {
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
}

// Closes extracts the close series from bars.
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// TrimAfter drops bars dated after asOf. A zero asOf keeps everything.
func TrimAfter(bars []Bar, asOf time.Time) []Bar {
	if asOf.IsZero() {
		return bars
	}
	end := asOf.Truncate(24 * time.Hour).Add(24 * time.Hour)
	n := len(bars)
	for n > 0 && !bars[n-1].Time.Before(end) {
		n--
	}
	return bars[:n]
}
