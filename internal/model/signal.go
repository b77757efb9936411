package model

import "time"

// Signal is the discrete trading decision for one ticker.
type Signal string

const (
	SignalWait       Signal = "WAIT"
	SignalBuy        Signal = "BUY"
	SignalSell       Signal = "SELL"
	SignalAggressive Signal = "AGGRESSIVE"
)

// Actionable reports whether the signal calls for attention.
func (s Signal) Actionable() bool { return s != SignalWait && s != "" }

// TrendStrength ranks the momentum behind a BUY or AGGRESSIVE signal.
type TrendStrength string

const (
	TrendC TrendStrength = "C"
	TrendB TrendStrength = "B"
	TrendA TrendStrength = "A"
	TrendS TrendStrength = "S"
)

// AnalysisResult is the persisted outcome for one ticker on one date.
type AnalysisResult struct {
	Ticker        string        `json:"ticker"`
	Name          string        `json:"name,omitempty"`
	Sector        string        `json:"sector,omitempty"`
	Date          time.Time     `json:"date"`
	ClosePrice    float64       `json:"close_price"`
	RSI14         float64       `json:"rsi_14"`
	SMA75         float64       `json:"sma_75"`
	ATR14         float64       `json:"atr_14"`
	BBUpper       float64       `json:"bb_upper"`
	MACDHist      float64       `json:"macd_hist"`
	UpsideRatio   float64       `json:"upside_ratio"`
	MacroScore    int           `json:"macro_score"`
	Signal        Signal        `json:"signal"`
	TrendStrength TrendStrength `json:"trend_strength,omitempty"`
	Correlation   float64       `json:"correlation"`
	ExitGuidance  string        `json:"exit_guidance,omitempty"`
	Reason        string        `json:"reason"`
}

// DateKey returns the storage key date.
func (r *AnalysisResult) DateKey() string {
	return r.Date.Format("2006-01-02")
}
