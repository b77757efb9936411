package model

import "time"

// Impact levels for risk events.
const (
	ImpactLow    = "LOW"
	ImpactMedium = "MEDIUM"
	ImpactHigh   = "HIGH"
)

// RiskEvent is an upcoming macro event that may move the market.
type RiskEvent struct {
	Name   string `json:"name"`
	Date   string `json:"date"`
	Impact string `json:"impact"`
}

// MacroSentiment is the per-run market mood, shared read-only by all ticker
// evaluations of that run.
type MacroSentiment struct {
	SectorScores map[string]int `json:"sector_scores"`
	OverallScore int            `json:"overall_score"`
	HasOverall   bool           `json:"has_overall"`
	Summary      string         `json:"summary"`
	RiskEvents   []RiskEvent    `json:"risk_events"`
	// Error is set when the sentiment is a neutral fallback.
	Error string `json:"error,omitempty"`

	Quotes      map[string]MarketQuote `json:"quotes,omitempty"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// NeutralSentiment returns a zero score sentiment carrying the given error marker.
func NeutralSentiment(errMsg string) *MacroSentiment {
	return &MacroSentiment{
		SectorScores: map[string]int{},
		Summary:      errMsg,
		Error:        errMsg,
		GeneratedAt:  time.Now(),
	}
}
