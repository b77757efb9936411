package strategy

import (
	"fmt"

	"SectorPulse/internal/model"
)

// Default thresholds.
const (
	OversoldSingle   = 30.0
	OversoldBulk     = 35.0
	Overbought       = 70.0
	AggressiveRSIMax = 60.0
	VolumeSurge      = 1.5
	MinUpsideRatio   = 2.0
	ExitCorrelation  = 0.6
)

// Thresholds tunes the classifier.
type Thresholds struct {
	Oversold         float64 `yaml:"oversold"`
	Overbought       float64 `yaml:"overbought"`
	AggressiveRSIMax float64 `yaml:"aggressive_rsi_max"`
	VolumeSurge      float64 `yaml:"volume_surge"`
	MinUpsideRatio   float64 `yaml:"min_upside_ratio"`
	ExitCorrelation  float64 `yaml:"exit_correlation"`
	EnableSell       bool    `yaml:"enable_sell"`
}

// SingleTickerThresholds is the preset for on-demand single ticker evaluation.
func SingleTickerThresholds() Thresholds {
	return Thresholds{
		Oversold:         OversoldSingle,
		Overbought:       Overbought,
		AggressiveRSIMax: AggressiveRSIMax,
		VolumeSurge:      VolumeSurge,
		MinUpsideRatio:   MinUpsideRatio,
		ExitCorrelation:  ExitCorrelation,
		EnableSell:       true,
	}
}

// BulkThresholds is the preset for universe scans. SELL is not emitted.
func BulkThresholds() Thresholds {
	th := SingleTickerThresholds()
	th.Oversold = OversoldBulk
	th.EnableSell = false
	return th
}

// Input is everything the classifier looks at for one ticker.
type Input struct {
	Snapshot    *model.IndicatorSnapshot
	MacroScore  int
	Correlation float64
	RiskEvents  []model.RiskEvent
}

// Verdict is the classifier outcome.
type Verdict struct {
	Signal        model.Signal
	TrendStrength model.TrendStrength
	Reason        string
	ExitGuidance  string
	UpsideRatio   float64
	// Rule names the matching rule, empty for WAIT.
	Rule string
}

// Rule is one row of the decision table.
type Rule struct {
	Name   string
	Signal model.Signal
	Match  func(in Input, th Thresholds) bool
	Reason func(in Input, th Thresholds) string
}

// Rules is evaluated top to bottom; the first match wins.
var Rules = []Rule{
	{
		Name:   "aggressive",
		Signal: model.SignalAggressive,
		Match:  isBreakout,
		Reason: func(Input, Thresholds) string { return "volume surge + short-term uptrend" },
	},
	{
		Name:   "s-stock",
		Signal: model.SignalBuy,
		Match:  isDipBuy,
		Reason: func(in Input, _ Thresholds) string {
			return fmt.Sprintf("RSI low & uptrend, upside %.1fxATR", in.Snapshot.UpsideRatio())
		},
	},
	{
		Name:   "overbought",
		Signal: model.SignalSell,
		Match:  isOverbought,
		Reason: func(in Input, _ Thresholds) string {
			return fmt.Sprintf("RSI overbought (%.1f)", in.Snapshot.RSI14.Value)
		},
	},
}

// Classify applies the rule table to one ticker. It returns
// model.ErrInsufficientData when SMA75 or ATR14 is unavailable.
func Classify(in Input, th Thresholds) (Verdict, error) {
	s := in.Snapshot
	if s == nil || !s.SMA75.Valid || !s.ATR14.Valid {
		return Verdict{}, fmt.Errorf("classify: SMA75/ATR unavailable: %w", model.ErrInsufficientData)
	}

	v := Verdict{Signal: model.SignalWait, UpsideRatio: s.UpsideRatio()}
	if !s.RSI14.Valid {
		v.Reason = "RSI unavailable"
		return v, nil
	}

	for _, r := range Rules {
		if !r.Match(in, th) {
			continue
		}
		v.Signal = r.Signal
		v.Rule = r.Name
		v.Reason = r.Reason(in, th)
		break
	}

	if v.Signal == model.SignalWait {
		v.Reason = waitReason(in, th)
		return v, nil
	}
	if v.Signal == model.SignalBuy || v.Signal == model.SignalAggressive {
		v.TrendStrength = TrendRank(s)
		v.ExitGuidance = ExitGuidance(in, th)
	}
	return v, nil
}

// waitReason names the first gate that kept the ticker out of BUY.
func waitReason(in Input, th Thresholds) string {
	s := in.Snapshot
	switch {
	case s.Close < s.SMA75.Value:
		return "uptrend broken (close < SMA75)"
	case s.Close == s.SMA75.Value:
		return "uptrend stalled (close = SMA75)"
	case s.RSI14.Value <= th.Oversold && in.MacroScore < 0:
		return fmt.Sprintf("macro negative, suppressed (%d)", in.MacroScore)
	case s.RSI14.Value <= th.Oversold:
		return fmt.Sprintf("RSI reached threshold but insufficient upside (ATR×%.1f)", s.UpsideRatio())
	default:
		return fmt.Sprintf("RSI neutral (%.1f)", s.RSI14.Value)
	}
}

var ranks = []model.TrendStrength{model.TrendC, model.TrendB, model.TrendA, model.TrendS}

// TrendRank maps the momentum score to C, B, A or S.
func TrendRank(s *model.IndicatorSnapshot) model.TrendStrength {
	return ranks[trendScore(s)]
}

// ExitGuidance returns a caution line when a correlated ticker faces a
// near-term risk event, or "".
func ExitGuidance(in Input, th Thresholds) string {
	if len(in.RiskEvents) == 0 || in.Correlation <= th.ExitCorrelation {
		return ""
	}
	ev := in.RiskEvents[0]
	return fmt.Sprintf("caution: %s (%s, %s), correlation to reference %.2f", ev.Name, ev.Date, ev.Impact, in.Correlation)
}
