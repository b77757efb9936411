package model

import "math"

// Optional is an indicator value that may be unavailable because its window
// is not filled yet.
type Optional struct {
	Value float64
	Valid bool
}

// Some wraps v, treating NaN and Inf as unavailable.
func Some(v float64) Optional {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Optional{}
	}
	return Optional{Value: v, Valid: true}
}

// None is the unavailable marker.
func None() Optional { return Optional{} }

// Or returns the value or def when unavailable.
func (o Optional) Or(def float64) float64 {
	if !o.Valid {
		return def
	}
	return o.Value
}

// IndicatorSnapshot is the indicator state of one ticker at one session.
// It is recomputed on every evaluation and never mutated.
type IndicatorSnapshot struct {
	Open   float64
	Close  float64
	Volume float64

	RSI14      Optional
	SMA5       Optional
	SMA20      Optional
	SMA75      Optional
	BBUpper    Optional
	BBLower    Optional
	ATR14      Optional
	MACD       Optional
	MACDSignal Optional
	MACDHist   Optional
	VolumeSMA5 Optional

	// Previous session values used for "rising" checks.
	PrevSMA5     Optional
	PrevMACDHist Optional
	// Highest close of the 5 sessions before this one.
	PrevHigh5 Optional
}

// UpsideRatio is the distance from close to the upper band in ATR units.
// It is 0 when ATR is unavailable or not positive, and never negative: a
// close above the band has no upside left.
func (s *IndicatorSnapshot) UpsideRatio() float64 {
	if !s.ATR14.Valid || s.ATR14.Value <= 0 || !s.BBUpper.Valid {
		return 0
	}
	return math.Max(0, (s.BBUpper.Value-s.Close)/s.ATR14.Value)
}
