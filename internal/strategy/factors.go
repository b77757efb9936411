package strategy

import "SectorPulse/internal/model"

// isBreakout: RSI has room, price above a rising SMA5 on a bullish session with
// a volume surge.
func isBreakout(in Input, th Thresholds) bool {
	s := in.Snapshot
	if !s.SMA5.Valid || !s.PrevSMA5.Valid || !s.VolumeSMA5.Valid {
		return false
	}
	return s.RSI14.Value < th.AggressiveRSIMax &&
		s.Close > s.SMA5.Value &&
		s.SMA5.Value > s.PrevSMA5.Value &&
		s.Volume > th.VolumeSurge*s.VolumeSMA5.Value &&
		s.Close > s.Open
}

// isDipBuy: oversold inside an intact long-term uptrend, macro not negative and
// enough room to the upper band.
func isDipBuy(in Input, th Thresholds) bool {
	s := in.Snapshot
	if !s.BBUpper.Valid {
		return false
	}
	return s.Close > s.SMA75.Value &&
		s.RSI14.Value <= th.Oversold &&
		in.MacroScore >= 0 &&
		s.UpsideRatio() > th.MinUpsideRatio
}

func isOverbought(in Input, th Thresholds) bool {
	return th.EnableSell && in.Snapshot.RSI14.Value >= th.Overbought
}

// trendScore counts the momentum flags, 0 to 3.
func trendScore(s *model.IndicatorSnapshot) int {
	score := 0
	if s.MACDHist.Valid && s.PrevMACDHist.Valid && s.MACDHist.Value > 0 && s.MACDHist.Value > s.PrevMACDHist.Value {
		score++
	}
	if s.BBUpper.Valid && s.Close > s.BBUpper.Value {
		score++
	}
	if s.PrevHigh5.Valid && s.Close > s.PrevHigh5.Value {
		score++
	}
	return score
}
