package macro

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"SectorPulse/internal/model"
)

// Score bounds of the sentiment scale.
const (
	MinScore = -5
	MaxScore = 5
)

const overallKey = "全体"

// ExtractJSON returns the outermost JSON object in text with code fences and
// trailing commas removed.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in response: %w", model.ErrMalformedResponse)
	}
	return stripTrailingCommas(text[start : end+1]), nil
}

// stripTrailingCommas drops a comma and the whitespace after it when the next
// token closes an object or array. String literals are copied untouched.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				i = j - 1
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ParseSentiment turns a raw model response into a MacroSentiment. Both the
// nested shape ({"sector_scores": {...}, "overall_score": n, ...}) and the
// flat shape ({"<sector>": n, "全体": n, "reason_summary": "..."}) are accepted.
func ParseSentiment(text string) (*model.MacroSentiment, error) {
	obj, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("decode sentiment: %v: %w", err, model.ErrMalformedResponse)
	}

	s := &model.MacroSentiment{SectorScores: map[string]int{}}
	for key, val := range raw {
		switch strings.ToLower(key) {
		case "sector_scores", "sectors":
			var nested map[string]json.RawMessage
			if err := json.Unmarshal(val, &nested); err != nil {
				return nil, fmt.Errorf("decode sector_scores: %v: %w", err, model.ErrMalformedResponse)
			}
			for name, v := range nested {
				if score, ok := parseScore(v); ok {
					s.SectorScores[strings.TrimSpace(name)] = score
				}
			}
		case "overall_score", "overall", "market_mood", overallKey:
			if score, ok := parseScore(val); ok {
				s.OverallScore, s.HasOverall = score, true
			} else if str, ok := parseString(val); ok && s.Summary == "" {
				s.Summary = str
			}
		case "summary", "reason_summary", "reason":
			if str, ok := parseString(val); ok {
				s.Summary = str
			}
		case "risk_events", "events":
			s.RiskEvents = parseEvents(val)
		default:
			if score, ok := parseScore(val); ok {
				s.SectorScores[strings.TrimSpace(key)] = score
			}
		}
	}

	if v, ok := s.SectorScores[overallKey]; ok {
		delete(s.SectorScores, overallKey)
		if !s.HasOverall {
			s.OverallScore, s.HasOverall = v, true
		}
	}
	if len(s.SectorScores) == 0 && !s.HasOverall {
		return nil, fmt.Errorf("no scores in response: %w", model.ErrMalformedResponse)
	}
	return s, nil
}

// parseScore accepts numbers and numeric strings such as "+3", rounded and
// clamped to the score range.
func parseScore(raw json.RawMessage) (int, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, false
		}
		f, err = strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(str), "+"), 64)
		if err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return clamp(int(math.Round(f))), true
}

func clamp(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

func parseString(raw json.RawMessage) (string, bool) {
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return "", false
	}
	return strings.TrimSpace(str), true
}

func parseEvents(raw json.RawMessage) []model.RiskEvent {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	events := make([]model.RiskEvent, 0, len(items))
	for _, it := range items {
		var ev model.RiskEvent
		ev.Name, _ = parseString(it["name"])
		if ev.Name == "" {
			continue
		}
		ev.Date, _ = parseString(it["date"])
		impact, _ := parseString(it["impact"])
		ev.Impact = normalizeImpact(impact)
		events = append(events, ev)
	}
	return events
}

func normalizeImpact(s string) string {
	switch strings.ToUpper(s) {
	case model.ImpactHigh:
		return model.ImpactHigh
	case model.ImpactLow:
		return model.ImpactLow
	default:
		return model.ImpactMedium
	}
}
