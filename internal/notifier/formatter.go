package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"unicode/utf8"

	"SectorPulse/internal/model"
)

// Embed colors.
const (
	colorMacro      = 0x3498DB
	colorBuy        = 0xE74C3C
	colorSell       = 0x2ECC71
	colorAggressive = 0xF39C12
	colorWait       = 0x808080
)

func signalColor(s model.Signal) int {
	switch s {
	case model.SignalBuy:
		return colorBuy
	case model.SignalSell:
		return colorSell
	case model.SignalAggressive:
		return colorAggressive
	default:
		return colorWait
	}
}

func signed(v int) string {
	if v > 0 {
		return fmt.Sprintf("+%d", v)
	}
	return fmt.Sprint(v)
}

// sortedScores lists sector scores by name, overall last.
func sortedScores(m *model.MacroSentiment) []string {
	names := make([]string, 0, len(m.SectorScores))
	for k := range m.SectorScores {
		names = append(names, k)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names)+1)
	for _, k := range names {
		lines = append(lines, fmt.Sprintf("%s: %s", k, signed(m.SectorScores[k])))
	}
	if m.HasOverall {
		lines = append(lines, fmt.Sprintf("Overall: %s", signed(m.OverallScore)))
	}
	return lines
}

func resultTitle(r model.AnalysisResult) string {
	prefix := ""
	if r.Signal == model.SignalBuy || r.Signal == model.SignalAggressive {
		prefix = "🚨 "
	}
	title := fmt.Sprintf("%s%s Signal: %s", prefix, r.Ticker, r.Signal)
	if r.TrendStrength != "" {
		title += fmt.Sprintf(" [%s]", r.TrendStrength)
	}
	if r.Name != "" {
		title += " " + r.Name
	}
	return title
}

func resultLines(r model.AnalysisResult) []string {
	lines := []string{
		fmt.Sprintf("Price: %.1f", r.ClosePrice),
		fmt.Sprintf("Reason: %s", r.Reason),
		fmt.Sprintf("Sector (%s): %s", r.Sector, signed(r.MacroScore)),
		fmt.Sprintf("RSI: %.1f | ATR(14): %.1f", r.RSI14, r.ATR14),
		fmt.Sprintf("Target (+2σ): %.1f | Upside: %.1fx ATR", r.BBUpper, r.UpsideRatio),
	}
	if r.ExitGuidance != "" {
		lines = append(lines, "⚠️ "+r.ExitGuidance)
	}
	return lines
}

// FormatHTML renders a message as Telegram HTML.
func FormatHTML(msg Message) string {
	if msg.Macro == nil && len(msg.Results) == 0 {
		return html.EscapeString(msg.Text)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>%s</b>\n", html.EscapeString(msg.Title))

	if msg.Macro != nil {
		b.WriteString("\n")
		b.WriteString(FormatMacroHTML(msg.Macro))
	}

	if len(msg.Results) == 0 && msg.Macro != nil {
		b.WriteString("\nNo signals today.\n")
	}
	for _, r := range msg.Results {
		fmt.Fprintf(&b, "\n<b>%s</b>\n", html.EscapeString(resultTitle(r)))
		for _, l := range resultLines(r) {
			b.WriteString(html.EscapeString(l) + "\n")
		}
	}
	return b.String()
}

// FormatMacroHTML renders the sentiment block alone.
func FormatMacroHTML(m *model.MacroSentiment) string {
	var b strings.Builder
	b.WriteString("🌍 <b>Market sentiment</b>\n")
	if m.Summary != "" {
		b.WriteString(html.EscapeString(m.Summary) + "\n")
	}
	for _, l := range sortedScores(m) {
		b.WriteString("  " + html.EscapeString(l) + "\n")
	}
	for _, ev := range m.RiskEvents {
		fmt.Fprintf(&b, "  ⚠️ %s (%s, %s)\n", html.EscapeString(ev.Name), html.EscapeString(ev.Date), ev.Impact)
	}
	return b.String()
}

// FormatResultsText is the short listing used for chat command replies.
func FormatResultsText(results []model.AnalysisResult) string {
	if len(results) == 0 {
		return "No results stored yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Latest results %s:\n", results[0].DateKey())
	for _, r := range results {
		fmt.Fprintf(&b, "%s %s %s RSI %.1f up %.1fx\n", r.Ticker, r.Signal, r.TrendStrength, r.RSI14, r.UpsideRatio)
	}
	return b.String()
}

// SplitText cuts text into chunks of at most limit bytes on line boundaries.
// A single line longer than limit is cut hard.
func SplitText(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	var cur strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			if cur.Len() > 0 {
				chunks = append(chunks, cur.String())
				cur.Reset()
			}
			n := runeCut(line, limit)
			chunks = append(chunks, line[:n])
			line = line[n:]
		}
		if cur.Len()+len(line) > limit {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// runeCut returns the largest index <= limit that does not split a rune.
func runeCut(s string, limit int) int {
	n := limit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	if n == 0 {
		return limit
	}
	return n
}
