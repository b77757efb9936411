package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"SectorPulse/internal/logging"
)

// Discord webhook limits.
const (
	discordMaxEmbeds      = 10
	discordMaxDescription = 4096
	discordMaxTotalChars  = 6000
)

type discordFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

// chars counts the characters Discord adds to a message's embed total.
func (e discordEmbed) chars() int {
	n := utf8.RuneCountInString(e.Title) + utf8.RuneCountInString(e.Description)
	if e.Footer != nil {
		n += utf8.RuneCountInString(e.Footer.Text)
	}
	return n
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

// DiscordNotifier posts embeds to a Discord webhook.
type DiscordNotifier struct {
	WebhookURL string
	Client     *http.Client
	MaxRetries int
	Backoff    time.Duration

	logger *zap.Logger
}

// NewDiscordNotifier creates a webhook notifier.
func NewDiscordNotifier(webhookURL string, logger *zap.Logger) *DiscordNotifier {
	return &DiscordNotifier{
		WebhookURL: webhookURL,
		Client:     &http.Client{Timeout: 30 * time.Second},
		MaxRetries: 2,
		Backoff:    time.Second,
		logger:     logging.OrNop(logger),
	}
}

func (d *DiscordNotifier) Name() string { return "discord" }

// Send posts msg, split into several webhook calls when it has more embeds
// than one call allows.
func (d *DiscordNotifier) Send(ctx context.Context, msg Message) error {
	payloads := formatDiscord(msg)
	for i, p := range payloads {
		err := withRetry(ctx, d.MaxRetries, d.Backoff, func() error { return d.post(ctx, p) })
		if err != nil {
			return fmt.Errorf("discord payload %d/%d: %w", i+1, len(payloads), err)
		}
	}
	d.logger.Info("discord notification sent", zap.Int("payloads", len(payloads)), zap.Int("results", len(msg.Results)))
	return nil
}

func (d *DiscordNotifier) post(ctx context.Context, p discordPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord webhook error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// formatDiscord renders msg as webhook payloads: the macro embed first, then
// one embed per result. A payload holds at most ten embeds and at most 6000
// embed characters.
func formatDiscord(msg Message) []discordPayload {
	var embeds []discordEmbed
	if m := msg.Macro; m != nil {
		desc := m.Summary
		if scores := sortedScores(m); len(scores) > 0 {
			desc += "\n\n**" + strings.Join(scores, "**\n**") + "**"
		}
		for _, ev := range m.RiskEvents {
			desc += fmt.Sprintf("\n⚠️ %s (%s, %s)", ev.Name, ev.Date, ev.Impact)
		}
		embeds = append(embeds, discordEmbed{
			Title:       "🌍 AI Market Sentiment Analysis",
			Description: truncate(desc, discordMaxDescription),
			Color:       colorMacro,
		})
	}
	for _, r := range msg.Results {
		embeds = append(embeds, discordEmbed{
			Title:       resultTitle(r),
			Description: truncate(strings.Join(resultLines(r), "\n"), discordMaxDescription),
			Color:       signalColor(r.Signal),
			Footer:      &discordFooter{Text: "Date: " + r.DateKey()},
		})
	}

	if len(embeds) == 0 {
		return []discordPayload{{Content: truncate(msg.Text, 2000)}}
	}
	payloads := []discordPayload{{Content: msg.Title}}
	total := 0
	for _, e := range embeds {
		cur := &payloads[len(payloads)-1]
		n := e.chars()
		if len(cur.Embeds) > 0 && (len(cur.Embeds) == discordMaxEmbeds || total+n > discordMaxTotalChars) {
			payloads = append(payloads, discordPayload{})
			cur, total = &payloads[len(payloads)-1], 0
		}
		cur.Embeds = append(cur.Embeds, e)
		total += n
	}
	return payloads
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:runeCut(s, n-3)] + "..."
}
