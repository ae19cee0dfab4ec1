package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DiscordSender sends alerts to Discord via webhook
type DiscordSender struct {
	webhookURL string
	httpClient *http.Client
}

// NewDiscordSender creates a new Discord sender
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send sends the alert to Discord
func (s *DiscordSender) Send(ctx context.Context, payload *Payload) error {
	return s.post(ctx, map[string]interface{}{
		"embeds": []interface{}{s.buildEmbed(payload)},
	})
}

// Notify sends an operational notice as a plain content message
func (s *DiscordSender) Notify(ctx context.Context, subject, body string) error {
	return s.post(ctx, map[string]interface{}{
		"content": fmt.Sprintf("⚠️ **%s**\n%s", subject, body),
	})
}

func (s *DiscordSender) post(ctx context.Context, webhookPayload map[string]interface{}) error {
	body, err := json.Marshal(webhookPayload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}

func (s *DiscordSender) buildEmbed(payload *Payload) map[string]interface{} {
	// Color scales with edge size
	var color int
	switch {
	case payload.ProfitPct >= 5.0:
		color = 0xFF0000 // Red
	case payload.ProfitPct >= 2.0:
		color = 0xFFA500 // Orange
	default:
		color = 0x00CC66 // Green
	}

	description := fmt.Sprintf("**%.2f%%** guaranteed on **%s**\nStarts %s",
		payload.ProfitPct,
		payload.MarketLabel,
		payload.CommenceTime.UTC().Format("2006-01-02 15:04 UTC"),
	)

	fields := []map[string]interface{}{
		{
			"name":   "Sport",
			"value":  payload.SportLabel,
			"inline": true,
		},
		{
			"name":   "Event",
			"value":  truncate(payload.EventName, 100),
			"inline": true,
		},
		{
			"name":   "Market",
			"value":  payload.MarketLabel,
			"inline": true,
		},
	}

	for _, leg := range payload.Legs {
		outcome := leg.Outcome
		if leg.HasLine {
			outcome = fmt.Sprintf("%s %g", outcome, leg.Line)
		}
		fields = append(fields, map[string]interface{}{
			"name":   leg.Bookmaker,
			"value":  fmt.Sprintf("%s @ **%.2f** → stake %.2f", outcome, leg.Price, leg.Stake),
			"inline": false,
		})
	}

	fields = append(fields, map[string]interface{}{
		"name":   "Return",
		"value":  fmt.Sprintf("%.2f → **%.2f** (+%.2f)", payload.BaseStake, payload.GuaranteedReturn, payload.Gain()),
		"inline": false,
	})

	footer := map[string]interface{}{
		"text": fmt.Sprintf("Arbwatch • %s • %s", payload.Environment, payload.DetectedAt.UTC().Format("2006-01-02 15:04:05 UTC")),
	}

	return map[string]interface{}{
		"title":       fmt.Sprintf("💰 Arbitrage opportunity (%.2f%%)", payload.ProfitPct),
		"description": description,
		"color":       color,
		"fields":      fields,
		"footer":      footer,
		"timestamp":   payload.DetectedAt.Format(time.RFC3339),
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
