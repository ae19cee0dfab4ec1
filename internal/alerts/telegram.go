package alerts

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender sends alerts to a Telegram chat via the bot API
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSender creates a new Telegram sender. The token is verified
// against the bot API during construction.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

// Send sends the alert as an HTML-formatted Telegram message
func (s *TelegramSender) Send(ctx context.Context, payload *Payload) error {
	msg := tgbotapi.NewMessage(s.chatID, s.format(payload))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// Notify sends an operational notice as plain text with a bold subject
func (s *TelegramSender) Notify(ctx context.Context, subject, body string) error {
	text := fmt.Sprintf("⚠️ <b>%s</b>\n%s", html.EscapeString(subject), html.EscapeString(body))
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram notice: %w", err)
	}
	return nil
}

func (s *TelegramSender) format(payload *Payload) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🎯 <b>Arbitrage %.2f%%</b>\n", payload.ProfitPct)
	fmt.Fprintf(&b, "🏆 %s — %s\n", html.EscapeString(payload.SportLabel), html.EscapeString(payload.EventName))
	fmt.Fprintf(&b, "📊 %s\n", html.EscapeString(payload.MarketLabel))
	fmt.Fprintf(&b, "🕙 Starts %s\n\n", payload.CommenceTime.UTC().Format("2006-01-02 15:04 UTC"))

	for _, leg := range payload.Legs {
		outcome := leg.Outcome
		if leg.HasLine {
			outcome = fmt.Sprintf("%s %g", outcome, leg.Line)
		}
		fmt.Fprintf(&b, "• %s: %s @ %.2f → stake %.2f\n",
			html.EscapeString(leg.Bookmaker), html.EscapeString(outcome), leg.Price, leg.Stake)
	}

	fmt.Fprintf(&b, "\n💰 Stake %.2f → return %.2f (+%.2f)",
		payload.BaseStake, payload.GuaranteedReturn, payload.Gain())

	return b.String()
}
