package alerts

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSender sends alerts to the logger
type LogSender struct {
	log *logrus.Logger
}

// NewLogSender creates a new log sender
func NewLogSender(log *logrus.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send logs the alert
func (s *LogSender) Send(ctx context.Context, payload *Payload) error {
	s.log.WithFields(logrus.Fields{
		"sport":             payload.SportLabel,
		"event":             payload.EventName,
		"market":            payload.MarketLabel,
		"profit_pct":        payload.ProfitPct,
		"base_stake":        payload.BaseStake,
		"guaranteed_return": payload.GuaranteedReturn,
		"legs":              len(payload.Legs),
	}).Info("Arbitrage opportunity")
	return nil
}

// Notify logs an operational notice
func (s *LogSender) Notify(ctx context.Context, subject, body string) error {
	s.log.WithField("subject", subject).Warn(body)
	return nil
}
