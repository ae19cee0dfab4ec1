package alerts

import (
	"context"
	"time"

	"github.com/vdogroup/arbwatch/internal/market"
)

// Payload contains all information for an opportunity alert
type Payload struct {
	SportLabel       string
	EventName        string
	MarketLabel      string
	Legs             []market.Leg
	ProfitPct        float64
	BaseStake        float64
	GuaranteedReturn float64
	CommenceTime     time.Time
	DetectedAt       time.Time
	Environment      string
}

// Gain is the locked-in profit on the base stake.
func (p *Payload) Gain() float64 {
	return p.GuaranteedReturn - p.BaseStake
}

// Sender defines the interface for alert senders. Send delivers an
// opportunity alert; Notify delivers an operational notice (low quota,
// credential failover) as free text.
type Sender interface {
	Send(ctx context.Context, payload *Payload) error
	Notify(ctx context.Context, subject, body string) error
}

// FromOpportunity builds an alert payload.
func FromOpportunity(opp *market.Opportunity, environment string) *Payload {
	return &Payload{
		SportLabel:       opp.SportLabel,
		EventName:        opp.EventName,
		MarketLabel:      opp.MarketLabel(),
		Legs:             opp.Legs,
		ProfitPct:        opp.ProfitPct,
		BaseStake:        opp.BaseStake,
		GuaranteedReturn: opp.GuaranteedReturn(),
		CommenceTime:     opp.CommenceTime,
		DetectedAt:       opp.DetectedAt,
		Environment:      environment,
	}
}
