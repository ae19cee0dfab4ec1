package market

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind is the canonical market kind vocabulary. Upstream providers use a
// variety of names for the same markets; the normalizer maps everything onto
// these three values and downstream code never sees raw provider keys.
type Kind string

const (
	KindH2H     Kind = "h2h"
	KindTotals  Kind = "totals"
	KindSpreads Kind = "spreads"
)

// kindAliases maps provider market keys to the canonical kind.
var kindAliases = map[string]Kind{
	"h2h":        KindH2H,
	"moneyline":  KindH2H,
	"1x2":        KindH2H,
	"h2h_3_way":  KindH2H,
	"totals":     KindTotals,
	"over_under": KindTotals,
	"spreads":    KindSpreads,
	"handicap":   KindSpreads,
	"handicaps":  KindSpreads,
}

// CanonicalKind resolves a raw provider market key to a Kind. The second
// return value is false for market kinds we do not evaluate (player props,
// outrights, and anything else unrecognized).
func CanonicalKind(raw string) (Kind, bool) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(raw))]
	return k, ok
}

// Quote is one bookmaker price for one outcome of one market, normalized
// from the provider payload. Quotes are produced fresh every fetch cycle and
// never mutated.
type Quote struct {
	Bookmaker    string
	SportKey     string
	EventID      string
	EventName    string
	Kind         Kind
	Outcome      string
	Line         float64
	HasLine      bool
	Price        float64
	CommenceTime time.Time
	ObservedAt   time.Time
}

// Leg is one side of an arbitrage combination.
type Leg struct {
	Bookmaker string
	Outcome   string
	Line      float64
	HasLine   bool
	Price     float64
	Stake     float64
}

// Opportunity is a detected arbitrage combination across bookmakers. The
// implied-probability sum over all legs is below 1, so backing every leg with
// the computed stakes returns more than the base stake whatever the outcome.
type Opportunity struct {
	SportKey     string
	SportLabel   string
	EventID      string
	EventName    string
	Kind         Kind
	Line         float64
	HasLine      bool
	Legs         []Leg
	ImpliedSum   float64
	ProfitPct    float64
	BaseStake    float64
	CommenceTime time.Time
	DetectedAt   time.Time
}

// Fingerprint derives a stable identity for deduplication: same event, same
// market, same set of bookmaker/outcome legs at the same prices (rounded to
// two decimals) produce the same fingerprint across cycles.
func (o *Opportunity) Fingerprint() string {
	parts := make([]string, 0, len(o.Legs))
	for _, leg := range o.Legs {
		parts = append(parts, fmt.Sprintf("%s|%s|%.2f", leg.Bookmaker, leg.Outcome, leg.Price))
	}
	sort.Strings(parts)

	var b strings.Builder
	b.WriteString(o.EventID)
	b.WriteString("|")
	b.WriteString(string(o.Kind))
	if o.HasLine {
		fmt.Fprintf(&b, "|%.2f", o.Line)
	}
	for _, p := range parts {
		b.WriteString("|")
		b.WriteString(p)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// MarketLabel returns a human-readable market description for alerts and
// storage, e.g. "1X2", "Moneyline", "Totals 2.5", "Spread 1.5".
func (o *Opportunity) MarketLabel() string {
	switch o.Kind {
	case KindH2H:
		if len(o.Legs) == 3 {
			return "1X2"
		}
		return "Moneyline"
	case KindTotals:
		return fmt.Sprintf("Totals %g", o.Line)
	case KindSpreads:
		return fmt.Sprintf("Spread %g", o.Line)
	}
	return string(o.Kind)
}

// GuaranteedReturn is the payout of the worst leg, which by construction is
// (within rounding) the payout of every leg.
func (o *Opportunity) GuaranteedReturn() float64 {
	if len(o.Legs) == 0 {
		return 0
	}
	min := o.Legs[0].Stake * o.Legs[0].Price
	for _, leg := range o.Legs[1:] {
		if payout := leg.Stake * leg.Price; payout < min {
			min = payout
		}
	}
	return min
}

// Gain is the guaranteed profit over the base stake.
func (o *Opportunity) Gain() float64 {
	return o.GuaranteedReturn() - o.BaseStake
}
