// Package arb holds the arbitrage math. Given one event's quotes from a
// single fetch snapshot, it finds market groups where the best price per
// outcome across bookmakers implies a combined probability below 1.
package arb

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/vdogroup/arbwatch/internal/market"
)

// Evaluate scans one event's quotes for arbitrage. Quotes are grouped into
// comparable market groups (h2h together, totals by line, spreads by absolute
// line); a group yields an opportunity when every outcome is covered and the
// sum of best inverse prices is below 1 with profit at or above minProfitPct.
// threeWayH2H marks sports whose head-to-head market carries a draw, so an
// h2h group there needs all three outcomes priced.
func Evaluate(quotes []market.Quote, baseStake, minProfitPct float64, threeWayH2H bool, now time.Time) []market.Opportunity {
	var opps []market.Opportunity

	for key, group := range groupQuotes(quotes) {
		opp, ok := evaluateGroup(key, group, baseStake, minProfitPct, threeWayH2H, now)
		if ok {
			opps = append(opps, opp)
		}
	}

	// Deterministic output order for logging and tests.
	sort.Slice(opps, func(i, j int) bool {
		if opps[i].Kind != opps[j].Kind {
			return opps[i].Kind < opps[j].Kind
		}
		return opps[i].Line < opps[j].Line
	})
	return opps
}

// groupKey identifies one comparable market group within an event. Totals
// prices are only comparable at the same line; spreads at mirrored lines, so
// their key uses the absolute value.
type groupKey struct {
	kind market.Kind
	line float64
}

func groupQuotes(quotes []market.Quote) map[groupKey][]market.Quote {
	groups := make(map[groupKey][]market.Quote)
	for _, q := range quotes {
		key := groupKey{kind: q.Kind}
		switch q.Kind {
		case market.KindTotals:
			key.line = q.Line
		case market.KindSpreads:
			key.line = math.Abs(q.Line)
		}
		groups[key] = append(groups[key], q)
	}
	return groups
}

func evaluateGroup(key groupKey, quotes []market.Quote, baseStake, minProfitPct float64, threeWayH2H bool, now time.Time) (market.Opportunity, bool) {
	// Best price per outcome across bookmakers.
	best := make(map[string]market.Quote)
	for _, q := range quotes {
		if q.Price <= 1.0 {
			continue
		}
		if cur, ok := best[q.Outcome]; !ok || q.Price > cur.Price {
			best[q.Outcome] = q
		}
	}

	if len(best) < 2 {
		return market.Opportunity{}, false
	}

	// A three-way h2h market missing any of its outcomes is partial coverage,
	// not a two-way market: an unpriced side can win and lose every leg. The
	// draw outcome also reveals the shape when the sport group is unknown.
	if key.kind == market.KindH2H {
		_, hasDraw := best["Draw"]
		if (threeWayH2H || hasDraw) && len(best) != 3 {
			return market.Opportunity{}, false
		}
	}

	// Totals need both sides of the same line.
	if key.kind == market.KindTotals && len(best) != 2 {
		return market.Opportunity{}, false
	}

	// Spread legs must sit on opposite sides of the handicap; two quotes at
	// the same signed line back the same team twice.
	if key.kind == market.KindSpreads {
		if len(best) != 2 {
			return market.Opportunity{}, false
		}
		lineSum := 0.0
		for _, q := range best {
			lineSum += q.Line
		}
		if math.Abs(lineSum) > 1e-9 {
			return market.Opportunity{}, false
		}
	}

	impliedSum := 0.0
	for _, q := range best {
		impliedSum += 1.0 / q.Price
	}
	if impliedSum >= 1.0 {
		return market.Opportunity{}, false
	}

	profitPct := (1.0 - impliedSum) * 100.0
	if profitPct < minProfitPct {
		return market.Opportunity{}, false
	}

	outcomes := make([]string, 0, len(best))
	for outcome := range best {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)

	// Stakes keep full precision so every leg pays out exactly the same;
	// senders round for display only.
	legs := make([]market.Leg, 0, len(best))
	for _, outcome := range outcomes {
		q := best[outcome]
		legs = append(legs, market.Leg{
			Bookmaker: q.Bookmaker,
			Outcome:   q.Outcome,
			Line:      q.Line,
			HasLine:   q.HasLine,
			Price:     q.Price,
			Stake:     baseStake * (1.0 / q.Price) / impliedSum,
		})
	}

	ref := best[outcomes[0]]
	opp := market.Opportunity{
		SportKey:     ref.SportKey,
		EventID:      ref.EventID,
		EventName:    ref.EventName,
		Kind:         key.kind,
		Legs:         legs,
		ImpliedSum:   impliedSum,
		ProfitPct:    profitPct,
		BaseStake:    baseStake,
		CommenceTime: ref.CommenceTime,
		DetectedAt:   now,
	}
	if key.kind != market.KindH2H {
		opp.Line = key.line
		opp.HasLine = true
	}
	return opp, true
}

// Describe renders a one-line summary used in logs.
func Describe(o *market.Opportunity) string {
	return fmt.Sprintf("%s %s %.2f%% (sum %.4f)", o.EventName, o.MarketLabel(), o.ProfitPct, o.ImpliedSum)
}
