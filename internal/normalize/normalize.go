// Package normalize converts raw provider payloads into the canonical quote
// vocabulary. It never fails on partially malformed input: bad entries are
// counted and skipped, valid siblings pass through untouched.
package normalize

import (
	"fmt"
	"time"

	"github.com/vdogroup/arbwatch/internal/market"
	"github.com/vdogroup/arbwatch/internal/oddsapi"
)

// Result carries the normalized quotes plus counters for the entries that
// were dropped, so the caller can log and record the loss without the
// normalizer taking a logger dependency.
type Result struct {
	Quotes         []market.Quote
	SkippedQuotes  int
	SkippedMarkets int
}

// Normalize flattens the bookmaker/market/outcome nesting of the provider
// payload into canonical quotes. Entries are skipped when the market kind is
// not in our vocabulary, the outcome label is missing, the price is at or
// below 1.0, or a totals/spreads outcome arrives without a line.
func Normalize(events []oddsapi.Event, sportKey string, now time.Time) Result {
	var res Result

	for _, event := range events {
		eventName := fmt.Sprintf("%s vs %s", event.HomeTeam, event.AwayTeam)

		for _, bm := range event.Bookmakers {
			bookmaker := bm.Title
			if bookmaker == "" {
				bookmaker = bm.Key
			}

			for _, m := range bm.Markets {
				kind, ok := market.CanonicalKind(m.Key)
				if !ok {
					res.SkippedMarkets++
					continue
				}

				for _, outcome := range m.Outcomes {
					if outcome.Name == "" || outcome.Price <= 1.0 {
						res.SkippedQuotes++
						continue
					}
					if kind != market.KindH2H && outcome.Point == nil {
						res.SkippedQuotes++
						continue
					}

					quote := market.Quote{
						Bookmaker:    bookmaker,
						SportKey:     sportKey,
						EventID:      event.ID,
						EventName:    eventName,
						Kind:         kind,
						Outcome:      outcome.Name,
						Price:        outcome.Price,
						CommenceTime: event.CommenceTime,
						ObservedAt:   now,
					}
					if outcome.Point != nil {
						quote.Line = *outcome.Point
						quote.HasLine = true
					}
					res.Quotes = append(res.Quotes, quote)
				}
			}
		}
	}

	return res
}

// GroupByEvent splits quotes into per-event batches so the calculator always
// evaluates one event's market group from a single fetch snapshot.
func GroupByEvent(quotes []market.Quote) map[string][]market.Quote {
	grouped := make(map[string][]market.Quote)
	for _, q := range quotes {
		grouped[q.EventID] = append(grouped[q.EventID], q)
	}
	return grouped
}
