package normalize

import (
	"testing"
	"time"

	"github.com/vdogroup/arbwatch/internal/market"
	"github.com/vdogroup/arbwatch/internal/oddsapi"
)

var testNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func TestNormalizeFlattens(t *testing.T) {
	events := []oddsapi.Event{
		{
			ID:           "evt1",
			SportKey:     "soccer_epl",
			CommenceTime: testNow.Add(3 * time.Hour),
			HomeTeam:     "Arsenal",
			AwayTeam:     "Chelsea",
			Bookmakers: []oddsapi.Bookmaker{
				{
					Key:   "unibet_fr",
					Title: "Unibet",
					Markets: []oddsapi.Market{
						{
							Key: "h2h",
							Outcomes: []oddsapi.Outcome{
								{Name: "Arsenal", Price: 2.40},
								{Name: "Draw", Price: 3.30},
								{Name: "Chelsea", Price: 3.10},
							},
						},
						{
							Key: "totals",
							Outcomes: []oddsapi.Outcome{
								{Name: "Over", Price: 1.95, Point: ptr(2.5)},
								{Name: "Under", Price: 1.92, Point: ptr(2.5)},
							},
						},
					},
				},
			},
		},
	}

	res := Normalize(events, "soccer_epl", testNow)
	if len(res.Quotes) != 5 {
		t.Fatalf("got %d quotes, want 5", len(res.Quotes))
	}
	if res.SkippedQuotes != 0 || res.SkippedMarkets != 0 {
		t.Fatalf("skipped %d quotes / %d markets, want none", res.SkippedQuotes, res.SkippedMarkets)
	}

	q := res.Quotes[0]
	if q.EventName != "Arsenal vs Chelsea" {
		t.Errorf("EventName = %q, want %q", q.EventName, "Arsenal vs Chelsea")
	}
	if q.Bookmaker != "Unibet" {
		t.Errorf("Bookmaker = %q, want Unibet", q.Bookmaker)
	}
	if q.Kind != market.KindH2H {
		t.Errorf("Kind = %s, want h2h", q.Kind)
	}
	if q.ObservedAt != testNow {
		t.Errorf("ObservedAt = %v, want %v", q.ObservedAt, testNow)
	}

	over := res.Quotes[3]
	if over.Kind != market.KindTotals || !over.HasLine || over.Line != 2.5 {
		t.Errorf("totals quote = %+v, want totals with line 2.5", over)
	}
}

func TestNormalizeSkipsMalformed(t *testing.T) {
	events := []oddsapi.Event{
		{
			ID:       "evt1",
			HomeTeam: "A",
			AwayTeam: "B",
			Bookmakers: []oddsapi.Bookmaker{
				{
					Key:   "pinnacle",
					Title: "Pinnacle",
					Markets: []oddsapi.Market{
						{
							Key: "h2h",
							Outcomes: []oddsapi.Outcome{
								{Name: "", Price: 2.00},      // missing outcome
								{Name: "A", Price: 0.95},     // price at or below 1
								{Name: "B", Price: 2.10},     // valid
							},
						},
						{
							Key: "totals",
							Outcomes: []oddsapi.Outcome{
								{Name: "Over", Price: 1.90}, // totals without a line
							},
						},
						{
							Key: "player_props", // not in our vocabulary
							Outcomes: []oddsapi.Outcome{
								{Name: "Someone", Price: 3.00},
							},
						},
					},
				},
			},
		},
	}

	res := Normalize(events, "soccer_epl", testNow)
	if len(res.Quotes) != 1 {
		t.Fatalf("got %d quotes, want 1", len(res.Quotes))
	}
	if res.SkippedQuotes != 3 {
		t.Errorf("SkippedQuotes = %d, want 3", res.SkippedQuotes)
	}
	if res.SkippedMarkets != 1 {
		t.Errorf("SkippedMarkets = %d, want 1", res.SkippedMarkets)
	}
}

func TestNormalizeFallsBackToBookmakerKey(t *testing.T) {
	events := []oddsapi.Event{
		{
			ID:       "evt1",
			HomeTeam: "A",
			AwayTeam: "B",
			Bookmakers: []oddsapi.Bookmaker{
				{
					Key: "winamax_fr",
					Markets: []oddsapi.Market{
						{Key: "h2h", Outcomes: []oddsapi.Outcome{{Name: "A", Price: 2.00}}},
					},
				},
			},
		},
	}

	res := Normalize(events, "soccer_epl", testNow)
	if len(res.Quotes) != 1 {
		t.Fatalf("got %d quotes, want 1", len(res.Quotes))
	}
	if res.Quotes[0].Bookmaker != "winamax_fr" {
		t.Errorf("Bookmaker = %q, want key fallback winamax_fr", res.Quotes[0].Bookmaker)
	}
}

func TestGroupByEvent(t *testing.T) {
	quotes := []market.Quote{
		{EventID: "evt1", Outcome: "A"},
		{EventID: "evt2", Outcome: "B"},
		{EventID: "evt1", Outcome: "C"},
	}

	grouped := GroupByEvent(quotes)
	if len(grouped) != 2 {
		t.Fatalf("got %d groups, want 2", len(grouped))
	}
	if len(grouped["evt1"]) != 2 {
		t.Errorf("evt1 has %d quotes, want 2", len(grouped["evt1"]))
	}
	if len(grouped["evt2"]) != 1 {
		t.Errorf("evt2 has %d quotes, want 1", len(grouped["evt2"]))
	}
}
