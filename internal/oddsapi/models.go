package oddsapi

import "time"

// Event is one upcoming or live event as returned by the provider, with the
// per-bookmaker market/outcome/price nesting intact. The normalizer flattens
// this into canonical quotes; nothing else should consume the raw shape.
type Event struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	SportTitle   string      `json:"sport_title"`
	CommenceTime time.Time   `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []Bookmaker `json:"bookmakers"`
}

// Bookmaker holds one bookmaker's markets for an event.
type Bookmaker struct {
	Key        string    `json:"key"`
	Title      string    `json:"title"`
	LastUpdate time.Time `json:"last_update"`
	Markets    []Market  `json:"markets"`
}

// Market is one market kind (h2h, totals, spreads) with its outcomes.
type Market struct {
	Key      string    `json:"key"`
	Outcomes []Outcome `json:"outcomes"`
}

// Outcome is one priced side of a market. Point is present for totals and
// spreads (the line) and absent for h2h.
type Outcome struct {
	Name  string   `json:"name"`
	Price float64  `json:"price"`
	Point *float64 `json:"point,omitempty"`
}

// OddsResponse is a decoded odds fetch plus the quota metadata the provider
// reports in response headers.
type OddsResponse struct {
	Events            []Event
	RequestsUsed      int
	RequestsRemaining int
}
