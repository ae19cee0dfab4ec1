package config

// SportGroup buckets sports that share a market shape. Soccer carries a draw
// outcome, so its head-to-head markets are three-way.
type SportGroup string

const (
	GroupSoccer     SportGroup = "soccer"
	GroupBasketball SportGroup = "basketball"
	GroupFootball   SportGroup = "football"
	GroupTennis     SportGroup = "tennis"
)

// CatalogEntry describes one scannable sport.
type CatalogEntry struct {
	Key   string
	Label string
	Group SportGroup
}

// DefaultCatalog returns the sports we scan each cycle. SPORT_KEYS narrows
// this list at startup; unknown keys in the filter are ignored.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{Key: "soccer_france_ligue_one", Label: "Ligue 1", Group: GroupSoccer},
		{Key: "soccer_epl", Label: "Premier League", Group: GroupSoccer},
		{Key: "soccer_spain_la_liga", Label: "La Liga", Group: GroupSoccer},
		{Key: "soccer_germany_bundesliga", Label: "Bundesliga", Group: GroupSoccer},
		{Key: "soccer_italy_serie_a", Label: "Serie A", Group: GroupSoccer},
		{Key: "soccer_uefa_champs_league", Label: "Champions League", Group: GroupSoccer},
		{Key: "soccer_uefa_europa_league", Label: "Europa League", Group: GroupSoccer},
		{Key: "basketball_nba", Label: "NBA", Group: GroupBasketball},
		{Key: "basketball_euroleague", Label: "EuroLeague", Group: GroupBasketball},
		{Key: "americanfootball_nfl", Label: "NFL", Group: GroupFootball},
		{Key: "tennis_atp_french_open", Label: "ATP French Open", Group: GroupTennis},
		{Key: "tennis_wta_french_open", Label: "WTA French Open", Group: GroupTennis},
	}
}

// MarketsFor returns the provider market keys worth requesting for a sport
// group. Tennis has no draw and rarely carries useful lines, so only
// head-to-head is requested there.
func MarketsFor(group SportGroup) []string {
	switch group {
	case GroupSoccer:
		return []string{"h2h", "totals"}
	case GroupBasketball, GroupFootball:
		return []string{"h2h", "spreads", "totals"}
	case GroupTennis:
		return []string{"h2h"}
	default:
		return []string{"h2h"}
	}
}

// FilterCatalog narrows the catalog to the given sport keys. An empty filter
// returns the catalog unchanged.
func FilterCatalog(catalog []CatalogEntry, keys []string) []CatalogEntry {
	if len(keys) == 0 {
		return catalog
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var filtered []CatalogEntry
	for _, entry := range catalog {
		if want[entry.Key] {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}
