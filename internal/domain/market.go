package domain

import (
	"fmt"
	"strings"
	"time"
)

// MarketType is the closed set of betting markets the engine understands.
type MarketType int

const (
	MarketMoneyline MarketType = iota + 1
	MarketTotals
	MarketSpreads
)

// marketKeys maps each market type to the key used by odds providers.
var marketKeys = map[MarketType]string{
	MarketMoneyline: "h2h",
	MarketTotals:    "totals",
	MarketSpreads:   "spreads",
}

// MarketTypes lists every supported market in declaration order.
func MarketTypes() []MarketType {
	return []MarketType{MarketMoneyline, MarketTotals, MarketSpreads}
}

// ParseMarketType resolves a provider market key ("h2h", "totals", "spreads").
// "moneyline" and "spread" are accepted as aliases.
func ParseMarketType(key string) (MarketType, error) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "h2h", "moneyline":
		return MarketMoneyline, nil
	case "totals":
		return MarketTotals, nil
	case "spreads", "spread":
		return MarketSpreads, nil
	default:
		return 0, fmt.Errorf("market %q: %w", key, ErrUnsupportedMarket)
	}
}

// String returns the provider key of the market.
func (m MarketType) String() string {
	if k, ok := marketKeys[m]; ok {
		return k
	}
	return fmt.Sprintf("market(%d)", int(m))
}

// Valid reports whether m is one of the supported markets.
func (m MarketType) Valid() bool {
	_, ok := marketKeys[m]
	return ok
}

// HasLine reports whether quotes of this market are conditioned on a line value.
func (m MarketType) HasLine() bool {
	return m == MarketTotals || m == MarketSpreads
}

func (m MarketType) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("market(%d): %w", int(m), ErrUnsupportedMarket)
	}
	return []byte(m.String()), nil
}

func (m *MarketType) UnmarshalText(text []byte) error {
	parsed, err := ParseMarketType(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Totals outcome labels.
const (
	OutcomeOver  = "Over"
	OutcomeUnder = "Under"
)

// Event is one sporting fixture with the quotes of every bookmaker covering it.
// Events are read-only snapshots once built.
type Event struct {
	ID           string
	SportKey     string
	SportTitle   string
	HomeTeam     string
	AwayTeam     string
	CommenceTime time.Time
	Bookmakers   []Bookmaker
}

// Description renders the fixture as "home vs away".
func (e Event) Description() string {
	return e.HomeTeam + " vs " + e.AwayTeam
}

// Teams returns the home and away team names.
func (e Event) Teams() [2]string {
	return [2]string{e.HomeTeam, e.AwayTeam}
}

// Bookmaker is one bookmaker's quotes for an event.
type Bookmaker struct {
	Key        string
	Title      string
	Link       string
	LastUpdate time.Time
	Markets    []Market
}

// Market is a set of outcome quotes for one market type.
type Market struct {
	Type     MarketType
	Outcomes []Outcome
}

// Outcome is a single quote. Line is nil for moneyline quotes.
type Outcome struct {
	Name     string
	Price    float64
	Line     *float64
	Link     string
	BetLimit *float64
}

// LinePtr returns a pointer to a copy of v.
func LinePtr(v float64) *float64 {
	return &v
}
