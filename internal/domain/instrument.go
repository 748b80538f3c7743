// Package domain defines the core entities of the gap monitor and the
// interfaces through which the detection pipeline talks to storage, caches,
// the oracle, and notification channels. Concrete implementations live in
// their own packages (store/postgres, cache/redis, platform/oddsapi).
package domain

import (
	"fmt"
	"strings"
	"time"
)

// MarketType identifies the market family an instrument belongs to.
type MarketType string

const (
	MarketMoneyline MarketType = "moneyline"
	MarketTotal     MarketType = "total"
	MarketSpread    MarketType = "spread"
)

// OutcomeSide is the normalized side of a two-way market.
type OutcomeSide string

const (
	SideYes OutcomeSide = "yes"
	SideNo  OutcomeSide = "no"
)

// NormalizeOutcome maps a venue outcome name onto its canonical two-way side.
// Over/Home count as the yes side, Under/Away as the no side; anything else is
// passed through lowercased.
func NormalizeOutcome(outcome string) OutcomeSide {
	switch strings.ToLower(outcome) {
	case "yes", "over", "home":
		return SideYes
	case "no", "under", "away":
		return SideNo
	default:
		return OutcomeSide(strings.ToLower(outcome))
	}
}

// InstrumentKey identifies a single tradable token: one outcome of one market
// of one game. Line is zero for moneyline markets and the handicap/total line
// otherwise. The zero value is not a valid key.
type InstrumentKey struct {
	GameID     string
	MarketType MarketType
	Outcome    string
	Line       float64
}

// PairKey returns the key shared by both outcomes of the same market, used to
// group complementary instruments.
func (k InstrumentKey) PairKey() string {
	return fmt.Sprintf("%s|%s|%g", k.GameID, k.MarketType, k.Line)
}

func (k InstrumentKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%g", k.GameID, k.MarketType, strings.ToLower(k.Outcome), k.Line)
}

// MarketUpdate is a single observation delivered by the venue feed.
type MarketUpdate struct {
	Key       InstrumentKey
	Price     float64
	BestBid   float64
	BestAsk   float64
	Depth     float64
	Timestamp time.Time
}

// InstrumentSnapshot is the latest known state of an instrument, as returned
// by the price tracker at capture time.
type InstrumentSnapshot struct {
	Key     InstrumentKey
	Price   float64
	BestBid float64
	BestAsk float64
	Depth   float64
	Age     time.Duration
}

// Spread returns the current bid-ask spread.
func (s InstrumentSnapshot) Spread() float64 {
	return s.BestAsk - s.BestBid
}
