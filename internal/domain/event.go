package domain

import (
	"fmt"
	"time"
)

// TriggerSource identifies what kind of dislocation opened an event.
type TriggerSource string

const (
	// SourceReferenceMove: the oracle's implied probability moved first and
	// the venue is expected to lag behind.
	SourceReferenceMove TriggerSource = "reference_move"
	// SourceAnomaly: the venue itself printed an anomalous pattern (spike,
	// spread blowout, or complementary-sum deviation).
	SourceAnomaly TriggerSource = "anomaly"
)

// TriggerRule names the detection rule that fired.
type TriggerRule string

const (
	RulePriceSpike    TriggerRule = "price_spike"
	RuleSpreadBlowout TriggerRule = "spread_blowout"
	RuleSumDeviation  TriggerRule = "sum_deviation"
	RuleOracleMove    TriggerRule = "oracle_move"
)

// Trigger is an in-flight detection that has passed the cooldown gate but has
// not yet been resolved against the oracle.
type Trigger struct {
	Key       InstrumentKey
	Source    TriggerSource
	Rule      TriggerRule
	Price     float64
	PrevPrice float64
	Spread    float64
	FiredAt   time.Time
}

// EventStatus is the capture lifecycle state of a MoveEvent.
type EventStatus string

const (
	EventOpen     EventStatus = "open"
	EventSampling EventStatus = "sampling"
	EventClosed   EventStatus = "closed"
)

// MoveEvent is one detected dislocation worth measuring. It is created by the
// capture scheduler and is immutable afterwards except for its status; its gap
// time series lives in GapSample rows keyed by (EventID, OffsetSec).
type MoveEvent struct {
	ID            string
	GameKey       string
	MarketType    MarketType
	Outcome       string
	VenueLine     *float64
	OracleLine    *float64
	Source        TriggerSource
	Rule          TriggerRule
	OracleImplied *float64
	VenuePriceT0  *float64
	GapT0         *float64
	SpreadT0      *float64
	DepthT0       *float64
	Status        EventStatus
	CreatedAt     time.Time
}

// DedupKey identifies the at-most-one-open-event scope: a second trigger for
// the same (game, market, line) while an event is pending is suppressed.
func (e MoveEvent) DedupKey() string {
	line := 0.0
	if e.VenueLine != nil {
		line = *e.VenueLine
	}
	return fmt.Sprintf("%s|%s|%g", e.GameKey, e.MarketType, line)
}

// TriggerDedupKey builds the same key from a trigger before its event exists.
func TriggerDedupKey(t Trigger) string {
	return fmt.Sprintf("%s|%s|%g", t.Key.GameID, t.Key.MarketType, t.Key.Line)
}

// GapSample is one row of an event's gap time series: the venue state and the
// oracle-venue gap at a fixed offset after the trigger. Nil price and gap mean
// the instrument was stale or unobserved at capture time; the row is still
// written so every event carries a full set of offsets.
type GapSample struct {
	EventID    string
	OffsetSec  int
	VenuePrice *float64
	Gap        *float64
	BestBid    *float64
	BestAsk    *float64
	Depth      *float64
	CapturedAt time.Time
}

// SampleNotice is the notification emitted on the gap feed for every finalized
// sample. External analysis/report layers consume these; the monitor itself
// renders nothing.
type SampleNotice struct {
	EventID    string        `json:"event_id"`
	GameKey    string        `json:"game_key"`
	MarketType MarketType    `json:"market_type"`
	OffsetSec  int           `json:"offset_sec"`
	VenuePrice *float64      `json:"venue_price"`
	Gap        *float64      `json:"gap"`
	Source     TriggerSource `json:"source"`
	CapturedAt time.Time     `json:"captured_at"`
}
