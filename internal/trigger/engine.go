// Package trigger evaluates detection rules against live tracker state and
// decides when a dislocation is worth a metered oracle lookup. Rules are
// independent and OR-combined; the per-game cooldown is the budget gate.
package trigger

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/oddsgap/internal/domain"
	"github.com/alanyoungcy/oddsgap/internal/tracker"
)

// Rules near price 0 or 1 mostly reflect resolved markets, not dislocations,
// so the spread rule skips books pinned at the extremes.
const (
	extremeBidFloor = 0.02
	extremeAskCeil  = 0.98
)

// Config holds the rule thresholds and the cooldown interval.
type Config struct {
	PriceWindow     time.Duration
	PriceThreshold  float64
	SpreadThreshold float64
	SumThreshold    float64
	Cooldown        time.Duration
}

// Stats counts rule activity since startup.
type Stats struct {
	PriceSpikes    int64
	SpreadBlowouts int64
	SumDeviations  int64
	Fired          int64
	CooldownBlocks int64
}

// Engine evaluates every feed update against the detection rules. It owns the
// per-game cooldown and the complementary-price pairs needed by the sum rule.
type Engine struct {
	cfg      Config
	tracker  *tracker.PriceTracker
	cooldown *Cooldown
	logger   *slog.Logger

	// pairs holds the latest price per normalized side of each two-way market,
	// for the complementary-sum rule.
	pairs   map[string]map[domain.OutcomeSide]float64
	pairsMu sync.Mutex

	priceSpikes    atomic.Int64
	spreadBlowouts atomic.Int64
	sumDeviations  atomic.Int64
	fired          atomic.Int64
	cooldownBlocks atomic.Int64
}

// New creates an Engine reading live state from the given tracker.
func New(cfg Config, pt *tracker.PriceTracker, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		tracker:  pt,
		cooldown: NewCooldown(cfg.Cooldown),
		logger:   logger.With(slog.String("component", "trigger")),
		pairs:    make(map[string]map[domain.OutcomeSide]float64),
	}
}

// Cooldown exposes the engine's cooldown so other trigger paths (the
// reference-move poller) share the same budget gate.
func (e *Engine) Cooldown() *Cooldown { return e.cooldown }

// Evaluate runs all rules against the update and returns a trigger when one
// fires and the game is outside its cooldown window. It returns nil both when
// no rule fires and when the cooldown suppresses a firing rule; suppression is
// not an error, just a counted no-op.
func (e *Engine) Evaluate(u domain.MarketUpdate) *domain.Trigger {
	rule, prev := e.matchRule(u)
	if rule == "" {
		return nil
	}

	if !e.cooldown.TryAcquire(u.Key.GameID) {
		e.cooldownBlocks.Add(1)
		e.logger.Debug("trigger suppressed by cooldown",
			slog.String("game", u.Key.GameID),
			slog.String("rule", string(rule)),
		)
		return nil
	}
	e.fired.Add(1)

	e.logger.Info("trigger fired",
		slog.String("game", u.Key.GameID),
		slog.String("market", string(u.Key.MarketType)),
		slog.String("rule", string(rule)),
		slog.Float64("price", u.Price),
	)

	return &domain.Trigger{
		Key:       u.Key,
		Source:    domain.SourceAnomaly,
		Rule:      rule,
		Price:     u.Price,
		PrevPrice: prev,
		Spread:    u.BestAsk - u.BestBid,
		FiredAt:   u.Timestamp,
	}
}

// matchRule checks the rules in a fixed order and returns the first that
// fires, along with the comparison price where one applies.
func (e *Engine) matchRule(u domain.MarketUpdate) (domain.TriggerRule, float64) {
	e.recordPair(u)

	// Windowed price spike.
	if old, err := e.tracker.PriceAgo(u.Key, e.cfg.PriceWindow); err == nil {
		if math.Abs(u.Price-old) >= e.cfg.PriceThreshold {
			e.priceSpikes.Add(1)
			return domain.RulePriceSpike, old
		}
	}

	// Spread blowout, skipping near-resolved books.
	if u.BestBid > extremeBidFloor && u.BestAsk < extremeAskCeil && u.BestAsk > u.BestBid {
		if u.BestAsk-u.BestBid >= e.cfg.SpreadThreshold {
			e.spreadBlowouts.Add(1)
			return domain.RuleSpreadBlowout, 0
		}
	}

	// Complementary-outcome sum deviation.
	if yes, no, ok := e.pairPrices(u.Key); ok {
		if math.Abs(1.0-(yes+no)) >= e.cfg.SumThreshold {
			e.sumDeviations.Add(1)
			return domain.RuleSumDeviation, 0
		}
	}

	return "", 0
}

func (e *Engine) recordPair(u domain.MarketUpdate) {
	side := domain.NormalizeOutcome(u.Key.Outcome)
	if side != domain.SideYes && side != domain.SideNo {
		return
	}
	e.pairsMu.Lock()
	defer e.pairsMu.Unlock()

	pk := u.Key.PairKey()
	pair, ok := e.pairs[pk]
	if !ok {
		pair = make(map[domain.OutcomeSide]float64, 2)
		e.pairs[pk] = pair
	}
	pair[side] = u.Price
}

func (e *Engine) pairPrices(key domain.InstrumentKey) (yes, no float64, ok bool) {
	e.pairsMu.Lock()
	defer e.pairsMu.Unlock()

	pair, found := e.pairs[key.PairKey()]
	if !found {
		return 0, 0, false
	}
	yes, hasYes := pair[domain.SideYes]
	no, hasNo := pair[domain.SideNo]
	return yes, no, hasYes && hasNo
}

// Stats returns a point-in-time copy of the rule counters.
func (e *Engine) Stats() Stats {
	return Stats{
		PriceSpikes:    e.priceSpikes.Load(),
		SpreadBlowouts: e.spreadBlowouts.Load(),
		SumDeviations:  e.sumDeviations.Load(),
		Fired:          e.fired.Load(),
		CooldownBlocks: e.cooldownBlocks.Load(),
	}
}
