package trigger

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oddsgap/internal/domain"
	"github.com/alanyoungcy/oddsgap/internal/tracker"
)

func testEngine(t *testing.T) (*Engine, *tracker.PriceTracker) {
	t.Helper()
	pt := tracker.New(300*time.Second, 120*time.Second)
	e := New(Config{
		PriceWindow:     300 * time.Second,
		PriceThreshold:  0.05,
		SpreadThreshold: 0.05,
		SumThreshold:    0.03,
		Cooldown:        30 * time.Minute,
	}, pt, slog.Default())
	return e, pt
}

func feedUpdate(e *Engine, pt *tracker.PriceTracker, u domain.MarketUpdate) *domain.Trigger {
	pt.Update(u)
	return e.Evaluate(u)
}

func TestPriceSpikeFiresOncePerCooldown(t *testing.T) {
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	e, pt := testEngine(t)
	key := domain.InstrumentKey{GameID: "game-1", MarketType: domain.MarketMoneyline, Outcome: "yes"}

	trig := feedUpdate(e, pt, domain.MarketUpdate{Key: key, Price: 0.50, Timestamp: base})
	assert.Nil(t, trig, "no history yet, nothing to diff against")

	pt.SetNow(func() time.Time { return base.Add(301 * time.Second) })
	trig = feedUpdate(e, pt, domain.MarketUpdate{Key: key, Price: 0.56, Timestamp: base.Add(301 * time.Second)})
	require.NotNil(t, trig)
	assert.Equal(t, domain.RulePriceSpike, trig.Rule)
	assert.Equal(t, domain.SourceAnomaly, trig.Source)
	assert.Equal(t, 0.56, trig.Price)
	assert.Equal(t, 0.50, trig.PrevPrice)

	// A larger move moments later is suppressed by the per-game cooldown.
	pt.SetNow(func() time.Time { return base.Add(305 * time.Second) })
	trig = feedUpdate(e, pt, domain.MarketUpdate{Key: key, Price: 0.60, Timestamp: base.Add(305 * time.Second)})
	assert.Nil(t, trig)

	stats := e.Stats()
	assert.Equal(t, int64(2), stats.PriceSpikes)
	assert.Equal(t, int64(1), stats.Fired)
	assert.Equal(t, int64(1), stats.CooldownBlocks)
}

func TestPriceSpikeBelowThreshold(t *testing.T) {
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	e, pt := testEngine(t)
	key := domain.InstrumentKey{GameID: "game-1", MarketType: domain.MarketMoneyline, Outcome: "yes"}

	feedUpdate(e, pt, domain.MarketUpdate{Key: key, Price: 0.50, Timestamp: base})
	pt.SetNow(func() time.Time { return base.Add(301 * time.Second) })

	trig := feedUpdate(e, pt, domain.MarketUpdate{Key: key, Price: 0.54, Timestamp: base.Add(301 * time.Second)})
	assert.Nil(t, trig, "a 4%%p move is under the 5%p threshold")
}

func TestSpreadBlowout(t *testing.T) {
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	e, pt := testEngine(t)
	key := domain.InstrumentKey{GameID: "game-1", MarketType: domain.MarketTotal, Outcome: "over", Line: 225.5}

	trig := feedUpdate(e, pt, domain.MarketUpdate{
		Key: key, Price: 0.50, BestBid: 0.45, BestAsk: 0.55, Timestamp: base,
	})
	require.NotNil(t, trig)
	assert.Equal(t, domain.RuleSpreadBlowout, trig.Rule)
	assert.InDelta(t, 0.10, trig.Spread, 1e-9)
}

func TestSpreadBlowoutSkipsExtremeBooks(t *testing.T) {
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	e, pt := testEngine(t)
	key := domain.InstrumentKey{GameID: "game-1", MarketType: domain.MarketMoneyline, Outcome: "yes"}

	// A near-resolved book: huge spread but pinned at the extremes.
	trig := feedUpdate(e, pt, domain.MarketUpdate{
		Key: key, Price: 0.50, BestBid: 0.01, BestAsk: 0.99, Timestamp: base,
	})
	assert.Nil(t, trig)
}

func TestSumDeviation(t *testing.T) {
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	e, pt := testEngine(t)
	yes := domain.InstrumentKey{GameID: "game-1", MarketType: domain.MarketMoneyline, Outcome: "yes"}
	no := domain.InstrumentKey{GameID: "game-1", MarketType: domain.MarketMoneyline, Outcome: "no"}

	trig := feedUpdate(e, pt, domain.MarketUpdate{Key: yes, Price: 0.55, Timestamp: base})
	assert.Nil(t, trig, "one side alone cannot deviate")

	trig = feedUpdate(e, pt, domain.MarketUpdate{Key: no, Price: 0.52, Timestamp: base.Add(time.Second)})
	require.NotNil(t, trig)
	assert.Equal(t, domain.RuleSumDeviation, trig.Rule)
}

func TestSumDeviationWithinTolerance(t *testing.T) {
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	e, pt := testEngine(t)
	yes := domain.InstrumentKey{GameID: "game-1", MarketType: domain.MarketMoneyline, Outcome: "yes"}
	no := domain.InstrumentKey{GameID: "game-1", MarketType: domain.MarketMoneyline, Outcome: "no"}

	feedUpdate(e, pt, domain.MarketUpdate{Key: yes, Price: 0.55, Timestamp: base})
	trig := feedUpdate(e, pt, domain.MarketUpdate{Key: no, Price: 0.47, Timestamp: base.Add(time.Second)})
	assert.Nil(t, trig, "sum 1.02 is inside the 3%p tolerance")
}
