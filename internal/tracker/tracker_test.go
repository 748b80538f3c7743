package tracker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oddsgap/internal/domain"
)

var testKey = domain.InstrumentKey{
	GameID:     "game-1",
	MarketType: domain.MarketMoneyline,
	Outcome:    "yes",
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestUpdateAndSnapshot(t *testing.T) {
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	pt := New(300*time.Second, 120*time.Second)
	pt.SetNow(fixedClock(base.Add(time.Second)))

	pt.Update(domain.MarketUpdate{
		Key:       testKey,
		Price:     0.52,
		BestBid:   0.51,
		BestAsk:   0.53,
		Depth:     1200,
		Timestamp: base,
	})

	snap, err := pt.Snapshot(testKey)
	require.NoError(t, err)
	assert.Equal(t, 0.52, snap.Price)
	assert.Equal(t, 0.51, snap.BestBid)
	assert.Equal(t, 0.53, snap.BestAsk)
	assert.Equal(t, 1200.0, snap.Depth)
	assert.Equal(t, time.Second, snap.Age)
}

func TestSnapshotUnknownInstrument(t *testing.T) {
	pt := New(300*time.Second, 120*time.Second)

	_, err := pt.Snapshot(testKey)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSnapshotStale(t *testing.T) {
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	pt := New(300*time.Second, 120*time.Second)

	pt.Update(domain.MarketUpdate{Key: testKey, Price: 0.5, Timestamp: base})

	pt.SetNow(fixedClock(base.Add(119 * time.Second)))
	_, err := pt.Snapshot(testKey)
	require.NoError(t, err)

	pt.SetNow(fixedClock(base.Add(121 * time.Second)))
	_, err = pt.Snapshot(testKey)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestUpdateDropsOutOfOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	pt := New(300*time.Second, 120*time.Second)
	pt.SetNow(fixedClock(base.Add(10 * time.Second)))

	pt.Update(domain.MarketUpdate{Key: testKey, Price: 0.50, Timestamp: base})
	pt.Update(domain.MarketUpdate{Key: testKey, Price: 0.55, Timestamp: base.Add(5 * time.Second)})
	// Older than the latest: must be ignored.
	pt.Update(domain.MarketUpdate{Key: testKey, Price: 0.10, Timestamp: base.Add(2 * time.Second)})

	snap, err := pt.Snapshot(testKey)
	require.NoError(t, err)
	assert.Equal(t, 0.55, snap.Price)

	hist := pt.History(testKey)
	require.Len(t, hist, 2)
	assert.Equal(t, 0.50, hist[0].Price)
	assert.Equal(t, 0.55, hist[1].Price)
}

func TestUpdateSameTimestampOverwrites(t *testing.T) {
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	pt := New(300*time.Second, 120*time.Second)
	pt.SetNow(fixedClock(base))

	pt.Update(domain.MarketUpdate{Key: testKey, Price: 0.50, Timestamp: base})
	pt.Update(domain.MarketUpdate{Key: testKey, Price: 0.51, Timestamp: base})

	snap, err := pt.Snapshot(testKey)
	require.NoError(t, err)
	assert.Equal(t, 0.51, snap.Price)

	// The duplicate timestamp must not grow the history.
	assert.Len(t, pt.History(testKey), 1)
}

func TestPriceAgo(t *testing.T) {
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	pt := New(300*time.Second, 120*time.Second)

	pt.Update(domain.MarketUpdate{Key: testKey, Price: 0.40, Timestamp: base})
	pt.Update(domain.MarketUpdate{Key: testKey, Price: 0.45, Timestamp: base.Add(100 * time.Second)})
	pt.Update(domain.MarketUpdate{Key: testKey, Price: 0.50, Timestamp: base.Add(200 * time.Second)})

	pt.SetNow(fixedClock(base.Add(301 * time.Second)))

	// Cutoff at t=1s: only the t=0 point qualifies.
	price, err := pt.PriceAgo(testKey, 300*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0.40, price)

	// Cutoff at t=151s: the t=100s point is the closest at or before it.
	price, err = pt.PriceAgo(testKey, 150*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0.45, price)
}

func TestPriceAgoHistoryTooShort(t *testing.T) {
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	pt := New(300*time.Second, 120*time.Second)

	pt.Update(domain.MarketUpdate{Key: testKey, Price: 0.40, Timestamp: base})
	pt.SetNow(fixedClock(base.Add(100 * time.Second)))

	_, err := pt.PriceAgo(testKey, 200*time.Second)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestHistoryTrimmedPastWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	pt := New(300*time.Second, 120*time.Second)

	pt.Update(domain.MarketUpdate{Key: testKey, Price: 0.40, Timestamp: base})
	// Far enough ahead that the first point falls out of window+slack.
	pt.Update(domain.MarketUpdate{Key: testKey, Price: 0.45, Timestamp: base.Add(400 * time.Second)})

	hist := pt.History(testKey)
	require.Len(t, hist, 1)
	assert.Equal(t, 0.45, hist[0].Price)
}
