// Package tracker maintains the live in-memory state of every venue
// instrument: latest price, best bid/ask, depth, and a bounded history of
// (timestamp, price) samples. It is the authority for "now" that both the
// trigger rules and the delayed capture tasks read from.
package tracker

import (
	"sync"
	"time"

	"github.com/alanyoungcy/oddsgap/internal/domain"
)

// historySlack extends the retained history past the longest lookback so a
// lookup at exactly the window edge still finds an older point to diff
// against.
const historySlack = 60 * time.Second

// PricePoint records a single price observation at a point in time.
type PricePoint struct {
	Price float64
	Time  time.Time
}

type instrumentState struct {
	latest  domain.MarketUpdate
	history []PricePoint
}

// PriceTracker keeps per-instrument live state and a sliding window of recent
// prices. All methods are safe for concurrent use; instruments partition the
// state, but a single RWMutex suffices because updates are cheap appends.
type PriceTracker struct {
	states    map[domain.InstrumentKey]*instrumentState
	window    time.Duration
	staleness time.Duration
	now       func() time.Time
	mu        sync.RWMutex
}

// New creates a PriceTracker. The window parameter must cover the longest
// lookback any trigger rule uses; staleness bounds how old the latest
// observation may be before Snapshot reports the instrument as not found.
func New(window, staleness time.Duration) *PriceTracker {
	return &PriceTracker{
		states:    make(map[domain.InstrumentKey]*instrumentState),
		window:    window,
		staleness: staleness,
		now:       time.Now,
	}
}

// SetNow swaps the clock source. Tests use this to drive deterministic time.
func (pt *PriceTracker) SetNow(now func() time.Time) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.now = now
}

// Update records a new observation, overwrites the latest fields, and appends
// to the bounded history. Updates carrying a timestamp strictly older than the
// current latest are dropped silently: the feed is not required to be
// monotonic, but the history must stay time-ordered. An update at exactly the
// latest timestamp overwrites the latest fields without appending a duplicate
// history point.
func (pt *PriceTracker) Update(u domain.MarketUpdate) {
	if u.Timestamp.IsZero() {
		u.Timestamp = pt.now()
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()

	st, ok := pt.states[u.Key]
	if !ok {
		st = &instrumentState{}
		pt.states[u.Key] = st
	}

	if !st.latest.Timestamp.IsZero() && u.Timestamp.Before(st.latest.Timestamp) {
		return
	}
	sameStamp := u.Timestamp.Equal(st.latest.Timestamp)
	st.latest = u
	if !sameStamp {
		st.history = append(st.history, PricePoint{Price: u.Price, Time: u.Timestamp})
	}
	pt.trim(st, u.Timestamp)
}

// Snapshot returns the most recent state of the instrument. It returns
// domain.ErrNotFound if the instrument has never been observed or the latest
// observation is older than the staleness threshold.
func (pt *PriceTracker) Snapshot(key domain.InstrumentKey) (domain.InstrumentSnapshot, error) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	st, ok := pt.states[key]
	if !ok || st.latest.Timestamp.IsZero() {
		return domain.InstrumentSnapshot{}, domain.ErrNotFound
	}

	age := pt.now().Sub(st.latest.Timestamp)
	if age > pt.staleness {
		return domain.InstrumentSnapshot{}, domain.ErrNotFound
	}

	return domain.InstrumentSnapshot{
		Key:     key,
		Price:   st.latest.Price,
		BestBid: st.latest.BestBid,
		BestAsk: st.latest.BestAsk,
		Depth:   st.latest.Depth,
		Age:     age,
	}, nil
}

// PriceAgo returns the price of the closest history sample whose timestamp is
// at or before now - lookback. It returns domain.ErrNotFound when the history
// does not reach back that far.
func (pt *PriceTracker) PriceAgo(key domain.InstrumentKey, lookback time.Duration) (float64, error) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	st, ok := pt.states[key]
	if !ok || len(st.history) == 0 {
		return 0, domain.ErrNotFound
	}

	cutoff := pt.now().Add(-lookback)

	// History is append-only and time-ordered, so scan backwards for the last
	// point at or before the cutoff.
	for i := len(st.history) - 1; i >= 0; i-- {
		if !st.history[i].Time.After(cutoff) {
			return st.history[i].Price, nil
		}
	}
	return 0, domain.ErrNotFound
}

// History returns a copy of the retained price history for the instrument.
// The returned slice is safe to mutate.
func (pt *PriceTracker) History(key domain.InstrumentKey) []PricePoint {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	st, ok := pt.states[key]
	if !ok || len(st.history) == 0 {
		return nil
	}
	out := make([]PricePoint, len(st.history))
	copy(out, st.history)
	return out
}

// trim evicts history points older than window+slack relative to the
// reference time. The caller must hold pt.mu.
func (pt *PriceTracker) trim(st *instrumentState, now time.Time) {
	cutoff := now.Add(-pt.window - historySlack)

	i := 0
	for i < len(st.history) && st.history[i].Time.Before(cutoff) {
		i++
	}
	if i > 0 {
		st.history = st.history[i:]
	}
}
