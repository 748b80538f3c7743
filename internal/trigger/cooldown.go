package trigger

import (
	"hash/fnv"
	"sync"
	"time"
)

// cooldownShards bounds lock contention when many games fire at once. Game IDs
// are hashed across shards; each shard guards its own last-trigger map.
const cooldownShards = 16

type cooldownShard struct {
	last map[string]time.Time
	mu   sync.Mutex
}

// Cooldown tracks the last trigger time per game ID and enforces a minimum
// interval between oracle calls for the same game. The check-and-set in
// TryAcquire is atomic per game, which is what bounds the external call budget
// when multiple rules fire concurrently for the same game.
type Cooldown struct {
	shards   [cooldownShards]*cooldownShard
	interval time.Duration
	now      func() time.Time
}

// NewCooldown creates a Cooldown with the given minimum re-fire interval.
func NewCooldown(interval time.Duration) *Cooldown {
	c := &Cooldown{interval: interval, now: time.Now}
	for i := range c.shards {
		c.shards[i] = &cooldownShard{last: make(map[string]time.Time)}
	}
	return c
}

func (c *Cooldown) shard(gameID string) *cooldownShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(gameID))
	return c.shards[h.Sum32()%cooldownShards]
}

// TryAcquire returns true and stamps the game when it is outside its cooldown
// window. It returns false when the game is still cooling down. The stamp is
// taken before the oracle call completes and is never rolled back: an
// abandoned trigger still consumed budget.
func (c *Cooldown) TryAcquire(gameID string) bool {
	s := c.shard(gameID)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := c.now()
	if last, ok := s.last[gameID]; ok && now.Sub(last) < c.interval {
		return false
	}
	s.last[gameID] = now
	return true
}

// Active reports whether the game is currently inside its cooldown window
// without acquiring it.
func (c *Cooldown) Active(gameID string) bool {
	s := c.shard(gameID)
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.last[gameID]
	return ok && c.now().Sub(last) < c.interval
}

// Cleanup removes entries whose cooldown has expired. Call periodically to
// prevent unbounded growth across a long season of games.
func (c *Cooldown) Cleanup() {
	now := c.now()
	for _, s := range c.shards {
		s.mu.Lock()
		for id, ts := range s.last {
			if now.Sub(ts) >= c.interval {
				delete(s.last, id)
			}
		}
		s.mu.Unlock()
	}
}
