package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownTryAcquire(t *testing.T) {
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	c := NewCooldown(30 * time.Minute)
	c.now = func() time.Time { return base }

	assert.True(t, c.TryAcquire("game-1"))
	assert.False(t, c.TryAcquire("game-1"), "second acquire inside the window must fail")
	assert.True(t, c.TryAcquire("game-2"), "cooldown is per game")

	c.now = func() time.Time { return base.Add(29 * time.Minute) }
	assert.False(t, c.TryAcquire("game-1"))
	assert.True(t, c.Active("game-1"))

	c.now = func() time.Time { return base.Add(31 * time.Minute) }
	assert.False(t, c.Active("game-1"))
	assert.True(t, c.TryAcquire("game-1"))
}

func TestCooldownCleanup(t *testing.T) {
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	c := NewCooldown(30 * time.Minute)
	c.now = func() time.Time { return base }

	c.TryAcquire("game-1")
	c.TryAcquire("game-2")

	c.now = func() time.Time { return base.Add(31 * time.Minute) }
	c.Cleanup()

	for _, s := range c.shards {
		s.mu.Lock()
		assert.Empty(t, s.last)
		s.mu.Unlock()
	}
}
