package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/oddsgap/internal/domain"
)

// latestTTL bounds how long a mirrored quote outlives its last update. Stale
// entries expiring on their own keeps resolved markets from lingering.
const latestTTL = 10 * time.Minute

// PriceCache mirrors the latest venue state per instrument into Redis hashes
// for consumers outside the monitor process. Each instrument is stored at
// "venue:{key}" with price, bid, ask, depth, and a Unix-nanosecond timestamp.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func venueKey(key domain.InstrumentKey) string {
	return "venue:" + key.String()
}

// SetLatest stores the latest observation for an instrument.
func (pc *PriceCache) SetLatest(ctx context.Context, u domain.MarketUpdate) error {
	k := venueKey(u.Key)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(u.Price, 'f', -1, 64),
		"bid":   strconv.FormatFloat(u.BestBid, 'f', -1, 64),
		"ask":   strconv.FormatFloat(u.BestAsk, 'f', -1, 64),
		"depth": strconv.FormatFloat(u.Depth, 'f', -1, 64),
		"ts":    strconv.FormatInt(u.Timestamp.UnixNano(), 10),
	}

	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, k, fields)
	pipe.Expire(ctx, k, latestTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set latest %s: %w", u.Key, err)
	}
	return nil
}

// GetLatest retrieves the latest mirrored observation for an instrument.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetLatest(ctx context.Context, key domain.InstrumentKey) (domain.MarketUpdate, error) {
	vals, err := pc.rdb.HGetAll(ctx, venueKey(key)).Result()
	if err != nil {
		return domain.MarketUpdate{}, fmt.Errorf("redis: get latest %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.MarketUpdate{}, domain.ErrNotFound
	}

	u := domain.MarketUpdate{Key: key}
	if u.Price, err = parseField(vals, "price"); err != nil {
		return domain.MarketUpdate{}, fmt.Errorf("redis: get latest %s: %w", key, err)
	}
	if u.BestBid, err = parseField(vals, "bid"); err != nil {
		return domain.MarketUpdate{}, fmt.Errorf("redis: get latest %s: %w", key, err)
	}
	if u.BestAsk, err = parseField(vals, "ask"); err != nil {
		return domain.MarketUpdate{}, fmt.Errorf("redis: get latest %s: %w", key, err)
	}
	if u.Depth, err = parseField(vals, "depth"); err != nil {
		return domain.MarketUpdate{}, fmt.Errorf("redis: get latest %s: %w", key, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.MarketUpdate{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.MarketUpdate{}, fmt.Errorf("redis: parse ts %s: %w", key, err)
	}
	u.Timestamp = time.Unix(0, tsNano)

	return u, nil
}

func parseField(vals map[string]string, field string) (float64, error) {
	raw, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return f, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
