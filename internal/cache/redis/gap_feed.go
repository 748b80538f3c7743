package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/oddsgap/internal/domain"
)

const (
	// gapChannel is the Pub/Sub channel finalized samples are announced on.
	gapChannel = "gaps"
	// gapStream is the durable stream external report layers replay from.
	gapStream = "gaps:stream"
	// gapStreamMaxLen caps the stream length, enforced via XADD MAXLEN ~.
	gapStreamMaxLen int64 = 10000
)

// GapFeed implements domain.GapFeed on Redis: every finalized gap sample is
// published to the "gaps" Pub/Sub channel for live consumers and appended to
// a capped stream for consumers that replay.
type GapFeed struct {
	rdb *redis.Client
}

// NewGapFeed creates a GapFeed backed by the given Client.
func NewGapFeed(c *Client) *GapFeed {
	return &GapFeed{rdb: c.Underlying()}
}

// PublishSample fans a sample notice out to the channel and the stream.
func (f *GapFeed) PublishSample(ctx context.Context, notice domain.SampleNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("redis: marshal sample notice: %w", err)
	}

	pipe := f.rdb.Pipeline()
	pipe.Publish(ctx, gapChannel, payload)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: gapStream,
		MaxLen: gapStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish sample %s/%d: %w", notice.EventID, notice.OffsetSec, err)
	}
	return nil
}

// Subscribe returns a channel of raw sample-notice payloads published on the
// gap channel. The subscription closes when the context is cancelled.
func (f *GapFeed) Subscribe(ctx context.Context) (<-chan []byte, error) {
	pubsub := f.rdb.Subscribe(ctx, gapChannel)

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", gapChannel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Compile-time interface check.
var _ domain.GapFeed = (*GapFeed)(nil)
