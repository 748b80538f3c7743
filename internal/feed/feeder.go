package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/oddsgap/internal/capture"
	"github.com/alanyoungcy/oddsgap/internal/domain"
	"github.com/alanyoungcy/oddsgap/internal/tracker"
	"github.com/alanyoungcy/oddsgap/internal/trigger"
)

// mirrorTimeout bounds the best-effort Redis mirror write per update.
const mirrorTimeout = 2 * time.Second

// Feeder glues the venue feed to the detection pipeline. Every update is
// recorded in the tracker, mirrored to the external price cache, and
// evaluated against the trigger rules; a firing trigger opens a move event
// through the capture scheduler.
//
// The feed path itself never blocks on the delayed capture tasks. The inline
// oracle call in Open is acceptable because the cooldown bounds it to one per
// game per window, not one per tick.
type Feeder struct {
	registry  *Registry
	tracker   *tracker.PriceTracker
	engine    *trigger.Engine
	scheduler *capture.Scheduler
	cache     domain.PriceCache // optional
	logger    *slog.Logger
}

// NewFeeder creates a Feeder. cache may be nil.
func NewFeeder(registry *Registry, pt *tracker.PriceTracker, engine *trigger.Engine, scheduler *capture.Scheduler, cache domain.PriceCache, logger *slog.Logger) *Feeder {
	return &Feeder{
		registry:  registry,
		tracker:   pt,
		engine:    engine,
		scheduler: scheduler,
		cache:     cache,
		logger:    logger.With(slog.String("component", "feeder")),
	}
}

// Attach registers the feeder's handlers on the WebSocket client.
func (f *Feeder) Attach(ctx context.Context, ws *WSClient) {
	ws.OnBookUpdate(func(b BookUpdate) {
		f.HandleBook(ctx, b)
	})
	ws.OnPriceUpdate(func(p PriceUpdate) {
		f.HandlePrice(ctx, p)
	})
}

// HandleBook processes an orderbook snapshot.
func (f *Feeder) HandleBook(ctx context.Context, b BookUpdate) {
	key, ok := f.registry.Lookup(b.AssetID)
	if !ok {
		return
	}
	if b.MidPrice <= 0 {
		return
	}

	f.ingest(ctx, domain.MarketUpdate{
		Key:       key,
		Price:     b.MidPrice,
		BestBid:   b.BestBid,
		BestAsk:   b.BestAsk,
		Depth:     b.Depth,
		Timestamp: b.Timestamp,
	})
}

// HandlePrice processes an incremental price change, carrying the latest
// known book state forward.
func (f *Feeder) HandlePrice(ctx context.Context, p PriceUpdate) {
	key, ok := f.registry.Lookup(p.AssetID)
	if !ok {
		return
	}

	update := domain.MarketUpdate{
		Key:       key,
		Price:     p.Price,
		Timestamp: p.Timestamp,
	}
	if snap, err := f.tracker.Snapshot(key); err == nil {
		update.BestBid = snap.BestBid
		update.BestAsk = snap.BestAsk
		update.Depth = snap.Depth
	}

	f.ingest(ctx, update)
}

func (f *Feeder) ingest(ctx context.Context, u domain.MarketUpdate) {
	f.tracker.Update(u)
	f.mirror(ctx, u)

	trig := f.engine.Evaluate(u)
	if trig == nil {
		return
	}

	if _, err := f.scheduler.Open(ctx, *trig); err != nil {
		f.logger.Error("open move event failed",
			slog.String("game", trig.Key.GameID),
			slog.String("rule", string(trig.Rule)),
			slog.String("error", err.Error()),
		)
	}
}

func (f *Feeder) mirror(ctx context.Context, u domain.MarketUpdate) {
	if f.cache == nil {
		return
	}
	mctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()
	if err := f.cache.SetLatest(mctx, u); err != nil {
		f.logger.Debug("price mirror failed",
			slog.String("key", u.Key.String()),
			slog.String("error", err.Error()),
		)
	}
}
