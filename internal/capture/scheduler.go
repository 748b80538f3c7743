// Package capture owns the lifecycle of a move event: it records the baseline
// snapshot, schedules one independent delayed task per configured offset, and
// finalizes each capture into storage as a gap-sample row. Each delayed task
// is self-contained; none holds a lock across its sleep and none depends on
// its siblings, so a burst of simultaneous events never serializes ingestion.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/oddsgap/internal/domain"
	"github.com/alanyoungcy/oddsgap/internal/oracle"
	"github.com/alanyoungcy/oddsgap/internal/tracker"
)

// sampleWriteTimeout bounds the storage write of a delayed sample. Delayed
// tasks are detached from the ingestion context: once an event is open it
// always produces a full set of samples.
const sampleWriteTimeout = 15 * time.Second

// Alerter raises operator notifications for actionable gaps. notify.Notifier
// satisfies it; a nil Alerter disables alerting.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the capture schedule.
type Config struct {
	// OffsetsSeconds are the delayed offsets after the baseline, in seconds.
	OffsetsSeconds []int
	// OffsetUnit scales OffsetsSeconds into sleep durations. Defaults to one
	// second; tests shrink it to drive real timers quickly.
	OffsetUnit time.Duration
	// DedupWindow is how far back FindOpenEvent looks when suppressing a
	// duplicate trigger. It should equal the trigger cooldown.
	DedupWindow time.Duration
	// ActionableGap raises an operator alert when a finalized sample's gap
	// reaches it. Zero disables alerting.
	ActionableGap float64
}

// Scheduler opens move events and captures their gap time series.
type Scheduler struct {
	cfg      Config
	tracker  *tracker.PriceTracker
	store    domain.EventStore
	resolver *oracle.Resolver
	feed     domain.GapFeed // optional
	alerter  Alerter        // optional
	logger   *slog.Logger
	now      func() time.Time

	scheduled atomic.Int64
	completed atomic.Int64
	wg        sync.WaitGroup
}

// NewScheduler creates a Scheduler. feed and alerter may be nil.
func NewScheduler(cfg Config, pt *tracker.PriceTracker, store domain.EventStore, resolver *oracle.Resolver, feed domain.GapFeed, alerter Alerter, logger *slog.Logger) *Scheduler {
	if cfg.OffsetUnit <= 0 {
		cfg.OffsetUnit = time.Second
	}
	return &Scheduler{
		cfg:      cfg,
		tracker:  pt,
		store:    store,
		resolver: resolver,
		feed:     feed,
		alerter:  alerter,
		logger:   logger.With(slog.String("component", "capture")),
		now:      time.Now,
	}
}

// SetNow swaps the clock source for tests.
func (s *Scheduler) SetNow(now func() time.Time) { s.now = now }

// Open resolves the trigger against the oracle and opens a move event. The
// oracle call and the baseline write happen inline: the trigger cooldown
// already bounds how often this path runs per game.
//
// A second trigger for the same dedup key while an event is pending returns
// the existing event rather than creating a new one. When the oracle has no
// line within tolerance, the event is still opened with null reference fields
// so the attempt stays auditable. When the oracle is unreachable after the
// bounded retries, the trigger is abandoned (no event, cooldown preserved)
// and the failure is returned for logging.
func (s *Scheduler) Open(ctx context.Context, trig domain.Trigger) (domain.MoveEvent, error) {
	res, err := s.resolver.Resolve(ctx, trig.Key)
	switch {
	case err == nil:
		return s.open(ctx, trig, &res)
	case errors.Is(err, domain.ErrNoMatchingLine):
		s.logger.Warn("no oracle line within tolerance, opening unreferenced event",
			slog.String("game", trig.Key.GameID),
			slog.String("market", string(trig.Key.MarketType)),
			slog.Float64("line", trig.Key.Line),
		)
		return s.open(ctx, trig, nil)
	case oracle.IsAbandoned(err):
		return domain.MoveEvent{}, fmt.Errorf("capture: trigger abandoned: %w", err)
	default:
		return domain.MoveEvent{}, fmt.Errorf("capture: resolve: %w", err)
	}
}

// OpenResolved opens a move event from a trigger whose reference resolution is
// already in hand, e.g. when the reference poller itself observed the move.
func (s *Scheduler) OpenResolved(ctx context.Context, trig domain.Trigger, res domain.Resolution) (domain.MoveEvent, error) {
	return s.open(ctx, trig, &res)
}

func (s *Scheduler) open(ctx context.Context, trig domain.Trigger, res *domain.Resolution) (domain.MoveEvent, error) {
	dedupKey := domain.TriggerDedupKey(trig)
	since := s.now().Add(-s.cfg.DedupWindow)
	if existing, err := s.store.FindOpenEvent(ctx, dedupKey, since); err == nil {
		s.logger.Debug("duplicate trigger, reusing open event",
			slog.String("event_id", existing.ID),
			slog.String("dedup_key", dedupKey),
		)
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.MoveEvent{}, fmt.Errorf("capture: find open event: %w", err)
	}

	ev := domain.MoveEvent{
		ID:         uuid.NewString(),
		GameKey:    trig.Key.GameID,
		MarketType: trig.Key.MarketType,
		Outcome:    trig.Key.Outcome,
		Source:     trig.Source,
		Rule:       trig.Rule,
		Status:     domain.EventOpen,
		CreatedAt:  s.now(),
	}
	if trig.Key.MarketType != domain.MarketMoneyline {
		line := trig.Key.Line
		ev.VenueLine = &line
	}
	if res != nil {
		implied := res.ImpliedProbA
		ev.OracleImplied = &implied
		ev.OracleLine = res.MatchedLine
	}

	snap, snapErr := s.tracker.Snapshot(trig.Key)
	if snapErr == nil {
		price, spread, depth := snap.Price, snap.Spread(), snap.Depth
		ev.VenuePriceT0 = &price
		ev.SpreadT0 = &spread
		ev.DepthT0 = &depth
		if ev.OracleImplied != nil {
			gap := math.Abs(*ev.OracleImplied - price)
			ev.GapT0 = &gap
		}
	}

	if _, err := s.store.UpsertEvent(ctx, ev); err != nil {
		return domain.MoveEvent{}, fmt.Errorf("capture: upsert event: %w", err)
	}

	// The baseline row is durable before any delayed task exists, so no
	// delayed write can race the event's creation.
	if err := s.writeSample(ctx, ev, 0, snap, snapErr); err != nil {
		return domain.MoveEvent{}, fmt.Errorf("capture: baseline sample: %w", err)
	}

	ev.Status = domain.EventSampling
	if err := s.store.SetStatus(ctx, ev.ID, domain.EventSampling); err != nil {
		return domain.MoveEvent{}, fmt.Errorf("capture: mark sampling: %w", err)
	}

	s.schedule(ev)

	s.logger.Info("move event opened",
		slog.String("event_id", ev.ID),
		slog.String("game", ev.GameKey),
		slog.String("market", string(ev.MarketType)),
		slog.String("source", string(ev.Source)),
		slog.String("rule", string(ev.Rule)),
	)
	return ev, nil
}

// schedule launches one detached goroutine per configured offset. Tasks are
// not cancellable: an open event always produces its full set of samples,
// null-filled when the instrument has gone quiet.
func (s *Scheduler) schedule(ev domain.MoveEvent) {
	remaining := &atomic.Int32{}
	remaining.Store(int32(len(s.cfg.OffsetsSeconds)))

	for _, offset := range s.cfg.OffsetsSeconds {
		s.scheduled.Add(1)
		s.wg.Add(1)
		go s.runOffset(ev, offset, remaining)
	}
}

func (s *Scheduler) runOffset(ev domain.MoveEvent, offsetSec int, remaining *atomic.Int32) {
	defer s.wg.Done()

	t := time.NewTimer(time.Duration(offsetSec) * s.cfg.OffsetUnit)
	defer t.Stop()
	<-t.C

	ctx, cancel := context.WithTimeout(context.Background(), sampleWriteTimeout)
	defer cancel()

	if err := s.Sample(ctx, ev, offsetSec); err != nil {
		s.logger.Error("delayed sample failed",
			slog.String("event_id", ev.ID),
			slog.Int("offset_sec", offsetSec),
			slog.String("error", err.Error()),
		)
	} else {
		s.completed.Add(1)
	}

	if remaining.Add(-1) == 0 {
		if err := s.store.SetStatus(ctx, ev.ID, domain.EventClosed); err != nil {
			s.logger.Error("close event failed",
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Sample captures the instrument's state at the given offset and upserts the
// gap-sample row. A stale or never-seen instrument produces a row with null
// price and gap fields rather than a dropped row, preserving the expected row
// count per event. Repeated calls for the same (event, offset) replace the
// row; they never duplicate it.
func (s *Scheduler) Sample(ctx context.Context, ev domain.MoveEvent, offsetSec int) error {
	key := domain.InstrumentKey{
		GameID:     ev.GameKey,
		MarketType: ev.MarketType,
		Outcome:    ev.Outcome,
	}
	if ev.VenueLine != nil {
		key.Line = *ev.VenueLine
	}

	snap, snapErr := s.tracker.Snapshot(key)
	return s.writeSample(ctx, ev, offsetSec, snap, snapErr)
}

func (s *Scheduler) writeSample(ctx context.Context, ev domain.MoveEvent, offsetSec int, snap domain.InstrumentSnapshot, snapErr error) error {
	sample := domain.GapSample{
		EventID:    ev.ID,
		OffsetSec:  offsetSec,
		CapturedAt: s.now(),
	}
	if snapErr == nil {
		price, bid, ask, depth := snap.Price, snap.BestBid, snap.BestAsk, snap.Depth
		sample.VenuePrice = &price
		sample.BestBid = &bid
		sample.BestAsk = &ask
		sample.Depth = &depth
		if ev.OracleImplied != nil {
			gap := math.Abs(*ev.OracleImplied - price)
			sample.Gap = &gap
		}
	}

	if err := s.store.UpsertSample(ctx, sample); err != nil {
		return fmt.Errorf("capture: upsert sample offset=%d: %w", offsetSec, err)
	}

	s.publish(ctx, ev, sample)
	s.alert(ctx, ev, sample)
	return nil
}

func (s *Scheduler) publish(ctx context.Context, ev domain.MoveEvent, sample domain.GapSample) {
	if s.feed == nil {
		return
	}
	notice := domain.SampleNotice{
		EventID:    ev.ID,
		GameKey:    ev.GameKey,
		MarketType: ev.MarketType,
		OffsetSec:  sample.OffsetSec,
		VenuePrice: sample.VenuePrice,
		Gap:        sample.Gap,
		Source:     ev.Source,
		CapturedAt: sample.CapturedAt,
	}
	if err := s.feed.PublishSample(ctx, notice); err != nil {
		s.logger.Warn("gap feed publish failed",
			slog.String("event_id", ev.ID),
			slog.Int("offset_sec", sample.OffsetSec),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Scheduler) alert(ctx context.Context, ev domain.MoveEvent, sample domain.GapSample) {
	if s.alerter == nil || s.cfg.ActionableGap <= 0 || sample.Gap == nil || *sample.Gap < s.cfg.ActionableGap {
		return
	}
	title := fmt.Sprintf("Actionable gap %.1f%%p at t+%ds", *sample.Gap*100, sample.OffsetSec)
	msg := fmt.Sprintf("game=%s market=%s outcome=%s venue=%.3f oracle=%.3f",
		ev.GameKey, ev.MarketType, ev.Outcome, deref(sample.VenuePrice), deref(ev.OracleImplied))
	if err := s.alerter.Notify(ctx, "actionable_gap", title, msg); err != nil {
		s.logger.Warn("gap alert failed",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Wait blocks until every scheduled delayed task has finished. Used on
// shutdown and in tests; new events opened while waiting are included.
func (s *Scheduler) Wait() { s.wg.Wait() }

// Stats returns the number of delayed captures scheduled and completed.
func (s *Scheduler) Stats() (scheduled, completed int64) {
	return s.scheduled.Load(), s.completed.Load()
}

func deref(f *float64) float64 {
	if f == nil {
		return math.NaN()
	}
	return *f
}
