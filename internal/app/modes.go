package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/oddsgap/internal/capture"
	"github.com/alanyoungcy/oddsgap/internal/domain"
	"github.com/alanyoungcy/oddsgap/internal/export"
	"github.com/alanyoungcy/oddsgap/internal/feed"
	"github.com/alanyoungcy/oddsgap/internal/oracle"
	"github.com/alanyoungcy/oddsgap/internal/platform/oddsapi"
	"github.com/alanyoungcy/oddsgap/internal/tracker"
	"github.com/alanyoungcy/oddsgap/internal/trigger"
)

// exportWindow is the lookback for a one-shot export run.
const exportWindow = 24 * time.Hour

// exportInterval is how often full mode flushes closed events to blob storage.
const exportInterval = time.Hour

// pipeline holds the detection components a monitoring mode runs.
type pipeline struct {
	tracker   *tracker.PriceTracker
	engine    *trigger.Engine
	scheduler *capture.Scheduler
	poller    *oracle.Poller
	registry  *feed.Registry
	feeder    *feed.Feeder
}

// buildPipeline assembles the tracker, trigger engine, oracle resolver,
// capture scheduler, and reference poller from configuration.
func (a *App) buildPipeline(deps *Dependencies) *pipeline {
	cfg := a.cfg
	window := time.Duration(cfg.Detection.PriceWindowSeconds) * time.Second
	staleness := time.Duration(cfg.Capture.StalenessSeconds) * time.Second
	cooldown := time.Duration(cfg.Detection.CooldownMinutes) * time.Minute

	pt := tracker.New(window, staleness)

	engine := trigger.New(trigger.Config{
		PriceWindow:     window,
		PriceThreshold:  cfg.Detection.PriceThreshold,
		SpreadThreshold: cfg.Detection.SpreadThreshold,
		SumThreshold:    cfg.Detection.SumThreshold,
		Cooldown:        cooldown,
	}, pt, a.logger)

	oracleClient := oddsapi.NewClient(oddsapi.Config{
		BaseURL:   cfg.Oracle.BaseURL,
		ApiKey:    cfg.Oracle.ApiKey,
		Sport:     cfg.Oracle.Sport,
		Bookmaker: cfg.Oracle.Bookmaker,
		Region:    cfg.Oracle.Region,
		Timeout:   time.Duration(cfg.Oracle.TimeoutSeconds) * time.Second,
	}, a.logger)

	resolver := oracle.NewResolver(oracleClient, oracle.Config{
		LineTolerance: cfg.Oracle.LineTolerance,
		Timeout:       time.Duration(cfg.Oracle.TimeoutSeconds) * time.Second,
		MaxAttempts:   cfg.Oracle.MaxAttempts,
		BackoffBase:   time.Duration(cfg.Oracle.BackoffBaseMs) * time.Millisecond,
	}, a.logger)

	scheduler := capture.NewScheduler(capture.Config{
		OffsetsSeconds: cfg.Capture.OffsetsSeconds,
		DedupWindow:    cooldown,
		ActionableGap:  cfg.Capture.ActionableGap,
	}, pt, deps.EventStore, resolver, deps.GapFeed, deps.Notifier, a.logger)

	poller := oracle.NewPoller(oracle.PollerConfig{
		Interval:      time.Duration(cfg.Detection.PollSeconds) * time.Second,
		MoveThreshold: cfg.Detection.OracleMoveThreshold,
	}, oracleClient, engine.Cooldown(), scheduler, a.logger)

	registry := feed.NewRegistry()
	for _, inst := range cfg.Venue.Instruments {
		registry.Register(inst.AssetID, domain.InstrumentKey{
			GameID:     inst.GameID,
			MarketType: domain.MarketType(inst.MarketType),
			Outcome:    string(domain.NormalizeOutcome(inst.Outcome)),
			Line:       inst.Line,
		})
	}

	feeder := feed.NewFeeder(registry, pt, engine, scheduler, deps.PriceCache, a.logger)

	return &pipeline{
		tracker:   pt,
		engine:    engine,
		scheduler: scheduler,
		poller:    poller,
		registry:  registry,
		feeder:    feeder,
	}
}

// runMonitor starts the venue feed, the reference poller, and the cooldown
// sweeper, and blocks until the context is cancelled. The group context lets
// extra goroutines (full mode's exporter) share the same lifetime.
func (a *App) runMonitor(ctx context.Context, deps *Dependencies, extra ...func(ctx context.Context) error) error {
	p := a.buildPipeline(deps)

	ws := feed.NewWSClient(a.cfg.Venue.WsHost)
	if err := ws.Connect(ctx); err != nil {
		return fmt.Errorf("app: connect venue feed: %w", err)
	}
	defer ws.Close()

	p.feeder.Attach(ctx, ws)
	if err := ws.Subscribe(p.registry.AssetIDs()); err != nil {
		return fmt.Errorf("app: subscribe venue feed: %w", err)
	}
	a.logger.InfoContext(ctx, "venue feed subscribed",
		slog.Int("instruments", len(p.registry.AssetIDs())),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.poller.Run(ctx)
	})

	// Sweep expired cooldown entries so the map does not grow unbounded over
	// a long season.
	cooldown := time.Duration(a.cfg.Detection.CooldownMinutes) * time.Minute
	g.Go(func() error {
		ticker := time.NewTicker(cooldown)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				p.engine.Cooldown().Cleanup()
			}
		}
	})

	for _, fn := range extra {
		fn := fn
		g.Go(func() error { return fn(ctx) })
	}

	err := g.Wait()

	// Let in-flight delayed captures land before tearing down the stores.
	p.scheduler.Wait()

	scheduled, completed := p.scheduler.Stats()
	a.logger.Info("monitor stopped",
		slog.Int64("captures_scheduled", scheduled),
		slog.Int64("captures_completed", completed),
	)
	return err
}

// MonitorMode runs detection and capture without exports.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.runMonitor(ctx, deps)
}

// ExportMode performs a one-shot export of the trailing day's closed events
// and exits.
func (a *App) ExportMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting export mode")

	exporter := export.New(export.Config{Prefix: a.cfg.S3.Prefix}, deps.EventStore, deps.BlobWriter, a.logger)
	until := time.Now().UTC()
	_, _, err := exporter.Run(ctx, until.Add(-exportWindow), until)
	return err
}

// FullMode runs the monitor pipeline plus a periodic export of closed events.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	exporter := export.New(export.Config{Prefix: a.cfg.S3.Prefix}, deps.EventStore, deps.BlobWriter, a.logger)

	return a.runMonitor(ctx, deps, func(ctx context.Context) error {
		ticker := time.NewTicker(exportInterval)
		defer ticker.Stop()

		windowStart := time.Now().UTC()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				until := time.Now().UTC()
				if _, _, err := exporter.Run(ctx, windowStart, until); err != nil {
					// Export failures must not take the monitor down; the next
					// window retries from the same start.
					a.logger.ErrorContext(ctx, "periodic export failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				windowStart = until
			}
		}
	})
}
