package oracle

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/oddsgap/internal/domain"
	"github.com/alanyoungcy/oddsgap/internal/trigger"
)

// EventOpener opens a move event from a trigger whose reference resolution was
// already observed. Satisfied by the capture scheduler.
type EventOpener interface {
	OpenResolved(ctx context.Context, trig domain.Trigger, res domain.Resolution) (domain.MoveEvent, error)
}

// PollerConfig holds the reference-move detection parameters.
type PollerConfig struct {
	Interval time.Duration
	// MoveThreshold is the minimum implied-probability change between two
	// polls that counts as a reference move.
	MoveThreshold float64
}

// Poller periodically snapshots the oracle's moneyline book per offered game
// and opens a reference_move event when the fair implied probability jumps by
// the threshold between polls. The venue is expected to lag such moves; the
// capture schedule then measures how fast it catches up.
//
// The poller shares the trigger engine's cooldown, so a reference move and a
// venue anomaly on the same game never double-spend the oracle budget.
type Poller struct {
	cfg      PollerConfig
	client   domain.OracleClient
	cooldown *trigger.Cooldown
	opener   EventOpener
	logger   *slog.Logger

	// prev holds the implied probability of the first moneyline outcome per
	// game, keyed by game and outcome name, from the previous poll.
	prev map[string]referencePoint
}

type referencePoint struct {
	outcome string
	implied float64
	other   float64
}

// NewPoller creates a Poller.
func NewPoller(cfg PollerConfig, client domain.OracleClient, cooldown *trigger.Cooldown, opener EventOpener, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Poller{
		cfg:      cfg,
		client:   client,
		cooldown: cooldown,
		opener:   opener,
		logger:   logger.With(slog.String("component", "oracle_poller")),
		prev:     make(map[string]referencePoint),
	}
}

// Run polls until the context is cancelled. Individual poll failures are
// logged and skipped; they never stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Info("reference poller started",
		slog.Duration("interval", p.cfg.Interval),
		slog.Float64("move_threshold", p.cfg.MoveThreshold),
	)
	defer p.logger.Info("reference poller stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	games, err := p.client.ListGames(ctx)
	if err != nil {
		p.logger.Warn("list games failed", slog.String("error", err.Error()))
		return
	}

	for _, game := range games {
		if err := p.pollGame(ctx, game); err != nil {
			p.logger.Warn("poll game failed",
				slog.String("game", game),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Poller) pollGame(ctx context.Context, game string) error {
	book, err := p.client.FetchBook(ctx, game, domain.MarketMoneyline)
	if err != nil {
		return err
	}
	if len(book.Outcomes) < 2 {
		return nil
	}

	implied, other := DeVig(book.Outcomes[0].Odds, book.Outcomes[1].Odds)
	point := referencePoint{outcome: book.Outcomes[0].Name, implied: implied, other: other}

	last, seen := p.prev[game]
	p.prev[game] = point
	if !seen || last.outcome != point.outcome {
		return nil
	}

	delta := point.implied - last.implied
	if math.Abs(delta) < p.cfg.MoveThreshold {
		return nil
	}

	if !p.cooldown.TryAcquire(game) {
		p.logger.Debug("reference move inside cooldown",
			slog.String("game", game),
			slog.Float64("delta", delta),
		)
		return nil
	}

	p.logger.Info("reference move detected",
		slog.String("game", game),
		slog.String("outcome", point.outcome),
		slog.Float64("prev_implied", last.implied),
		slog.Float64("new_implied", point.implied),
	)

	trig := domain.Trigger{
		Key: domain.InstrumentKey{
			GameID:     game,
			MarketType: domain.MarketMoneyline,
			Outcome:    point.outcome,
		},
		Source:    domain.SourceReferenceMove,
		Rule:      domain.RuleOracleMove,
		PrevPrice: last.implied,
		Price:     point.implied,
		FiredAt:   time.Now(),
	}
	res := domain.Resolution{ImpliedProbA: point.implied, ImpliedProbB: point.other}

	if _, err := p.opener.OpenResolved(ctx, trig, res); err != nil {
		return err
	}
	return nil
}
