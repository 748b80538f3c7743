// Package oracle resolves venue instruments against the external reference
// book: it matches the relevant oracle line, strips the bookmaker margin, and
// returns fair implied probabilities. The transport lives behind
// domain.OracleClient; this package owns matching, de-vig, and retry policy.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/oddsgap/internal/domain"
)

// Config holds the matching and retry parameters for the resolver.
type Config struct {
	// LineTolerance is the maximum distance between the venue line and an
	// oracle line for the two to be considered the same market.
	LineTolerance float64
	// Timeout bounds each individual oracle call.
	Timeout time.Duration
	// MaxAttempts caps the retry loop for upstream failures.
	MaxAttempts int
	// BackoffBase is the first retry delay; subsequent delays double.
	BackoffBase time.Duration
}

// Resolver matches venue instruments to oracle lines.
type Resolver struct {
	client domain.OracleClient
	cfg    Config
	logger *slog.Logger

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewResolver creates a Resolver backed by the given oracle client.
func NewResolver(client domain.OracleClient, cfg Config, logger *slog.Logger) *Resolver {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	return &Resolver{
		client: client,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "resolver")),
		sleep:  sleepCtx,
	}
}

// Resolve fetches the oracle book for the game and market, matches the
// outcome (and, for line markets, the nearest line within tolerance), and
// returns the de-vigged implied probabilities for the instrument's side and
// its complement.
//
// It returns domain.ErrNoMatchingLine when the oracle responded but no line
// lies within tolerance, and domain.ErrUpstreamUnavailable (wrapped) once the
// bounded retry loop is exhausted.
func (r *Resolver) Resolve(ctx context.Context, key domain.InstrumentKey) (domain.Resolution, error) {
	book, err := r.fetchWithRetry(ctx, key.GameID, key.MarketType)
	if err != nil {
		return domain.Resolution{}, err
	}

	if key.MarketType == domain.MarketMoneyline {
		return r.resolveMoneyline(book, key.Outcome)
	}
	return r.resolveLine(book, key.Outcome, key.Line)
}

func (r *Resolver) fetchWithRetry(ctx context.Context, gameKey string, marketType domain.MarketType) (domain.OracleBook, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.cfg.BackoffBase << (attempt - 1)
			if err := r.sleep(ctx, delay); err != nil {
				return domain.OracleBook{}, fmt.Errorf("oracle: backoff: %w", err)
			}
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if r.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		}
		book, err := r.client.FetchBook(callCtx, gameKey, marketType)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return book, nil
		}

		lastErr = err
		r.logger.Warn("oracle fetch failed",
			slog.String("game", gameKey),
			slog.String("market", string(marketType)),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}

	return domain.OracleBook{}, fmt.Errorf("oracle: %d attempts: %w: %w",
		r.cfg.MaxAttempts, domain.ErrUpstreamUnavailable, lastErr)
}

// resolveMoneyline matches the venue outcome against the two-way moneyline
// book by team name and de-vigs the pair.
func (r *Resolver) resolveMoneyline(book domain.OracleBook, outcome string) (domain.Resolution, error) {
	if len(book.Outcomes) < 2 {
		return domain.Resolution{}, domain.ErrNoMatchingLine
	}

	idx := matchOutcomeName(outcome, book.Outcomes)
	if idx < 0 {
		return domain.Resolution{}, domain.ErrNoMatchingLine
	}
	other := 1 - idx

	probA, probB := DeVig(book.Outcomes[idx].Odds, book.Outcomes[other].Odds)
	return domain.Resolution{ImpliedProbA: probA, ImpliedProbB: probB}, nil
}

// resolveLine groups the book by line, picks the line nearest the target
// within tolerance (ties broken by absolute distance, not response order),
// and de-vigs the over/under pair at that line.
func (r *Resolver) resolveLine(book domain.OracleBook, outcome string, targetLine float64) (domain.Resolution, error) {
	byLine := make(map[float64][]domain.OracleOutcome)
	for _, oc := range book.Outcomes {
		if oc.Line == nil {
			continue
		}
		byLine[*oc.Line] = append(byLine[*oc.Line], oc)
	}

	bestLine := math.NaN()
	bestDiff := math.Inf(1)
	for line := range byLine {
		diff := math.Abs(line - targetLine)
		if diff <= r.cfg.LineTolerance && diff < bestDiff {
			bestDiff = diff
			bestLine = line
		}
	}
	if math.IsNaN(bestLine) {
		return domain.Resolution{}, domain.ErrNoMatchingLine
	}

	pair := byLine[bestLine]
	if len(pair) < 2 {
		return domain.Resolution{}, domain.ErrNoMatchingLine
	}

	first, second := pair[0], pair[1]
	side := domain.NormalizeOutcome(outcome)

	// Orient the pair so A is the instrument's side. Totals name their
	// outcomes Over/Under; spreads carry team names, where the matched name
	// wins and otherwise the normalized side decides.
	aIdx := 0
	if idx := matchOutcomeName(outcome, pair[:2]); idx >= 0 {
		aIdx = idx
	} else if domain.NormalizeOutcome(first.Name) != side && domain.NormalizeOutcome(second.Name) == side {
		aIdx = 1
	}
	bIdx := 1 - aIdx

	probA, probB := DeVig(pair[aIdx].Odds, pair[bIdx].Odds)
	matched := bestLine
	return domain.Resolution{MatchedLine: &matched, ImpliedProbA: probA, ImpliedProbB: probB}, nil
}

// matchOutcomeName finds the outcome whose name matches the venue outcome,
// case-insensitively and allowing either name to contain the other (the venue
// abbreviates team names, the oracle spells them out). Returns -1 when
// nothing matches.
func matchOutcomeName(outcome string, outcomes []domain.OracleOutcome) int {
	want := strings.ToLower(strings.TrimSpace(outcome))
	if want == "" {
		return -1
	}
	for i, oc := range outcomes {
		have := strings.ToLower(strings.TrimSpace(oc.Name))
		if have == want || strings.Contains(have, want) || strings.Contains(want, have) {
			return i
		}
	}
	return -1
}

// IsAbandoned reports whether a resolve error means the trigger should be
// dropped entirely (as opposed to opening an event with null reference
// fields).
func IsAbandoned(err error) bool {
	return errors.Is(err, domain.ErrUpstreamUnavailable)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
