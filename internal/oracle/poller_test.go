package oracle

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oddsgap/internal/domain"
	"github.com/alanyoungcy/oddsgap/internal/trigger"
)

type pollClient struct {
	games []string
	books map[string]domain.OracleBook
}

func (p *pollClient) FetchBook(ctx context.Context, gameKey string, marketType domain.MarketType) (domain.OracleBook, error) {
	return p.books[gameKey], nil
}

func (p *pollClient) ListGames(ctx context.Context) ([]string, error) {
	return p.games, nil
}

type recordingOpener struct {
	triggers    []domain.Trigger
	resolutions []domain.Resolution
}

func (r *recordingOpener) OpenResolved(ctx context.Context, trig domain.Trigger, res domain.Resolution) (domain.MoveEvent, error) {
	r.triggers = append(r.triggers, trig)
	r.resolutions = append(r.resolutions, res)
	return domain.MoveEvent{ID: "ev-1"}, nil
}

func moneylineBook(odds1, odds2 float64) domain.OracleBook {
	return domain.OracleBook{Outcomes: []domain.OracleOutcome{
		{Name: "Boston Celtics", Odds: odds1},
		{Name: "Miami Heat", Odds: odds2},
	}}
}

func TestPollerOpensEventOnReferenceMove(t *testing.T) {
	client := &pollClient{
		games: []string{"game-1"},
		books: map[string]domain.OracleBook{"game-1": moneylineBook(2.00, 2.00)},
	}
	opener := &recordingOpener{}
	cooldown := trigger.NewCooldown(30 * time.Minute)
	p := NewPoller(PollerConfig{MoveThreshold: 0.04}, client, cooldown, opener, slog.Default())

	// First poll only establishes the baseline.
	p.poll(context.Background())
	assert.Empty(t, opener.triggers)

	// Implied moves 0.50 -> ~0.606: well past the threshold.
	client.books["game-1"] = moneylineBook(1.60, 2.50)
	p.poll(context.Background())

	require.Len(t, opener.triggers, 1)
	trig := opener.triggers[0]
	assert.Equal(t, domain.SourceReferenceMove, trig.Source)
	assert.Equal(t, domain.RuleOracleMove, trig.Rule)
	assert.Equal(t, "game-1", trig.Key.GameID)
	assert.InDelta(t, 0.50, trig.PrevPrice, 1e-9)
	assert.InDelta(t, 0.6098, opener.resolutions[0].ImpliedProbA, 1e-3)
}

func TestPollerIgnoresSmallMoves(t *testing.T) {
	client := &pollClient{
		games: []string{"game-1"},
		books: map[string]domain.OracleBook{"game-1": moneylineBook(2.00, 2.00)},
	}
	opener := &recordingOpener{}
	p := NewPoller(PollerConfig{MoveThreshold: 0.04}, client, trigger.NewCooldown(30*time.Minute), opener, slog.Default())

	p.poll(context.Background())
	// Implied moves 0.50 -> ~0.52: under the threshold.
	client.books["game-1"] = moneylineBook(1.92, 2.08)
	p.poll(context.Background())

	assert.Empty(t, opener.triggers)
}

func TestPollerRespectsSharedCooldown(t *testing.T) {
	client := &pollClient{
		games: []string{"game-1"},
		books: map[string]domain.OracleBook{"game-1": moneylineBook(2.00, 2.00)},
	}
	opener := &recordingOpener{}
	cooldown := trigger.NewCooldown(30 * time.Minute)
	p := NewPoller(PollerConfig{MoveThreshold: 0.04}, client, cooldown, opener, slog.Default())

	p.poll(context.Background())

	// Another trigger path already spent this game's budget.
	require.True(t, cooldown.TryAcquire("game-1"))

	client.books["game-1"] = moneylineBook(1.60, 2.50)
	p.poll(context.Background())
	assert.Empty(t, opener.triggers)
}
