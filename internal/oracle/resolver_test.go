package oracle

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oddsgap/internal/domain"
)

type fakeOracleClient struct {
	book  domain.OracleBook
	err   error
	calls int
}

func (f *fakeOracleClient) FetchBook(ctx context.Context, gameKey string, marketType domain.MarketType) (domain.OracleBook, error) {
	f.calls++
	if f.err != nil {
		return domain.OracleBook{}, f.err
	}
	return f.book, nil
}

func (f *fakeOracleClient) ListGames(ctx context.Context) ([]string, error) {
	return nil, nil
}

func ptr(v float64) *float64 { return &v }

func newTestResolver(client domain.OracleClient) *Resolver {
	r := NewResolver(client, Config{
		LineTolerance: 0.5,
		MaxAttempts:   3,
	}, slog.Default())
	r.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return r
}

func TestResolveMoneylineMatchesByName(t *testing.T) {
	client := &fakeOracleClient{book: domain.OracleBook{
		GameKey:    "game-1",
		MarketType: domain.MarketMoneyline,
		Outcomes: []domain.OracleOutcome{
			{Name: "Boston Celtics", Odds: 1.50},
			{Name: "Miami Heat", Odds: 2.86},
		},
	}}
	r := newTestResolver(client)

	// The venue abbreviates; substring matching bridges the naming gap.
	res, err := r.Resolve(context.Background(), domain.InstrumentKey{
		GameID:     "game-1",
		MarketType: domain.MarketMoneyline,
		Outcome:    "Celtics",
	})
	require.NoError(t, err)
	assert.Nil(t, res.MatchedLine)
	assert.InDelta(t, 0.656, res.ImpliedProbA, 1e-3)
	assert.InDelta(t, 0.344, res.ImpliedProbB, 1e-3)
}

func TestResolveMoneylineUnknownTeam(t *testing.T) {
	client := &fakeOracleClient{book: domain.OracleBook{
		Outcomes: []domain.OracleOutcome{
			{Name: "Boston Celtics", Odds: 1.50},
			{Name: "Miami Heat", Odds: 2.86},
		},
	}}
	r := newTestResolver(client)

	_, err := r.Resolve(context.Background(), domain.InstrumentKey{
		GameID:     "game-1",
		MarketType: domain.MarketMoneyline,
		Outcome:    "Lakers",
	})
	assert.True(t, errors.Is(err, domain.ErrNoMatchingLine))
}

func TestResolveLineNearestWithinTolerance(t *testing.T) {
	client := &fakeOracleClient{book: domain.OracleBook{
		MarketType: domain.MarketTotal,
		Outcomes: []domain.OracleOutcome{
			{Name: "Over", Line: ptr(231.5), Odds: 1.95},
			{Name: "Under", Line: ptr(231.5), Odds: 1.87},
			{Name: "Over", Line: ptr(233.5), Odds: 1.91},
			{Name: "Under", Line: ptr(233.5), Odds: 1.91},
		},
	}}
	r := newTestResolver(client)

	res, err := r.Resolve(context.Background(), domain.InstrumentKey{
		GameID:     "game-1",
		MarketType: domain.MarketTotal,
		Outcome:    "under",
		Line:       233.0,
	})
	require.NoError(t, err)
	require.NotNil(t, res.MatchedLine)
	assert.Equal(t, 233.5, *res.MatchedLine)
	// A is the instrument's side (Under) at even de-vigged odds.
	assert.InDelta(t, 0.5, res.ImpliedProbA, 1e-9)
}

func TestResolveLineNoneWithinTolerance(t *testing.T) {
	client := &fakeOracleClient{book: domain.OracleBook{
		MarketType: domain.MarketTotal,
		Outcomes: []domain.OracleOutcome{
			{Name: "Over", Line: ptr(235.0), Odds: 1.91},
			{Name: "Under", Line: ptr(235.0), Odds: 1.91},
		},
	}}
	r := newTestResolver(client)

	_, err := r.Resolve(context.Background(), domain.InstrumentKey{
		GameID:     "game-1",
		MarketType: domain.MarketTotal,
		Outcome:    "over",
		Line:       233.0,
	})
	assert.True(t, errors.Is(err, domain.ErrNoMatchingLine))
}

func TestResolveRetriesThenGivesUp(t *testing.T) {
	client := &fakeOracleClient{err: errors.New("connection refused")}
	r := newTestResolver(client)

	_, err := r.Resolve(context.Background(), domain.InstrumentKey{
		GameID:     "game-1",
		MarketType: domain.MarketMoneyline,
		Outcome:    "Celtics",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstreamUnavailable))
	assert.True(t, IsAbandoned(err))
	assert.Equal(t, 3, client.calls)
}

func TestResolveSucceedsAfterTransientFailure(t *testing.T) {
	client := &flakyClient{failures: 2, book: domain.OracleBook{
		Outcomes: []domain.OracleOutcome{
			{Name: "Boston Celtics", Odds: 1.91},
			{Name: "Miami Heat", Odds: 1.91},
		},
	}}
	r := newTestResolver(client)

	res, err := r.Resolve(context.Background(), domain.InstrumentKey{
		GameID:     "game-1",
		MarketType: domain.MarketMoneyline,
		Outcome:    "Heat",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.ImpliedProbA, 1e-9)
	assert.Equal(t, 3, client.calls)
}

type flakyClient struct {
	failures int
	book     domain.OracleBook
	calls    int
}

func (f *flakyClient) FetchBook(ctx context.Context, gameKey string, marketType domain.MarketType) (domain.OracleBook, error) {
	f.calls++
	if f.calls <= f.failures {
		return domain.OracleBook{}, errors.New("upstream timeout")
	}
	return f.book, nil
}

func (f *flakyClient) ListGames(ctx context.Context) ([]string, error) {
	return nil, nil
}
