package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/oddsgap/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. Upserts are
// keyed ON CONFLICT, so concurrent capture tasks writing the same
// (event, offset) resolve to a single row.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// UpsertEvent inserts or refreshes a move event and returns its ID.
func (s *EventStore) UpsertEvent(ctx context.Context, ev domain.MoveEvent) (string, error) {
	const query = `
		INSERT INTO move_events (
			id, game_key, market_type, outcome, venue_line, oracle_line,
			source, rule, oracle_implied, venue_price_t0, gap_t0,
			spread_t0, depth_t0, dedup_key, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16
		)
		ON CONFLICT (id) DO UPDATE SET
			oracle_line    = EXCLUDED.oracle_line,
			oracle_implied = EXCLUDED.oracle_implied,
			venue_price_t0 = EXCLUDED.venue_price_t0,
			gap_t0         = EXCLUDED.gap_t0,
			spread_t0      = EXCLUDED.spread_t0,
			depth_t0       = EXCLUDED.depth_t0,
			status         = EXCLUDED.status`

	_, err := s.pool.Exec(ctx, query,
		ev.ID, ev.GameKey, string(ev.MarketType), ev.Outcome, ev.VenueLine, ev.OracleLine,
		string(ev.Source), string(ev.Rule), ev.OracleImplied, ev.VenuePriceT0, ev.GapT0,
		ev.SpreadT0, ev.DepthT0, ev.DedupKey(), string(ev.Status), ev.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("postgres: upsert event %s: %w", ev.ID, err)
	}
	return ev.ID, nil
}

// UpsertSample writes one gap sample; a repeat for the same (event, offset)
// replaces the row.
func (s *EventStore) UpsertSample(ctx context.Context, sample domain.GapSample) error {
	const query = `
		INSERT INTO gap_samples (
			event_id, offset_sec, venue_price, gap, best_bid, best_ask, depth, captured_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id, offset_sec) DO UPDATE SET
			venue_price = EXCLUDED.venue_price,
			gap         = EXCLUDED.gap,
			best_bid    = EXCLUDED.best_bid,
			best_ask    = EXCLUDED.best_ask,
			depth       = EXCLUDED.depth,
			captured_at = EXCLUDED.captured_at`

	_, err := s.pool.Exec(ctx, query,
		sample.EventID, sample.OffsetSec, sample.VenuePrice, sample.Gap,
		sample.BestBid, sample.BestAsk, sample.Depth, sample.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert sample %s/%d: %w", sample.EventID, sample.OffsetSec, err)
	}
	return nil
}

const eventColumns = `
	id, game_key, market_type, outcome, venue_line, oracle_line,
	source, rule, oracle_implied, venue_price_t0, gap_t0,
	spread_t0, depth_t0, status, created_at`

// FindOpenEvent returns the most recent non-closed event for the dedup key
// created at or after since, or domain.ErrNotFound.
func (s *EventStore) FindOpenEvent(ctx context.Context, dedupKey string, since time.Time) (domain.MoveEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM move_events
		WHERE dedup_key = $1 AND status <> 'closed' AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1`

	row := s.pool.QueryRow(ctx, query, dedupKey, since)
	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MoveEvent{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.MoveEvent{}, fmt.Errorf("postgres: find open event %s: %w", dedupKey, err)
	}
	return ev, nil
}

// SetStatus transitions the event's lifecycle state.
func (s *EventStore) SetStatus(ctx context.Context, eventID string, status domain.EventStatus) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE move_events SET status = $2 WHERE id = $1",
		eventID, string(status),
	)
	if err != nil {
		return fmt.Errorf("postgres: set status %s: %w", eventID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: set status %s: %w", eventID, domain.ErrNotFound)
	}
	return nil
}

// ListClosedEvents returns closed events created in [since, until), oldest
// first, up to limit.
func (s *EventStore) ListClosedEvents(ctx context.Context, since, until time.Time, limit int) ([]domain.MoveEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM move_events
		WHERE status = 'closed' AND created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, since, until, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed events: %w", err)
	}
	defer rows.Close()

	var events []domain.MoveEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list closed events: %w", err)
	}
	return events, nil
}

// ListSamples returns an event's gap samples ordered by offset.
func (s *EventStore) ListSamples(ctx context.Context, eventID string) ([]domain.GapSample, error) {
	const query = `
		SELECT event_id, offset_sec, venue_price, gap, best_bid, best_ask, depth, captured_at
		FROM gap_samples
		WHERE event_id = $1
		ORDER BY offset_sec ASC`

	rows, err := s.pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list samples %s: %w", eventID, err)
	}
	defer rows.Close()

	var samples []domain.GapSample
	for rows.Next() {
		var sm domain.GapSample
		if err := rows.Scan(
			&sm.EventID, &sm.OffsetSec, &sm.VenuePrice, &sm.Gap,
			&sm.BestBid, &sm.BestAsk, &sm.Depth, &sm.CapturedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan sample: %w", err)
		}
		samples = append(samples, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list samples %s: %w", eventID, err)
	}
	return samples, nil
}

func scanEvent(row pgx.Row) (domain.MoveEvent, error) {
	var (
		ev                 domain.MoveEvent
		marketType, source string
		rule, status       string
	)
	err := row.Scan(
		&ev.ID, &ev.GameKey, &marketType, &ev.Outcome, &ev.VenueLine, &ev.OracleLine,
		&source, &rule, &ev.OracleImplied, &ev.VenuePriceT0, &ev.GapT0,
		&ev.SpreadT0, &ev.DepthT0, &status, &ev.CreatedAt,
	)
	if err != nil {
		return domain.MoveEvent{}, err
	}
	ev.MarketType = domain.MarketType(marketType)
	ev.Source = domain.TriggerSource(source)
	ev.Rule = domain.TriggerRule(rule)
	ev.Status = domain.EventStatus(status)
	return ev, nil
}

// Compile-time interface check.
var _ domain.EventStore = (*EventStore)(nil)
