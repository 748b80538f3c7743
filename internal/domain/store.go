package domain

import (
	"context"
	"time"
)

// EventStore persists move events and their gap time series. Implementations
// must make UpsertEvent and UpsertSample atomic per key: UpsertSample keyed by
// (event id, offset), UpsertEvent keyed by the event id. Multiple in-flight
// capture tasks write concurrently.
type EventStore interface {
	// UpsertEvent inserts the event or, when an event with the same ID already
	// exists, refreshes its mutable summary fields. Returns the stored ID.
	UpsertEvent(ctx context.Context, event MoveEvent) (string, error)
	// UpsertSample writes one gap sample. Repeated writes for the same
	// (event id, offset) replace the row rather than duplicating it.
	UpsertSample(ctx context.Context, sample GapSample) error
	// FindOpenEvent returns the most recent non-closed event for the dedup key
	// created after the given cutoff, or ErrNotFound.
	FindOpenEvent(ctx context.Context, dedupKey string, since time.Time) (MoveEvent, error)
	// SetStatus transitions an event's lifecycle state.
	SetStatus(ctx context.Context, eventID string, status EventStatus) error
	// ListClosedEvents returns closed events created in [since, until) for
	// export, oldest first.
	ListClosedEvents(ctx context.Context, since, until time.Time, limit int) ([]MoveEvent, error)
	// ListSamples returns an event's samples ordered by offset.
	ListSamples(ctx context.Context, eventID string) ([]GapSample, error)
}

// PriceCache mirrors the latest venue state per instrument for consumers
// outside the process. The in-memory tracker remains the authority; the cache
// is best-effort.
type PriceCache interface {
	SetLatest(ctx context.Context, update MarketUpdate) error
	GetLatest(ctx context.Context, key InstrumentKey) (MarketUpdate, error)
}

// GapFeed publishes finalized gap samples to external consumers.
type GapFeed interface {
	PublishSample(ctx context.Context, notice SampleNotice) error
}

// BlobWriter writes an object to blob storage under the given key.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
}
