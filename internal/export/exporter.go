// Package export serializes closed move events and their gap time series into
// JSONL objects in blob storage, one object per export window. Downstream
// analysis reads these instead of hitting Postgres.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/oddsgap/internal/domain"
)

// Config controls one export run.
type Config struct {
	// Prefix is prepended to every object key.
	Prefix string
	// BatchLimit caps the events fetched per run.
	BatchLimit int
	// Concurrency bounds parallel sample fetches.
	Concurrency int
}

// record is one JSONL line: an event with its full series inlined.
type record struct {
	EventID       string            `json:"event_id"`
	GameKey       string            `json:"game_key"`
	MarketType    domain.MarketType `json:"market_type"`
	Outcome       string            `json:"outcome"`
	VenueLine     *float64          `json:"venue_line"`
	OracleLine    *float64          `json:"oracle_line"`
	Source        string            `json:"source"`
	Rule          string            `json:"rule"`
	OracleImplied *float64          `json:"oracle_implied"`
	VenuePriceT0  *float64          `json:"venue_price_t0"`
	GapT0         *float64          `json:"gap_t0"`
	SpreadT0      *float64          `json:"spread_t0"`
	DepthT0       *float64          `json:"depth_t0"`
	CreatedAt     time.Time         `json:"created_at"`
	Samples       []sampleRecord    `json:"samples"`
}

type sampleRecord struct {
	OffsetSec  int       `json:"offset_sec"`
	VenuePrice *float64  `json:"venue_price"`
	Gap        *float64  `json:"gap"`
	BestBid    *float64  `json:"best_bid"`
	BestAsk    *float64  `json:"best_ask"`
	Depth      *float64  `json:"depth"`
	CapturedAt time.Time `json:"captured_at"`
}

// Exporter reads closed events from the store and writes them as JSONL.
type Exporter struct {
	cfg    Config
	store  domain.EventStore
	writer domain.BlobWriter
	logger *slog.Logger
}

func New(cfg Config, store domain.EventStore, writer domain.BlobWriter, logger *slog.Logger) *Exporter {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 1000
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Exporter{
		cfg:    cfg,
		store:  store,
		writer: writer,
		logger: logger.With(slog.String("component", "exporter")),
	}
}

// Run exports all closed events created in [since, until) as one JSONL object
// and returns the object key and event count. A window with no events writes
// nothing and returns an empty key.
func (e *Exporter) Run(ctx context.Context, since, until time.Time) (string, int, error) {
	events, err := e.store.ListClosedEvents(ctx, since, until, e.cfg.BatchLimit)
	if err != nil {
		return "", 0, fmt.Errorf("export: list closed events: %w", err)
	}
	if len(events) == 0 {
		e.logger.InfoContext(ctx, "nothing to export",
			slog.Time("since", since),
			slog.Time("until", until),
		)
		return "", 0, nil
	}

	// Each goroutine writes a distinct index, so no lock is needed.
	records := make([]record, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, ev := range events {
		i, ev := i, ev
		g.Go(func() error {
			samples, err := e.store.ListSamples(gctx, ev.ID)
			if err != nil {
				return fmt.Errorf("export: list samples for %s: %w", ev.ID, err)
			}
			records[i] = buildRecord(ev, samples)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", 0, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return "", 0, fmt.Errorf("export: encode record: %w", err)
		}
	}

	key := e.objectKey(since, until)
	if err := e.writer.Write(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return "", 0, fmt.Errorf("export: write %s: %w", key, err)
	}

	e.logger.InfoContext(ctx, "export complete",
		slog.String("key", key),
		slog.Int("events", len(records)),
		slog.Int("bytes", buf.Len()),
	)
	return key, len(records), nil
}

func (e *Exporter) objectKey(since, until time.Time) string {
	return fmt.Sprintf("%sgaps_%s_%s.jsonl",
		e.cfg.Prefix,
		since.UTC().Format("20060102T150405Z"),
		until.UTC().Format("20060102T150405Z"),
	)
}

func buildRecord(ev domain.MoveEvent, samples []domain.GapSample) record {
	rec := record{
		EventID:       ev.ID,
		GameKey:       ev.GameKey,
		MarketType:    ev.MarketType,
		Outcome:       ev.Outcome,
		VenueLine:     ev.VenueLine,
		OracleLine:    ev.OracleLine,
		Source:        string(ev.Source),
		Rule:          string(ev.Rule),
		OracleImplied: ev.OracleImplied,
		VenuePriceT0:  ev.VenuePriceT0,
		GapT0:         ev.GapT0,
		SpreadT0:      ev.SpreadT0,
		DepthT0:       ev.DepthT0,
		CreatedAt:     ev.CreatedAt,
		Samples:       make([]sampleRecord, 0, len(samples)),
	}
	for _, s := range samples {
		rec.Samples = append(rec.Samples, sampleRecord{
			OffsetSec:  s.OffsetSec,
			VenuePrice: s.VenuePrice,
			Gap:        s.Gap,
			BestBid:    s.BestBid,
			BestAsk:    s.BestAsk,
			Depth:      s.Depth,
			CapturedAt: s.CapturedAt,
		})
	}
	return rec
}
