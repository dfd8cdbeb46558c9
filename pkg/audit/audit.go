// Package audit records create/drop/flush events to an optional Postgres
// sink so an operator can answer "who touched filter X and when" after the
// fact. It is enabled only when a DSN is configured; otherwise Record is a
// no-op so the rest of bloomd never has to branch on whether auditing is on.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Action names an audited operation.
type Action string

const (
	ActionCreate Action = "create"
	ActionDrop   Action = "drop"
	ActionFlush  Action = "flush"
)

// Event is a single audited operation against a filter.
type Event struct {
	ID         string
	FilterName string
	Action     Action
	Outcome    string // "ok" or an error description
	Metadata   map[string]any
	At         time.Time
}

// NewEvent fills in a fresh event ID, leaving every other field for the
// caller to set.
func NewEvent(filterName string, action Action, outcome string, at time.Time) Event {
	return Event{
		ID:         uuid.New().String(),
		FilterName: filterName,
		Action:     action,
		Outcome:    outcome,
		At:         at,
	}
}

// Sink records audit events. NopSink discards them; PGSink persists them.
type Sink interface {
	Record(ctx context.Context, ev Event) error
	Close() error
}

// NopSink discards every event; used when no audit DSN is configured.
type NopSink struct{}

func (NopSink) Record(ctx context.Context, ev Event) error { return nil }
func (NopSink) Close() error                                { return nil }

// PGSink persists audit events to PostgreSQL via pgxpool.
type PGSink struct {
	pool *pgxpool.Pool
}

// NewPGSink connects to dsn and ensures the audit_log table exists.
func NewPGSink(ctx context.Context, dsn string) (*PGSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: unreachable: %w", err)
	}

	s := &PGSink{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return s, nil
}

func (s *PGSink) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id UUID PRIMARY KEY,
		filter_name TEXT NOT NULL,
		action TEXT NOT NULL,
		outcome TEXT NOT NULL,
		metadata JSONB,
		occurred_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_filter_name ON audit_log(filter_name);
	CREATE INDEX IF NOT EXISTS idx_audit_log_occurred_at ON audit_log(occurred_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Record inserts ev into audit_log.
func (s *PGSink) Record(ctx context.Context, ev Event) error {
	metadataJSON, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("audit: marshal metadata: %w", err)
	}

	id := ev.ID
	if id == "" {
		id = uuid.New().String()
	}

	const query = `
		INSERT INTO audit_log (id, filter_name, action, outcome, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.pool.Exec(ctx, query, id, ev.FilterName, string(ev.Action), ev.Outcome, metadataJSON, ev.At)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PGSink) Close() error {
	s.pool.Close()
	return nil
}
