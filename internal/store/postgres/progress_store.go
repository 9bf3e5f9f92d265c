package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/preintake/harvester/internal/directory"
)

// ProgressStore persists the single crawl checkpoint document per source as
// a JSONB row. It assumes a table schema like:
//
//	CREATE TABLE crawl_progress (
//	    source TEXT PRIMARY KEY,
//	    doc JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
type ProgressStore struct {
	pool  pool
	table string
}

// NewProgressStore creates a Postgres-backed ProgressStore.
func NewProgressStore(ctx context.Context, dsn, table string) (*ProgressStore, error) {
	tbl, err := checkTable(table, "crawl_progress")
	if err != nil {
		return nil, err
	}
	p, err := newPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &ProgressStore{pool: p, table: tbl}, nil
}

// NewProgressStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewProgressStoreWithPool(p pool, table string) (*ProgressStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	tbl, err := checkTable(table, "crawl_progress")
	if err != nil {
		return nil, err
	}
	return &ProgressStore{pool: p, table: tbl}, nil
}

// Close releases the underlying pool resources.
func (s *ProgressStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load reads the checkpoint. A source with no checkpoint yet yields a
// zero-value Progress, not an error.
func (s *ProgressStore) Load(ctx context.Context, source string) (directory.Progress, error) {
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE source = $1`, s.table)
	var raw []byte
	err := s.pool.QueryRow(ctx, query, source).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return directory.Progress{}, nil
	}
	if err != nil {
		return directory.Progress{}, fmt.Errorf("load progress: %w", err)
	}

	var progress directory.Progress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return directory.Progress{}, fmt.Errorf("decode progress doc: %w", err)
	}
	return progress, nil
}

// Save overwrites the checkpoint in one upsert.
func (s *ProgressStore) Save(ctx context.Context, source string, progress directory.Progress) error {
	raw, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("encode progress doc: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (source, doc, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (source) DO UPDATE
SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`, s.table)

	if _, err := s.pool.Exec(ctx, query, source, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}
