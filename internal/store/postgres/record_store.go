package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/preintake/harvester/internal/directory"
)

// RecordStore writes harvested records into Postgres.
// It assumes a table schema like:
//
//	CREATE TABLE harvested_records (
//	    id UUID PRIMARY KEY,
//	    first_name TEXT NOT NULL,
//	    last_name TEXT NOT NULL,
//	    firm TEXT,
//	    email TEXT NOT NULL UNIQUE,
//	    website TEXT,
//	    state TEXT NOT NULL,
//	    source TEXT NOT NULL,
//	    unit_id INT NOT NULL,
//	    unit_name TEXT NOT NULL,
//	    record_id TEXT NOT NULL,
//	    random_index DOUBLE PRECISION NOT NULL,
//	    status TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
type RecordStore struct {
	pool  pool
	table string
}

// NewRecordStore creates a Postgres-backed RecordStore.
func NewRecordStore(ctx context.Context, dsn, table string) (*RecordStore, error) {
	tbl, err := checkTable(table, "harvested_records")
	if err != nil {
		return nil, err
	}
	p, err := newPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: p, table: tbl}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewRecordStoreWithPool(p pool, table string) (*RecordStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	tbl, err := checkTable(table, "harvested_records")
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: p, table: tbl}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EmailExists performs the point lookup behind the dedup check.
func (s *RecordStore) EmailExists(ctx context.Context, email string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE email = $1)`, s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("email lookup: %w", err)
	}
	return exists, nil
}

// InsertRecords writes a batch in one round trip. The unique index on email
// backs up the application-level dedup check, so a concurrent or retried
// insert of the same contact is a no-op rather than a violation.
func (s *RecordStore) InsertRecords(ctx context.Context, records []directory.Record) error {
	if len(records) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, first_name, last_name, firm, email, website,
	state, source, unit_id, unit_name, record_id,
	random_index, status, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
) ON CONFLICT (email) DO NOTHING`, s.table)

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(query,
			r.ID, r.FirstName, r.LastName, r.Firm, r.Email, r.Website,
			r.State, r.Source, r.UnitID, r.UnitName, r.RecordID,
			r.RandomIndex, r.Status, r.CreatedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck // Close surfaces the first exec error below

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert record batch: %w", err)
		}
	}
	return nil
}

// CountBySource returns the number of stored records carrying the
// provenance tag, used for run-summary totals.
func (s *RecordStore) CountBySource(ctx context.Context, source string) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE source = $1`, s.table)
	var count int64
	if err := s.pool.QueryRow(ctx, query, source).Scan(&count); err != nil {
		return 0, fmt.Errorf("count by source: %w", err)
	}
	return count, nil
}
