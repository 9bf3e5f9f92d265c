// Package persist applies the dedup check and batches accepted records into
// the destination store.
package persist

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/preintake/harvester/internal/directory"
	"github.com/preintake/harvester/internal/metrics"
)

// Batcher accepts candidate records one at a time and writes them to the
// store in bounded batches. Records are independent, so a mid-batch failure
// only loses records not yet committed; re-running is safe because the
// dedup check rejects anything already inserted.
type Batcher struct {
	store     directory.RecordStore
	clock     directory.Clock
	batchSize int
	logger    *zap.Logger

	pending []directory.Record
	// seen guards against two records in the same run sharing an email
	// before either has been flushed to the store.
	seen map[string]struct{}

	inserted   int
	duplicates int
	dropped    int
}

// New builds a Batcher flushing at batchSize records.
func New(store directory.RecordStore, clock directory.Clock, batchSize int, logger *zap.Logger) *Batcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Batcher{
		store:     store,
		clock:     clock,
		batchSize: batchSize,
		logger:    logger,
		seen:      make(map[string]struct{}),
	}
}

// NormalizeEmail produces the canonical dedup key: trimmed and lower-cased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Add runs the dedup check and stages the record for insertion. It reports
// whether the record was accepted; a false return with nil error means the
// record was a duplicate.
func (b *Batcher) Add(ctx context.Context, record directory.Record) (bool, error) {
	record.Email = NormalizeEmail(record.Email)
	if record.Email == "" {
		return false, fmt.Errorf("record has no email")
	}

	if _, dup := b.seen[record.Email]; dup {
		b.duplicates++
		metrics.ObserveDuplicate()
		return false, nil
	}
	exists, err := b.store.EmailExists(ctx, record.Email)
	if err != nil {
		return false, fmt.Errorf("dedup lookup %s: %w", record.Email, err)
	}
	if exists {
		b.seen[record.Email] = struct{}{}
		b.duplicates++
		metrics.ObserveDuplicate()
		return false, nil
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = "pending"
	}
	if record.RandomIndex == 0 {
		// Low range so these records sort ahead of other sources in
		// downstream sampling.
		record.RandomIndex = rand.Float64() * 0.1
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = b.now()
	}

	b.seen[record.Email] = struct{}{}
	b.pending = append(b.pending, record)
	b.inserted++
	if len(b.pending) >= b.batchSize {
		if err := b.Flush(ctx); err != nil {
			// The lost records are tracked in the dropped counter; the run
			// keeps going so later records can still be staged.
			b.logger.Error("record batch commit failed", zap.Error(err))
		}
	}
	return true, nil
}

// Flush writes any staged records. It must be called once more at the end
// of the run to persist the remainder. A failed flush loses the whole
// batch: every record in it moves from the inserted count to the dropped
// count, and their emails become eligible again so a later encounter in
// the same run is not mistaken for a duplicate of a record that was never
// stored.
func (b *Batcher) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = nil
	if err := b.store.InsertRecords(ctx, batch); err != nil {
		b.inserted -= len(batch)
		b.dropped += len(batch)
		for _, r := range batch {
			delete(b.seen, r.Email)
		}
		return fmt.Errorf("flush %d records: %w", len(batch), err)
	}
	metrics.ObserveInserted(len(batch))
	b.logger.Info("record batch committed", zap.Int("count", len(batch)))
	return nil
}

// Inserted returns the number of records accepted and committed or staged.
func (b *Batcher) Inserted() int { return b.inserted }

// Duplicates returns the number of records rejected by the dedup check.
func (b *Batcher) Duplicates() int { return b.duplicates }

// Dropped returns the number of accepted records lost to failed flushes.
// Each one counts as a run error so the circuit breaker sees the loss.
func (b *Batcher) Dropped() int { return b.dropped }

func (b *Batcher) now() time.Time {
	if b.clock != nil {
		return b.clock.Now()
	}
	return time.Now().UTC()
}
