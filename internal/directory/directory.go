// Package directory defines the domain types and service interfaces shared by
// the harvest pipeline. Concrete implementations live in their own packages,
// which keeps the orchestrator testable against fakes and mocks.
package directory

import (
	"context"
	"time"
)

// WorkUnit is one fixed partition of the directory, crawled one at a time.
// Units are defined in static configuration and never created at runtime.
type WorkUnit struct {
	ID   int    `mapstructure:"id" json:"id"`
	Name string `mapstructure:"name" json:"name"`
	// Rank fixes the "pick next" ordering; lower ranks are crawled first.
	Rank int `mapstructure:"rank" json:"rank"`
}

// Contact holds the fields recovered from one detail page before any
// persistence decision has been made.
type Contact struct {
	FirstName string
	LastName  string
	Firm      string
	Email     string
	Website   string
}

// Record is one durable harvested contact. Records are written once and
// never mutated by this subsystem; downstream campaign tooling owns the
// lifecycle after insertion.
type Record struct {
	ID        string
	FirstName string
	LastName  string
	Firm      string
	Email     string
	Website   string
	State     string
	Source    string
	UnitID    int
	UnitName  string
	// RecordID is the directory's own identifier for the entry, kept so the
	// detail page can be revisited later.
	RecordID string
	// RandomIndex is a low-range sampling key used by downstream selection.
	RandomIndex float64
	Status      string
	CreatedAt   time.Time
}

// RunStats accumulates per-invocation counters. It is discarded after the
// run summary has been reported.
type RunStats struct {
	PagesWalked  int
	RecordsFound int
	WithEmail    int
	WithoutEmail int
	WithWebsite  int
	Duplicates   int
	Errors       int
	Inserted     int
}

// ErrorRate returns errors / max(recordsFound, 1). The floor of one keeps a
// run that found nothing but still failed from dividing by zero while still
// tripping the circuit breaker.
func (s RunStats) ErrorRate() float64 {
	found := s.RecordsFound
	if found < 1 {
		found = 1
	}
	return float64(s.Errors) / float64(found)
}

// Fetcher retrieves one URL, retrying transient failures internally.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// RecordStore is the destination collection of harvested records.
type RecordStore interface {
	// EmailExists reports whether a record with the given normalized email
	// is already stored.
	EmailExists(ctx context.Context, email string) (bool, error)
	// InsertRecords writes a batch of records.
	InsertRecords(ctx context.Context, records []Record) error
	// CountBySource returns the number of stored records for a provenance tag.
	CountBySource(ctx context.Context, source string) (int64, error)
	Close()
}

// ProgressStore persists the single crawl checkpoint document per source.
type ProgressStore interface {
	// Load returns the checkpoint, or a zero-value Progress when no
	// checkpoint exists yet. A missing document is not an error.
	Load(ctx context.Context, source string) (Progress, error)
	// Save overwrites the checkpoint. Called exactly once per run.
	Save(ctx context.Context, source string, progress Progress) error
	Close()
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}
