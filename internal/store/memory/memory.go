// Package memory provides in-memory store implementations for tests and
// dry runs where no database is available.
package memory

import (
	"context"
	"sync"

	"github.com/preintake/harvester/internal/directory"
)

// RecordStore keeps harvested records in a map keyed by normalized email.
type RecordStore struct {
	mu      sync.Mutex
	byEmail map[string]directory.Record
}

// NewRecordStore builds an empty in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{byEmail: make(map[string]directory.Record)}
}

// EmailExists reports whether a record with the email is stored.
func (s *RecordStore) EmailExists(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byEmail[email]
	return ok, nil
}

// InsertRecords stores the batch; records with an already-stored email are
// silently skipped, matching the database's conflict behavior.
func (s *RecordStore) InsertRecords(_ context.Context, records []directory.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if _, ok := s.byEmail[r.Email]; ok {
			continue
		}
		s.byEmail[r.Email] = r
	}
	return nil
}

// CountBySource counts stored records with the provenance tag.
func (s *RecordStore) CountBySource(_ context.Context, source string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.byEmail {
		if r.Source == source {
			n++
		}
	}
	return n, nil
}

// Records returns a snapshot of everything stored, for test assertions.
func (s *RecordStore) Records() []directory.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]directory.Record, 0, len(s.byEmail))
	for _, r := range s.byEmail {
		out = append(out, r)
	}
	return out
}

// Close implements directory.RecordStore; it performs no action.
func (s *RecordStore) Close() {}

// ProgressStore keeps checkpoint documents in a map keyed by source.
type ProgressStore struct {
	mu   sync.Mutex
	docs map[string]directory.Progress
}

// NewProgressStore builds an empty in-memory progress store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{docs: make(map[string]directory.Progress)}
}

// Load returns the stored checkpoint, or a zero value when absent.
func (s *ProgressStore) Load(_ context.Context, source string) (directory.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[source], nil
}

// Save overwrites the checkpoint.
func (s *ProgressStore) Save(_ context.Context, source string, progress directory.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[source] = progress
	return nil
}

// Close implements directory.ProgressStore; it performs no action.
func (s *ProgressStore) Close() {}
