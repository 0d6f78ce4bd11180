package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/jobs"
)

// Store is an in-memory implementation of jobs.StatusStore.
// Data is lost on restart; the SQLite store persists it.
type Store struct {
	mu      sync.RWMutex
	records map[string]*jobs.Record
}

// NewStore creates a new in-memory status store.
func NewStore() *Store {
	return &Store{records: make(map[string]*jobs.Record)}
}

// SaveRecord implements jobs.StatusStore.
func (s *Store) SaveRecord(_ context.Context, rec *jobs.Record) error {
	if rec.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external modifications
	recCopy := *rec
	s.records[rec.JobID] = &recCopy
	return nil
}

// GetRecord implements jobs.StatusStore.
func (s *Store) GetRecord(_ context.Context, jobID string) (*jobs.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[jobID]
	if !exists {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	recCopy := *rec
	return &recCopy, nil
}

// ListRecords implements jobs.StatusStore. Results are newest first.
func (s *Store) ListRecords(_ context.Context, filter jobs.Filter) ([]*jobs.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*jobs.Record
	for _, rec := range s.records {
		if filter.TenantID != "" && rec.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		recCopy := *rec
		result = append(result, &recCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].JobID < result[j].JobID
	})
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ jobs.StatusStore = (*Store)(nil)
