package storage

import (
	"context"
	"sync"

	errs "subsidy-recon/internal/errors"
)

// MemoryStore is an in-memory storage backend
type MemoryStore struct {
	runs map[string]*StoredRun
	mu   sync.RWMutex
}

// NewMemoryStore creates a memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]*StoredRun),
	}
}

func (s *MemoryStore) Save(ctx context.Context, run *StoredRun) error {
	if err := prepare(run); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *run
	copied.Results = append(copied.Results[:0:0], run.Results...)
	s.runs[run.ID] = &copied
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*StoredRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, errs.NotFound("run", id)
	}
	copied := *run
	return &copied, nil
}

func (s *MemoryStore) List(ctx context.Context, filter *ListFilter) ([]*StoredRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*StoredRun
	for _, run := range s.runs {
		if !filter.matches(run) {
			continue
		}
		summary := *run
		summary.Results = nil
		runs = append(runs, &summary)
	}
	return filter.page(runs), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return errs.NotFound("run", id)
	}
	delete(s.runs, id)
	return nil
}

func (s *MemoryStore) GetLatest(ctx context.Context, carrier string) (*StoredRun, error) {
	runs, err := s.List(ctx, &ListFilter{Carrier: carrier, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errs.NotFound("run for carrier", carrier)
	}
	return s.Get(ctx, runs[0].ID)
}

func (s *MemoryStore) Compare(ctx context.Context, oldID, newID string) (*CompareResult, error) {
	oldRun, err := s.Get(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newRun, err := s.Get(ctx, newID)
	if err != nil {
		return nil, err
	}
	return compareRuns(oldRun, newRun), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
