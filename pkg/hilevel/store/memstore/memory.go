package memstore

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/cognicore/hilevel/pkg/hilevel/store"
)

// Store is an in-memory implementation of store.Store for tests.
type Store struct {
	mu      sync.RWMutex
	runs    map[string]store.Run
	order   []string // run ids in first-recorded order
	batches []string // batch ids in first-seen order
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		runs: make(map[string]store.Run),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// RecordRun inserts or replaces a run, keyed by ID.
func (s *Store) RecordRun(ctx context.Context, r store.Run) error {
	if r.ID == "" {
		return fmt.Errorf("record run: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[r.ID]; !ok {
		s.order = append(s.order, r.ID)
	}
	if !s.knownBatch(r.BatchID) {
		s.batches = append(s.batches, r.BatchID)
	}
	s.runs[r.ID] = copyRun(r)
	return nil
}

func (s *Store) knownBatch(id string) bool {
	for _, b := range s.batches {
		if b == id {
			return true
		}
	}
	return false
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (store.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return store.Run{}, false, nil
	}
	return copyRun(r), true, nil
}

// RunsByBatch returns the runs of a batch in recorded order.
func (s *Store) RunsByBatch(ctx context.Context, batchID string) ([]store.Run, error) {
	return s.filter(func(r store.Run) bool { return r.BatchID == batchID }), nil
}

// Failures returns the failed runs of a batch in recorded order.
func (s *Store) Failures(ctx context.Context, batchID string) ([]store.Run, error) {
	return s.filter(func(r store.Run) bool { return r.BatchID == batchID && r.Failed() }), nil
}

func (s *Store) filter(keep func(store.Run) bool) []store.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Run
	for _, id := range s.order {
		if r := s.runs[id]; keep(r) {
			out = append(out, copyRun(r))
		}
	}
	return out
}

// Batches returns batch summaries, newest first.
func (s *Store) Batches(ctx context.Context, limit int) ([]store.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make(map[string]*store.Batch, len(s.batches))
	for _, id := range s.order {
		r := s.runs[id]
		b, ok := summaries[r.BatchID]
		if !ok {
			b = &store.Batch{ID: r.BatchID, StartedAt: r.ProcessedAt, FinishedAt: r.ProcessedAt}
			summaries[r.BatchID] = b
		}
		b.Total++
		if r.Failed() {
			b.Failed++
		}
		if r.ProcessedAt.Before(b.StartedAt) {
			b.StartedAt = r.ProcessedAt
		}
		if r.ProcessedAt.After(b.FinishedAt) {
			b.FinishedAt = r.ProcessedAt
		}
	}

	var out []store.Batch
	for i := len(s.batches) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if b, ok := summaries[s.batches[i]]; ok {
			out = append(out, *b)
		}
	}
	return out, nil
}

func copyRun(r store.Run) store.Run {
	r.Annotations = maps.Clone(r.Annotations)
	r.Probabilities = maps.Clone(r.Probabilities)
	return r
}
