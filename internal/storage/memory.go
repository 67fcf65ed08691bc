package storage

import (
	"context"
	"errors"
	"sync"

	"robosim/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	candidates  []model.CandidateRecord
	runs        map[string]model.RunSummary
	runOrder    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.candidates = nil
	s.runs = make(map[string]model.RunSummary)
	s.runOrder = nil
	return nil
}

func (s *MemoryStore) SaveCandidate(_ context.Context, record model.CandidateRecord) error {
	if record.ID == "" {
		return errors.New("candidate id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	for i := range s.candidates {
		if s.candidates[i].ID == record.ID {
			s.candidates[i] = copyCandidate(record)
			return nil
		}
	}
	s.candidates = append(s.candidates, copyCandidate(record))
	return nil
}

// ListCandidates returns the newest limit records of runID in the order they
// were saved. An empty runID matches every run; limit <= 0 returns all.
func (s *MemoryStore) ListCandidates(_ context.Context, runID string, limit int) ([]model.CandidateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []model.CandidateRecord
	for _, record := range s.candidates {
		if runID == "" || record.RunID == runID {
			matched = append(matched, record)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	out := make([]model.CandidateRecord, len(matched))
	for i, record := range matched {
		out[i] = copyCandidate(record)
	}
	return out, nil
}

func (s *MemoryStore) SaveRunSummary(_ context.Context, summary model.RunSummary) error {
	if summary.RunID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	if _, ok := s.runs[summary.RunID]; !ok {
		s.runOrder = append(s.runOrder, summary.RunID)
	}
	s.runs[summary.RunID] = summary
	return nil
}

func (s *MemoryStore) GetRunSummary(_ context.Context, runID string) (model.RunSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.runs[runID]
	return summary, ok, nil
}

func (s *MemoryStore) ListRunSummaries(_ context.Context) ([]model.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunSummary, 0, len(s.runOrder))
	for _, id := range s.runOrder {
		out = append(out, s.runs[id])
	}
	return out, nil
}

func copyCandidate(record model.CandidateRecord) model.CandidateRecord {
	record.ParentRanks = append([]int(nil), record.ParentRanks...)
	return record
}
