package storage

import (
	"context"

	"robosim/internal/model"
)

// Store persists the optimizer's candidate history. It is private to one
// host-local deployment and never takes part in pool coordination.
type Store interface {
	Init(ctx context.Context) error
	SaveCandidate(ctx context.Context, record model.CandidateRecord) error
	ListCandidates(ctx context.Context, runID string, limit int) ([]model.CandidateRecord, error)
	SaveRunSummary(ctx context.Context, summary model.RunSummary) error
	GetRunSummary(ctx context.Context, runID string) (model.RunSummary, bool, error)
	ListRunSummaries(ctx context.Context) ([]model.RunSummary, error)
}
