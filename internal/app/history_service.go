package app

import (
	"context"

	"github.com/example/flowctl/internal/ports/secondary"
)

// HistoryServiceImpl implements primary.HistoryService over the run
// ledger.
type HistoryServiceImpl struct {
	runRepo     secondary.RunRepository
	historyRepo secondary.HistoryRepository
}

// NewHistoryService creates the history service.
func NewHistoryService(runRepo secondary.RunRepository, historyRepo secondary.HistoryRepository) *HistoryServiceImpl {
	return &HistoryServiceImpl{runRepo: runRepo, historyRepo: historyRepo}
}

// ListRuns retrieves recent runs, newest first.
func (s *HistoryServiceImpl) ListRuns(ctx context.Context, limit int) ([]*secondary.RunRecord, error) {
	return s.runRepo.List(ctx, limit)
}

// RunHistory retrieves a run's flowcell history in insertion order.
// An empty flowcell returns every position.
func (s *HistoryServiceImpl) RunHistory(ctx context.Context, runID, flowcell string) ([]secondary.HistoryRow, error) {
	if _, err := s.runRepo.GetByID(ctx, runID); err != nil {
		return nil, err
	}
	return s.historyRepo.ListByRun(ctx, runID, flowcell)
}
