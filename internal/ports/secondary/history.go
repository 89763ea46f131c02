package secondary

import (
	"context"
	"time"
)

// RunRecord represents one experiment run as stored in persistence.
type RunRecord struct {
	ID          string
	Name        string
	Cycles      int
	Flowcells   int
	Status      string
	StartedAt   string
	CompletedAt string
}

// Run statuses.
const (
	RunStatusRunning  = "running"
	RunStatusComplete = "complete"
	RunStatusFailed   = "failed"
)

// HistoryRow is one durable flowcell history entry: timestamp, opcode,
// operand, plus the run/flowcell/cycle it belongs to.
type HistoryRow struct {
	Seq       int
	Timestamp time.Time
	Flowcell  string
	Cycle     int
	Op        string
	Operand   string
}

// RunRepository defines the secondary port for the run ledger.
type RunRepository interface {
	// Create persists a new run in the running state.
	Create(ctx context.Context, run *RunRecord) error

	// Finish marks a run complete or failed.
	Finish(ctx context.Context, id, status string) error

	// GetByID retrieves a run.
	GetByID(ctx context.Context, id string) (*RunRecord, error)

	// List retrieves recent runs, newest first.
	List(ctx context.Context, limit int) ([]*RunRecord, error)
}

// HistoryRepository defines the secondary port for per-flowcell history
// persistence. Rows are append-only and ordered.
type HistoryRepository interface {
	// Append persists history rows for a run.
	Append(ctx context.Context, runID string, rows []HistoryRow) error

	// ListByRun retrieves a run's history in insertion order, optionally
	// filtered to one flowcell position.
	ListByRun(ctx context.Context, runID, flowcell string) ([]HistoryRow, error)
}
