// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/flowctl/internal/ports/secondary"
)

// RunRepository implements secondary.RunRepository with SQLite.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new SQLite run repository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create persists a new run in the running state.
func (r *RunRepository) Create(ctx context.Context, run *secondary.RunRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, cycles, flowcells, status) VALUES (?, ?, ?, ?, ?)`,
		run.ID,
		run.Name,
		run.Cycles,
		run.Flowcells,
		secondary.RunStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// Finish marks a run complete or failed and stamps its completion time.
func (r *RunRepository) Finish(ctx context.Context, id, status string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("run %s not found", id)
	}

	return nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*secondary.RunRecord, error) {
	var (
		startedAt   time.Time
		completedAt sql.NullTime
	)

	record := &secondary.RunRecord{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, cycles, flowcells, status, started_at, completed_at FROM runs WHERE id = ?`,
		id,
	).Scan(&record.ID,
		&record.Name,
		&record.Cycles,
		&record.Flowcells,
		&record.Status,
		&startedAt, &completedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	record.StartedAt = startedAt.Format(time.RFC3339)
	if completedAt.Valid {
		record.CompletedAt = completedAt.Time.Format(time.RFC3339)
	}

	return record, nil
}

// List retrieves recent runs, newest first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*secondary.RunRecord, error) {
	query := `SELECT id, name, cycles, flowcells, status, started_at, completed_at FROM runs ORDER BY started_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*secondary.RunRecord
	for rows.Next() {
		var (
			startedAt   time.Time
			completedAt sql.NullTime
		)

		record := &secondary.RunRecord{}
		err := rows.Scan(&record.ID,
			&record.Name,
			&record.Cycles,
			&record.Flowcells,
			&record.Status,
			&startedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		record.StartedAt = startedAt.Format(time.RFC3339)
		if completedAt.Valid {
			record.CompletedAt = completedAt.Time.Format(time.RFC3339)
		}

		runs = append(runs, record)
	}

	return runs, nil
}

// Ensure RunRepository implements the interface
var _ secondary.RunRepository = (*RunRepository)(nil)
