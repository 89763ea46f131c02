package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/flowctl/internal/ports/secondary"
)

// HistoryRepository implements secondary.HistoryRepository with SQLite.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new SQLite history repository.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append persists history rows for a run in one transaction. Either
// every row lands or none do.
func (r *HistoryRepository) Append(ctx context.Context, runID string, rows []secondary.HistoryRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO flowcell_history (run_id, seq, flowcell, cycle, opcode, operand, happened_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare history insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			runID,
			row.Seq,
			row.Flowcell,
			row.Cycle,
			row.Op,
			row.Operand,
			row.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to append history row %d: %w", row.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}

	return nil
}

// ListByRun retrieves a run's history in insertion order, optionally
// filtered to one flowcell position.
func (r *HistoryRepository) ListByRun(ctx context.Context, runID, flowcell string) ([]secondary.HistoryRow, error) {
	query := `SELECT seq, flowcell, cycle, opcode, operand, happened_at FROM flowcell_history WHERE run_id = ?`
	args := []any{runID}

	if flowcell != "" {
		query += " AND flowcell = ?"
		args = append(args, flowcell)
	}

	query += " ORDER BY flowcell, seq"

	dbRows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer dbRows.Close()

	var rows []secondary.HistoryRow
	for dbRows.Next() {
		var row secondary.HistoryRow
		err := dbRows.Scan(&row.Seq,
			&row.Flowcell,
			&row.Cycle,
			&row.Op,
			&row.Operand,
			&row.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// Ensure HistoryRepository implements the interface
var _ secondary.HistoryRepository = (*HistoryRepository)(nil)
