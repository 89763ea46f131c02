// Package db owns the SQLite connection and the run ledger schema.
package db

import "database/sql"

// SchemaSQL is the complete schema for the run ledger.
//
// This is the SINGLE SOURCE OF TRUTH for the database schema. All tests
// use it via GetSchemaSQL(): if repository code references a column that
// does not exist here, tests fail immediately with "no such column"
// instead of drifting from production.
const SchemaSQL = `
-- Runs (one row per experiment run)
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	cycles INTEGER NOT NULL,
	flowcells INTEGER NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('running', 'complete', 'failed')) DEFAULT 'running',
	started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

-- Flowcell history (append-only instruction events per run)
CREATE TABLE IF NOT EXISTS flowcell_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	flowcell TEXT NOT NULL CHECK(flowcell IN ('A', 'B')),
	cycle INTEGER NOT NULL,
	opcode TEXT NOT NULL,
	operand TEXT NOT NULL,
	happened_at DATETIME NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE,
	UNIQUE(run_id, flowcell, seq)
);

CREATE INDEX IF NOT EXISTS idx_history_run ON flowcell_history(run_id);
`

// InitSchema creates the database schema
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(SchemaSQL)
	return err
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
