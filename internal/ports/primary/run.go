// Package primary defines the primary ports (driving interfaces) for
// the application. The CLI consumes these; internal/app implements
// them.
package primary

import (
	"context"

	"github.com/example/flowctl/internal/ports/secondary"
)

// ValidationReport is the outcome of pre-flight validation: the recipe
// check, the port dictionary check, and the computed first-cycle resume
// line. Violations are aggregated across the whole recipe and config;
// validation never stops at the first failure.
type ValidationReport struct {
	ResumeLine int
	StopLines  []int
	Flowcells  []string
	// Violations is empty when the experiment is ready to run.
	Violations []string
}

// Valid reports whether execution may proceed.
func (r *ValidationReport) Valid() bool { return len(r.Violations) == 0 }

// RunRequest starts an experiment run.
type RunRequest struct {
	ConfigPath string
	// Simulate selects the simulated instrument instead of hardware.
	Simulate bool
	// SkipPrime suppresses the interactive line-priming prompt.
	SkipPrime bool
}

// RunResult summarizes a finished run.
type RunResult struct {
	RunID     string
	Status    string
	Histories map[string]int // flowcell position -> history rows persisted
}

// RunService drives an experiment end to end: validate, execute,
// shut down.
type RunService interface {
	// Validate performs the full pre-flight check without touching
	// hardware. It returns a report even when violations exist; the
	// error is reserved for I/O failures (unreadable config or recipe).
	Validate(ctx context.Context, configPath string) (*ValidationReport, error)

	// Run validates and, if clean, executes the experiment to
	// completion. Validation violations abort before any device motion.
	Run(ctx context.Context, req RunRequest) (*RunResult, error)

	// Prime validates and then flushes every fixed reagent port on
	// every flowcell, without starting the recipe.
	Prime(ctx context.Context, req RunRequest) error
}

// HistoryService reads the durable run ledger.
type HistoryService interface {
	ListRuns(ctx context.Context, limit int) ([]*secondary.RunRecord, error)
	RunHistory(ctx context.Context, runID, flowcell string) ([]secondary.HistoryRow, error)
}
