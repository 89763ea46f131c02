package app

import (
	"fmt"

	"github.com/example/flowctl/internal/ports/primary"
)

// PreflightError indicates the configured experiment failed validation
// before any hardware was touched. The embedded report lists every
// violation found, not only the first.
type PreflightError struct {
	Report primary.ValidationReport
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight validation failed with %d violation(s)", len(e.Report.Violations))
}
