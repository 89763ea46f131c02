package flowcell

import "fmt"

// FocusMode selects how fine focus is handled for a section on each
// imaging pass.
type FocusMode int

const (
	// FocusRefineEveryCycle runs fine autofocus on every imaging pass.
	FocusRefineEveryCycle FocusMode = iota
	// FocusNever skips fine focus entirely.
	FocusNever
	// FocusCached moves the objective to a fixed cached position.
	FocusCached
)

func (m FocusMode) String() string {
	switch m {
	case FocusRefineEveryCycle:
		return "refine"
	case FocusNever:
		return "never"
	case FocusCached:
		return "cached"
	default:
		return fmt.Sprintf("FocusMode(%d)", int(m))
	}
}

// FocusPolicy is the fine-focus rule for a section. Cached is only
// meaningful when Mode is FocusCached.
type FocusPolicy struct {
	Mode   FocusMode
	Cached int // objective steps
}

// Section is a named sub-region of a flowcell with its own stage and
// scan parameters. Geometry fields are filled once during instrument
// integration, before the scheduler starts.
type Section struct {
	Name   string
	Coords [4]float64 // raw flowcell-relative coordinates from config

	XCenter  float64
	YCenter  float64
	XInitial float64
	YInitial float64
	NScans   int
	NFrames  int

	// CoarseFocus caches the z stage position found by rough autofocus
	// on the first imaging pass. Nil until measured.
	CoarseFocus *[3]int

	Fine FocusPolicy
}
