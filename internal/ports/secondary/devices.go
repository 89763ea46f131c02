// Package secondary defines the secondary ports (driven adapters) for
// the application. These are the interfaces through which the
// orchestration engine drives external systems: the instrument device
// façade, durable history persistence, and the operator console.
package secondary

import (
	"context"
	"fmt"
	"time"
)

// DeviceFault is an opaque fault surfaced by a device adapter. A fault
// aborts only the issuing flowcell's current action; the scheduler
// keeps advancing the unaffected flowcell.
type DeviceFault struct {
	Device string
	Op     string
	Err    error
}

func (f *DeviceFault) Error() string {
	return fmt.Sprintf("%s %s fault: %v", f.Device, f.Op, f.Err)
}

func (f *DeviceFault) Unwrap() error { return f.Err }

// Valve selects one reagent port on a flowcell's 24-port selector.
type Valve interface {
	Select(ctx context.Context, port int) error
}

// Pump moves a reagent volume through a flowcell's lines.
type Pump interface {
	// Run pumps volume uL at speed uL/min.
	Run(ctx context.Context, volumeUL, speedULMin int) error
}

// XYStage is the shared horizontal sample stage.
type XYStage interface {
	MoveX(ctx context.Context, pos float64) (float64, error)
	MoveY(ctx context.Context, pos float64) (float64, error)
	// MoveOut parks the stage clear of the optics for loading.
	MoveOut(ctx context.Context) error
}

// ZStage is the three-motor vertical tilt stage.
type ZStage interface {
	Move(ctx context.Context, pos [3]int) ([3]int, error)
	Position() [3]int
}

// ObjectiveStage is the objective focus stage.
type ObjectiveStage interface {
	Move(ctx context.Context, steps int) (int, error)
	Position() int
	// NyquistStep is the objective step size for Nyquist-sampled z
	// stacks, used to compute multi-plane scan windows.
	NyquistStep() int
}

// Optics controls excitation filters, the emission filter, and lasers.
type Optics interface {
	SetExcitation(ctx context.Context, channel int, value float64) error
	EmissionIn(ctx context.Context, in bool) error
	SetLaserPower(ctx context.Context, percent int) error
}

// ScanRequest carries the precomputed stage parameters for one
// full-section scan.
type ScanRequest struct {
	X, Y     float64
	ObjStart int
	ObjStop  int
	ObjStep  int
	NScans   int
	NFrames  int
	// Name identifies the image set: flowcell position, section name,
	// and cycle number.
	Name string
}

// SectionLayout is the stage-space geometry derived from a section's
// raw flowcell coordinates.
type SectionLayout struct {
	XCenter  float64
	YCenter  float64
	XInitial float64
	YInitial float64
	NScans   int
	NFrames  int
}

// Instrument is the device façade the executor consumes. Per-flowcell
// devices (valve, pump) are addressed by position; motion and optics
// are shared, and the adapter serializes access to them when both
// flowcells image concurrently.
type Instrument interface {
	Valve(position string) Valve
	Pump(position string) Pump
	Stage() XYStage
	Z() ZStage
	Objective() ObjectiveStage
	Optics() Optics

	// RoughFocus runs coarse autofocus at the current stage position
	// and returns the achieved z stage position.
	RoughFocus(ctx context.Context) ([3]int, error)

	// FineFocus runs fine autofocus and returns the achieved objective
	// position.
	FineFocus(ctx context.Context) (int, error)

	// OptimizeFilter samples the given number of frames and returns the
	// optimal excitation filter pair.
	OptimizeFilter(ctx context.Context, frames int) (float64, float64, error)

	// Scan images a full section and returns the elapsed scan time.
	Scan(ctx context.Context, req ScanRequest) (time.Duration, error)

	// Layout converts a section's raw coordinates into stage geometry.
	Layout(position string, coords [4]float64) (SectionLayout, error)

	// PowerDownY deactivates the y stage motor at shutdown.
	PowerDownY(ctx context.Context) error
}
