// Package flowcell contains the mutable state for one independently
// progressing flowcell: cycle counter, recipe cursor, audit history,
// and the synchronization fields behind the WAIT/signal rendezvous.
package flowcell

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/flowctl/internal/core/recipe"
)

// Position is a physical flowcell slot.
const (
	PositionA = "A"
	PositionB = "B"
)

// PumpSpeeds holds the two pump scenarios in uL/min.
type PumpSpeeds struct {
	Flush   int
	Reagent int
}

// Event is one append-only history row.
type Event struct {
	At      time.Time
	Op      string
	Operand string
	Cycle   int
}

// Flowcell is one independently progressing processing unit. It is
// constructed once from configuration before the scheduler starts and
// lives for the process's duration.
//
// Synchronization contract: signalEvent is written by the partner's
// rendezvous goroutine and read/cleared on the control thread, so it is
// mutex-guarded. History is appended only on behalf of this flowcell's
// own executor; the scheduler never advances a flowcell whose action is
// still running, so appends do not race.
type Flowcell struct {
	Position    string
	TotalCycles int
	FlushVolume int
	PumpSpeed   PumpSpeeds
	Sections    []*Section

	// ExFilter1/2 hold the most recent optimized excitation pair.
	ExFilter1 float64
	ExFilter2 float64

	Recipe *recipe.Recipe

	partner *Flowcell
	gate    *Gate
	action  *Action

	mu          sync.Mutex
	cycle       int
	resumeLine  int
	signalEvent string
	history     []Event
	imaging     bool
	failed      bool
	holding     bool
}

// New constructs a flowcell at position A or B.
func New(position string, totalCycles int) (*Flowcell, error) {
	if position != PositionA && position != PositionB {
		return nil, fmt.Errorf("flowcell must be at position A or B, got %q", position)
	}
	return &Flowcell{
		Position:    position,
		TotalCycles: totalCycles,
		gate:        NewGate(),
	}, nil
}

// SetPartner installs the flowcell this one rendezvouses with. With two
// flowcells the partner pointers form a ring of length two.
func (fc *Flowcell) SetPartner(p *Flowcell) { fc.partner = p }

// Partner returns the rendezvous partner, nil for single-flowcell runs.
func (fc *Flowcell) Partner() *Flowcell { return fc.partner }

// Gate returns the manual-reset gate the partner blocks on.
func (fc *Flowcell) Gate() *Gate { return fc.gate }

// Cycle returns the current cycle. Zero until the first cycle starts.
func (fc *Flowcell) Cycle() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.cycle
}

// StartCycle increments the cycle counter and returns the new value.
// The counter never decreases.
func (fc *Flowcell) StartCycle() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.cycle++
	return fc.cycle
}

// Complete reports whether every cycle has finished (or the flowcell
// aborted). Complete flowcells keep polling so a still-running partner
// can drain.
func (fc *Flowcell) Complete() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.cycle > fc.TotalCycles || fc.failed
}

// SetResumeLine marks the recipe line cycle one starts from.
func (fc *Flowcell) SetResumeLine(line int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.resumeLine = line
}

// TakeResumeLine returns the pending resume line and clears it. Returns
// 0 when no resume is pending. Resume applies only to the opening
// cycle.
func (fc *Flowcell) TakeResumeLine() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	line := fc.resumeLine
	fc.resumeLine = 0
	return line
}

// Busy reports whether a device action is still in flight.
func (fc *Flowcell) Busy() bool {
	return fc.action != nil && fc.action.Running()
}

// SetAction installs the current action handle.
func (fc *Flowcell) SetAction(a *Action) { fc.action = a }

// CurrentAction returns the current action handle, which may have
// finished.
func (fc *Flowcell) CurrentAction() *Action { return fc.action }

// SignalEvent returns the event that, once reached by this flowcell,
// releases the partner. Empty when no rendezvous is pending on it.
func (fc *Flowcell) SignalEvent() string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.signalEvent
}

// SetSignalEvent is called by the partner's rendezvous goroutine to
// name the event it is waiting for. One active target at a time.
func (fc *Flowcell) SetSignalEvent(event string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.signalEvent = event
}

// ClearSignalEvent resets the pending signal target.
func (fc *Flowcell) ClearSignalEvent() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.signalEvent = ""
}

// AddEvent appends a history row and returns its timestamp.
func (fc *Flowcell) AddEvent(op, operand string) time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	now := time.Now()
	fc.history = append(fc.history, Event{At: now, Op: op, Operand: operand, Cycle: fc.cycle})
	return now
}

// History returns a copy of the append-only event log.
func (fc *Flowcell) History() []Event {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]Event(nil), fc.history...)
}

// SetImaging flags an in-progress imaging pass.
func (fc *Flowcell) SetImaging(v bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.imaging = v
}

// Imaging reports whether the flowcell is being imaged.
func (fc *Flowcell) Imaging() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.imaging
}

// Fail aborts the flowcell's run. Used for contract violations that
// must not be silently continued; the partner keeps advancing.
func (fc *Flowcell) Fail() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.failed = true
}

// Failed reports whether the run was aborted.
func (fc *Flowcell) Failed() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.failed
}

// SetHolding flags an in-progress HOLD incubation.
func (fc *Flowcell) SetHolding(v bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.holding = v
}

// Holding reports whether a HOLD incubation is in progress.
func (fc *Flowcell) Holding() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.holding
}
