package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/flowctl/internal/core/flowcell"
	"github.com/example/flowctl/internal/core/reagent"
	"github.com/example/flowctl/internal/ports/secondary"
)

// Flusher primes and flushes reagent lines through every fixed port,
// used before the first cycle and optionally again at shutdown.
type Flusher struct {
	instrument secondary.Instrument
	operator   secondary.Operator
	ports      *reagent.Dictionary
	logger     *slog.Logger
}

// NewFlusher creates a Flusher.
func NewFlusher(instrument secondary.Instrument, operator secondary.Operator, ports *reagent.Dictionary, logger *slog.Logger) *Flusher {
	return &Flusher{instrument: instrument, operator: operator, ports: ports, logger: logger}
}

// Prime parks the stage and, if the operator confirms, flushes every
// fixed port on every flowcell with neutral buffer before the run.
func (f *Flusher) Prime(ctx context.Context, fcs []*flowcell.Flowcell) error {
	if _, err := f.instrument.Z().Move(ctx, [3]int{0, 0, 0}); err != nil {
		return fmt.Errorf("failed to home z stage: %w", err)
	}
	if err := f.instrument.Stage().MoveOut(ctx); err != nil {
		return fmt.Errorf("failed to move stage out: %w", err)
	}

	prime, err := f.operator.Confirm("Prime lines?")
	if err != nil {
		return err
	}
	if !prime {
		f.operator.Notify("Lock experiment flowcells on to stage")
		return f.operator.Acknowledge("Press enter to continue...")
	}

	f.operator.Notify("Lock temporary flowcell(s) on to stage")
	f.operator.Notify("Place all valve input lines in PBS/water")
	if err := f.operator.Acknowledge("Press enter to continue..."); err != nil {
		return err
	}

	for _, fc := range fcs {
		if err := f.FlushLines(ctx, fc); err != nil {
			return err
		}
	}

	f.operator.Notify("Replace temporary flowcell with experiment flowcell and lock on to stage")
	f.operator.Notify("Place all valve input lines in correct reagent")
	return f.operator.Acknowledge("Press enter to continue...")
}

// FlushLines pushes flush buffer through every fixed port of one
// flowcell at flush speed. Variable names are skipped; they are
// recipe-level aliases, not physical ports.
func (f *Flusher) FlushLines(ctx context.Context, fc *flowcell.Flowcell) error {
	valve := f.instrument.Valve(fc.Position)
	pump := f.instrument.Pump(fc.Position)

	for _, name := range f.ports.FixedNames() {
		_, port, err := f.ports.Resolve(name, 1)
		if err != nil {
			return err
		}
		f.logger.Info("priming port", "flowcell", fc.Position, "reagent", name, "port", port)
		if err := valve.Select(ctx, port); err != nil {
			return fmt.Errorf("failed to select port %d: %w", port, err)
		}
		if err := pump.Run(ctx, fc.FlushVolume, fc.PumpSpeed.Flush); err != nil {
			return fmt.Errorf("failed to flush port %d: %w", port, err)
		}
	}
	return nil
}
