package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/example/flowctl/internal/core/flowcell"
	"github.com/example/flowctl/internal/core/recipe"
	"github.com/example/flowctl/internal/core/reagent"
	"github.com/example/flowctl/internal/metrics"
	"github.com/example/flowctl/internal/ports/secondary"
)

// Executor is the per-flowcell state machine: it reads the next recipe
// instruction and dispatches it into an asynchronous device action.
// Advance is legal only when the flowcell has no action in flight; the
// scheduler guarantees this.
type Executor struct {
	instrument  secondary.Instrument
	ports       *reagent.Dictionary
	operator    secondary.Operator
	coordinator *Coordinator
	imaging     *ImagingRunner
	logger      *slog.Logger
	metrics     *metrics.Metrics

	// HoldUnit is the duration of one HOLD operand unit. One minute on
	// the instrument; tests shorten it.
	HoldUnit time.Duration

	// KeepAlive is the length of the idle action a drained flowcell
	// issues so the scheduler's liveness probe keeps functioning.
	KeepAlive time.Duration
}

// NewExecutor creates an Executor with production timing.
func NewExecutor(
	instrument secondary.Instrument,
	ports *reagent.Dictionary,
	operator secondary.Operator,
	coordinator *Coordinator,
	imaging *ImagingRunner,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Executor {
	return &Executor{
		instrument:  instrument,
		ports:       ports,
		operator:    operator,
		coordinator: coordinator,
		imaging:     imaging,
		logger:      logger,
		metrics:     m,
		HoldUnit:    time.Minute,
		KeepAlive:   10 * time.Second,
	}
}

// Advance performs one step of the flowcell's recipe: skip to the
// resume line on the opening cycle, read the next instruction, dispatch
// it, run the signal check, and start the action. At end of recipe it
// either starts the next cycle or, once all cycles are done, issues a
// bounded keep-alive so a finished flowcell still reports busy-then-idle
// while its partner drains.
func (e *Executor) Advance(ctx context.Context, fc *flowcell.Flowcell) {
	if fc.Busy() || fc.Failed() {
		return
	}

	// The resume line applies only to the opening cycle; every later
	// cycle runs the recipe from line one.
	if fc.Cycle() == 1 {
		if line := fc.TakeResumeLine(); line > 1 {
			fc.Recipe.Skip(line - 1)
		}
	}

	line, num, ok := fc.Recipe.Next()
	if !ok {
		e.endOfRecipe(fc)
		return
	}

	ins, err := recipe.Parse(line, num)
	if err != nil {
		// Validation accepted this recipe, so a parse failure here is a
		// contract violation: abort the flowcell, never silently
		// continue.
		e.abort(fc, fmt.Errorf("recipe line %d unparseable after validation: %w", num, err))
		return
	}

	e.dispatch(ctx, fc, ins)
}

// endOfRecipe handles the recipe cursor reaching end-of-resource.
func (e *Executor) endOfRecipe(fc *flowcell.Flowcell) {
	if fc.Cycle() <= fc.TotalCycles {
		next := fc.StartCycle()
		fc.Recipe.Rewind()
		e.metrics.CyclesCompleted.WithLabelValues(fc.Position).Inc()
		if next > fc.TotalCycles {
			e.logger.Info("completed all cycles", "flowcell", fc.Position, "cycles", fc.TotalCycles)
		} else {
			e.logger.Info("starting cycle", "flowcell", fc.Position, "cycle", next)
		}
		return // no device action this tick
	}

	// Finished flowcell: bounded idle action keeps the liveness probe
	// functioning while the partner drains.
	a := flowcell.NewAction("idle")
	fc.SetAction(a)
	time.AfterFunc(e.KeepAlive, a.Finish)
}

// dispatch maps one instruction onto a device action, runs the signal
// check, and starts the action unless the flowcell has finished all its
// cycles.
func (e *Executor) dispatch(ctx context.Context, fc *flowcell.Flowcell, ins recipe.Instruction) {
	active := fc.Cycle() <= fc.TotalCycles
	rawOperand := ins.Operand
	operand := ins.Operand

	var run func(context.Context) error
	var start func(a *flowcell.Action) // non-nil overrides the goroutine start

	switch ins.Op {
	case recipe.OpPort:
		if active {
			name, port, err := e.ports.Resolve(operand, fc.Cycle())
			if err != nil {
				e.abort(fc, fmt.Errorf("port resolution after validation: %w", err))
				return
			}
			operand = name
			valve := e.instrument.Valve(fc.Position)
			run = func(ctx context.Context) error {
				return valve.Select(ctx, port)
			}
			e.logger.Info("moving to port",
				"flowcell", fc.Position, "cycle", fc.Cycle(), "reagent", name, "port", port)
		}

	case recipe.OpPump:
		volume, err := strconv.Atoi(operand)
		if err != nil {
			e.abort(fc, fmt.Errorf("pump volume %q after validation: %w", operand, err))
			return
		}
		speed := fc.PumpSpeed.Reagent
		pump := e.instrument.Pump(fc.Position)
		run = func(ctx context.Context) error {
			return pump.Run(ctx, volume, speed)
		}
		if active {
			e.logger.Info("pumping", "flowcell", fc.Position, "cycle", fc.Cycle(), "uL", volume)
		}

	case recipe.OpHold:
		minutes, err := strconv.ParseFloat(operand, 64)
		if err != nil {
			e.abort(fc, fmt.Errorf("hold time %q after validation: %w", operand, err))
			return
		}
		hold := time.Duration(minutes * float64(e.HoldUnit))
		start = func(a *flowcell.Action) {
			fc.SetHolding(true)
			// Deferred timer, not a busy-wait.
			time.AfterFunc(hold, func() {
				fc.SetHolding(false)
				e.logger.Info("hold stopped", "flowcell", fc.Position, "cycle", fc.Cycle())
				a.Finish()
			})
		}
		if active {
			e.logger.Info("holding", "flowcell", fc.Position, "cycle", fc.Cycle(), "minutes", operand)
		}

	case recipe.OpWait:
		if fc.Partner() != nil {
			event := operand
			run = func(ctx context.Context) error {
				e.logger.Info("waiting for partner", "flowcell", fc.Position, "cycle", fc.Cycle(), "event", event)
				_, err := e.coordinator.Rendezvous(ctx, fc, event)
				return err
			}
		} else {
			// Single-flowcell runs never block on WAIT.
			e.logger.Info("skipping wait", "flowcell", fc.Position, "cycle", fc.Cycle(), "event", operand)
			run = func(context.Context) error { return nil }
		}

	case recipe.OpImag:
		planes, err := strconv.Atoi(operand)
		if err != nil {
			e.abort(fc, fmt.Errorf("z plane count %q after validation: %w", operand, err))
			return
		}
		run = func(ctx context.Context) error {
			_, err := e.imaging.Image(ctx, fc, planes)
			return err
		}
		if active {
			e.logger.Info("imaging flowcell", "flowcell", fc.Position, "cycle", fc.Cycle(), "planes", planes)
		}

	case recipe.OpStop:
		// The sole opcode that halts the whole instrument: executed
		// inline, blocking the control thread until acknowledgment.
		e.logger.Warn("paused for operator", "flowcell", fc.Position, "line", ins.Line)
		if err := e.operator.Acknowledge("press enter to continue..."); err != nil {
			e.abort(fc, fmt.Errorf("operator acknowledgment failed: %w", err))
			return
		}
		e.logger.Info("continuing", "flowcell", fc.Position)

	default:
		e.abort(fc, fmt.Errorf("unknown opcode %q reached execution on line %d", ins.Op, ins.Line))
		return
	}

	// Forward-progress-driven release: reaching the partner's awaited
	// event opens the gate the partner is blocked on.
	if sig := fc.SignalEvent(); sig != "" &&
		(sig == string(ins.Op) || sig == rawOperand || sig == operand) {
		fc.Gate().Open()
		fc.ClearSignalEvent()
	}

	if (run == nil && start == nil) || !active {
		// STOP has no action; a finished flowcell starts nothing so it
		// cannot re-trigger side effects while the partner drains.
		return
	}

	fc.AddEvent(string(ins.Op), operand)
	e.metrics.InstructionsDispatched.WithLabelValues(fc.Position, string(ins.Op)).Inc()

	a := flowcell.NewAction(string(ins.Op))
	fc.SetAction(a)
	if start != nil {
		start(a)
		return
	}
	go func() {
		defer a.Finish()
		if err := run(ctx); err != nil {
			e.actionFailed(fc, ins, err)
		}
	}()
}

// actionFailed handles a fault from an in-flight action. Device faults
// abort only this flowcell's current action; the scheduler keeps
// advancing the partner.
func (e *Executor) actionFailed(fc *flowcell.Flowcell, ins recipe.Instruction, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	var fault *secondary.DeviceFault
	if errors.As(err, &fault) {
		e.metrics.DeviceFaults.WithLabelValues(fc.Position, string(ins.Op)).Inc()
	}
	e.logger.Error("action failed",
		"flowcell", fc.Position, "cycle", fc.Cycle(),
		"opcode", string(ins.Op), "operand", ins.Operand, "error", err)
}

// abort marks the flowcell failed. Used only for contract violations
// between validator and executor.
func (e *Executor) abort(fc *flowcell.Flowcell, err error) {
	e.logger.Error("aborting flowcell run", "flowcell", fc.Position, "error", err)
	fc.Fail()
}
