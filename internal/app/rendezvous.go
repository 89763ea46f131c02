// Package app contains the application layer: the recipe executor, the
// synchronization coordinator, the scheduler, and the run service.
// This is the "Imperative Shell" - the only place device I/O happens.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/flowctl/internal/core/flowcell"
	"github.com/example/flowctl/internal/metrics"
)

// Coordinator implements the WAIT/signal rendezvous between flowcells.
//
// A requester names the event it awaits on its partner, then blocks on
// the partner's gate. The gate opens only through the partner's own
// forward progress (the executor's signal check) or through deadlock
// recovery; the awaited condition is never polled directly. Each
// flowcell supports exactly one active rendezvous target at a time.
type Coordinator struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(logger *slog.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{logger: logger, metrics: m}
}

// Rendezvous blocks fc until its partner reaches the awaited event.
// It runs inside fc's action goroutine and returns the time spent
// blocked. On release the gate is reset to blocked again: the waiter
// consumes the open signal (manual-reset semantics).
func (c *Coordinator) Rendezvous(ctx context.Context, fc *flowcell.Flowcell, event string) (time.Duration, error) {
	partner := fc.Partner()
	if partner == nil {
		return 0, nil
	}

	start := time.Now()
	partner.SetSignalEvent(event)

	if err := partner.Gate().WaitContext(ctx); err != nil {
		return time.Since(start), fmt.Errorf("rendezvous interrupted: %w", err)
	}
	partner.Gate().Reset()

	elapsed := time.Since(start)
	fc.AddEvent("WAIT", fmt.Sprintf("ready after %s", elapsed.Round(time.Second)))
	c.logger.Info("flowcell ready to continue",
		"flowcell", fc.Position, "cycle", fc.Cycle(), "waited", elapsed.Round(time.Millisecond))
	c.metrics.RendezvousWait.WithLabelValues(fc.Position).Observe(elapsed.Seconds())
	return elapsed, nil
}
