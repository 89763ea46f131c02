package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/flowctl/internal/core/flowcell"
	"github.com/example/flowctl/internal/metrics"
)

// deadlockWarnThreshold is the number of consecutive forced releases
// after which recovery is reported as not resolving anything.
const deadlockWarnThreshold = 3

// Scheduler is the cooperative top-level loop. A single control thread
// polls every flowcell, advancing each idle one, and watches for global
// deadlock and global completion. Only the intentional STOP pause ever
// blocks it.
type Scheduler struct {
	flowcells []*flowcell.Flowcell
	executor  *Executor
	first     *flowcell.Flowcell
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// PollInterval paces the loop; there is no required tick rate.
	PollInterval time.Duration

	releasesWithoutProgress int
	lastHistoryTotal        int
}

// NewScheduler creates a Scheduler. first names the flowcell whose gate
// deadlock recovery force-opens; it defaults to the first constructed
// flowcell.
func NewScheduler(fcs []*flowcell.Flowcell, executor *Executor, first string, logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	s := &Scheduler{
		flowcells:    fcs,
		executor:     executor,
		logger:       logger,
		metrics:      m,
		PollInterval: 100 * time.Millisecond,
	}
	s.first = fcs[0]
	for _, fc := range fcs {
		if fc.Position == first {
			s.first = fc
		}
	}
	return s
}

// Run polls until every flowcell has completed all cycles (or aborted),
// or ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		stuck, complete := 0, 0

		for _, fc := range s.flowcells {
			if !fc.Busy() {
				s.executor.Advance(ctx, fc)
			}
			if fc.SignalEvent() != "" {
				stuck++
			}
			if fc.Complete() {
				complete++
			}
		}

		// Every flowcell carries a pending signal: all are waiting on
		// each other and none can progress. Firing any earlier would
		// starve a producer still making progress.
		if stuck == len(s.flowcells) {
			s.recoverDeadlock()
		}

		if complete == len(s.flowcells) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.PollInterval):
		}
	}
}

// recoverDeadlock force-opens the gate the configured first flowcell is
// blocked on and clears the corresponding signal target. Only that one
// flowcell is released; every other pending signal stays untouched.
func (s *Scheduler) recoverDeadlock() {
	target := s.first.Partner()
	if target == nil {
		target = s.first
	}
	target.Gate().Open()
	target.ClearSignalEvent()

	s.metrics.DeadlockReleases.Inc()
	s.logger.Warn("flowcells are waiting on each other, releasing first flowcell",
		"flowcell", s.first.Position)

	total := 0
	for _, fc := range s.flowcells {
		total += len(fc.History())
	}
	if total == s.lastHistoryTotal {
		s.releasesWithoutProgress++
	} else {
		s.releasesWithoutProgress = 1
	}
	s.lastHistoryTotal = total

	if s.releasesWithoutProgress >= deadlockWarnThreshold {
		// Open failure mode: recovery keeps firing but the released
		// flowcell makes no progress. There is no built-in escape.
		s.logger.Error("deadlock recovery is not unblocking the run",
			"releases", s.releasesWithoutProgress)
	}
}
