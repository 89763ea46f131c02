package app

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/example/flowctl/internal/core/flowcell"
	"github.com/example/flowctl/internal/ports/secondary"
)

// shutdown leaves the instrument safe and the history durable after a
// run, regardless of how the run ended: release every rendezvous gate
// so no goroutine stays blocked, home the z stage, park the sample
// stage, offer an optional reagent flush, persist each flowcell's
// history, and power down the y motor. It returns the number of rows
// persisted per flowcell.
func (s *RunServiceImpl) shutdown(
	ctx context.Context,
	runID string,
	fcs []*flowcell.Flowcell,
	instrument secondary.Instrument,
	flusher *Flusher,
	logger *slog.Logger,
) (map[string]int, error) {
	logger.Info("shutting down", "run", runID)

	for _, fc := range fcs {
		fc.Gate().Open()
		fc.ClearSignalEvent()
	}

	if _, err := instrument.Z().Move(ctx, [3]int{0, 0, 0}); err != nil {
		logger.Error("failed to home z stage", "error", err)
	}
	if err := instrument.Stage().MoveOut(ctx); err != nil {
		logger.Error("failed to park stage", "error", err)
	}

	ok, err := s.operator.Confirm("Flush lines before unloading?")
	if err != nil {
		logger.Error("flush prompt failed", "error", err)
	} else if ok {
		for _, fc := range fcs {
			if err := flusher.FlushLines(ctx, fc); err != nil {
				logger.Error("shutdown flush failed", "flowcell", fc.Position, "error", err)
			}
		}
	}

	histories := make(map[string]int, len(fcs))
	g, gctx := errgroup.WithContext(ctx)
	for _, fc := range fcs {
		rows := historyRows(fc)
		histories[fc.Position] = len(rows)
		g.Go(func() error {
			return s.historyRepo.Append(gctx, runID, rows)
		})
	}
	persistErr := g.Wait()
	if persistErr != nil {
		logger.Error("failed to persist flowcell history", "run", runID, "error", persistErr)
	}

	if err := instrument.PowerDownY(ctx); err != nil {
		logger.Error("failed to power down y motor", "error", err)
	}

	logger.Info("shutdown complete", "run", runID)
	return histories, persistErr
}

func historyRows(fc *flowcell.Flowcell) []secondary.HistoryRow {
	events := fc.History()
	rows := make([]secondary.HistoryRow, 0, len(events))
	for i, ev := range events {
		rows = append(rows, secondary.HistoryRow{
			Seq:       i + 1,
			Timestamp: ev.At,
			Flowcell:  fc.Position,
			Cycle:     ev.Cycle,
			Op:        ev.Op,
			Operand:   ev.Operand,
		})
	}
	return rows
}
