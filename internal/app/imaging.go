package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/flowctl/internal/core/flowcell"
	"github.com/example/flowctl/internal/metrics"
	"github.com/example/flowctl/internal/ports/secondary"
)

const (
	// filterSampleFrames is the fixed frame sample for filter
	// optimization.
	filterSampleFrames = 32

	// Single-plane scans probe a minimal one-step range instead of a
	// centered window.
	singlePlaneStep  = 1000
	singlePlaneRange = 10

	// Standard excitation settings used while focusing.
	focusExcitation1 = 0.6
	focusExcitation2 = 0.9
)

// ImagingRunner images every section of a flowcell at a number of z
// planes. Sections are processed strictly in declared order; the
// ordering is a reproducibility contract.
type ImagingRunner struct {
	instrument secondary.Instrument
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewImagingRunner creates an ImagingRunner.
func NewImagingRunner(instrument secondary.Instrument, logger *slog.Logger, m *metrics.Metrics) *ImagingRunner {
	return &ImagingRunner{instrument: instrument, logger: logger, metrics: m}
}

// Image scans each section of fc at planes z planes and returns the
// total elapsed time. The z stage is homed once all sections finish.
func (r *ImagingRunner) Image(ctx context.Context, fc *flowcell.Flowcell, planes int) (time.Duration, error) {
	fc.SetImaging(true)
	defer fc.SetImaging(false)

	start := time.Now()
	for _, section := range fc.Sections {
		if err := r.imageSection(ctx, fc, section, planes); err != nil {
			return time.Since(start), fmt.Errorf("section %s: %w", section.Name, err)
		}
		r.metrics.ScansCompleted.WithLabelValues(fc.Position).Inc()
	}

	if _, err := r.instrument.Z().Move(ctx, [3]int{0, 0, 0}); err != nil {
		return time.Since(start), fmt.Errorf("failed to home z stage: %w", err)
	}
	return time.Since(start), nil
}

func (r *ImagingRunner) imageSection(ctx context.Context, fc *flowcell.Flowcell, section *flowcell.Section, planes int) error {
	cycle := fc.Cycle()
	ins := r.instrument

	// Coarse focus: measured once per section, then reused from cache.
	if section.CoarseFocus == nil {
		r.logger.Info("finding rough focus", "flowcell", fc.Position, "section", section.Name)
		if err := r.moveToFocusPosition(ctx, section.YCenter, section.XCenter); err != nil {
			return err
		}
		z, err := ins.RoughFocus(ctx)
		if err != nil {
			return fmt.Errorf("rough focus failed: %w", err)
		}
		section.CoarseFocus = &z
	} else {
		if _, err := ins.Z().Move(ctx, *section.CoarseFocus); err != nil {
			return err
		}
	}

	// Fine focus per the section's policy.
	switch section.Fine.Mode {
	case flowcell.FocusRefineEveryCycle:
		r.logger.Info("finding fine focus", "flowcell", fc.Position, "section", section.Name)
		if err := r.moveToFocusPosition(ctx, section.YCenter, section.XCenter); err != nil {
			return err
		}
		if _, err := ins.FineFocus(ctx); err != nil {
			return fmt.Errorf("fine focus failed: %w", err)
		}
	case flowcell.FocusCached:
		if _, err := ins.Objective().Move(ctx, section.Fine.Cached); err != nil {
			return err
		}
	case flowcell.FocusNever:
		// Objective stays where coarse focus left it.
	}

	// Optimize the excitation filter pair over a fixed frame sample.
	r.logger.Info("finding optimal filter", "flowcell", fc.Position, "section", section.Name)
	if _, err := ins.Stage().MoveY(ctx, section.YInitial); err != nil {
		return err
	}
	if _, err := ins.Stage().MoveX(ctx, section.XCenter); err != nil {
		return err
	}
	f1, f2, err := ins.OptimizeFilter(ctx, filterSampleFrames)
	if err != nil {
		return fmt.Errorf("filter optimization failed: %w", err)
	}
	if err := r.applyExcitation(ctx, f1, f2); err != nil {
		return err
	}
	fc.ExFilter1, fc.ExFilter2 = f1, f2

	// Objective scan window from the requested plane count.
	objPos := ins.Objective().Position()
	var objStart, objStop, objStep int
	if planes > 1 {
		objStep = ins.Objective().NyquistStep()
		objStart = objPos - objStep*planes/2
		objStop = objPos + objStep*planes/2
	} else {
		objStart = objPos
		objStep = singlePlaneStep
		objStop = objPos + singlePlaneRange
	}

	name := fmt.Sprintf("%s_%s_c%d", fc.Position, section.Name, cycle)
	r.logger.Info("imaging section", "flowcell", fc.Position, "cycle", cycle, "section", section.Name)
	scanTime, err := ins.Scan(ctx, secondary.ScanRequest{
		X:        section.XInitial,
		Y:        section.YInitial,
		ObjStart: objStart,
		ObjStop:  objStop,
		ObjStep:  objStep,
		NScans:   section.NScans,
		NFrames:  section.NFrames,
		Name:     name,
	})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	r.logger.Info("section imaged",
		"flowcell", fc.Position, "cycle", cycle, "section", section.Name,
		"minutes", int(scanTime.Minutes()))
	return nil
}

// moveToFocusPosition centers the stage on a section and applies the
// standard focusing optics.
func (r *ImagingRunner) moveToFocusPosition(ctx context.Context, y, x float64) error {
	if _, err := r.instrument.Stage().MoveY(ctx, y); err != nil {
		return err
	}
	if _, err := r.instrument.Stage().MoveX(ctx, x); err != nil {
		return err
	}
	return r.applyExcitation(ctx, focusExcitation1, focusExcitation2)
}

func (r *ImagingRunner) applyExcitation(ctx context.Context, f1, f2 float64) error {
	optics := r.instrument.Optics()
	if err := optics.SetExcitation(ctx, 1, f1); err != nil {
		return err
	}
	if err := optics.SetExcitation(ctx, 2, f2); err != nil {
		return err
	}
	return optics.EmissionIn(ctx, true)
}
