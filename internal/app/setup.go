package app

import (
	"fmt"
	"strconv"

	"github.com/example/flowctl/internal/config"
	"github.com/example/flowctl/internal/core/flowcell"
	"github.com/example/flowctl/internal/core/recipe"
	"github.com/example/flowctl/internal/ports/secondary"
)

// parseFocusPolicy maps the method's objective_focus setting onto a
// FocusPolicy. Empty and "refine" refine every cycle, "never" skips
// fine focus, and a number is a fixed cached objective position.
func parseFocusPolicy(s string) (flowcell.FocusPolicy, error) {
	switch s {
	case "", "refine":
		return flowcell.FocusPolicy{Mode: flowcell.FocusRefineEveryCycle}, nil
	case "never":
		return flowcell.FocusPolicy{Mode: flowcell.FocusNever}, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return flowcell.FocusPolicy{}, fmt.Errorf("invalid objective_focus %q: want refine, never, or an objective position", s)
	}
	return flowcell.FocusPolicy{Mode: flowcell.FocusCached, Cached: v}, nil
}

// buildFlowcells constructs the flowcells named by the configured
// sections, in section declaration order, integrates each section's
// stage geometry through the instrument, and links partner pointers
// into a ring. This is the one-time integration step; everything built
// here is read-only once the scheduler starts.
func buildFlowcells(cfg *config.Config, rec *recipe.Recipe, instrument secondary.Instrument, resumeLine int) ([]*flowcell.Flowcell, error) {
	focus, err := parseFocusPolicy(cfg.Method.ObjectiveFocus)
	if err != nil {
		return nil, err
	}

	var fcs []*flowcell.Flowcell
	byPosition := map[string]*flowcell.Flowcell{}

	for _, sec := range cfg.Sections {
		fc, ok := byPosition[sec.Flowcell]
		if !ok {
			fc, err = flowcell.New(sec.Flowcell, cfg.Experiment.Cycles)
			if err != nil {
				return nil, err
			}
			fc.FlushVolume = cfg.Method.FlushVolume
			fc.PumpSpeed = flowcell.PumpSpeeds{
				Flush:   cfg.Method.FlushSpeed,
				Reagent: cfg.Method.ReagentSpeed,
			}
			fc.Recipe = rec.Clone()
			fc.SetResumeLine(resumeLine)
			byPosition[sec.Flowcell] = fc
			fcs = append(fcs, fc)
		}

		layout, err := instrument.Layout(sec.Flowcell, sec.Coords)
		if err != nil {
			return nil, fmt.Errorf("failed to lay out section %s: %w", sec.Name, err)
		}
		section := &flowcell.Section{
			Name:     sec.Name,
			Coords:   sec.Coords,
			XCenter:  layout.XCenter,
			YCenter:  layout.YCenter,
			XInitial: layout.XInitial,
			YInitial: layout.YInitial,
			NScans:   layout.NScans,
			NFrames:  layout.NFrames,
			Fine:     focus,
		}
		if cfg.Method.ZStart != nil {
			z := *cfg.Method.ZStart
			section.CoarseFocus = &z
		}
		fc.Sections = append(fc.Sections, section)
	}

	// With more than one flowcell the partner pointers form a ring:
	// each flowcell rendezvouses with the one declared before it.
	if len(fcs) > 1 {
		for i, fc := range fcs {
			fc.SetPartner(fcs[(i+len(fcs)-1)%len(fcs)])
		}
	}
	return fcs, nil
}
