// Package app implements the application services - the Imperative
// Shell. Services orchestrate calls to the functional core and drive
// the instrument, persistence, and operator console through the
// secondary ports.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/example/flowctl/internal/config"
	"github.com/example/flowctl/internal/core/flowcell"
	"github.com/example/flowctl/internal/core/reagent"
	"github.com/example/flowctl/internal/core/recipe"
	"github.com/example/flowctl/internal/metrics"
	"github.com/example/flowctl/internal/ports/primary"
	"github.com/example/flowctl/internal/ports/secondary"
)

// InstrumentFactory produces the device façade for a run. Simulate
// selects the simulated instrument.
type InstrumentFactory func(cfg *config.Config, simulate bool) (secondary.Instrument, error)

// RunServiceImpl implements primary.RunService.
type RunServiceImpl struct {
	runRepo       secondary.RunRepository
	historyRepo   secondary.HistoryRepository
	operator      secondary.Operator
	newInstrument InstrumentFactory
	logger        *slog.Logger
}

// NewRunService creates the run service.
func NewRunService(
	runRepo secondary.RunRepository,
	historyRepo secondary.HistoryRepository,
	operator secondary.Operator,
	newInstrument InstrumentFactory,
	logger *slog.Logger,
) *RunServiceImpl {
	return &RunServiceImpl{
		runRepo:       runRepo,
		historyRepo:   historyRepo,
		operator:      operator,
		newInstrument: newInstrument,
		logger:        logger,
	}
}

// preflight loads the config and recipe and aggregates every validation
// violation: port configuration, recipe instructions, and the focus
// policy. It returns the loaded pieces so Run does not parse twice.
type preflight struct {
	cfg    *config.Config
	ports  *reagent.Dictionary
	rec    *recipe.Recipe
	report primary.ValidationReport
}

func (s *RunServiceImpl) runPreflight(configPath string) (*preflight, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	p := &preflight{cfg: cfg}

	dict, err := reagent.Build(reagent.BuildInput{
		Valve:         cfg.Valve,
		Variables:     cfg.Method.VariableReagents,
		CycleReagents: cycleReagents(cfg),
		TotalCycles:   cfg.Experiment.Cycles,
	})
	if err != nil {
		if cfgErrs, ok := err.(reagent.ConfigErrors); ok {
			p.report.Violations = append(p.report.Violations, cfgErrs...)
		} else {
			return nil, err
		}
	}
	p.ports = dict

	rec, err := recipe.Load(cfg.RecipePath(configPath))
	if err != nil {
		return nil, err
	}
	p.rec = rec

	// When the dictionary failed to build, validate the recipe against
	// the raw name set anyway so recipe violations still surface in the
	// same report.
	validPorts := map[string]bool{}
	if dict != nil {
		validPorts = dict.Names()
	} else {
		for _, name := range cfg.Valve {
			validPorts[name] = true
		}
		for _, v := range cfg.Method.VariableReagents {
			validPorts[v] = true
		}
	}

	result, err := recipe.Check(rec, recipe.CheckOptions{
		ValidPorts: validPorts,
		FirstPort:  cfg.Method.FirstPort,
	})
	if err != nil {
		checkErrs, ok := err.(recipe.CheckErrors)
		if !ok {
			return nil, err
		}
		for _, v := range checkErrs {
			p.report.Violations = append(p.report.Violations, fmt.Sprintf("line %d: %s", v.Line, v.Msg))
		}
	}
	p.report.ResumeLine = result.ResumeLine
	p.report.StopLines = result.StopLines

	if _, err := parseFocusPolicy(cfg.Method.ObjectiveFocus); err != nil {
		p.report.Violations = append(p.report.Violations, err.Error())
	}

	seen := map[string]bool{}
	for _, sec := range cfg.Sections {
		if !seen[sec.Flowcell] {
			seen[sec.Flowcell] = true
			p.report.Flowcells = append(p.report.Flowcells, sec.Flowcell)
		}
	}
	return p, nil
}

// Validate performs the full dry check without touching hardware.
func (s *RunServiceImpl) Validate(ctx context.Context, configPath string) (*primary.ValidationReport, error) {
	p, err := s.runPreflight(configPath)
	if err != nil {
		return nil, err
	}
	return &p.report, nil
}

// Run validates and executes the experiment to completion.
func (s *RunServiceImpl) Run(ctx context.Context, req primary.RunRequest) (*primary.RunResult, error) {
	p, err := s.runPreflight(req.ConfigPath)
	if err != nil {
		return nil, err
	}
	if !p.report.Valid() {
		return nil, &PreflightError{Report: p.report}
	}
	cfg := p.cfg

	for _, dir := range []string{cfg.SaveDir(), cfg.LogDir(), cfg.ImageDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create run directory: %w", err)
		}
	}
	if err := cfg.SaveCopy(cfg.LogDir()); err != nil {
		return nil, err
	}

	logger, closeLog, err := s.runLogger(cfg)
	if err != nil {
		return nil, err
	}
	defer closeLog()

	instrument, err := s.newInstrument(cfg, req.Simulate)
	if err != nil {
		return nil, err
	}
	if err := instrument.Optics().SetLaserPower(ctx, cfg.Method.LaserPower); err != nil {
		return nil, fmt.Errorf("failed to set laser power: %w", err)
	}

	fcs, err := buildFlowcells(cfg, p.rec, instrument, p.report.ResumeLine)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	if cfg.MetricsListen != "" {
		stopMetrics := serveMetrics(cfg.MetricsListen, m, logger)
		defer stopMetrics()
	}

	run := &secondary.RunRecord{
		ID:        uuid.NewString(),
		Name:      cfg.Experiment.Name,
		Cycles:    cfg.Experiment.Cycles,
		Flowcells: len(fcs),
		Status:    secondary.RunStatusRunning,
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		return nil, err
	}

	flusher := NewFlusher(instrument, s.operator, p.ports, logger)
	if !req.SkipPrime {
		if err := flusher.Prime(ctx, fcs); err != nil {
			return nil, err
		}
	}

	for _, fc := range fcs {
		fc.StartCycle()
	}
	logger.Info("starting experiment",
		"run", run.ID,
		"experiment", cfg.Experiment.Name,
		"cycles", cfg.Experiment.Cycles,
		"flowcells", len(fcs))

	coordinator := NewCoordinator(logger, m)
	imaging := NewImagingRunner(instrument, logger, m)
	executor := NewExecutor(instrument, p.ports, s.operator, coordinator, imaging, logger, m)
	scheduler := NewScheduler(fcs, executor, cfg.Experiment.FirstFlowcell, logger, m)

	runErr := scheduler.Run(ctx)

	// Shutdown and persistence run even when the scheduler was
	// cancelled; the instrument must be left parked and the history
	// must survive.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Minute)
	defer cancel()

	histories, shutdownErr := s.shutdown(shutdownCtx, run.ID, fcs, instrument, flusher, logger)

	status := secondary.RunStatusComplete
	if runErr != nil || shutdownErr != nil || anyFailed(fcs) {
		status = secondary.RunStatusFailed
	}
	if err := s.runRepo.Finish(shutdownCtx, run.ID, status); err != nil {
		logger.Error("failed to finish run record", "run", run.ID, "error", err)
	}

	result := &primary.RunResult{RunID: run.ID, Status: status, Histories: histories}
	if runErr != nil {
		return result, runErr
	}
	return result, shutdownErr
}

// Prime validates the experiment and flushes every fixed reagent port
// on every flowcell, without starting the recipe. Used to wet the lines
// before loading the real flowcells.
func (s *RunServiceImpl) Prime(ctx context.Context, req primary.RunRequest) error {
	p, err := s.runPreflight(req.ConfigPath)
	if err != nil {
		return err
	}
	if !p.report.Valid() {
		return &PreflightError{Report: p.report}
	}

	instrument, err := s.newInstrument(p.cfg, req.Simulate)
	if err != nil {
		return err
	}

	fcs, err := buildFlowcells(p.cfg, p.rec, instrument, p.report.ResumeLine)
	if err != nil {
		return err
	}

	flusher := NewFlusher(instrument, s.operator, p.ports, s.logger)
	return flusher.Prime(ctx, fcs)
}

// runLogger tees structured logs to stderr and the per-run log file.
func (s *RunServiceImpl) runLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	name := cfg.Experiment.Name + "_" + time.Now().Format("20060102_150405") + ".log"
	f, err := os.Create(filepath.Join(cfg.LogDir(), name))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create run log: %w", err)
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stderr, f), nil)
	return slog.New(handler), func() { f.Close() }, nil
}

func serveMetrics(listen string, m *metrics.Metrics, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: listen, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
}

func cycleReagents(cfg *config.Config) []reagent.CycleReagent {
	out := make([]reagent.CycleReagent, 0, len(cfg.CycleReagents))
	for _, cr := range cfg.CycleReagents {
		out = append(out, reagent.CycleReagent{
			Variable: cr.Variable,
			Cycle:    cr.Cycle,
			Reagent:  cr.Reagent,
		})
	}
	return out
}

func anyFailed(fcs []*flowcell.Flowcell) bool {
	for _, fc := range fcs {
		if fc.Failed() {
			return true
		}
	}
	return false
}
