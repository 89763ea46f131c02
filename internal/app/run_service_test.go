package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/example/flowctl/internal/config"
	"github.com/example/flowctl/internal/ports/primary"
	"github.com/example/flowctl/internal/ports/secondary"
)

// memRunRepo implements secondary.RunRepository in memory.
type memRunRepo struct {
	mu   sync.Mutex
	runs map[string]*secondary.RunRecord
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: make(map[string]*secondary.RunRecord)}
}

func (m *memRunRepo) Create(ctx context.Context, run *secondary.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *run
	m.runs[run.ID] = &copied
	return nil
}

func (m *memRunRepo) Finish(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return errors.New("run not found")
	}
	run.Status = status
	return nil
}

func (m *memRunRepo) GetByID(ctx context.Context, id string) (*secondary.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, errors.New("run not found")
	}
	return run, nil
}

func (m *memRunRepo) List(ctx context.Context, limit int) ([]*secondary.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.RunRecord
	for _, run := range m.runs {
		out = append(out, run)
	}
	return out, nil
}

// memHistoryRepo implements secondary.HistoryRepository in memory.
type memHistoryRepo struct {
	mu   sync.Mutex
	rows map[string][]secondary.HistoryRow
}

func newMemHistoryRepo() *memHistoryRepo {
	return &memHistoryRepo{rows: make(map[string][]secondary.HistoryRow)}
}

func (m *memHistoryRepo) Append(ctx context.Context, runID string, rows []secondary.HistoryRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[runID] = append(m.rows[runID], rows...)
	return nil
}

func (m *memHistoryRepo) ListByRun(ctx context.Context, runID, flowcell string) ([]secondary.HistoryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []secondary.HistoryRow
	for _, row := range m.rows[runID] {
		if flowcell == "" || row.Flowcell == flowcell {
			out = append(out, row)
		}
	}
	return out, nil
}

const testConfigYAML = `experiment:
  name: exp1
  recipe: recipe.txt
  cycles: 2
  save_path: %s
  first_flowcell: A
method:
  first_port: water
  variable_reagents: [nuc]
valve:
  1: water
  2: cleave
  3: wash
cycle_reagents:
  - {variable: nuc, cycle: 1, reagent: cleave}
  - {variable: nuc, cycle: 2, reagent: wash}
sections:
  - {name: s1, flowcell: A, coords: [10, 20, 15, 45]}
  - {name: s2, flowcell: B, coords: [10, 20, 15, 45]}
`

const testRecipe = `PORT	water
PUMP	100
WAIT	IMAG
IMAG	15
`

// writeExperiment lays a config and recipe into a temp dir and returns
// the config path.
func writeExperiment(t *testing.T, recipeText string) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf(testConfigYAML, filepath.Join(dir, "out"))
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "recipe.txt"), []byte(recipeText), 0644); err != nil {
		t.Fatalf("failed to write recipe: %v", err)
	}
	return cfgPath
}

func testRunService(ins *mockInstrument, op *scriptedOperator) (*RunServiceImpl, *memRunRepo, *memHistoryRepo) {
	runRepo := newMemRunRepo()
	historyRepo := newMemHistoryRepo()
	factory := func(cfg *config.Config, simulate bool) (secondary.Instrument, error) {
		return ins, nil
	}
	return NewRunService(runRepo, historyRepo, op, factory, testLogger()), runRepo, historyRepo
}

func TestValidateCleanExperiment(t *testing.T) {
	svc, _, _ := testRunService(newMockInstrument(), &scriptedOperator{})
	cfgPath := writeExperiment(t, testRecipe)

	report, err := svc.Validate(context.Background(), cfgPath)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !report.Valid() {
		t.Fatalf("violations = %v, want none", report.Violations)
	}
	if report.ResumeLine != 1 {
		t.Errorf("resume line = %d, want 1 (water comes before every instruction that matters)", report.ResumeLine)
	}
	if len(report.Flowcells) != 2 {
		t.Errorf("flowcells = %v, want A and B", report.Flowcells)
	}
}

func TestValidateAggregatesViolations(t *testing.T) {
	svc, _, _ := testRunService(newMockInstrument(), &scriptedOperator{})

	// Unknown port, bad pump volume, bad opcode: all reported at once.
	cfgPath := writeExperiment(t, "PORT\tmystery\nPUMP\tlots\nFROB\t1\n")

	report, err := svc.Validate(context.Background(), cfgPath)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if report.Valid() {
		t.Fatal("expected violations")
	}
	if len(report.Violations) != 3 {
		t.Errorf("violations = %v, want 3", report.Violations)
	}
}

func TestValidateReportsStopLines(t *testing.T) {
	svc, _, _ := testRunService(newMockInstrument(), &scriptedOperator{})
	cfgPath := writeExperiment(t, "PORT\twater\nSTOP\tcheck\nPUMP\t100\n")

	report, err := svc.Validate(context.Background(), cfgPath)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !report.Valid() {
		t.Fatalf("violations = %v, want none", report.Violations)
	}
	if len(report.StopLines) != 1 || report.StopLines[0] != 2 {
		t.Errorf("stop lines = %v, want [2]", report.StopLines)
	}
}

func TestRunRejectsInvalidExperiment(t *testing.T) {
	svc, runRepo, _ := testRunService(newMockInstrument(), &scriptedOperator{})
	cfgPath := writeExperiment(t, "PORT\tmystery\n")

	_, err := svc.Run(context.Background(), primary.RunRequest{ConfigPath: cfgPath, Simulate: true})

	var preflight *PreflightError
	if !errors.As(err, &preflight) {
		t.Fatalf("error = %v, want PreflightError", err)
	}
	if len(runRepo.runs) != 0 {
		t.Error("no run record should exist for a rejected experiment")
	}
}

func TestPrimeFlushesEveryFixedPort(t *testing.T) {
	ins := newMockInstrument()
	op := &scriptedOperator{confirms: []bool{true}}
	svc, runRepo, _ := testRunService(ins, op)
	cfgPath := writeExperiment(t, testRecipe)

	if err := svc.Prime(context.Background(), primary.RunRequest{ConfigPath: cfgPath, Simulate: true}); err != nil {
		t.Fatalf("Prime failed: %v", err)
	}

	for _, pos := range []string{"A", "B"} {
		if got := ins.pumpedVolume(pos); got != 3*config.DefaultFlushVolume {
			t.Errorf("flowcell %s pumped %d uL, want %d", pos, got, 3*config.DefaultFlushVolume)
		}
	}
	if len(runRepo.runs) != 0 {
		t.Error("prime should not create a run record")
	}
	if !ins.stageOut {
		t.Error("stage should be parked before priming")
	}
}

func TestRunExecutesExperimentEndToEnd(t *testing.T) {
	ins := newMockInstrument()
	op := &scriptedOperator{} // declines the shutdown flush
	svc, runRepo, historyRepo := testRunService(ins, op)
	cfgPath := writeExperiment(t, testRecipe)

	result, err := svc.Run(context.Background(), primary.RunRequest{
		ConfigPath: cfgPath,
		Simulate:   true,
		SkipPrime:  true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Status != secondary.RunStatusComplete {
		t.Fatalf("status = %q, want complete", result.Status)
	}

	run, err := runRepo.GetByID(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("run record missing: %v", err)
	}
	if run.Status != secondary.RunStatusComplete {
		t.Errorf("persisted status = %q, want complete", run.Status)
	}

	// 4 instructions + 1 rendezvous release entry, times 2 cycles, per
	// flowcell.
	for _, position := range []string{"A", "B"} {
		rows, err := historyRepo.ListByRun(context.Background(), result.RunID, position)
		if err != nil {
			t.Fatalf("history missing: %v", err)
		}
		if len(rows) != 10 {
			t.Errorf("flowcell %s history length = %d, want 10", position, len(rows))
		}
		if result.Histories[position] != len(rows) {
			t.Errorf("result count = %d, want %d", result.Histories[position], len(rows))
		}
	}

	// Both flowcells imaged both cycles.
	scans := ins.scanNames()
	wantScans := map[string]bool{
		"A_s1_c1": true, "A_s1_c2": true,
		"B_s2_c1": true, "B_s2_c2": true,
	}
	for _, name := range scans {
		delete(wantScans, name)
	}
	if len(wantScans) != 0 {
		t.Errorf("missing scans %v in %v", wantScans, scans)
	}

	if !ins.poweredDown {
		t.Error("y motor should be powered down at shutdown")
	}
	if !ins.stageOut {
		t.Error("stage should be parked at shutdown")
	}
	if ins.laserPower != config.DefaultLaserPower {
		t.Errorf("laser power = %d, want %d", ins.laserPower, config.DefaultLaserPower)
	}
}

func TestRunCopiesConfigIntoRunDirectory(t *testing.T) {
	ins := newMockInstrument()
	svc, _, _ := testRunService(ins, &scriptedOperator{})
	cfgPath := writeExperiment(t, testRecipe)

	_, err := svc.Run(context.Background(), primary.RunRequest{
		ConfigPath: cfgPath,
		Simulate:   true,
		SkipPrime:  true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	logDir := filepath.Join(filepath.Dir(cfgPath), "out", "exp1", "logs")
	data, err := os.ReadFile(filepath.Join(logDir, "config.yaml"))
	if err != nil {
		t.Fatalf("config copy missing: %v", err)
	}
	if !strings.Contains(string(data), "exp1") {
		t.Error("config copy does not carry the experiment name")
	}

	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("log dir missing: %v", err)
	}
	var foundLog bool
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".log") {
			foundLog = true
		}
	}
	if !foundLog {
		t.Error("run log file missing")
	}
}
