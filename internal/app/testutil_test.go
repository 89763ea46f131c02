package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/flowctl/internal/core/flowcell"
	"github.com/example/flowctl/internal/core/reagent"
	"github.com/example/flowctl/internal/core/recipe"
	"github.com/example/flowctl/internal/metrics"
	"github.com/example/flowctl/internal/ports/secondary"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// mockInstrument implements secondary.Instrument, recording every device
// call for assertions.
type mockInstrument struct {
	mu sync.Mutex

	selectedPorts map[string][]int
	pumped        map[string]int
	pumpErr       error

	zPos        [3]int
	stageOut    bool
	roughCalls  int
	fineCalls   int
	filterCalls int
	scans       []string
	scanErr     error
	poweredDown bool
	laserPower  int
}

func newMockInstrument() *mockInstrument {
	return &mockInstrument{
		selectedPorts: make(map[string][]int),
		pumped:        make(map[string]int),
	}
}

func (m *mockInstrument) Valve(position string) secondary.Valve {
	return &mockValve{ins: m, position: position}
}

func (m *mockInstrument) Pump(position string) secondary.Pump {
	return &mockPump{ins: m, position: position}
}

func (m *mockInstrument) Stage() secondary.XYStage            { return &mockStage{ins: m} }
func (m *mockInstrument) Z() secondary.ZStage                 { return &mockZ{ins: m} }
func (m *mockInstrument) Objective() secondary.ObjectiveStage { return &mockObjective{ins: m} }
func (m *mockInstrument) Optics() secondary.Optics            { return &mockOptics{ins: m} }

func (m *mockInstrument) RoughFocus(ctx context.Context) ([3]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roughCalls++
	m.zPos = [3]int{21500, 21500, 21500}
	return m.zPos, nil
}

func (m *mockInstrument) FineFocus(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fineCalls++
	return 30000, nil
}

func (m *mockInstrument) OptimizeFilter(ctx context.Context, frames int) (float64, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filterCalls++
	return 1.6, 0.6, nil
}

func (m *mockInstrument) Scan(ctx context.Context, req secondary.ScanRequest) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanErr != nil {
		return 0, m.scanErr
	}
	m.scans = append(m.scans, req.Name)
	return time.Millisecond, nil
}

func (m *mockInstrument) Layout(position string, coords [4]float64) (secondary.SectionLayout, error) {
	return secondary.SectionLayout{
		XCenter: 15000, YCenter: 380000, XInitial: 14000, YInitial: 390000,
		NScans: 2, NFrames: 16,
	}, nil
}

func (m *mockInstrument) PowerDownY(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poweredDown = true
	return nil
}

func (m *mockInstrument) ports(position string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.selectedPorts[position]))
	copy(out, m.selectedPorts[position])
	return out
}

func (m *mockInstrument) pumpedVolume(position string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pumped[position]
}

func (m *mockInstrument) scanNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.scans))
	copy(out, m.scans)
	return out
}

type mockValve struct {
	ins      *mockInstrument
	position string
}

func (v *mockValve) Select(ctx context.Context, port int) error {
	v.ins.mu.Lock()
	defer v.ins.mu.Unlock()
	v.ins.selectedPorts[v.position] = append(v.ins.selectedPorts[v.position], port)
	return nil
}

type mockPump struct {
	ins      *mockInstrument
	position string
}

func (p *mockPump) Run(ctx context.Context, volumeUL, speedULMin int) error {
	p.ins.mu.Lock()
	defer p.ins.mu.Unlock()
	if p.ins.pumpErr != nil {
		return p.ins.pumpErr
	}
	p.ins.pumped[p.position] += volumeUL
	return nil
}

type mockStage struct{ ins *mockInstrument }

func (s *mockStage) MoveX(ctx context.Context, pos float64) (float64, error) { return pos, nil }
func (s *mockStage) MoveY(ctx context.Context, pos float64) (float64, error) { return pos, nil }
func (s *mockStage) MoveOut(ctx context.Context) error {
	s.ins.mu.Lock()
	defer s.ins.mu.Unlock()
	s.ins.stageOut = true
	return nil
}

type mockZ struct{ ins *mockInstrument }

func (z *mockZ) Move(ctx context.Context, pos [3]int) ([3]int, error) {
	z.ins.mu.Lock()
	defer z.ins.mu.Unlock()
	z.ins.zPos = pos
	return pos, nil
}

func (z *mockZ) Position() [3]int {
	z.ins.mu.Lock()
	defer z.ins.mu.Unlock()
	return z.ins.zPos
}

type mockObjective struct{ ins *mockInstrument }

func (o *mockObjective) Move(ctx context.Context, steps int) (int, error) { return steps, nil }
func (o *mockObjective) Position() int                                    { return 30000 }
func (o *mockObjective) NyquistStep() int                                 { return 235 }

type mockOptics struct{ ins *mockInstrument }

func (o *mockOptics) SetExcitation(ctx context.Context, channel int, value float64) error {
	return nil
}
func (o *mockOptics) EmissionIn(ctx context.Context, in bool) error { return nil }
func (o *mockOptics) SetLaserPower(ctx context.Context, percent int) error {
	o.ins.mu.Lock()
	defer o.ins.mu.Unlock()
	o.ins.laserPower = percent
	return nil
}

// scriptedOperator implements secondary.Operator with canned answers.
type scriptedOperator struct {
	mu       sync.Mutex
	confirms []bool
	acks     int
	notices  []string
}

func (o *scriptedOperator) Acknowledge(msg string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.acks++
	return nil
}

func (o *scriptedOperator) Confirm(msg string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.confirms) == 0 {
		return false, nil
	}
	answer := o.confirms[0]
	o.confirms = o.confirms[1:]
	return answer, nil
}

func (o *scriptedOperator) Notify(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notices = append(o.notices, msg)
}

func (o *scriptedOperator) ackCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.acks
}

// ============================================================================
// Test Fixtures
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testPorts builds a small reagent dictionary: three fixed ports plus
// one variable covering two cycles.
func testPorts(t *testing.T) *reagent.Dictionary {
	t.Helper()
	dict, err := reagent.Build(reagent.BuildInput{
		Valve:     map[int]string{1: "water", 2: "cleave", 3: "wash"},
		Variables: []string{"nuc"},
		CycleReagents: []reagent.CycleReagent{
			{Variable: "nuc", Cycle: 1, Reagent: "cleave"},
			{Variable: "nuc", Cycle: 2, Reagent: "wash"},
		},
		TotalCycles: 2,
	})
	if err != nil {
		t.Fatalf("failed to build test ports: %v", err)
	}
	return dict
}

// testFlowcell builds a started flowcell with the given recipe lines.
func testFlowcell(t *testing.T, position string, cycles int, lines ...string) *flowcell.Flowcell {
	t.Helper()
	fc, err := flowcell.New(position, cycles)
	if err != nil {
		t.Fatalf("failed to create flowcell: %v", err)
	}
	fc.FlushVolume = 2000
	fc.PumpSpeed = flowcell.PumpSpeeds{Flush: 700, Reagent: 40}
	fc.Recipe = recipe.FromLines(lines)
	fc.StartCycle()
	return fc
}

// testExecutor builds an executor on the mock instrument with timing
// shortened for tests.
func testExecutor(ins *mockInstrument, op secondary.Operator, ports *reagent.Dictionary) *Executor {
	logger := testLogger()
	m := metrics.New()
	coordinator := NewCoordinator(logger, m)
	imaging := NewImagingRunner(ins, logger, m)
	e := NewExecutor(ins, ports, op, coordinator, imaging, logger, m)
	e.HoldUnit = 10 * time.Millisecond
	e.KeepAlive = 20 * time.Millisecond
	return e
}

// waitIdle polls until the flowcell's current action finishes.
func waitIdle(t *testing.T, fc *flowcell.Flowcell) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for fc.Busy() {
		select {
		case <-deadline:
			t.Fatal("flowcell never went idle")
		case <-time.After(time.Millisecond):
		}
	}
}
