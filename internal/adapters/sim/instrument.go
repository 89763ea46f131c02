// Package sim contains the simulated instrument adapter. It implements
// the full device façade with plausible geometry and timing so recipes
// can be exercised end to end without hardware.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/example/flowctl/internal/ports/secondary"
)

// Stage geometry constants. Section coordinates arrive in mm measured
// from the flowcell origin; the stage works in step counts.
const (
	xStepsPerMM = 409.6
	yStepsPerMM = 1000.0

	// Flowcell B sits one lane width to the right of A.
	xOriginA = 12000.0
	xOriginB = 38000.0
	yOrigin  = 400000.0

	flowcellWidthMM  = 25.0
	flowcellHeightMM = 75.0

	// One scan swath and one frame, in mm of sample.
	scanWidthMM   = 0.769
	frameHeightMM = 0.048

	objNyquistStep = 235

	// One syringe barrel holds 250 uL; a pump command moves at most one
	// full stroke across its barrels.
	barrelVolumeUL = 250
	defaultBarrels = 8
)

// Instrument is the simulated device façade. Per-flowcell fluidics run
// independently; motion and optics are shared and serialized the way
// the physical axes are.
type Instrument struct {
	logger *slog.Logger

	// Delay stretches every simulated operation. Zero makes the
	// instrument instantaneous for tests.
	Delay time.Duration

	// Barrels is the syringe barrel count per pump lane, bounding the
	// volume of a single pump command.
	Barrels int

	motion sync.Mutex // shared stage, optics, camera

	valves map[string]*simValve
	pumps  map[string]*simPump

	stage     simStage
	z         simZ
	objective simObjective
	optics    simOptics

	mu          sync.Mutex
	scans       []string
	poweredDown bool
}

// New creates a simulated instrument.
func New(logger *slog.Logger) *Instrument {
	ins := &Instrument{logger: logger, Barrels: defaultBarrels}
	ins.valves = map[string]*simValve{
		"A": {ins: ins, position: "A"},
		"B": {ins: ins, position: "B"},
	}
	ins.pumps = map[string]*simPump{
		"A": {ins: ins, position: "A"},
		"B": {ins: ins, position: "B"},
	}
	ins.stage.ins = ins
	ins.z.ins = ins
	ins.objective.ins = ins
	ins.optics.ins = ins
	return ins
}

func (ins *Instrument) Valve(position string) secondary.Valve { return ins.valves[position] }
func (ins *Instrument) Pump(position string) secondary.Pump   { return ins.pumps[position] }
func (ins *Instrument) Stage() secondary.XYStage              { return &ins.stage }
func (ins *Instrument) Z() secondary.ZStage                   { return &ins.z }
func (ins *Instrument) Objective() secondary.ObjectiveStage   { return &ins.objective }
func (ins *Instrument) Optics() secondary.Optics              { return &ins.optics }

// sleep waits out one simulated operation, honoring cancellation.
func (ins *Instrument) sleep(ctx context.Context) error {
	if ins.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(ins.Delay):
		return nil
	}
}

// RoughFocus runs coarse autofocus at the current stage position.
func (ins *Instrument) RoughFocus(ctx context.Context) ([3]int, error) {
	ins.motion.Lock()
	defer ins.motion.Unlock()
	if err := ins.sleep(ctx); err != nil {
		return [3]int{}, err
	}
	pos := [3]int{21500, 21500, 21500}
	ins.z.pos = pos
	return pos, nil
}

// FineFocus runs fine autofocus and returns the objective position.
func (ins *Instrument) FineFocus(ctx context.Context) (int, error) {
	ins.motion.Lock()
	defer ins.motion.Unlock()
	if err := ins.sleep(ctx); err != nil {
		return 0, err
	}
	ins.objective.pos = 30000
	return ins.objective.pos, nil
}

// OptimizeFilter samples frames and returns the excitation filter pair.
func (ins *Instrument) OptimizeFilter(ctx context.Context, frames int) (float64, float64, error) {
	if frames <= 0 {
		return 0, 0, &secondary.DeviceFault{Device: "camera", Op: "optimize filter",
			Err: fmt.Errorf("frame count %d", frames)}
	}
	ins.motion.Lock()
	defer ins.motion.Unlock()
	if err := ins.sleep(ctx); err != nil {
		return 0, 0, err
	}
	return 1.6, 0.6, nil
}

// Scan images one section and returns the simulated scan time.
func (ins *Instrument) Scan(ctx context.Context, req secondary.ScanRequest) (time.Duration, error) {
	if req.NScans < 1 || req.NFrames < 1 {
		return 0, &secondary.DeviceFault{Device: "camera", Op: "scan",
			Err: fmt.Errorf("empty scan window for %s", req.Name)}
	}
	ins.motion.Lock()
	defer ins.motion.Unlock()
	if err := ins.sleep(ctx); err != nil {
		return 0, err
	}

	planes := 1
	if req.ObjStep > 0 {
		planes = (req.ObjStop-req.ObjStart)/req.ObjStep + 1
	}
	elapsed := time.Duration(req.NScans*req.NFrames*planes) * time.Millisecond

	ins.mu.Lock()
	ins.scans = append(ins.scans, req.Name)
	ins.mu.Unlock()

	ins.logger.Debug("scan complete", "name", req.Name, "scans", req.NScans, "frames", req.NFrames, "planes", planes)
	return elapsed, nil
}

// Layout converts a section's flowcell coordinates into stage geometry.
func (ins *Instrument) Layout(position string, coords [4]float64) (secondary.SectionLayout, error) {
	llx, lly, urx, ury := coords[0], coords[1], coords[2], coords[3]
	if urx <= llx || ury <= lly {
		return secondary.SectionLayout{}, fmt.Errorf("section coordinates %v are not lower-left, upper-right", coords)
	}
	if llx < 0 || urx > flowcellWidthMM || lly < 0 || ury > flowcellHeightMM {
		return secondary.SectionLayout{}, fmt.Errorf("section coordinates %v fall outside the flowcell", coords)
	}

	xOrigin := xOriginA
	if position == "B" {
		xOrigin = xOriginB
	}

	return secondary.SectionLayout{
		XCenter:  xOrigin + (llx+urx)/2*xStepsPerMM,
		YCenter:  yOrigin - (lly+ury)/2*yStepsPerMM,
		XInitial: xOrigin + llx*xStepsPerMM,
		YInitial: yOrigin - lly*yStepsPerMM,
		NScans:   int(math.Ceil((urx - llx) / scanWidthMM)),
		NFrames:  int(math.Ceil((ury - lly) / frameHeightMM)),
	}, nil
}

// PowerDownY deactivates the y stage motor.
func (ins *Instrument) PowerDownY(ctx context.Context) error {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	ins.poweredDown = true
	return nil
}

// SelectedPort reports the valve's current port, for tests.
func (ins *Instrument) SelectedPort(position string) int {
	v := ins.valves[position]
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.port
}

// PumpedVolume reports a pump's cumulative volume in uL, for tests.
func (ins *Instrument) PumpedVolume(position string) int {
	p := ins.pumps[position]
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// ScanNames reports every completed scan's image name in order, for
// tests.
func (ins *Instrument) ScanNames() []string {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	out := make([]string, len(ins.scans))
	copy(out, ins.scans)
	return out
}

// PoweredDown reports whether the y motor was shut off.
func (ins *Instrument) PoweredDown() bool {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	return ins.poweredDown
}

type simValve struct {
	ins      *Instrument
	position string
	mu       sync.Mutex
	port     int
}

func (v *simValve) Select(ctx context.Context, port int) error {
	if port < 1 || port > 24 {
		return &secondary.DeviceFault{Device: "valve " + v.position, Op: "select",
			Err: fmt.Errorf("port %d out of range", port)}
	}
	if err := v.ins.sleep(ctx); err != nil {
		return err
	}
	v.mu.Lock()
	v.port = port
	v.mu.Unlock()
	return nil
}

type simPump struct {
	ins      *Instrument
	position string
	mu       sync.Mutex
	volume   int
}

func (p *simPump) Run(ctx context.Context, volumeUL, speedULMin int) error {
	if volumeUL <= 0 || speedULMin <= 0 {
		return &secondary.DeviceFault{Device: "pump " + p.position, Op: "run",
			Err: fmt.Errorf("volume %d at %d uL/min", volumeUL, speedULMin)}
	}
	if max := barrelVolumeUL * p.ins.Barrels; volumeUL > max {
		return &secondary.DeviceFault{Device: "pump " + p.position, Op: "run",
			Err: fmt.Errorf("volume %d exceeds stroke capacity %d", volumeUL, max)}
	}
	if err := p.ins.sleep(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.volume += volumeUL
	p.mu.Unlock()
	return nil
}

type simStage struct {
	ins  *Instrument
	mu   sync.Mutex
	x, y float64
	out  bool
}

func (s *simStage) MoveX(ctx context.Context, pos float64) (float64, error) {
	if err := s.ins.sleep(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.x, s.out = pos, false
	s.mu.Unlock()
	return pos, nil
}

func (s *simStage) MoveY(ctx context.Context, pos float64) (float64, error) {
	if err := s.ins.sleep(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.y, s.out = pos, false
	s.mu.Unlock()
	return pos, nil
}

func (s *simStage) MoveOut(ctx context.Context) error {
	if err := s.ins.sleep(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.out = true
	s.mu.Unlock()
	return nil
}

type simZ struct {
	ins *Instrument
	mu  sync.Mutex
	pos [3]int
}

func (z *simZ) Move(ctx context.Context, pos [3]int) ([3]int, error) {
	if err := z.ins.sleep(ctx); err != nil {
		return [3]int{}, err
	}
	z.mu.Lock()
	z.pos = pos
	z.mu.Unlock()
	return pos, nil
}

func (z *simZ) Position() [3]int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.pos
}

type simObjective struct {
	ins *Instrument
	mu  sync.Mutex
	pos int
}

func (o *simObjective) Move(ctx context.Context, steps int) (int, error) {
	if err := o.ins.sleep(ctx); err != nil {
		return 0, err
	}
	o.mu.Lock()
	o.pos = steps
	o.mu.Unlock()
	return steps, nil
}

func (o *simObjective) Position() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pos
}

func (o *simObjective) NyquistStep() int { return objNyquistStep }

type simOptics struct {
	ins        *Instrument
	mu         sync.Mutex
	excitation [2]float64
	emissionIn bool
	laserPower int
}

func (o *simOptics) SetExcitation(ctx context.Context, channel int, value float64) error {
	if channel != 1 && channel != 2 {
		return &secondary.DeviceFault{Device: "optics", Op: "set excitation",
			Err: fmt.Errorf("channel %d", channel)}
	}
	if err := o.ins.sleep(ctx); err != nil {
		return err
	}
	o.mu.Lock()
	o.excitation[channel-1] = value
	o.mu.Unlock()
	return nil
}

func (o *simOptics) EmissionIn(ctx context.Context, in bool) error {
	if err := o.ins.sleep(ctx); err != nil {
		return err
	}
	o.mu.Lock()
	o.emissionIn = in
	o.mu.Unlock()
	return nil
}

func (o *simOptics) SetLaserPower(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return &secondary.DeviceFault{Device: "optics", Op: "set laser power",
			Err: fmt.Errorf("%d percent", percent)}
	}
	if err := o.ins.sleep(ctx); err != nil {
		return err
	}
	o.mu.Lock()
	o.laserPower = percent
	o.mu.Unlock()
	return nil
}

// Ensure Instrument implements the façade
var _ secondary.Instrument = (*Instrument)(nil)
