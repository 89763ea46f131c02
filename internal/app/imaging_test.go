package app

import (
	"context"
	"testing"

	"github.com/example/flowctl/internal/core/flowcell"
	"github.com/example/flowctl/internal/metrics"
)

func testSection(name string) *flowcell.Section {
	return &flowcell.Section{
		Name:     name,
		XCenter:  15000,
		YCenter:  380000,
		XInitial: 14000,
		YInitial: 390000,
		NScans:   2,
		NFrames:  16,
		Fine:     flowcell.FocusPolicy{Mode: flowcell.FocusRefineEveryCycle},
	}
}

func TestImageSectionsInDeclaredOrder(t *testing.T) {
	ins := newMockInstrument()
	r := NewImagingRunner(ins, testLogger(), metrics.New())

	fc := testFlowcell(t, "A", 2)
	fc.Sections = []*flowcell.Section{testSection("s1"), testSection("s2")}

	if _, err := r.Image(context.Background(), fc, 15); err != nil {
		t.Fatalf("Image failed: %v", err)
	}

	want := []string{"A_s1_c1", "A_s2_c1"}
	got := ins.scanNames()
	if len(got) != len(want) {
		t.Fatalf("scans = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("scan[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if fc.Imaging() {
		t.Error("imaging flag should clear when done")
	}
	if ins.zPos != [3]int{0, 0, 0} {
		t.Errorf("z position = %v, want homed", ins.zPos)
	}
}

func TestImageCachesCoarseFocus(t *testing.T) {
	ins := newMockInstrument()
	r := NewImagingRunner(ins, testLogger(), metrics.New())

	fc := testFlowcell(t, "A", 2)
	section := testSection("s1")
	fc.Sections = []*flowcell.Section{section}

	if _, err := r.Image(context.Background(), fc, 15); err != nil {
		t.Fatalf("Image failed: %v", err)
	}
	if ins.roughCalls != 1 {
		t.Fatalf("rough focus calls = %d, want 1", ins.roughCalls)
	}
	if section.CoarseFocus == nil {
		t.Fatal("coarse focus position was not cached")
	}

	// Second cycle reuses the cached position instead of refocusing.
	fc.StartCycle()
	if _, err := r.Image(context.Background(), fc, 15); err != nil {
		t.Fatalf("Image failed: %v", err)
	}
	if ins.roughCalls != 1 {
		t.Errorf("rough focus calls = %d, want 1 (cached)", ins.roughCalls)
	}
	if ins.fineCalls != 2 {
		t.Errorf("fine focus calls = %d, want 2 (refined every cycle)", ins.fineCalls)
	}
}

func TestImageFocusPolicies(t *testing.T) {
	tests := []struct {
		name      string
		policy    flowcell.FocusPolicy
		wantCalls int
	}{
		{"refine every cycle", flowcell.FocusPolicy{Mode: flowcell.FocusRefineEveryCycle}, 1},
		{"never", flowcell.FocusPolicy{Mode: flowcell.FocusNever}, 0},
		{"cached position", flowcell.FocusPolicy{Mode: flowcell.FocusCached, Cached: 29000}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins := newMockInstrument()
			r := NewImagingRunner(ins, testLogger(), metrics.New())

			fc := testFlowcell(t, "A", 1)
			section := testSection("s1")
			section.Fine = tt.policy
			fc.Sections = []*flowcell.Section{section}

			if _, err := r.Image(context.Background(), fc, 15); err != nil {
				t.Fatalf("Image failed: %v", err)
			}
			if ins.fineCalls != tt.wantCalls {
				t.Errorf("fine focus calls = %d, want %d", ins.fineCalls, tt.wantCalls)
			}
		})
	}
}

func TestImageSeededCoarseFocusSkipsRoughFocus(t *testing.T) {
	ins := newMockInstrument()
	r := NewImagingRunner(ins, testLogger(), metrics.New())

	fc := testFlowcell(t, "B", 1)
	section := testSection("s1")
	z := [3]int{18000, 18000, 18000}
	section.CoarseFocus = &z
	fc.Sections = []*flowcell.Section{section}

	if _, err := r.Image(context.Background(), fc, 15); err != nil {
		t.Fatalf("Image failed: %v", err)
	}
	if ins.roughCalls != 0 {
		t.Errorf("rough focus calls = %d, want 0 with a seeded position", ins.roughCalls)
	}
}

func TestImageRecordsFilterPair(t *testing.T) {
	ins := newMockInstrument()
	r := NewImagingRunner(ins, testLogger(), metrics.New())

	fc := testFlowcell(t, "A", 1)
	fc.Sections = []*flowcell.Section{testSection("s1")}

	if _, err := r.Image(context.Background(), fc, 1); err != nil {
		t.Fatalf("Image failed: %v", err)
	}
	if fc.ExFilter1 != 1.6 || fc.ExFilter2 != 0.6 {
		t.Errorf("filters = %v/%v, want 1.6/0.6", fc.ExFilter1, fc.ExFilter2)
	}
	if ins.filterCalls != 1 {
		t.Errorf("filter optimizations = %d, want 1", ins.filterCalls)
	}
}
