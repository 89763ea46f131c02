package flowcell

import (
	"testing"
)

func TestNewRejectsBadPosition(t *testing.T) {
	tests := []struct {
		position string
		wantErr  bool
	}{
		{position: "A"},
		{position: "B"},
		{position: "C", wantErr: true},
		{position: "", wantErr: true},
		{position: "a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.position, func(t *testing.T) {
			_, err := New(tt.position, 3)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) error = %v, wantErr %v", tt.position, err, tt.wantErr)
			}
		})
	}
}

func TestCycleMonotonic(t *testing.T) {
	fc, err := New("A", 2)
	if err != nil {
		t.Fatal(err)
	}

	if fc.Cycle() != 0 {
		t.Fatalf("Cycle() = %d, want 0 before first start", fc.Cycle())
	}

	prev := 0
	for i := 0; i < 4; i++ {
		got := fc.StartCycle()
		if got <= prev {
			t.Fatalf("StartCycle() = %d after %d, cycle must only increase", got, prev)
		}
		prev = got
	}

	if !fc.Complete() {
		t.Error("Complete() = false after cycle passed total")
	}
}

func TestHistoryAppendOnly(t *testing.T) {
	fc, err := New("B", 1)
	if err != nil {
		t.Fatal(err)
	}
	fc.StartCycle()

	fc.AddEvent("PORT", "PBS")
	fc.AddEvent("PUMP", "100")

	h := fc.History()
	if len(h) != 2 {
		t.Fatalf("len(History()) = %d, want 2", len(h))
	}
	if h[0].Op != "PORT" || h[0].Operand != "PBS" || h[0].Cycle != 1 {
		t.Errorf("first event = %+v, want PORT/PBS cycle 1", h[0])
	}
	if h[1].At.Before(h[0].At) {
		t.Error("history timestamps out of order")
	}

	// Mutating the returned slice must not touch the flowcell's log.
	h[0].Op = "XXXX"
	if fc.History()[0].Op != "PORT" {
		t.Error("History() exposed internal storage")
	}
}

func TestResumeLineConsumedOnce(t *testing.T) {
	fc, err := New("A", 1)
	if err != nil {
		t.Fatal(err)
	}
	fc.SetResumeLine(7)

	if got := fc.TakeResumeLine(); got != 7 {
		t.Fatalf("TakeResumeLine() = %d, want 7", got)
	}
	if got := fc.TakeResumeLine(); got != 0 {
		t.Fatalf("second TakeResumeLine() = %d, want 0", got)
	}
}

func TestBusyTracksAction(t *testing.T) {
	fc, err := New("A", 1)
	if err != nil {
		t.Fatal(err)
	}
	if fc.Busy() {
		t.Fatal("Busy() = true with no action")
	}

	a := NewAction("pump")
	fc.SetAction(a)
	if !fc.Busy() {
		t.Fatal("Busy() = false with a running action")
	}

	a.Finish()
	a.Finish() // idempotent
	if fc.Busy() {
		t.Fatal("Busy() = true after action finished")
	}
}

func TestSignalEventLifecycle(t *testing.T) {
	fc, err := New("A", 1)
	if err != nil {
		t.Fatal(err)
	}

	fc.SetSignalEvent("IMAG")
	if fc.SignalEvent() != "IMAG" {
		t.Fatalf("SignalEvent() = %q, want IMAG", fc.SignalEvent())
	}
	fc.ClearSignalEvent()
	if fc.SignalEvent() != "" {
		t.Fatalf("SignalEvent() = %q after clear, want empty", fc.SignalEvent())
	}
}
