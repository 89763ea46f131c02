package flowcell

import (
	"context"
	"testing"
	"time"
)

func TestGateOpenReleasesWaiter(t *testing.T) {
	g := NewGate()

	released := make(chan struct{})
	go func() {
		g.Wait()
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("Wait() returned before Open()")
	case <-time.After(10 * time.Millisecond):
	}

	g.Open()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after Open()")
	}
}

func TestGateStaysOpenUntilReset(t *testing.T) {
	g := NewGate()
	g.Open()
	g.Open() // idempotent

	// An open gate does not block.
	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait() blocked on an open gate")
	}

	g.Reset()
	if g.IsOpen() {
		t.Fatal("IsOpen() = true after Reset()")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.WaitContext(ctx); err == nil {
		t.Fatal("WaitContext() on reset gate = nil, want context deadline")
	}
}

func TestGateWaitContextOpen(t *testing.T) {
	g := NewGate()
	g.Open()
	if err := g.WaitContext(context.Background()); err != nil {
		t.Fatalf("WaitContext() on open gate = %v, want nil", err)
	}
}
