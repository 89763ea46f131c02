package flowcell

import "sync"

// Action is the handle for one in-flight device action. A flowcell has
// at most one outstanding action at any instant; the scheduler only
// advances a flowcell whose action has finished.
type Action struct {
	name string
	once sync.Once
	done chan struct{}
}

// NewAction returns a running action handle.
func NewAction(name string) *Action {
	return &Action{name: name, done: make(chan struct{})}
}

// Name identifies the action for logs.
func (a *Action) Name() string { return a.name }

// Finish marks the action complete. Safe to call more than once.
func (a *Action) Finish() {
	a.once.Do(func() { close(a.done) })
}

// Running reports whether the action is still in flight.
func (a *Action) Running() bool {
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the action finishes.
func (a *Action) Wait() {
	<-a.done
}
