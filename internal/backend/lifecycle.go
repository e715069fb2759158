package backend

import "sync"

// Lifecycle is the shared state machine behind every run handle. It enforces
// the monotonic Submitted → Running → terminal progression, makes Cancel
// idempotent, and lets any number of waiters block until a terminal status.
type Lifecycle struct {
	mu              sync.Mutex
	status          Status
	cancelRequested bool
	done            chan struct{}
}

// NewLifecycle returns a lifecycle in the Submitted state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{status: Submitted, done: make(chan struct{})}
}

// Status returns the current status.
func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Run transitions Submitted → Running. Returns false if the run is no longer
// in Submitted (for example, already cancelled).
func (l *Lifecycle) Run() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status != Submitted {
		return false
	}
	l.status = Running
	return true
}

// Finish moves the run to the given terminal status and wakes all waiters.
// Returns false without effect when the run is already terminal, so the
// first terminal transition wins.
func (l *Lifecycle) Finish(terminal Status) bool {
	if !terminal.Terminal() {
		panic("backend: Finish called with non-terminal status " + terminal.String())
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status.Terminal() {
		return false
	}
	l.status = terminal
	close(l.done)
	return true
}

// RequestCancel records a cancellation request. Returns true only for the
// first request against a non-terminal run; callers use this to trigger
// backend termination exactly once.
func (l *Lifecycle) RequestCancel() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status.Terminal() || l.cancelRequested {
		return false
	}
	l.cancelRequested = true
	return true
}

// CancelRequested reports whether cancellation was requested before the run
// reached a terminal state. Backends use it to classify a terminated process
// as Cancelled rather than Failed.
func (l *Lifecycle) CancelRequested() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancelRequested
}

// Wait blocks until the run is terminal and returns the terminal status.
func (l *Lifecycle) Wait() Status {
	<-l.done
	return l.Status()
}
