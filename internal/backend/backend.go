// Package backend defines the execution backend contract: a named capability
// that can submit a resolved project and hand back a live run handle, plus
// the registry that maps resource names to backend factories.
package backend

import (
	"context"

	"github.com/tracklab/launch/internal/project"
)

// APIClient is the slice of the service client a backend needs: the base URL
// (for wiring launched workloads back to the service) and status reporting.
type APIClient interface {
	BaseURL() string
	ReportStatus(ctx context.Context, runID, status string) error
}

// Backend is a pluggable executor capable of running a project.
// Implementations must be safe for concurrent Submit calls.
type Backend interface {
	// Name returns the resource name the backend is registered under.
	Name() string

	// Submit starts the project's entry point on the backend and returns a
	// handle owning the lifecycle of the dispatched execution. A backend
	// that cannot start the workload returns an ExecutionError.
	Submit(ctx context.Context, proj *project.Project) (RunHandle, error)
}

// RunHandle owns the lifecycle of one dispatched execution. It is held
// exclusively by whichever caller submitted it.
type RunHandle interface {
	// ID identifies the submitted run.
	ID() string

	// Status returns the current lifecycle status.
	Status() Status

	// Wait blocks until the run reaches a terminal status and reports
	// whether it succeeded.
	Wait() bool

	// Cancel requests termination of a non-terminal run. Idempotent, a
	// no-op once the run is terminal, and safe to call concurrently with
	// an in-progress Wait.
	Cancel()
}

// Status is the lifecycle state of a submitted run. Transitions are
// monotonic: Submitted → Running → one of the terminal states, with no
// transition out of a terminal state.
type Status int

const (
	Submitted Status = iota
	Running
	Succeeded
	Failed
	Cancelled
)

// String returns the wire name of the status, as reported to the service.
func (s Status) String() string {
	switch s {
	case Submitted:
		return "submitted"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}
