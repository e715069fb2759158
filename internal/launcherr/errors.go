// Package launcherr defines the error taxonomy shared by the launch core.
//
// Three typed errors cover the caller-visible failure classes: ValidationError
// for a run spec or project that cannot be resolved, ExecutionError for a
// backend that cannot start a workload or a run that reached a failed terminal
// state, and LaunchError for misuse of the launch surface itself (for example
// requesting an unsupported mode). All three are comparable with errors.As.
package launcherr

import (
	"errors"
	"fmt"
)

// ErrInterrupted marks a run that was cancelled because the caller was
// interrupted while waiting. It is control flow, not a failure: the active
// handle has already been cancelled when this is returned.
var ErrInterrupted = errors.New("launch interrupted")

// ValidationError reports a bad or incomplete run spec, or a project whose
// source or entry point could not be resolved. Never retried.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidation builds a ValidationError with a formatted message.
func NewValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// WrapValidation builds a ValidationError wrapping an underlying cause.
func WrapValidation(err error, format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// ExecutionError reports a run that could not be submitted, a backend that is
// unavailable, or a submitted run that finished in a failed state.
type ExecutionError struct {
	Msg string
	Err error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NewExecution builds an ExecutionError with a formatted message.
func NewExecution(format string, args ...any) *ExecutionError {
	return &ExecutionError{Msg: fmt.Sprintf(format, args...)}
}

// WrapExecution builds an ExecutionError wrapping an underlying cause.
func WrapExecution(err error, format string, args ...any) *ExecutionError {
	return &ExecutionError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// LaunchError reports misuse of the launch surface, such as an unsupported
// run mode. It is raised before any backend side effects occur.
type LaunchError struct {
	Msg string
}

func (e *LaunchError) Error() string { return e.Msg }

// NewLaunch builds a LaunchError with a formatted message.
func NewLaunch(format string, args ...any) *LaunchError {
	return &LaunchError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsExecution reports whether err is or wraps an ExecutionError.
func IsExecution(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// IsLaunch reports whether err is or wraps a LaunchError.
func IsLaunch(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}
