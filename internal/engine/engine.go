// Package engine adapts the external workflow engine behind a
// start/describe contract. The portal never executes workflow logic
// itself; it only requests executions and asks after their status.
package engine

import (
	"context"
	"errors"
)

// State is the engine-reported condition of an execution.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateAborted   State = "aborted"
)

// Terminal reports whether the engine will never change this state again.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut || s == StateAborted
}

// Execution is the engine's answer to a describe call. ErrorCode and Cause
// are only set for unsuccessful terminal states.
type Execution struct {
	State     State
	ErrorCode string
	Cause     string
}

var ErrExecutionNotFound = errors.New("execution not found")

// Engine starts executions and reports on running ones. Implementations
// must bound each call with the context they are given.
type Engine interface {
	Start(ctx context.Context, input []byte) (string, error)
	Describe(ctx context.Context, handle string) (Execution, error)
}
