package workflow

import (
	"errors"
	"fmt"
)

// ErrNoCheckpoint is returned when a resume is attempted for a thread that
// has no suspended turn. This is fatal for the turn and is not retried.
var ErrNoCheckpoint = errors.New("no checkpoint for thread")

// ClassificationError wraps a failure of the relevance classifier.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("relevance classification failed: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// SynthesisError indicates the backend produced no usable SQL query.
// It is propagated, not retried.
type SynthesisError struct {
	Reason string
	Err    error
}

func (e *SynthesisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("query synthesis failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("query synthesis failed: %s", e.Reason)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// ExecutionError wraps a failure while running an approved query.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
