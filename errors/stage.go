package errors

import (
	stderrors "errors"
	"fmt"
)

// StageError is raised by a stage of a pipeline. It is the only error kind a
// stage produces; the pipeline's policy decides whether it is fatal.
type StageError struct {
	// Stage is the stage name.
	Stage string `json:"stage"`
	// Index is the stage position in the pipeline, 0 being the source.
	Index int `json:"index"`
	// Role is "source", "transform" or "sink".
	Role string `json:"role"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Cause is the error returned by the stage implementation.
	Cause error `json:"-"`
}

// NewStageError wraps cause as a failure of the stage at index.
// The message is taken from cause.
func NewStageError(stage string, index int, role string, cause error) *StageError {
	msg := "stage failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &StageError{
		Stage:   stage,
		Index:   index,
		Role:    role,
		Message: msg,
		Cause:   cause,
	}
}

// Error returns the string representation of the error.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s %q (#%d): %s", e.Role, e.Stage, e.Index, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *StageError) Unwrap() error { return e.Cause }

// IsSource reports whether the error was raised by the pipeline source.
func (e *StageError) IsSource() bool { return e.Index == 0 }

// IsStageError checks if an error is a StageError.
func IsStageError(err error) bool {
	var stageErr *StageError
	return stderrors.As(err, &stageErr)
}

// AsStageError converts an error to a StageError if possible.
func AsStageError(err error) (*StageError, bool) {
	var stageErr *StageError
	if stderrors.As(err, &stageErr) {
		return stageErr, true
	}
	return nil, false
}
