package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the error type for failures that are not raised by a stage.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if running again may succeed.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	for k, v := range details {
		e.WithDetail(k, v)
	}
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Common Error Constructors ---

// InvalidPipeline reports stages that cannot be composed.
func InvalidPipeline(reason string) *AppError {
	return New(ErrCodeInvalidPipeline, reason)
}

// InvalidStage reports a stage placed at a position its role cannot fill.
func InvalidStage(index int, name, reason string) *AppError {
	return InvalidPipeline(fmt.Sprintf("stage %d (%s): %s", index, name, reason)).
		WithDetails(map[string]any{"index": index, "stage": name})
}

// AlreadyStarted reports a second Start on the same pipeline.
func AlreadyStarted(id string) *AppError {
	return New(ErrCodeAlreadyStarted, "pipeline has already been started").
		WithDetail("pipeline_id", id)
}

// InvalidConfig reports a configuration that failed validation.
func InvalidConfig(message string) *AppError {
	return New(ErrCodeInvalidConfig, message)
}

// ReconnectRefused reports a connection whose breaker stopped accepting reconnects.
func ReconnectRefused(from, to string, cause error) *AppError {
	return &AppError{
		Code:      ErrCodeReconnectRefused,
		Message:   fmt.Sprintf("connection %s -> %s refused to reconnect", from, to),
		Retryable: true,
		Details:   map[string]any{"from": from, "to": to},
		Cause:     cause,
	}
}

// Canceled wraps a context error that ended a run.
func Canceled(cause error) *AppError {
	return New(ErrCodeCanceled, "pipeline run canceled").WithCause(cause)
}

// Internal creates a new AppError for an unexpected failure.
func Internal(cause error) *AppError {
	return New(ErrCodeInternal, "unexpected pipeline failure").WithCause(cause)
}

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
