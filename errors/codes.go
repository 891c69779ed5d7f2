package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Composition errors
const (
	// ErrCodeInvalidPipeline indicates the stages cannot form a pipeline.
	ErrCodeInvalidPipeline ErrorCode = "INVALID_PIPELINE"
	// ErrCodeAlreadyStarted indicates a pipeline was started twice.
	ErrCodeAlreadyStarted ErrorCode = "ALREADY_STARTED"
	// ErrCodeInvalidConfig indicates a configuration failed validation.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Runtime errors
const (
	// ErrCodeStageFailed indicates a stage reported an error.
	ErrCodeStageFailed ErrorCode = "STAGE_FAILED"
	// ErrCodeReconnectRefused indicates the reconnect breaker opened.
	ErrCodeReconnectRefused ErrorCode = "RECONNECT_REFUSED"
	// ErrCodeCanceled indicates the run context was canceled.
	ErrCodeCanceled ErrorCode = "PIPELINE_CANCELED"
	// ErrCodeInternal indicates an unexpected internal failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeStageFailed:      true,
	ErrCodeReconnectRefused: true,
	ErrCodeCanceled:         false,
	ErrCodeInvalidPipeline:  false,
	ErrCodeInvalidConfig:    false,
	ErrCodeAlreadyStarted:   false,
	ErrCodeInternal:         false,
}

// IsRetryableCode returns true if running the pipeline again may succeed.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
