package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError_New_Success(t *testing.T) {
	err := New(ErrCodeInvalidPipeline, "no stages")
	if err.Code != ErrCodeInvalidPipeline {
		t.Errorf("expected code %s, got %s", ErrCodeInvalidPipeline, err.Code)
	}
	if err.Message != "no stages" {
		t.Errorf("expected message 'no stages', got %q", err.Message)
	}
	if err.Retryable {
		t.Error("INVALID_PIPELINE should not be retryable")
	}
}

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeStageFailed, "boom")
	if !err.Retryable {
		t.Error("STAGE_FAILED should be retryable")
	}
}

func TestAppError_InvalidStage_Details(t *testing.T) {
	err := InvalidStage(2, "upper", "a sink can only be last")
	if err.Code != ErrCodeInvalidPipeline {
		t.Errorf("expected INVALID_PIPELINE, got %s", err.Code)
	}
	if err.Details["index"] != 2 {
		t.Errorf("expected index=2, got %v", err.Details["index"])
	}
	if err.Details["stage"] != "upper" {
		t.Errorf("expected stage=upper, got %v", err.Details["stage"])
	}
	if !strings.Contains(err.Error(), "stage 2 (upper)") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestAppError_WithCause_Chain(t *testing.T) {
	cause := fmt.Errorf("deadline")
	err := Canceled(cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if !strings.Contains(err.Error(), "(cause: deadline)") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
}

func TestAppError_WithDetails_Merge(t *testing.T) {
	err := ReconnectRefused("a", "b", nil).WithDetails(map[string]any{"failures": 3})
	if err.Details["from"] != "a" || err.Details["to"] != "b" {
		t.Errorf("expected from/to details, got %v", err.Details)
	}
	if err.Details["failures"] != 3 {
		t.Errorf("expected failures=3, got %v", err.Details["failures"])
	}
}

func TestAppError_WithDetail_NilMap(t *testing.T) {
	err := New(ErrCodeInternal, "x")
	err.WithDetail("k", "v")
	if err.Details["k"] != "v" {
		t.Errorf("expected k=v, got %v", err.Details)
	}
}

func TestAppError_Constructors_Table(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		code      ErrorCode
		retryable bool
	}{
		{"InvalidPipeline", InvalidPipeline("empty"), ErrCodeInvalidPipeline, false},
		{"AlreadyStarted", AlreadyStarted("id-1"), ErrCodeAlreadyStarted, false},
		{"InvalidConfig", InvalidConfig("bad"), ErrCodeInvalidConfig, false},
		{"ReconnectRefused", ReconnectRefused("a", "b", nil), ErrCodeReconnectRefused, true},
		{"Canceled", Canceled(nil), ErrCodeCanceled, false},
		{"Internal", Internal(nil), ErrCodeInternal, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, tc.err.Code)
			}
			if tc.err.Retryable != tc.retryable {
				t.Errorf("expected retryable=%v, got %v", tc.retryable, tc.err.Retryable)
			}
		})
	}
}

func TestAppError_AsAppError_Success(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", InvalidConfig("buffer_size"))
	appErr, ok := AsAppError(wrapped)
	if !ok {
		t.Fatal("expected AsAppError to succeed")
	}
	if appErr.Code != ErrCodeInvalidConfig {
		t.Errorf("expected INVALID_CONFIG, got %s", appErr.Code)
	}
	if !IsAppError(wrapped) {
		t.Error("expected IsAppError to be true")
	}
	if !HasCode(wrapped, ErrCodeInvalidConfig) {
		t.Error("expected HasCode to match")
	}
	if HasCode(stderrors.New("plain"), ErrCodeInvalidConfig) {
		t.Error("plain error should not match")
	}
}

func TestStageError_MessageFromCause(t *testing.T) {
	cause := stderrors.New("Error transform1")
	err := NewStageError("transform1", 1, "transform", cause)
	if err.Message != "Error transform1" {
		t.Errorf("expected cause message, got %q", err.Message)
	}
	if err.Error() != `transform "transform1" (#1): Error transform1` {
		t.Errorf("unexpected format %q", err.Error())
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if err.IsSource() {
		t.Error("index 1 is not the source")
	}
}

func TestStageError_NilCause(t *testing.T) {
	err := NewStageError("src", 0, "source", nil)
	if err.Message != "stage failed" {
		t.Errorf("expected default message, got %q", err.Message)
	}
	if !err.IsSource() {
		t.Error("index 0 is the source")
	}
}

func TestStageError_AsStageError(t *testing.T) {
	wrapped := fmt.Errorf("run: %w", NewStageError("sink", 3, "sink", stderrors.New("disk full")))
	stageErr, ok := AsStageError(wrapped)
	if !ok {
		t.Fatal("expected AsStageError to succeed")
	}
	if stageErr.Index != 3 || stageErr.Stage != "sink" {
		t.Errorf("unexpected stage error %+v", stageErr)
	}
	if !IsStageError(wrapped) {
		t.Error("expected IsStageError to be true")
	}
	if IsStageError(InvalidPipeline("x")) {
		t.Error("AppError is not a StageError")
	}
}

func TestAppError_ImplementsErrorInterface(t *testing.T) {
	var _ error = &AppError{}
	var _ error = &StageError{}
}
