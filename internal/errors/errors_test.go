package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := New("SCOPE_001", "scope is empty")
	expected := "[SCOPE_001] scope is empty"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}

func TestAppError_WithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, "DETECT_001", "detection backend unavailable")

	if err.Cause != cause {
		t.Error("Cause not preserved")
	}
	if !stderrors.Is(err, cause) {
		t.Error("Unwrap chain broken")
	}
}

func TestGetCode(t *testing.T) {
	if code := GetCode(ErrProgressTimeout); code != "RUN_002" {
		t.Errorf("Expected RUN_002, got %s", code)
	}
	if code := GetCode(fmt.Errorf("plain error")); code != "UNKNOWN" {
		t.Errorf("Expected UNKNOWN, got %s", code)
	}
}

func TestIsAppError(t *testing.T) {
	if !IsAppError(ErrScopeTooShort) {
		t.Error("Sentinel should be an AppError")
	}
	if IsAppError(fmt.Errorf("plain")) {
		t.Error("Plain error should not be an AppError")
	}
}
