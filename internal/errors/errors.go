package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrScopeEmpty    = &AppError{Code: "SCOPE_001", Message: "scope is empty"}
	ErrScopeTooShort = &AppError{Code: "SCOPE_002", Message: "scope must be at least 5 characters"}
	ErrScopeTooLong  = &AppError{Code: "SCOPE_003", Message: "scope must be at most 500 characters"}

	ErrIdentificationFailed = &AppError{Code: "IDENT_001", Message: "page identification failed"}
	ErrModelUnavailable     = &AppError{Code: "IDENT_002", Message: "language model unavailable"}

	ErrDetectionUnavailable = &AppError{Code: "DETECT_001", Message: "detection backend unavailable"}
	ErrPageProcessing       = &AppError{Code: "DETECT_002", Message: "page processing failed"}
	ErrNoPagesSelected      = &AppError{Code: "DETECT_003", Message: "no pages selected"}

	ErrPersistFailed = &AppError{Code: "PERSIST_001", Message: "failed to persist accepted results"}

	ErrRunNotFound       = &AppError{Code: "RUN_001", Message: "takeoff run not found"}
	ErrProgressTimeout   = &AppError{Code: "RUN_002", Message: "automated run never reached a terminal state"}
	ErrInvalidTransition = &AppError{Code: "RUN_003", Message: "invalid run state transition"}

	ErrCalibrationNotFound = &AppError{Code: "CALIB_001", Message: "calibration not found"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
