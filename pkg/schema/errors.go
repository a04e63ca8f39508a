package schema

import "fmt"

// Error codes for structured error reporting.
const (
	// Load-time errors. An app carrying one of these never executes.
	ErrCodeDefinition = "DEFINITION_ERROR"
	ErrCodeParse      = "PARSE_ERROR"

	// Invocation-time evaluation errors.
	ErrCodeTypeMismatch    = "TYPE_MISMATCH"
	ErrCodeDivisionByZero  = "DIVISION_BY_ZERO"
	ErrCodeUnknownFunction = "UNKNOWN_FUNCTION"
	ErrCodeUnknownPath     = "UNKNOWN_PATH"
	ErrCodeParam           = "PARAM_ERROR"

	// Expected action outcomes.
	ErrCodeValidationFailed = "VALIDATION_FAILED"

	// Safety governor violations. Fatal to the invocation, working state discarded.
	ErrCodeLoopLimit      = "LOOP_LIMIT"
	ErrCodeNestingLimit   = "NESTING_LIMIT"
	ErrCodeStateSizeLimit = "STATE_SIZE_LIMIT"

	// Engine/service surface.
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeAccessDenied = "ACCESS_DENIED"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeStore        = "STORE_ERROR"
)

// AppError is the structured error type for all engine operations.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Action  string         `json:"action,omitempty"`
	Cause   error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("[%s] action %s: %s", e.Code, e.Action, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewError creates a new AppError.
func NewError(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NewErrorf creates a new AppError with a formatted message.
func NewErrorf(code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithAction attaches the action name to the error.
func (e *AppError) WithAction(action string) *AppError {
	e.Action = action
	return e
}

// WithCause attaches an underlying cause.
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// IsSafetyLimit reports whether the error is a safety governor violation.
func (e *AppError) IsSafetyLimit() bool {
	switch e.Code {
	case ErrCodeLoopLimit, ErrCodeNestingLimit, ErrCodeStateSizeLimit:
		return true
	}
	return false
}
