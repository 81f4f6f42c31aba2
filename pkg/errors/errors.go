package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for every error kind an engine operation may return.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrPartialFailure = errors.New("partial failure")
)

// AppError represents a structured application error.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Phase names the step of a multi-step operation that failed. Only set
	// for partial failures.
	Phase string `json:"phase,omitempty"`
	// Err is the kind sentinel (ErrNotFound, ErrConflict, ...).
	Err   error  `json:"-"`
	cause error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *AppError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// Cause returns the underlying driver or store error, if any.
func (e *AppError) Cause() error {
	return e.cause
}

// NotFound creates a not-found error for the given resource.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Err:     ErrNotFound,
	}
}

// AlreadyExists creates an error for a unique-key collision.
func AlreadyExists(resource, field, value string) *AppError {
	return &AppError{
		Code:    "ALREADY_EXISTS",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Err:     ErrAlreadyExists,
	}
}

// InvalidInput creates a validation error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Err:     ErrInvalidInput,
	}
}

// Conflict creates an error for a write that lost a race on the same document.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Err:     ErrConflict,
	}
}

// Unavailable creates an error for a store call that timed out or could not
// reach the store. The original error stays reachable through errors.Is/As.
func Unavailable(operation string, cause error) *AppError {
	return &AppError{
		Code:    "UNAVAILABLE",
		Message: fmt.Sprintf("store unavailable during %s", operation),
		Err:     ErrServiceUnavail,
		cause:   cause,
	}
}

// PartialFailure creates an error for a multi-step operation that completed
// some steps and failed in phase.
func PartialFailure(phase string, cause error) *AppError {
	return &AppError{
		Code:    "PARTIAL_FAILURE",
		Message: fmt.Sprintf("operation failed in phase %s after earlier phases completed", phase),
		Phase:   phase,
		Err:     ErrPartialFailure,
		cause:   cause,
	}
}

// Internal creates an error for an unclassified failure.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Err:     ErrInternal,
		cause:   err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Kind returns the code of the error kind carried by err, or INTERNAL_ERROR
// when err carries none of the known kinds. A partial failure wins over the
// kind of its cause.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPartialFailure):
		return "PARTIAL_FAILURE"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrServiceUnavail):
		return "UNAVAILABLE"
	case errors.Is(err, ErrAlreadyExists):
		return "ALREADY_EXISTS"
	default:
		return "INTERNAL_ERROR"
	}
}

// IsKnown reports whether err already carries one of the error kinds above.
func IsKnown(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}
