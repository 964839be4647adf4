package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound      = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists = new(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation    = new(ErrCodeValidation, "validation error")
	ErrInvalidState  = new(ErrCodeInvalidState, "invalid state")
	ErrNotSwitchable = new(ErrCodeNotSwitchable, "transition not switchable")
	ErrProviderCall  = new(ErrCodeProviderCall, "billing provider call failed")
	ErrDatabase      = new(ErrCodeDatabase, "database error")
	ErrInternal      = new(ErrCodeInternal, "internal error")
	ErrSystem        = new(ErrCodeSystemError, "system error")

	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrNotFound:      http.StatusNotFound,
		ErrAlreadyExists: http.StatusConflict,
		ErrValidation:    http.StatusBadRequest,
		ErrInvalidState:  http.StatusConflict,
		ErrNotSwitchable: http.StatusBadRequest,
		ErrProviderCall:  http.StatusBadGateway,
		ErrDatabase:      http.StatusInternalServerError,
		ErrInternal:      http.StatusInternalServerError,
		ErrSystem:        http.StatusInternalServerError,
	}
)

const (
	ErrCodeNotFound      = "not_found"
	ErrCodeAlreadyExists = "already_exists"
	ErrCodeValidation    = "validation_error"
	ErrCodeInvalidState  = "invalid_state"
	ErrCodeNotSwitchable = "not_switchable"
	ErrCodeProviderCall  = "provider_call_error"
	ErrCodeDatabase      = "database_error"
	ErrCodeInternal      = "internal_error"
	ErrCodeSystemError   = "system_error"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

// New creates a new InternalError
func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidState checks if an error is a data-integrity invariant violation
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsNotSwitchable checks if an error marks an unsupported transition request
func IsNotSwitchable(err error) bool {
	return errors.Is(err, ErrNotSwitchable)
}

// IsProviderCall checks if an error originated from a billing provider call
func IsProviderCall(err error) bool {
	return errors.Is(err, ErrProviderCall)
}

// IsDatabase checks if an error is a database error
func IsDatabase(err error) bool {
	return errors.Is(err, ErrDatabase)
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
