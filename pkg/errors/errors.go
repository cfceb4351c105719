// Package errors provides a unified error handling mechanism for gradkit.
// It defines a structured error system with error codes, types, and helpful
// formatting capabilities to standardize error handling across the trainer.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation indicates invalid configuration or parameters
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeNotFound indicates a missing resource (history, checkpoint, ...)
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeState indicates an operation issued in an invalid state
	ErrorTypeState ErrorType = "STATE"

	// ErrorTypeNumerical indicates a numerical fault (NaN/Inf loss, overflow)
	ErrorTypeNumerical ErrorType = "NUMERICAL"

	// ErrorTypeDistributed indicates a collective-communication failure
	ErrorTypeDistributed ErrorType = "DISTRIBUTED"

	// ErrorTypeInfrastructure indicates an infrastructure/external service error
	ErrorTypeInfrastructure ErrorType = "INFRASTRUCTURE"

	// ErrorTypeInternal indicates an unexpected internal error
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// AppError represents a structured application error
type AppError struct {
	// Code is the error code (e.g., "LOOP_001")
	Code string `json:"code"`

	// Type categorizes the error
	Type ErrorType `json:"type"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Details contains additional error context
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error
	Cause error `json:"-"`

	// Stack contains the stack trace (for internal errors)
	Stack string `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error chain unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds additional context to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// New creates a new AppError
func New(code string, errType ErrorType, message string) *AppError {
	return &AppError{
		Code:    code,
		Type:    errType,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new AppError with formatted message
func Newf(code string, errType ErrorType, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with AppError context
func Wrap(err error, code string, message string) *AppError {
	if err == nil {
		return nil
	}

	// If already an AppError, keep its type
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    code,
			Type:    appErr.Type,
			Message: message,
			Cause:   err,
			Details: make(map[string]interface{}),
		}
	}

	return &AppError{
		Code:    code,
		Type:    ErrorTypeInternal,
		Message: message,
		Cause:   err,
		Details: make(map[string]interface{}),
	}
}

// captureStack captures the current stack trace
func captureStack() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Is checks if an error matches a specific code
func Is(err error, code string) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}

	return appErr.Code == code
}

// IsType checks if an error matches a specific type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}

	return appErr.Type == errType
}

// GetCode extracts the error code from an error
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return "UNKNOWN"
	}

	return appErr.Code
}

// Common error constructors for frequent use cases

// ValidationError creates a validation error
func ValidationError(message string) *AppError {
	return New("VALIDATION_ERROR", ErrorTypeValidation, message)
}

// ValidationErrorf creates a validation error with formatted message
func ValidationErrorf(format string, args ...interface{}) *AppError {
	return Newf("VALIDATION_ERROR", ErrorTypeValidation, format, args...)
}

// NotFoundError creates a not found error
func NotFoundError(resource string) *AppError {
	return Newf("NOT_FOUND", ErrorTypeNotFound, "%s not found", resource)
}

// StateError creates an invalid-state error
func StateError(message string) *AppError {
	return New("INVALID_STATE", ErrorTypeState, message)
}

// InternalError creates an internal error
func InternalError(message string) *AppError {
	appErr := New("INTERNAL_ERROR", ErrorTypeInternal, message)
	appErr.Stack = captureStack()
	return appErr
}

// InternalErrorf creates an internal error with formatted message
func InternalErrorf(format string, args ...interface{}) *AppError {
	appErr := Newf("INTERNAL_ERROR", ErrorTypeInternal, format, args...)
	appErr.Stack = captureStack()
	return appErr
}

// DistributedError creates a collective-communication error
func DistributedError(operation string, err error) *AppError {
	return Wrap(err, "DISTRIBUTED_ERROR", fmt.Sprintf("collective operation '%s' failed", operation))
}

// InfrastructureError creates an infrastructure error
func InfrastructureError(service string, err error) *AppError {
	return Wrap(err, "INFRASTRUCTURE_ERROR", fmt.Sprintf("infrastructure service '%s' error", service))
}
