// Package util provides utility functions and common error types.
package util

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Sentinel errors
var (
	ErrConnectivity       = errors.New("device unreachable")
	ErrAPI                = errors.New("device rejected request")
	ErrValidationFailed   = errors.New("validation failed")
	ErrTimeout            = errors.New("timed out")
	ErrNotConnected       = errors.New("device not connected")
	ErrAlreadyExists      = errors.New("object already exists")
	ErrNotFound           = errors.New("object not found")
	ErrUnknownObjectType  = errors.New("unknown object type")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrPreconditionFailed = errors.New("precondition not met")
)

// Error categories embedded in user-facing messages.
const (
	CategoryConnectivity = "connectivity_error"
	CategoryAPI          = "api_error"
	CategoryValidation   = "validation_error"
	CategoryTimeout      = "timeout"
	CategoryUnexpected   = "unexpected_error"
)

// ConnectivityError is a transport-level failure (dial, TLS, timeout, 5xx).
// It is the only retryable category.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("connectivity: %v", e.Err)
	}
	return fmt.Sprintf("connectivity: %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConnectivity}
	}
	return []error{ErrConnectivity, e.Err}
}

// NewConnectivityError wraps a transport failure
func NewConnectivityError(op string, err error) *ConnectivityError {
	return &ConnectivityError{Op: op, Err: err}
}

// APIError is a request the device answered with status="error".
// Message and Code are carried verbatim from the response.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return "device error: " + e.Message
	}
	return fmt.Sprintf("device error (code %s): %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return ErrAPI
}

// NewAPIError creates an API error
func NewAPIError(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// TimeoutError signals that polling gave up before the job reached a
// terminal state. The job may still complete on the device.
type TimeoutError struct {
	JobID    string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s did not finish after %d polls", e.JobID, e.Attempts)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// PreconditionError represents a failed precondition check with context
type PreconditionError struct {
	Operation    string
	Resource     string
	Precondition string
	Details      string
}

func (e *PreconditionError) Error() string {
	msg := fmt.Sprintf("precondition failed for %s on %s: %s", e.Operation, e.Resource, e.Precondition)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *PreconditionError) Unwrap() error {
	return ErrPreconditionFailed
}

// NewPreconditionError creates a new precondition error
func NewPreconditionError(operation, resource, precondition, details string) *PreconditionError {
	return &PreconditionError{
		Operation:    operation,
		Resource:     resource,
		Precondition: precondition,
		Details:      details,
	}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddError adds an error message unconditionally
func (v *ValidationBuilder) AddError(message string) *ValidationBuilder {
	v.errors = append(v.errors, message)
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}

// IsRetryable reports whether err is worth retrying. Only connectivity
// failures qualify; device rejections and validation failures are final.
func IsRetryable(err error) bool {
	return err != nil && errors.Is(err, ErrConnectivity)
}

// Category maps an error to the category string embedded in outcome messages.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConnectivity):
		return CategoryConnectivity
	case errors.Is(err, ErrAPI):
		return CategoryAPI
	case errors.Is(err, ErrValidationFailed):
		return CategoryValidation
	case errors.Is(err, ErrTimeout):
		return CategoryTimeout
	default:
		return CategoryUnexpected
	}
}

// TypeName returns the dynamic type of v for unexpected-error messages,
// e.g. "*errors.errorString" or "runtime.boundsError".
func TypeName(v interface{}) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
