// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/casework/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")

	// State Conflicts (409 Conflict).
	ErrInvalidOperation = errors.New("invalid operation")

	// Missing entities (404 Not Found).
	ErrCaseNotFound     = persistence.ErrCaseNotFound
	ErrWorkItemNotFound = persistence.ErrWorkItemNotFound
	ErrDocumentNotFound = persistence.ErrDocumentNotFound
)

// Configuration Errors - the registered definitions are inconsistent (500 responses).
var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrTaskNotFound     = errors.New("task not found")
	ErrFormNotFound     = errors.New("form not found")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a request error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsConflictError checks if an error is a state conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsConfigurationError reports errors caused by missing or inconsistent definitions.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrFormNotFound)
}

// NewValidationError creates a new request error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// InvalidOperationError reports a lifecycle rule violation, e.g. completing a closed work item.
type InvalidOperationError struct {
	Op      string
	Message string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *InvalidOperationError) Unwrap() error {
	return ErrInvalidOperation
}

// IsInvalidOperation reports whether err is or wraps an InvalidOperationError.
func IsInvalidOperation(err error) bool {
	var opErr *InvalidOperationError
	return errors.As(err, &opErr)
}

func invalidOperation(op, format string, args ...any) *InvalidOperationError {
	return &InvalidOperationError{Op: op, Message: fmt.Sprintf(format, args...)}
}

func configurationError(op string, err error, slug string) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    "configuration_error",
		Message: fmt.Sprintf("%v: %s", err, slug),
		Err:     err,
	}
}
