package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrCaseNotFound indicates a case was not found by the given identifier.
	ErrCaseNotFound = errors.New("case not found")

	// ErrWorkItemNotFound indicates a work item was not found by the given identifier.
	ErrWorkItemNotFound = errors.New("work item not found")

	// ErrDocumentNotFound indicates a document was not found by the given identifier.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidID indicates an identifier that cannot be stored safely.
	ErrInvalidID = errors.New("invalid identifier")
)

// EntityError wraps storage errors with the operation and entity involved.
type EntityError struct {
	Op     string // Operation being performed (e.g., "CaseByID", "SaveWorkItem")
	Entity string // "case", "work_item" or "document"
	ID     string
	Err    error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for entity errors.
func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEntityError creates a new entity error with context.
func NewEntityError(op, entity, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsNotFound checks if an error indicates that a case, work item or document was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCaseNotFound) || errors.Is(err, ErrWorkItemNotFound) || errors.Is(err, ErrDocumentNotFound)
}
