package validation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrFormNotFound            = errors.New("form not found")
	ErrQuestionNotFound        = errors.New("question not found")
	ErrDataSourceNotFound      = errors.New("data source not found")
	ErrFormatValidatorNotFound = errors.New("format validator not found")
	ErrRecursiveForm           = errors.New("form includes itself")
)

// Issue is one unmet or invalid question of a document tree.
type Issue struct {
	Question string `json:"question"`
	Document string `json:"document,omitempty"`
	Message  string `json:"message"`
}

// ValidationError carries every issue found in a document.
type ValidationError struct {
	Document string
	Issues   []Issue
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		messages = append(messages, fmt.Sprintf("%s: %s", issue.Question, issue.Message))
	}

	return fmt.Sprintf("document %s is invalid: %s", e.Document, strings.Join(messages, "; "))
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
