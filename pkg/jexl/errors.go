package jexl

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTransform = errors.New("unknown transform")
	ErrTypeMismatch     = errors.New("type mismatch")
)

// ExpressionSyntaxError reports malformed expression input.
type ExpressionSyntaxError struct {
	Expression string
	Position   int
	Message    string
}

func (e *ExpressionSyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %q at position %d: %s", e.Expression, e.Position, e.Message)
}

// QuestionMissingError is raised when an expression references a question slug
// that is not part of the evaluated form. It signals a configuration bug.
type QuestionMissingError struct {
	Question string
	Form     string
}

func (e *QuestionMissingError) Error() string {
	if e.Form == "" {
		return fmt.Sprintf("question %q not found", e.Question)
	}

	return fmt.Sprintf("question %q not found in form %q", e.Question, e.Form)
}

// EvaluationError wraps a runtime fault while evaluating an expression.
type EvaluationError struct {
	Expression string
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating %q: %v", e.Expression, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// IsSyntaxError reports whether err is or wraps an ExpressionSyntaxError.
func IsSyntaxError(err error) bool {
	var syntaxErr *ExpressionSyntaxError
	return errors.As(err, &syntaxErr)
}

// IsQuestionMissing reports whether err is or wraps a QuestionMissingError.
func IsQuestionMissing(err error) bool {
	var missingErr *QuestionMissingError
	return errors.As(err, &missingErr)
}

func typeError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTypeMismatch, fmt.Sprintf(format, args...))
}
