package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownTask       = errors.New("unknown task")
	ErrInvalidNextResult = errors.New("flow expression must yield a task slug, a list of task slugs or null")
)

// FlowProblem describes one flow (or start task list) referencing tasks that do not exist.
type FlowProblem struct {
	Task       string   `json:"task"`
	Expression string   `json:"expression,omitempty"`
	Missing    []string `json:"missing"`
}

// GraphConfigurationError reports a workflow whose graph references unknown tasks.
type GraphConfigurationError struct {
	Workflow string
	Problems []FlowProblem
}

func (e *GraphConfigurationError) Error() string {
	parts := make([]string, 0, len(e.Problems))

	for _, p := range e.Problems {
		if p.Expression == "" {
			parts = append(parts, fmt.Sprintf("task %q: unknown tasks %s", p.Task, strings.Join(p.Missing, ", ")))
			continue
		}

		parts = append(parts, fmt.Sprintf("flow from %q (%s): unknown tasks %s", p.Task, p.Expression, strings.Join(p.Missing, ", ")))
	}

	return fmt.Sprintf("workflow %q has an invalid graph: %s", e.Workflow, strings.Join(parts, "; "))
}

func (e *GraphConfigurationError) Unwrap() error {
	return ErrUnknownTask
}

// IsGraphConfigurationError reports whether err is or wraps a GraphConfigurationError.
func IsGraphConfigurationError(err error) bool {
	var graphErr *GraphConfigurationError
	return errors.As(err, &graphErr)
}
