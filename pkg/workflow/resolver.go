// Package workflow resolves and validates the task graph of workflows.
package workflow

import (
	"fmt"
	"slices"

	"github.com/dukex/casework/pkg/jexl"
	"github.com/dukex/casework/pkg/models"
)

// TaskLookup finds registered tasks by slug.
type TaskLookup interface {
	Task(slug string) (*models.Task, bool)
}

// Resolver computes the successor tasks of completed tasks.
type Resolver struct {
	evaluator *jexl.Evaluator
	tasks     TaskLookup
}

// NewResolver creates a resolver evaluating flows with evaluator.
func NewResolver(evaluator *jexl.Evaluator, tasks TaskLookup) *Resolver {
	return &Resolver{evaluator: evaluator, tasks: tasks}
}

// ResolveSuccessors evaluates every flow leaving completedTask and returns the union of
// the resulting tasks in first-seen order. A task without flows ends its branch.
func (r *Resolver) ResolveSuccessors(wf *models.Workflow, completedTask string, ctx *jexl.Context) ([]*models.Task, error) {
	var (
		slugs []string
		seen  = map[string]struct{}{}
	)

	for _, flow := range wf.FlowsFrom(completedTask) {
		result, err := r.evaluator.Evaluate(flow.Next, ctx)
		if err != nil {
			return nil, err
		}

		next, err := taskSlugs(result)
		if err != nil {
			return nil, &jexl.EvaluationError{Expression: flow.Next, Err: err}
		}

		for _, slug := range next {
			if _, dup := seen[slug]; dup {
				continue
			}

			seen[slug] = struct{}{}
			slugs = append(slugs, slug)
		}
	}

	tasks := make([]*models.Task, 0, len(slugs))

	var missing []string

	for _, slug := range slugs {
		task, ok := r.tasks.Task(slug)
		if !ok {
			missing = append(missing, slug)
			continue
		}

		tasks = append(tasks, task)
	}

	if len(missing) > 0 {
		return nil, &GraphConfigurationError{
			Workflow: wf.Slug,
			Problems: []FlowProblem{{Task: completedTask, Missing: missing}},
		}
	}

	return tasks, nil
}

// StaticSuccessors returns the task slugs literally named by the flows leaving task.
func StaticSuccessors(wf *models.Workflow, task string) (map[string]struct{}, error) {
	successors := map[string]struct{}{}

	for _, flow := range wf.FlowsFrom(task) {
		subjects, err := jexl.AnalyzeTransformSubjects(flow.Next, "task", "tasks")
		if err != nil {
			return nil, err
		}

		for slug := range subjects {
			successors[slug] = struct{}{}
		}
	}

	return successors, nil
}

// ValidateFlows checks that a workflow only references known tasks. Syntax errors are
// returned as they are; unknown references of all flows are collected into a
// GraphConfigurationError.
func ValidateFlows(wf *models.Workflow, tasks TaskLookup) error {
	var problems []FlowProblem

	if missing := unknown(wf.StartTasks, tasks); len(missing) > 0 {
		problems = append(problems, FlowProblem{Task: "start_tasks", Missing: missing})
	}

	for _, flow := range wf.Flows {
		if err := jexl.Check(flow.Next); err != nil {
			return fmt.Errorf("flow from %q: %w", flow.Task, err)
		}

		subjects, err := jexl.AnalyzeTransformSubjects(flow.Next, "task", "tasks")
		if err != nil {
			return fmt.Errorf("flow from %q: %w", flow.Task, err)
		}

		referenced := make([]string, 0, len(subjects)+1)
		referenced = append(referenced, flow.Task)

		for slug := range subjects {
			referenced = append(referenced, slug)
		}

		if missing := unknown(referenced, tasks); len(missing) > 0 {
			problems = append(problems, FlowProblem{Task: flow.Task, Expression: flow.Next, Missing: missing})
		}
	}

	if len(problems) > 0 {
		return &GraphConfigurationError{Workflow: wf.Slug, Problems: problems}
	}

	return nil
}

func unknown(slugs []string, tasks TaskLookup) []string {
	var missing []string

	for _, slug := range slugs {
		if _, ok := tasks.Task(slug); !ok && !slices.Contains(missing, slug) {
			missing = append(missing, slug)
		}
	}

	slices.Sort(missing)

	return missing
}

func taskSlugs(result any) ([]string, error) {
	switch v := result.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		slugs := make([]string, 0, len(v))

		for _, item := range v {
			if item == nil {
				continue
			}

			slug, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w, got element %T", ErrInvalidNextResult, item)
			}

			slugs = append(slugs, slug)
		}

		return slugs, nil
	}

	return nil, fmt.Errorf("%w, got %T", ErrInvalidNextResult, result)
}
