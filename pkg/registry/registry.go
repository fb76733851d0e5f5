// Package registry holds the form, question, task and workflow definitions together
// with the data sources and format validators documents are checked with.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/casework/pkg/jexl"
	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/validation"
	"github.com/dukex/casework/pkg/workflow"
	"github.com/go-playground/validator/v10"
)

var ErrInvalidDefinition = errors.New("invalid definition")

type Registry struct {
	logger     *slog.Logger
	evaluator  *jexl.Evaluator
	validate   *validator.Validate
	publishing *workflow.PublishingService

	mu          sync.RWMutex
	forms       map[string]*models.Form
	questions   map[string]*models.Question
	tasks       map[string]*models.Task
	workflows   map[string]*models.Workflow
	dataSources map[string]validation.DataSource
	formats     map[string]validation.FormatValidator
}

// NewRegistry creates a registry with the built-in email and phone-number format validators.
func NewRegistry(logger *slog.Logger, evaluator *jexl.Evaluator) *Registry {
	if evaluator == nil {
		evaluator = jexl.New()
	}

	r := &Registry{
		logger:      logger.With("module", "registry"),
		evaluator:   evaluator,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		forms:       make(map[string]*models.Form),
		questions:   make(map[string]*models.Question),
		tasks:       make(map[string]*models.Task),
		workflows:   make(map[string]*models.Workflow),
		dataSources: make(map[string]validation.DataSource),
		formats:     make(map[string]validation.FormatValidator),
	}

	r.publishing = workflow.NewPublishingService(r, r.logger)

	r.RegisterFormatValidator(validation.EmailValidator{})
	r.RegisterFormatValidator(validation.PhoneNumberValidator{})

	return r
}

func (r *Registry) Form(slug string) (*models.Form, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.forms[slug]

	return f, ok
}

func (r *Registry) Question(slug string) (*models.Question, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.questions[slug]

	return q, ok
}

func (r *Registry) Task(slug string) (*models.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[slug]

	return t, ok
}

func (r *Registry) Workflow(slug string) (*models.Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workflows[slug]

	return w, ok
}

// Workflows lists the registered workflows ordered by slug.
func (r *Registry) Workflows() []*models.Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slugs := slices.Sorted(maps.Keys(r.workflows))

	list := make([]*models.Workflow, 0, len(slugs))
	for _, slug := range slugs {
		list = append(list, r.workflows[slug])
	}

	return list
}

func (r *Registry) DataSource(name string) (validation.DataSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.dataSources[name]

	return s, ok
}

func (r *Registry) FormatValidator(slug string) (validation.FormatValidator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formats[slug]

	return f, ok
}

func (r *Registry) RegisterDataSource(source validation.DataSource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dataSources[source.Name()] = source
}

func (r *Registry) RegisterFormatValidator(formatValidator validation.FormatValidator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.formats[formatValidator.Slug()] = formatValidator
}

// RegisterQuestion checks the question's configuration and expressions before storing it.
func (r *Registry) RegisterQuestion(q *models.Question) error {
	if err := r.validate.Struct(q); err != nil {
		return fmt.Errorf("%w: question %q: %w", ErrInvalidDefinition, q.Slug, err)
	}

	if err := q.CheckConfig(); err != nil {
		return err
	}

	if err := r.checkExpressions("question "+q.Slug, q.IsRequired, q.IsHidden); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.questions[q.Slug] = q

	return nil
}

func (r *Registry) RegisterForm(form *models.Form) error {
	if err := r.validate.Struct(form); err != nil {
		return fmt.Errorf("%w: form %q: %w", ErrInvalidDefinition, form.Slug, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.forms[form.Slug] = form

	return nil
}

func (r *Registry) RegisterTask(task *models.Task) error {
	if err := r.validate.Struct(task); err != nil {
		return fmt.Errorf("%w: task %q: %w", ErrInvalidDefinition, task.Slug, err)
	}

	if err := r.checkExpressions("task "+task.Slug, task.AddressGroups, task.ControlGroups); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks[task.Slug] = task

	return nil
}

// RegisterWorkflow validates the workflow graph against the registered tasks and stores
// the published version, which it returns.
func (r *Registry) RegisterWorkflow(wf *models.Workflow) (*models.Workflow, error) {
	if err := r.validate.Struct(wf); err != nil {
		return nil, fmt.Errorf("%w: workflow %q: %w", ErrInvalidDefinition, wf.Slug, err)
	}

	published, err := r.publishing.Publish(wf)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.workflows[published.Slug] = published

	return published, nil
}

func (r *Registry) checkExpressions(owner string, expressions ...string) error {
	for _, expression := range expressions {
		if expression == "" {
			continue
		}

		if err := r.evaluator.Check(expression); err != nil {
			return fmt.Errorf("%s: %w", owner, err)
		}
	}

	return nil
}

// Verify checks the references between definitions: form questions, embedded and row
// forms, task forms and allowed workflow forms. Every problem is reported.
func (r *Registry) Verify() error {
	var problems []error

	documents := validation.NewValidator(r, r, r.evaluator)

	r.mu.RLock()
	forms := slices.Sorted(maps.Keys(r.forms))
	questions := slices.Sorted(maps.Keys(r.questions))
	tasks := slices.Sorted(maps.Keys(r.tasks))
	workflows := slices.Sorted(maps.Keys(r.workflows))
	r.mu.RUnlock()

	for _, slug := range forms {
		if _, err := documents.Questions(slug); err != nil {
			problems = append(problems, fmt.Errorf("form %q: %w", slug, err))
		}
	}

	for _, slug := range questions {
		q, _ := r.Question(slug)
		if q.RowForm == nil {
			continue
		}

		if _, ok := r.Form(q.RowForm.Form); !ok {
			problems = append(problems, fmt.Errorf("%w: question %q uses unknown row form %q", ErrInvalidDefinition, slug, q.RowForm.Form))
		}
	}

	for _, slug := range tasks {
		task, _ := r.Task(slug)
		if task.Form == "" {
			continue
		}

		if _, ok := r.Form(task.Form); !ok {
			problems = append(problems, fmt.Errorf("%w: task %q uses unknown form %q", ErrInvalidDefinition, slug, task.Form))
		}
	}

	for _, slug := range workflows {
		wf, _ := r.Workflow(slug)

		var unknown []string

		for _, form := range wf.AllowForms {
			if _, ok := r.Form(form); !ok {
				unknown = append(unknown, form)
			}
		}

		if len(unknown) > 0 {
			problems = append(problems, fmt.Errorf("%w: workflow %q allows unknown forms %s", ErrInvalidDefinition, slug, strings.Join(unknown, ", ")))
		}
	}

	return errors.Join(problems...)
}
