// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/casework/pkg/models"
	"github.com/google/uuid"
)

// Definitions is an in-memory schema of forms, questions, tasks and workflows.
type Definitions struct {
	Forms     map[string]*models.Form
	Questions map[string]*models.Question
	Tasks     map[string]*models.Task
	Workflows map[string]*models.Workflow
}

// NewDefinitions creates empty definitions.
func NewDefinitions() *Definitions {
	return &Definitions{
		Forms:     map[string]*models.Form{},
		Questions: map[string]*models.Question{},
		Tasks:     map[string]*models.Task{},
		Workflows: map[string]*models.Workflow{},
	}
}

func (d *Definitions) Form(slug string) (*models.Form, bool) {
	f, ok := d.Forms[slug]
	return f, ok
}

func (d *Definitions) Question(slug string) (*models.Question, bool) {
	q, ok := d.Questions[slug]
	return q, ok
}

func (d *Definitions) Task(slug string) (*models.Task, bool) {
	t, ok := d.Tasks[slug]
	return t, ok
}

func (d *Definitions) Workflow(slug string) (*models.Workflow, bool) {
	w, ok := d.Workflows[slug]
	return w, ok
}

// AddForm registers a form together with its questions.
func (d *Definitions) AddForm(form *models.Form, questions ...*models.Question) *Definitions {
	d.Forms[form.Slug] = form

	for _, q := range questions {
		d.Questions[q.Slug] = q
	}

	return d
}

// AddTasks registers tasks.
func (d *Definitions) AddTasks(tasks ...*models.Task) *Definitions {
	for _, t := range tasks {
		d.Tasks[t.Slug] = t
	}

	return d
}

// AddWorkflow registers a workflow.
func (d *Definitions) AddWorkflow(wf *models.Workflow) *Definitions {
	d.Workflows[wf.Slug] = wf
	return d
}

// CreateTestTask creates a simple task with default values that can be overridden.
func CreateTestTask(slug string, overrides ...func(*models.Task)) *models.Task {
	task := &models.Task{
		Slug: slug,
		Name: "Task " + slug,
		Type: models.TaskTypeSimple,
	}

	for _, override := range overrides {
		override(task)
	}

	return task
}

// WithTaskForm makes the task a complete_task_form task on the given form.
func WithTaskForm(form string) func(*models.Task) {
	return func(t *models.Task) {
		t.Type = models.TaskTypeCompleteTaskForm
		t.Form = form
	}
}

// WithWorkflowForm makes the task complete the case document.
func WithWorkflowForm() func(*models.Task) {
	return func(t *models.Task) {
		t.Type = models.TaskTypeCompleteWorkflowForm
	}
}

// WithMultipleInstance marks the task multi-instance with the given address groups expression.
func WithMultipleInstance(addressGroups string) func(*models.Task) {
	return func(t *models.Task) {
		t.IsMultipleInstance = true
		t.AddressGroups = addressGroups
	}
}

// WithGroups sets the address and control groups expressions.
func WithGroups(addressGroups, controlGroups string) func(*models.Task) {
	return func(t *models.Task) {
		t.AddressGroups = addressGroups
		t.ControlGroups = controlGroups
	}
}

// WithLeadTime sets the task lead time in seconds.
func WithLeadTime(seconds int) func(*models.Task) {
	return func(t *models.Task) {
		t.LeadTime = seconds
	}
}

// CreateTestWorkflow creates a published workflow with the given start tasks.
func CreateTestWorkflow(slug string, startTasks []string, overrides ...func(*models.Workflow)) *models.Workflow {
	now := time.Now()

	wf := &models.Workflow{
		Slug:        slug,
		Name:        "Workflow " + slug,
		StartTasks:  startTasks,
		IsPublished: true,
		CreatedAt:   now,
		PublishedAt: &now,
	}

	for _, override := range overrides {
		override(wf)
	}

	return wf
}

// WithFlow adds a flow from task.
func WithFlow(task, next string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Flows = append(w.Flows, models.Flow{Task: task, Next: next})
	}
}

// WithAllowForms restricts the forms of case documents.
func WithAllowForms(forms ...string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.AllowForms = forms
	}
}

// CreateTestForm creates a form listing the slugs of the given questions.
func CreateTestForm(slug string, questions ...*models.Question) *models.Form {
	form := &models.Form{Slug: slug, Name: "Form " + slug}

	for _, q := range questions {
		form.Questions = append(form.Questions, q.Slug)
	}

	return form
}

// CreateTestQuestion creates a question of the given type with default values that can be overridden.
func CreateTestQuestion(slug string, questionType models.QuestionType, overrides ...func(*models.Question)) *models.Question {
	q := &models.Question{
		Slug:  slug,
		Label: "Question " + slug,
		Type:  questionType,
	}

	for _, override := range overrides {
		override(q)
	}

	return q
}

// WithRequired sets the is_required expression.
func WithRequired(expression string) func(*models.Question) {
	return func(q *models.Question) {
		q.IsRequired = expression
	}
}

// WithHidden sets the is_hidden expression.
func WithHidden(expression string) func(*models.Question) {
	return func(q *models.Question) {
		q.IsHidden = expression
	}
}

// WithSubForm embeds a form.
func WithSubForm(form string) func(*models.Question) {
	return func(q *models.Question) {
		q.SubForm = &models.FormRef{Form: form}
	}
}

// WithRowForm sets the row form of a table.
func WithRowForm(form string) func(*models.Question) {
	return func(q *models.Question) {
		q.RowForm = &models.FormRef{Form: form}
	}
}

// WithOptions configures choice options by slug.
func WithOptions(slugs ...string) func(*models.Question) {
	return func(q *models.Question) {
		q.Options = &models.OptionsConfig{}
		for _, slug := range slugs {
			q.Options.Options = append(q.Options.Options, models.Option{Slug: slug, Label: slug})
		}
	}
}

// WithTextLimits sets text length bounds and format validators.
func WithTextLimits(minLength, maxLength int, formats ...string) func(*models.Question) {
	return func(q *models.Question) {
		q.Text = &models.TextConfig{MinLength: &minLength, MaxLength: &maxLength, FormatValidators: formats}
	}
}

// WithNumberRange sets numeric bounds.
func WithNumberRange(minimum, maximum float64) func(*models.Question) {
	return func(q *models.Question) {
		q.Number = &models.NumberConfig{Min: &minimum, Max: &maximum}
	}
}

// WithDataSource sets the data source of a dynamic choice question.
func WithDataSource(name string) func(*models.Question) {
	return func(q *models.Question) {
		q.DataSource = &models.DataSourceConfig{Name: name}
	}
}

// CreateTestDocument creates a document of form with the given answer values.
func CreateTestDocument(form string, values map[string]any) *models.Document {
	now := time.Now()
	id := uuid.New().String()

	doc := &models.Document{
		ID:         id,
		Form:       form,
		FamilyID:   id,
		Answers:    map[string]*models.Answer{},
		CreatedAt:  now,
		ModifiedAt: now,
	}

	for slug, value := range values {
		doc.SetAnswer(&models.Answer{Question: slug, Value: value, ModifiedAt: now})
	}

	return doc
}

// WithRows adds a table answer holding the given row documents.
func WithRows(doc *models.Document, question string, rows ...*models.Document) *models.Document {
	for _, row := range rows {
		row.FamilyID = doc.FamilyID
	}

	doc.SetAnswer(&models.Answer{Question: question, Rows: rows, ModifiedAt: time.Now()})

	return doc
}
