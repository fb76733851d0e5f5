package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/casework/pkg/access"
	"github.com/dukex/casework/pkg/eventbus"
	"github.com/dukex/casework/pkg/events"
	"github.com/dukex/casework/pkg/jexl"
	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/otelhelper"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/validation"
	"github.com/dukex/casework/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Definitions resolves the registered workflows, tasks and forms.
type Definitions interface {
	Workflow(slug string) (*models.Workflow, bool)
	Task(slug string) (*models.Task, bool)
	Form(slug string) (*models.Form, bool)
}

// Engine drives cases and work items through their lifecycle.
type Engine struct {
	store       persistence.Persistence
	defs        Definitions
	validator   *validation.Validator
	resolver    *workflow.Resolver
	evaluator   *jexl.Evaluator
	publisher   eventbus.EventPublisher
	permissions *access.Permissions
	visibility  *access.Visibilities
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
	requests    *validator.Validate
}

type Option func(*Engine)

func WithEventPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

func WithPermissions(permissions *access.Permissions) Option {
	return func(e *Engine) { e.permissions = permissions }
}

func WithVisibility(visibility *access.Visibilities) Option {
	return func(e *Engine) { e.visibility = visibility }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithEvaluator shares an expression evaluator, and its program cache, with other components.
func WithEvaluator(evaluator *jexl.Evaluator) Option {
	return func(e *Engine) { e.evaluator = evaluator }
}

// NewEngine creates an engine. Without options events are dropped, tracing is disabled
// and every operation is permitted.
func NewEngine(
	store persistence.Persistence,
	defs Definitions,
	documentValidator *validation.Validator,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:       store,
		defs:        defs,
		validator:   documentValidator,
		publisher:   eventbus.NoopEventBus{},
		permissions: access.NewPermissions(),
		visibility:  access.NewVisibilities(),
		tracer:      otelhelper.NewNoopTracer(),
		logger:      logger.With("module", "engine"),
		now:         time.Now,
		requests:    validator.New(validator.WithRequiredStructEnabled()),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.evaluator == nil {
		e.evaluator = jexl.New()
	}

	e.resolver = workflow.NewResolver(e.evaluator, defs)

	return e
}

// HealthCheck checks the health of the persistence layer.
func (e *Engine) HealthCheck(ctx context.Context) (string, bool) {
	if e.store == nil {
		return "Persistence layer not initialized", false
	}

	err := e.store.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// outbox collects the events of a transaction until it commits.
type outbox struct {
	events []events.Event
}

func (o *outbox) add(event events.Event) {
	o.events = append(o.events, event)
}

// mutate runs fn in a transaction inside a span and publishes the collected events
// once the transaction committed.
func (e *Engine) mutate(
	ctx context.Context,
	op string,
	attrs []attribute.KeyValue,
	fn func(ctx context.Context, tx persistence.Tx, out *outbox) error,
) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine."+op, attrs...)
	defer span.End()

	out := &outbox{}

	err := e.store.Transaction(ctx, func(ctx context.Context, tx persistence.Tx) error {
		out.events = out.events[:0]
		return fn(ctx, tx, out)
	})
	if err != nil {
		otelhelper.SetError(span, err)
		return err
	}

	for _, event := range out.events {
		if err := e.publisher.Publish(ctx, event.GetCaseID(), event); err != nil {
			e.logger.ErrorContext(ctx, "Failed to publish event",
				"error", err,
				"event_type", event.GetType(),
				"case_id", event.GetCaseID())
		}
	}

	return nil
}

func (e *Engine) checkRequest(op string, req any) error {
	if err := e.requests.Struct(req); err != nil {
		return NewValidationError(op, "invalid_request", err.Error(), ErrInvalidRequest)
	}

	return nil
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func userAttrs(user *models.User) []attribute.KeyValue {
	if user == nil {
		return nil
	}

	return []attribute.KeyValue{attribute.String(otelhelper.UserKey, user.Username)}
}

func (e *Engine) workflow(op, slug string) (*models.Workflow, error) {
	wf, ok := e.defs.Workflow(slug)
	if !ok {
		return nil, configurationError(op, ErrWorkflowNotFound, slug)
	}

	return wf, nil
}

func (e *Engine) task(op, slug string) (*models.Task, error) {
	task, ok := e.defs.Task(slug)
	if !ok {
		return nil, configurationError(op, ErrTaskNotFound, slug)
	}

	return task, nil
}

// expressionContext builds the flow and group context. The case document's form is
// looked up when the case has a document.
func (e *Engine) expressionContext(ctx context.Context, tx persistence.Tx, c *models.Case, item *models.WorkItem) (*jexl.Context, error) {
	info := workflow.Info{Case: c, WorkItem: item, PrevWorkItem: item}

	if c.DocumentID != "" {
		doc, err := tx.DocumentByID(ctx, c.DocumentID)
		if err != nil {
			return nil, err
		}

		form, ok := e.defs.Form(doc.Form)
		if !ok {
			return nil, configurationError("expressionContext", ErrFormNotFound, doc.Form)
		}

		info.Form = form
	}

	return workflow.NewContext(info), nil
}

func (e *Engine) groups(expression string, ctx *jexl.Context) ([]string, error) {
	if expression == "" {
		return []string{}, nil
	}

	result, err := e.evaluator.Evaluate(expression, ctx)
	if err != nil {
		return nil, err
	}

	groups, err := workflow.GroupList(result)
	if err != nil {
		return nil, &jexl.EvaluationError{Expression: expression, Err: err}
	}

	return groups, nil
}

// createWorkItems instantiates task within the case. Multi-instance tasks with resolved
// address groups get one item per group.
func (e *Engine) createWorkItems(
	ctx context.Context,
	tx persistence.Tx,
	out *outbox,
	c *models.Case,
	task *models.Task,
	prev *models.WorkItem,
	exprCtx *jexl.Context,
	user *models.User,
	now time.Time,
) ([]*models.WorkItem, error) {
	addressed, err := e.groups(task.AddressGroups, exprCtx)
	if err != nil {
		return nil, fmt.Errorf("address groups of task %s: %w", task.Slug, err)
	}

	controlling, err := e.groups(task.ControlGroups, exprCtx)
	if err != nil {
		return nil, fmt.Errorf("control groups of task %s: %w", task.Slug, err)
	}

	addressing := [][]string{addressed}
	if task.IsMultipleInstance && len(addressed) > 0 {
		addressing = make([][]string, 0, len(addressed))
		for _, group := range addressed {
			addressing = append(addressing, []string{group})
		}
	}

	items := make([]*models.WorkItem, 0, len(addressing))

	for _, groups := range addressing {
		item := &models.WorkItem{
			ID:                newID(),
			Task:              task.Slug,
			CaseID:            c.ID,
			Status:            models.WorkItemStatusReady,
			DocumentID:        c.DocumentID,
			AddressedGroups:   groups,
			ControllingGroups: controlling,
			Deadline:          task.Deadline(now),
			CreatedAt:         now,
			ModifiedAt:        now,
		}

		if prev != nil {
			item.PreviousWorkItemID = prev.ID
		}

		if user != nil {
			item.CreatedByUser = user.Username
			item.CreatedByGroup = user.Group
		}

		if task.Type == models.TaskTypeCompleteTaskForm {
			doc, err := e.newDocument(ctx, tx, task.Form, c.ID, user, now)
			if err != nil {
				return nil, err
			}

			item.DocumentID = doc.ID
		}

		if err := tx.SaveWorkItem(ctx, item); err != nil {
			return nil, err
		}

		out.add(events.NewWorkItemCreated(c, item, user))
		items = append(items, item)
	}

	return items, nil
}

func (e *Engine) newDocument(ctx context.Context, tx persistence.Tx, form, caseID string, user *models.User, now time.Time) (*models.Document, error) {
	if _, ok := e.defs.Form(form); !ok {
		return nil, configurationError("newDocument", ErrFormNotFound, form)
	}

	id := newID()
	doc := &models.Document{
		ID:         id,
		Form:       form,
		FamilyID:   id,
		CaseID:     caseID,
		Answers:    map[string]*models.Answer{},
		CreatedAt:  now,
		ModifiedAt: now,
	}

	if user != nil {
		doc.CreatedByUser = user.Username
		doc.CreatedByGroup = user.Group
	}

	if err := tx.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}

	return doc, nil
}

func readyItems(items []*models.WorkItem) []*models.WorkItem {
	ready := make([]*models.WorkItem, 0, len(items))

	for _, item := range items {
		if item.Status == models.WorkItemStatusReady {
			ready = append(ready, item)
		}
	}

	return ready
}

// lockedWorkItem reads a work item, locks its case and reads both again under the lock.
func lockedWorkItem(ctx context.Context, tx persistence.Tx, id string) (*models.WorkItem, *models.Case, error) {
	item, err := tx.WorkItemByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.LockCase(ctx, item.CaseID); err != nil {
		return nil, nil, err
	}

	item, err = tx.WorkItemByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	c, err := tx.CaseByID(ctx, item.CaseID)
	if err != nil {
		return nil, nil, err
	}

	return item, c, nil
}
