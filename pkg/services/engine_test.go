package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/casework/pkg/access"
	"github.com/dukex/casework/pkg/events"
	"github.com/dukex/casework/pkg/jexl"
	"github.com/dukex/casework/pkg/mocks"
	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/persistence/file"
	"github.com/dukex/casework/pkg/services"
	"github.com/dukex/casework/pkg/testutil"
	"github.com/dukex/casework/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type noPlugins struct{}

func (noPlugins) DataSource(string) (validation.DataSource, bool) { return nil, false }

func (noPlugins) FormatValidator(string) (validation.FormatValidator, bool) { return nil, false }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]events.EventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.GetType())
	}

	return types
}

type fixture struct {
	engine    *services.Engine
	store     *file.Persistence
	published *recordingPublisher
}

func newFixture(t *testing.T, defs *testutil.Definitions, opts ...services.Option) *fixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir(), nil)
	published := &recordingPublisher{}
	evaluator := jexl.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts = append([]services.Option{services.WithEventPublisher(published), services.WithEvaluator(evaluator)}, opts...)

	return &fixture{
		engine:    services.NewEngine(store, defs, validation.NewValidator(defs, noPlugins{}, evaluator), logger, opts...),
		store:     store,
		published: published,
	}
}

func (f *fixture) items(t *testing.T, caseID string) []*models.WorkItem {
	t.Helper()

	items, err := f.store.WorkItemsByCase(context.Background(), caseID)
	require.NoError(t, err)

	return items
}

func (f *fixture) ready(t *testing.T, caseID, task string) []*models.WorkItem {
	t.Helper()

	var ready []*models.WorkItem

	for _, item := range f.items(t, caseID) {
		if item.Status == models.WorkItemStatusReady && (task == "" || item.Task == task) {
			ready = append(ready, item)
		}
	}

	return ready
}

func (f *fixture) caseStatus(t *testing.T, id string) models.CaseStatus {
	t.Helper()

	c, err := f.store.CaseByID(context.Background(), id)
	require.NoError(t, err)

	return c.Status
}

var clerk = &models.User{Username: "ada", Group: "clerks", Groups: []string{"clerks"}}

// sequentialDefs: A -> B.
func sequentialDefs() *testutil.Definitions {
	name := testutil.CreateTestQuestion("name", models.QuestionTypeText)

	return testutil.NewDefinitions().
		AddForm(testutil.CreateTestForm("main", name), name).
		AddTasks(testutil.CreateTestTask("a"), testutil.CreateTestTask("b")).
		AddWorkflow(testutil.CreateTestWorkflow("wf", []string{"a"}, testutil.WithFlow("a", "'b'|task")))
}

// mergeDefs: A and B both lead to C.
func mergeDefs() *testutil.Definitions {
	return testutil.NewDefinitions().
		AddTasks(testutil.CreateTestTask("a"), testutil.CreateTestTask("b"), testutil.CreateTestTask("c")).
		AddWorkflow(testutil.CreateTestWorkflow("merge", []string{"a", "b"},
			testutil.WithFlow("a", "'c'|task"),
			testutil.WithFlow("b", "'c'|task")))
}

func TestStartCase(t *testing.T) {
	f := newFixture(t, sequentialDefs())
	ctx := context.Background()

	c, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "wf", Form: "main", Meta: map[string]any{"ref": "X-1"}}, clerk)
	require.NoError(t, err)

	assert.Equal(t, models.CaseStatusRunning, c.Status)
	assert.Equal(t, c.ID, c.FamilyID)
	assert.Equal(t, "ada", c.CreatedByUser)
	assert.Equal(t, "clerks", c.CreatedByGroup)
	require.NotEmpty(t, c.DocumentID)

	doc, err := f.store.DocumentByID(ctx, c.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "main", doc.Form)
	assert.Equal(t, c.ID, doc.CaseID)

	items := f.items(t, c.ID)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].Task)
	assert.Equal(t, models.WorkItemStatusReady, items[0].Status)
	assert.Equal(t, c.DocumentID, items[0].DocumentID)
	assert.Empty(t, items[0].AddressedGroups)

	assert.Equal(t, []events.EventType{events.CaseCreatedEvent, events.WorkItemCreatedEvent}, f.published.types())
}

func TestStartCase_Rejected(t *testing.T) {
	defs := sequentialDefs().
		AddForm(testutil.CreateTestForm("other")).
		AddTasks(testutil.CreateTestTask("fill", testutil.WithWorkflowForm())).
		AddWorkflow(testutil.CreateTestWorkflow("draft", []string{"a"}, func(w *models.Workflow) { w.IsPublished = false })).
		AddWorkflow(testutil.CreateTestWorkflow("archived", []string{"a"}, func(w *models.Workflow) { w.IsArchived = true })).
		AddWorkflow(testutil.CreateTestWorkflow("form-flow", []string{"fill"}, testutil.WithAllowForms("main")))

	f := newFixture(t, defs)

	tests := map[string]services.StartCaseRequest{
		"unknown workflow":        {Workflow: "nope"},
		"unpublished workflow":    {Workflow: "draft"},
		"archived workflow":       {Workflow: "archived"},
		"form not allowed":        {Workflow: "form-flow", Form: "other"},
		"unknown form":            {Workflow: "wf", Form: "ghost"},
		"start task needs a form": {Workflow: "form-flow"},
		"document form mismatch":  {Workflow: "wf", Form: "main", Document: &models.Document{Form: "other"}},
	}

	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.engine.StartCase(context.Background(), req, clerk)
			require.Error(t, err)
			assert.True(t, services.IsInvalidOperation(err), err.Error())
			assert.ErrorIs(t, err, services.ErrInvalidOperation)
		})
	}

	_, err := f.engine.StartCase(context.Background(), services.StartCaseRequest{}, clerk)
	assert.True(t, services.IsValidationError(err))

	cases, err := f.store.Cases(context.Background(), persistence.CaseFilter{})
	require.NoError(t, err)
	assert.Empty(t, cases)
	assert.Empty(t, f.published.types())
}

func TestStartCase_PrefilledDocumentIsChecked(t *testing.T) {
	age := testutil.CreateTestQuestion("age", models.QuestionTypeInteger, testutil.WithNumberRange(0, 150))

	defs := testutil.NewDefinitions().
		AddForm(testutil.CreateTestForm("main", age), age).
		AddTasks(testutil.CreateTestTask("a")).
		AddWorkflow(testutil.CreateTestWorkflow("wf", []string{"a"}))

	f := newFixture(t, defs)
	ctx := context.Background()

	_, err := f.engine.StartCase(ctx, services.StartCaseRequest{
		Workflow: "wf",
		Document: testutil.CreateTestDocument("main", map[string]any{"age": 200, "stray": "x"}),
	}, clerk)

	var validationErr *validation.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Len(t, validationErr.Issues, 2)
	assert.Equal(t, "age", validationErr.Issues[0].Question)
	assert.Equal(t, "stray", validationErr.Issues[1].Question)

	c, err := f.engine.StartCase(ctx, services.StartCaseRequest{
		Workflow: "wf",
		Document: testutil.CreateTestDocument("main", map[string]any{"age": 42}),
	}, clerk)
	require.NoError(t, err)

	doc, err := f.store.DocumentByID(ctx, c.DocumentID)
	require.NoError(t, err)
	assert.InDelta(t, 42.0, doc.Answer("age").Value, 0)
}

func TestStartCase_PrefilledRowsAreChecked(t *testing.T) {
	area := testutil.CreateTestQuestion("area", models.QuestionTypeFloat)
	rooms := testutil.CreateTestQuestion("rooms", models.QuestionTypeTable, testutil.WithRowForm("room"))

	defs := testutil.NewDefinitions().
		AddForm(testutil.CreateTestForm("room", area), area).
		AddForm(testutil.CreateTestForm("main", rooms), rooms).
		AddTasks(testutil.CreateTestTask("a")).
		AddWorkflow(testutil.CreateTestWorkflow("wf", []string{"a"}))

	f := newFixture(t, defs)
	ctx := context.Background()

	t.Run("empty row", func(t *testing.T) {
		doc := testutil.WithRows(testutil.CreateTestDocument("main", nil), "rooms")
		doc.Answer("rooms").Rows = []*models.Document{nil}

		var err error

		require.NotPanics(t, func() {
			_, err = f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "wf", Document: doc}, clerk)
		})

		var validationErr *validation.ValidationError
		require.ErrorAs(t, err, &validationErr)
		require.Len(t, validationErr.Issues, 1)
		assert.Equal(t, "rooms", validationErr.Issues[0].Question)
		assert.Equal(t, "Row 1 is empty.", validationErr.Issues[0].Message)
	})

	t.Run("unknown row form", func(t *testing.T) {
		row := testutil.CreateTestDocument("ghost", map[string]any{"area": 12.5})
		row.ID = "row-1"

		doc := testutil.WithRows(testutil.CreateTestDocument("main", nil), "rooms", row)

		_, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "wf", Document: doc}, clerk)

		var validationErr *validation.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Contains(t, validationErr.Issues, validation.Issue{Document: "row-1", Message: `Row uses unknown form "ghost".`})
	})

	cases, err := f.store.Cases(ctx, persistence.CaseFilter{})
	require.NoError(t, err)
	assert.Empty(t, cases)
}

func TestCompleteWorkItem_Sequence(t *testing.T) {
	f := newFixture(t, sequentialDefs())
	ctx := context.Background()

	c, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "wf"}, clerk)
	require.NoError(t, err)

	a := f.ready(t, c.ID, "a")
	require.Len(t, a, 1)

	completed, err := f.engine.CompleteWorkItem(ctx, a[0].ID, clerk)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusCompleted, completed.Status)
	assert.Equal(t, "ada", completed.ClosedByUser)
	require.NotNil(t, completed.ClosedAt)

	b := f.ready(t, c.ID, "b")
	require.Len(t, b, 1)
	assert.Equal(t, a[0].ID, b[0].PreviousWorkItemID)
	assert.Equal(t, models.CaseStatusRunning, f.caseStatus(t, c.ID))

	_, err = f.engine.CompleteWorkItem(ctx, b[0].ID, clerk)
	require.NoError(t, err)

	assert.Equal(t, models.CaseStatusCompleted, f.caseStatus(t, c.ID))
	assert.Empty(t, f.ready(t, c.ID, ""))

	assert.Equal(t, []events.EventType{
		events.CaseCreatedEvent, events.WorkItemCreatedEvent,
		events.WorkItemCompletedEvent, events.WorkItemCreatedEvent,
		events.WorkItemCompletedEvent, events.CaseCompletedEvent,
	}, f.published.types())

	_, err = f.engine.CompleteWorkItem(ctx, b[0].ID, clerk)
	assert.True(t, services.IsInvalidOperation(err))

	_, err = f.engine.CompleteWorkItem(ctx, "missing", clerk)
	assert.True(t, persistence.IsNotFound(err))
}

func TestCompleteWorkItem_MergeInEitherOrder(t *testing.T) {
	for _, order := range [][]string{{"a", "b"}, {"b", "a"}} {
		t.Run(order[0]+" first", func(t *testing.T) {
			f := newFixture(t, mergeDefs())
			ctx := context.Background()

			c, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "merge"}, clerk)
			require.NoError(t, err)

			first := f.ready(t, c.ID, order[0])[0]
			_, err = f.engine.CompleteWorkItem(ctx, first.ID, clerk)
			require.NoError(t, err)
			assert.Empty(t, f.ready(t, c.ID, "c"), "successor waits for the other branch")

			second := f.ready(t, c.ID, order[1])[0]
			_, err = f.engine.CompleteWorkItem(ctx, second.ID, clerk)
			require.NoError(t, err)

			merged := f.ready(t, c.ID, "c")
			require.Len(t, merged, 1)
			assert.Equal(t, second.ID, merged[0].PreviousWorkItemID)

			_, err = f.engine.CompleteWorkItem(ctx, merged[0].ID, clerk)
			require.NoError(t, err)
			assert.Equal(t, models.CaseStatusCompleted, f.caseStatus(t, c.ID))
		})
	}
}

// divertingMergeDefs: A leads to C; B may lead to C but routes to D.
func divertingMergeDefs() *testutil.Definitions {
	return testutil.NewDefinitions().
		AddTasks(testutil.CreateTestTask("a"), testutil.CreateTestTask("b"), testutil.CreateTestTask("c"), testutil.CreateTestTask("d")).
		AddWorkflow(testutil.CreateTestWorkflow("wf", []string{"a", "b"},
			testutil.WithFlow("a", "'c'|task"),
			testutil.WithFlow("b", "false ? 'c'|task : 'd'|task")))
}

func TestCompleteWorkItem_PendingSuccessorSurvivesDivertedBranch(t *testing.T) {
	f := newFixture(t, divertingMergeDefs())
	ctx := context.Background()

	c, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "wf"}, clerk)
	require.NoError(t, err)

	_, err = f.engine.CompleteWorkItem(ctx, f.ready(t, c.ID, "a")[0].ID, clerk)
	require.NoError(t, err)
	assert.Empty(t, f.ready(t, c.ID, "c"))

	stored, err := f.store.CaseByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, stored.PendingSuccessors)

	b := f.ready(t, c.ID, "b")[0]
	_, err = f.engine.CompleteWorkItem(ctx, b.ID, clerk)
	require.NoError(t, err)

	merged := f.ready(t, c.ID, "c")
	require.Len(t, merged, 1)
	assert.Equal(t, b.ID, merged[0].PreviousWorkItemID)
	require.Len(t, f.ready(t, c.ID, "d"), 1)

	stored, err = f.store.CaseByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.PendingSuccessors)
	assert.Equal(t, models.CaseStatusRunning, stored.Status)

	_, err = f.engine.CompleteWorkItem(ctx, f.ready(t, c.ID, "d")[0].ID, clerk)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusRunning, f.caseStatus(t, c.ID))

	_, err = f.engine.CompleteWorkItem(ctx, merged[0].ID, clerk)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusCompleted, f.caseStatus(t, c.ID))
}

func TestPendingSuccessorIsReleasedByClosingTheBlockingBranch(t *testing.T) {
	closers := map[string]func(context.Context, *services.Engine, string) (*models.WorkItem, error){
		"skip": func(ctx context.Context, e *services.Engine, id string) (*models.WorkItem, error) {
			return e.SkipWorkItem(ctx, id, clerk)
		},
		"cancel": func(ctx context.Context, e *services.Engine, id string) (*models.WorkItem, error) {
			return e.CancelWorkItem(ctx, id, clerk)
		},
	}

	for name, closeItem := range closers {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, divertingMergeDefs())
			ctx := context.Background()

			c, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "wf"}, clerk)
			require.NoError(t, err)

			_, err = f.engine.CompleteWorkItem(ctx, f.ready(t, c.ID, "a")[0].ID, clerk)
			require.NoError(t, err)
			assert.Empty(t, f.ready(t, c.ID, "c"))

			_, err = closeItem(ctx, f.engine, f.ready(t, c.ID, "b")[0].ID)
			require.NoError(t, err)

			require.Len(t, f.ready(t, c.ID, "c"), 1)
			assert.Empty(t, f.ready(t, c.ID, "d"))
			assert.Equal(t, models.CaseStatusRunning, f.caseStatus(t, c.ID))

			_, err = f.engine.CompleteWorkItem(ctx, f.ready(t, c.ID, "c")[0].ID, clerk)
			require.NoError(t, err)
			assert.Equal(t, models.CaseStatusCompleted, f.caseStatus(t, c.ID))
		})
	}
}

func TestCompleteWorkItem_ConcurrentMerge(t *testing.T) {
	for i := 0; i < 10; i++ {
		f := newFixture(t, mergeDefs())
		ctx := context.Background()

		c, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "merge"}, clerk)
		require.NoError(t, err)

		var wg sync.WaitGroup

		errs := make(chan error, 2)

		for _, item := range f.ready(t, c.ID, "") {
			wg.Add(1)

			go func(id string) {
				defer wg.Done()

				_, err := f.engine.CompleteWorkItem(ctx, id, clerk)
				errs <- err
			}(item.ID)
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		require.Len(t, f.ready(t, c.ID, "c"), 1)
	}
}

func TestCompleteWorkItem_ExistingReadyItemIsReused(t *testing.T) {
	defs := testutil.NewDefinitions().
		AddTasks(testutil.CreateTestTask("a"), testutil.CreateTestTask("c")).
		AddWorkflow(testutil.CreateTestWorkflow("wf", []string{"a", "c"}, testutil.WithFlow("a", "'c'|task")))

	f := newFixture(t, defs)
	ctx := context.Background()

	c, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "wf"}, clerk)
	require.NoError(t, err)

	_, err = f.engine.CompleteWorkItem(ctx, f.ready(t, c.ID, "a")[0].ID, clerk)
	require.NoError(t, err)

	assert.Len(t, f.ready(t, c.ID, "c"), 1)
	assert.Len(t, f.items(t, c.ID), 2)
}

func TestCompleteWorkItem_ConditionalFlow(t *testing.T) {
	defs := testutil.NewDefinitions().
		AddTasks(testutil.CreateTestTask("check"), testutil.CreateTestTask("approve"), testutil.CreateTestTask("reject")).
		AddWorkflow(testutil.CreateTestWorkflow("wf", []string{"check"},
			testutil.WithFlow("check", "info.case.meta.amount > 100 ? 'approve'|task : ['reject']|tasks")))

	f := newFixture(t, defs)
	ctx := context.Background()

	for amount, want := range map[float64]string{500: "approve", 10: "reject"} {
		c, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "wf", Meta: map[string]any{"amount": amount}}, clerk)
		require.NoError(t, err)

		_, err = f.engine.CompleteWorkItem(ctx, f.ready(t, c.ID, "check")[0].ID, clerk)
		require.NoError(t, err)

		ready := f.ready(t, c.ID, "")
		require.Len(t, ready, 1)
		assert.Equal(t, want, ready[0].Task)
	}
}

func TestCompleteWorkItem_MultipleInstance(t *testing.T) {
	defs := testutil.NewDefinitions().
		AddTasks(
			testutil.CreateTestTask("review", testutil.WithMultipleInstance("['legal', 'finance']")),
			testutil.CreateTestTask("decide"),
		).
		AddWorkflow(testutil.CreateTestWorkflow("wf", []string{"review"}, testutil.WithFlow("review", "'decide'|task")))

	f := newFixture(t, defs)
	ctx := context.Background()

	c, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "wf"}, clerk)
	require.NoError(t, err)

	reviews := f.ready(t, c.ID, "review")
	require.Len(t, reviews, 2)
	assert.Equal(t, []string{"legal"}, reviews[0].AddressedGroups)
	assert.Equal(t, []string{"finance"}, reviews[1].AddressedGroups)

	_, err = f.engine.CompleteWorkItem(ctx, reviews[0].ID, clerk)
	require.NoError(t, err)
	assert.Empty(t, f.ready(t, c.ID, "decide"))

	_, err = f.engine.CompleteWorkItem(ctx, reviews[1].ID, clerk)
	require.NoError(t, err)
	assert.Len(t, f.ready(t, c.ID, "decide"), 1)
}

func TestCompleteWorkItem_GroupsAndDeadline(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	defs := testutil.NewDefinitions().
		AddTasks(testutil.CreateTestTask("a",
			testutil.WithGroups("[info.case.created_by_group]", "['managers']"),
			testutil.WithLeadTime(3600))).
		AddWorkflow(testutil.CreateTestWorkflow("wf", []string{"a"}))

	f := newFixture(t, defs, services.WithClock(func() time.Time { return now }))

	c, err := f.engine.StartCase(context.Background(), services.StartCaseRequest{Workflow: "wf"}, clerk)
	require.NoError(t, err)

	item := f.ready(t, c.ID, "a")[0]
	assert.Equal(t, []string{"clerks"}, item.AddressedGroups)
	assert.Equal(t, []string{"managers"}, item.ControllingGroups)
	require.NotNil(t, item.Deadline)
	assert.True(t, item.Deadline.Equal(now.Add(time.Hour)))
}

func TestCompleteWorkItem_InvalidDocumentLeavesStateUnchanged(t *testing.T) {
	name := testutil.CreateTestQuestion("name", models.QuestionTypeText, testutil.WithRequired("true"))
	note := testutil.CreateTestQuestion("note", models.QuestionTypeText, testutil.WithRequired("true"), testutil.WithHidden("true"))

	defs := testutil.NewDefinitions().
		AddForm(testutil.CreateTestForm("main", name, note), name, note).
		AddTasks(testutil.CreateTestTask("fill", testutil.WithWorkflowForm())).
		AddWorkflow(testutil.CreateTestWorkflow("wf", []string{"fill"}))

	f := newFixture(t, defs)
	ctx := context.Background()

	c, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "wf", Form: "main"}, clerk)
	require.NoError(t, err)

	item := f.ready(t, c.ID, "fill")[0]
	publishedBefore := len(f.published.types())

	_, err = f.engine.CompleteWorkItem(ctx, item.ID, clerk)

	var validationErr *validation.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Len(t, validationErr.Issues, 1)
	assert.Equal(t, "name", validationErr.Issues[0].Question)

	assert.Len(t, f.ready(t, c.ID, "fill"), 1)
	assert.Equal(t, models.CaseStatusRunning, f.caseStatus(t, c.ID))
	assert.Len(t, f.published.types(), publishedBefore)

	_, err = f.engine.SaveAnswer(ctx, services.SaveAnswerRequest{DocumentID: c.DocumentID, Question: "name", Value: "Ada"}, clerk)
	require.NoError(t, err)

	_, err = f.engine.CompleteWorkItem(ctx, item.ID, clerk)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusCompleted, f.caseStatus(t, c.ID))
}

func TestCompleteWorkItem_TaskForm(t *testing.T) {
	approved := testutil.CreateTestQuestion("approved", models.QuestionTypeChoice, testutil.WithRequired("true"), testutil.WithOptions("yes", "no"))

	defs := testutil.NewDefinitions().
		AddForm(testutil.CreateTestForm("review", approved), approved).
		AddTasks(testutil.CreateTestTask("review", testutil.WithTaskForm("review"))).
		AddWorkflow(testutil.CreateTestWorkflow("wf", []string{"review"}))

	f := newFixture(t, defs)
	ctx := context.Background()

	c, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "wf"}, clerk)
	require.NoError(t, err)
	assert.Empty(t, c.DocumentID)

	item := f.ready(t, c.ID, "review")[0]
	require.NotEmpty(t, item.DocumentID)

	doc, err := f.store.DocumentByID(ctx, item.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "review", doc.Form)
	assert.Equal(t, c.ID, doc.CaseID)

	_, err = f.engine.CompleteWorkItem(ctx, item.ID, clerk)
	assert.True(t, validation.IsValidationError(err))

	_, err = f.engine.SaveAnswer(ctx, services.SaveAnswerRequest{DocumentID: item.DocumentID, Question: "approved", Value: "maybe"}, clerk)
	assert.True(t, validation.IsValidationError(err))

	_, err = f.engine.SaveAnswer(ctx, services.SaveAnswerRequest{DocumentID: item.DocumentID, Question: "approved", Value: "yes"}, clerk)
	require.NoError(t, err)

	_, err = f.engine.CompleteWorkItem(ctx, item.ID, clerk)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusCompleted, f.caseStatus(t, c.ID))
}

func TestSkipWorkItem(t *testing.T) {
	name := testutil.CreateTestQuestion("name", models.QuestionTypeText, testutil.WithRequired("true"))

	defs := testutil.NewDefinitions().
		AddForm(testutil.CreateTestForm("main", name), name).
		AddTasks(testutil.CreateTestTask("a", testutil.WithWorkflowForm()), testutil.CreateTestTask("b"), testutil.CreateTestTask("c")).
		AddWorkflow(testutil.CreateTestWorkflow("wf", []string{"a", "b"}, testutil.WithFlow("a", "'c'|task")))

	f := newFixture(t, defs)
	ctx := context.Background()

	c, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "wf", Form: "main"}, clerk)
	require.NoError(t, err)

	// skipping neither validates nor resolves successors
	skipped, err := f.engine.SkipWorkItem(ctx, f.ready(t, c.ID, "a")[0].ID, clerk)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusSkipped, skipped.Status)
	assert.Empty(t, f.ready(t, c.ID, "c"))
	assert.Equal(t, models.CaseStatusRunning, f.caseStatus(t, c.ID))

	_, err = f.engine.SkipWorkItem(ctx, f.ready(t, c.ID, "b")[0].ID, clerk)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusCompleted, f.caseStatus(t, c.ID))

	_, err = f.engine.SkipWorkItem(ctx, skipped.ID, clerk)
	assert.True(t, services.IsInvalidOperation(err))
}

// childDefs: the parent's "delegate" task runs a child case of workflow "child".
func childDefs() *testutil.Definitions {
	return testutil.NewDefinitions().
		AddTasks(testutil.CreateTestTask("delegate"), testutil.CreateTestTask("other"), testutil.CreateTestTask("work")).
		AddWorkflow(testutil.CreateTestWorkflow("parent", []string{"delegate", "other"})).
		AddWorkflow(testutil.CreateTestWorkflow("child", []string{"work"}))
}

func startFamily(t *testing.T, f *fixture) (*models.Case, *models.WorkItem, *models.Case) {
	t.Helper()

	ctx := context.Background()

	parent, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "parent"}, clerk)
	require.NoError(t, err)

	delegate := f.ready(t, parent.ID, "delegate")[0]

	child, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "child", ParentWorkItemID: delegate.ID}, clerk)
	require.NoError(t, err)

	delegate, err = f.store.WorkItemByID(ctx, delegate.ID)
	require.NoError(t, err)

	return parent, delegate, child
}

func TestStartCase_ChildCase(t *testing.T) {
	f := newFixture(t, childDefs())
	ctx := context.Background()

	parent, delegate, child := startFamily(t, f)

	assert.Equal(t, parent.FamilyID, child.FamilyID)
	assert.Equal(t, delegate.ID, child.ParentWorkItemID)
	assert.Equal(t, child.ID, delegate.ChildCaseID)

	_, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "child", ParentWorkItemID: delegate.ID}, clerk)
	assert.True(t, services.IsInvalidOperation(err), "a work item has at most one child case")

	_, err = f.engine.CompleteWorkItem(ctx, delegate.ID, clerk)
	assert.True(t, services.IsInvalidOperation(err), "the child case must finish first")

	_, err = f.engine.CompleteWorkItem(ctx, f.ready(t, child.ID, "work")[0].ID, clerk)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusCompleted, f.caseStatus(t, child.ID))

	// completing the child leaves the parent work item alone
	delegate, err = f.store.WorkItemByID(ctx, delegate.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusReady, delegate.Status)

	_, err = f.engine.CompleteWorkItem(ctx, delegate.ID, clerk)
	require.NoError(t, err)
}

func TestCancelCase_Cascades(t *testing.T) {
	f := newFixture(t, childDefs())
	ctx := context.Background()

	parent, delegate, child := startFamily(t, f)

	other := f.ready(t, parent.ID, "other")[0]
	_, err := f.engine.CompleteWorkItem(ctx, other.ID, clerk)
	require.NoError(t, err)

	canceled, err := f.engine.CancelCase(ctx, parent.ID, clerk)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusCanceled, canceled.Status)

	assert.Equal(t, models.CaseStatusCanceled, f.caseStatus(t, child.ID))

	for _, item := range f.items(t, child.ID) {
		assert.Equal(t, models.WorkItemStatusCanceled, item.Status)
	}

	delegate, err = f.store.WorkItemByID(ctx, delegate.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusCanceled, delegate.Status)

	other, err = f.store.WorkItemByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusCompleted, other.Status, "closed items are untouched")

	_, err = f.engine.CancelCase(ctx, parent.ID, clerk)
	assert.True(t, services.IsInvalidOperation(err))

	_, err = f.engine.CompleteWorkItem(ctx, delegate.ID, clerk)
	assert.True(t, services.IsInvalidOperation(err))
}

func TestCancelWorkItem_CancelsChildCaseOnly(t *testing.T) {
	f := newFixture(t, childDefs())
	ctx := context.Background()

	parent, delegate, child := startFamily(t, f)

	canceled, err := f.engine.CancelWorkItem(ctx, delegate.ID, clerk)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusCanceled, canceled.Status)

	assert.Equal(t, models.CaseStatusCanceled, f.caseStatus(t, child.ID))
	assert.Equal(t, models.CaseStatusRunning, f.caseStatus(t, parent.ID))
	assert.Len(t, f.ready(t, parent.ID, "other"), 1)
}

func TestPermissions(t *testing.T) {
	defs := testutil.NewDefinitions().
		AddTasks(testutil.CreateTestTask("a", testutil.WithGroups("['clerks']", ""))).
		AddWorkflow(testutil.CreateTestWorkflow("wf", []string{"a"}))

	permissions := access.NewPermissions()
	permissions.Register(access.OperationCompleteItem, access.MemberOfAddressedGroups)
	permissions.Register(access.Key(access.OperationCancelCase, "wf"), func(context.Context, *models.User, access.Target) bool { return false })

	f := newFixture(t, defs, services.WithPermissions(permissions))
	ctx := context.Background()

	c, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "wf"}, clerk)
	require.NoError(t, err)

	item := f.ready(t, c.ID, "a")[0]
	outsider := &models.User{Username: "eve", Group: "public"}

	_, err = f.engine.CompleteWorkItem(ctx, item.ID, outsider)
	require.ErrorIs(t, err, access.ErrPermissionDenied)
	assert.Len(t, f.ready(t, c.ID, "a"), 1)

	_, err = f.engine.CancelCase(ctx, c.ID, clerk)
	require.ErrorIs(t, err, access.ErrPermissionDenied)

	_, err = f.engine.CompleteWorkItem(ctx, item.ID, clerk)
	require.NoError(t, err)
}

func TestQueries_Visibility(t *testing.T) {
	defs := testutil.NewDefinitions().
		AddTasks(testutil.CreateTestTask("a", testutil.WithGroups("['clerks']", "")), testutil.CreateTestTask("b")).
		AddWorkflow(testutil.CreateTestWorkflow("wf", []string{"a", "b"}))

	visibility := access.NewVisibilities()
	visibility.Register(access.EntityWorkItem, access.AddressedOrControlling)

	f := newFixture(t, defs, services.WithVisibility(visibility))
	ctx := context.Background()

	c, err := f.engine.StartCase(ctx, services.StartCaseRequest{Workflow: "wf"}, clerk)
	require.NoError(t, err)

	outsider := &models.User{Username: "eve", Group: "public"}

	items, err := f.engine.WorkItems(ctx, c.ID, outsider)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].Task)

	items, err = f.engine.WorkItems(ctx, c.ID, clerk)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = f.engine.WorkItem(ctx, f.ready(t, c.ID, "a")[0].ID, outsider)
	assert.True(t, errors.Is(err, persistence.ErrWorkItemNotFound))

	cases, err := f.engine.Cases(ctx, persistence.CaseFilter{Workflow: "wf"}, outsider)
	require.NoError(t, err)
	assert.Len(t, cases, 1)

	got, err := f.engine.Case(ctx, c.ID, outsider)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t, sequentialDefs())

	message, ok := f.engine.HealthCheck(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)
}

func TestHealthCheck_Unhealthy(t *testing.T) {
	store := &mocks.MockPersistence{}
	store.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))

	defs := sequentialDefs()
	evaluator := jexl.New()
	engine := services.NewEngine(store, defs, validation.NewValidator(defs, noPlugins{}, evaluator),
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	message, ok := engine.HealthCheck(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "Persistence layer is unhealthy: connection refused", message)
	store.AssertExpectations(t)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	f := newFixture(t, sequentialDefs(), services.WithEventPublisher(bus))

	c, err := f.engine.StartCase(context.Background(), services.StartCaseRequest{Workflow: "wf"}, clerk)
	require.NoError(t, err)

	assert.Equal(t, models.CaseStatusRunning, f.caseStatus(t, c.ID))
	assert.Len(t, f.ready(t, c.ID, "a"), 1)
	bus.AssertNumberOfCalls(t, "Publish", 2)
}
