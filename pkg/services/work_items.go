package services

import (
	"context"
	"slices"

	"github.com/dukex/casework/pkg/access"
	"github.com/dukex/casework/pkg/events"
	"github.com/dukex/casework/pkg/jexl"
	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/otelhelper"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/workflow"
	"go.opentelemetry.io/otel/attribute"
)

// itemOperation is the shared prologue of work item operations: the item is read under
// its case lock, must be ready, and the permission hook for its task must allow it.
type itemOperation struct {
	item *models.WorkItem
	c    *models.Case
	wf   *models.Workflow
	task *models.Task
}

func (e *Engine) beginItemOperation(ctx context.Context, tx persistence.Tx, op, operation, id string, user *models.User) (*itemOperation, error) {
	item, c, err := lockedWorkItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if item.Status != models.WorkItemStatusReady {
		return nil, invalidOperation(op, "work item %s is %s, not ready", item.ID, item.Status)
	}

	if c.Status != models.CaseStatusRunning {
		return nil, invalidOperation(op, "case %s is %s, not running", c.ID, c.Status)
	}

	wf, err := e.workflow(op, c.Workflow)
	if err != nil {
		return nil, err
	}

	task, err := e.task(op, item.Task)
	if err != nil {
		return nil, err
	}

	target := access.Target{Workflow: wf, Task: task, Case: c, WorkItem: item}
	if err := e.permissions.Check(ctx, access.Key(operation, task.Slug), user, target); err != nil {
		return nil, err
	}

	return &itemOperation{item: item, c: c, wf: wf, task: task}, nil
}

func (e *Engine) requireFinishedChild(ctx context.Context, tx persistence.Tx, op string, item *models.WorkItem) error {
	if item.ChildCaseID == "" {
		return nil
	}

	child, err := tx.CaseByID(ctx, item.ChildCaseID)
	if err != nil {
		return err
	}

	if !child.Status.IsTerminal() {
		return invalidOperation(op, "child case %s of work item %s is still %s", child.ID, item.ID, child.Status)
	}

	return nil
}

func itemAttrs(id string, user *models.User) []attribute.KeyValue {
	return append(userAttrs(user), attribute.String(otelhelper.WorkItemIDKey, id))
}

// CompleteWorkItem validates the work item's document, completes the item and creates
// the successor work items. The case completes when no ready item is left.
func (e *Engine) CompleteWorkItem(ctx context.Context, id string, user *models.User) (*models.WorkItem, error) {
	const op = "CompleteWorkItem"

	var completed *models.WorkItem

	err := e.mutate(ctx, op, itemAttrs(id, user), func(ctx context.Context, tx persistence.Tx, out *outbox) error {
		it, err := e.beginItemOperation(ctx, tx, op, access.OperationCompleteItem, id, user)
		if err != nil {
			return err
		}

		if err := e.requireFinishedChild(ctx, tx, op, it.item); err != nil {
			return err
		}

		if err := e.validateForCompletion(ctx, tx, op, it, user); err != nil {
			return err
		}

		now := e.now()

		if err := it.item.Transition(models.WorkItemStatusCompleted, user, now); err != nil {
			return err
		}

		if err := tx.SaveWorkItem(ctx, it.item); err != nil {
			return err
		}

		out.add(events.NewWorkItemClosed(it.c, it.item, user))

		items, err := tx.WorkItemsByCase(ctx, it.c.ID)
		if err != nil {
			return err
		}

		ready := readyItems(items)

		if it.task.IsMultipleInstance {
			for _, sibling := range ready {
				if sibling.Task == it.task.Slug {
					completed = it.item
					return nil
				}
			}
		}

		created, err := e.advance(ctx, tx, out, it, ready, user)
		if err != nil {
			return err
		}

		if len(ready)+len(created) == 0 {
			if err := e.completeCase(ctx, tx, out, it.c, user); err != nil {
				return err
			}
		}

		completed = it.item

		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Work item completed", "work_item_id", completed.ID, "task", completed.Task, "case_id", completed.CaseID)

	return completed, nil
}

// validateForCompletion checks the document the task kind completes. Simple tasks of
// cases without a document have nothing to validate.
func (e *Engine) validateForCompletion(ctx context.Context, tx persistence.Tx, op string, it *itemOperation, user *models.User) error {
	var documentID string

	switch it.task.Type {
	case models.TaskTypeSimple:
		documentID = it.c.DocumentID
	case models.TaskTypeCompleteWorkflowForm:
		if it.c.DocumentID == "" {
			return invalidOperation(op, "case %s has no document to complete", it.c.ID)
		}

		documentID = it.c.DocumentID
	case models.TaskTypeCompleteTaskForm:
		if it.item.DocumentID == "" || it.item.DocumentID == it.c.DocumentID {
			return invalidOperation(op, "work item %s has no task document", it.item.ID)
		}

		documentID = it.item.DocumentID
	default:
		return invalidOperation(op, "task %s has unknown type %q", it.task.Slug, it.task.Type)
	}

	if documentID == "" {
		return nil
	}

	doc, err := tx.DocumentByID(ctx, documentID)
	if err != nil {
		return err
	}

	if it.task.Type == models.TaskTypeCompleteTaskForm && doc.Form != it.task.Form {
		return invalidOperation(op, "document %s is bound to form %q, task %s expects %q", doc.ID, doc.Form, it.task.Slug, it.task.Form)
	}

	result, err := e.validator.ComputeValidity(ctx, doc, user)
	if err != nil {
		return err
	}

	return result.Err(doc.ID)
}

// advance resolves the successors of the completed task and joins them with the
// successors still pending on the case.
func (e *Engine) advance(
	ctx context.Context,
	tx persistence.Tx,
	out *outbox,
	it *itemOperation,
	ready []*models.WorkItem,
	user *models.User,
) ([]*models.WorkItem, error) {
	exprCtx, err := e.expressionContext(ctx, tx, it.c, it.item)
	if err != nil {
		return nil, err
	}

	successors, err := e.resolver.ResolveSuccessors(it.wf, it.task.Slug, exprCtx)
	if err != nil {
		return nil, err
	}

	candidates := slices.Clone(it.c.PendingSuccessors)
	for _, successor := range successors {
		if !slices.Contains(candidates, successor.Slug) {
			candidates = append(candidates, successor.Slug)
		}
	}

	return e.releaseSuccessors(ctx, tx, out, it, ready, candidates, exprCtx, user)
}

// releaseSuccessors creates the work items of candidate tasks. A candidate is dropped
// when a ready item of its task exists and kept pending on the case while another ready
// item can still flow into it.
func (e *Engine) releaseSuccessors(
	ctx context.Context,
	tx persistence.Tx,
	out *outbox,
	it *itemOperation,
	ready []*models.WorkItem,
	candidates []string,
	exprCtx *jexl.Context,
	user *models.User,
) ([]*models.WorkItem, error) {
	reachable := map[string]map[string]struct{}{}

	reach := func(task string) error {
		if _, done := reachable[task]; done {
			return nil
		}

		next, err := workflow.StaticSuccessors(it.wf, task)
		if err != nil {
			return err
		}

		reachable[task] = next

		return nil
	}

	for _, other := range ready {
		if err := reach(other.Task); err != nil {
			return nil, err
		}
	}

	var (
		created []*models.WorkItem
		pending []string
	)

	for _, slug := range candidates {
		if _, ok := reachable[slug]; ok {
			continue
		}

		if blocked(reachable, slug) {
			e.logger.DebugContext(ctx, "Deferring successor until merging branches finish",
				"case_id", it.c.ID, "task", slug)

			pending = append(pending, slug)

			continue
		}

		task, err := e.task("releaseSuccessors", slug)
		if err != nil {
			return nil, err
		}

		items, err := e.createWorkItems(ctx, tx, out, it.c, task, it.item, exprCtx, user, e.now())
		if err != nil {
			return nil, err
		}

		if err := reach(slug); err != nil {
			return nil, err
		}

		created = append(created, items...)
	}

	if !slices.Equal(pending, it.c.PendingSuccessors) {
		it.c.PendingSuccessors = pending
		it.c.ModifiedAt = e.now()

		if err := tx.SaveCase(ctx, it.c); err != nil {
			return nil, err
		}
	}

	return created, nil
}

func blocked(reachable map[string]map[string]struct{}, task string) bool {
	for _, next := range reachable {
		if _, ok := next[task]; ok {
			return true
		}
	}

	return false
}

func (e *Engine) completeCase(ctx context.Context, tx persistence.Tx, out *outbox, c *models.Case, user *models.User) error {
	if err := c.Transition(models.CaseStatusCompleted, user, e.now()); err != nil {
		return err
	}

	if err := tx.SaveCase(ctx, c); err != nil {
		return err
	}

	out.add(events.NewCaseClosed(c, user))

	e.logger.InfoContext(ctx, "Case completed", "case_id", c.ID, "workflow", c.Workflow)

	return nil
}

// SkipWorkItem closes a ready work item without validation or successor resolution.
// Pending successors it was holding back are created. The case completes when no ready
// item is left.
func (e *Engine) SkipWorkItem(ctx context.Context, id string, user *models.User) (*models.WorkItem, error) {
	const op = "SkipWorkItem"

	var skipped *models.WorkItem

	err := e.mutate(ctx, op, itemAttrs(id, user), func(ctx context.Context, tx persistence.Tx, out *outbox) error {
		it, err := e.beginItemOperation(ctx, tx, op, access.OperationSkipItem, id, user)
		if err != nil {
			return err
		}

		if err := e.requireFinishedChild(ctx, tx, op, it.item); err != nil {
			return err
		}

		if err := it.item.Transition(models.WorkItemStatusSkipped, user, e.now()); err != nil {
			return err
		}

		if err := tx.SaveWorkItem(ctx, it.item); err != nil {
			return err
		}

		out.add(events.NewWorkItemClosed(it.c, it.item, user))

		items, err := tx.WorkItemsByCase(ctx, it.c.ID)
		if err != nil {
			return err
		}

		ready := readyItems(items)

		var created []*models.WorkItem

		if len(it.c.PendingSuccessors) > 0 {
			exprCtx, err := e.expressionContext(ctx, tx, it.c, it.item)
			if err != nil {
				return err
			}

			created, err = e.releaseSuccessors(ctx, tx, out, it, ready, it.c.PendingSuccessors, exprCtx, user)
			if err != nil {
				return err
			}
		}

		if len(ready)+len(created) == 0 {
			if err := e.completeCase(ctx, tx, out, it.c, user); err != nil {
				return err
			}
		}

		skipped = it.item

		return nil
	})
	if err != nil {
		return nil, err
	}

	return skipped, nil
}

// CancelWorkItem cancels a ready work item and its running child case. The case itself
// keeps running; pending successors the item was holding back are created.
func (e *Engine) CancelWorkItem(ctx context.Context, id string, user *models.User) (*models.WorkItem, error) {
	const op = "CancelWorkItem"

	var canceled *models.WorkItem

	err := e.mutate(ctx, op, itemAttrs(id, user), func(ctx context.Context, tx persistence.Tx, out *outbox) error {
		it, err := e.beginItemOperation(ctx, tx, op, access.OperationCancelItem, id, user)
		if err != nil {
			return err
		}

		if err := e.cancelWorkItem(ctx, tx, out, it.c, it.item, user, e.now()); err != nil {
			return err
		}

		if len(it.c.PendingSuccessors) > 0 {
			items, err := tx.WorkItemsByCase(ctx, it.c.ID)
			if err != nil {
				return err
			}

			exprCtx, err := e.expressionContext(ctx, tx, it.c, it.item)
			if err != nil {
				return err
			}

			if _, err := e.releaseSuccessors(ctx, tx, out, it, readyItems(items), it.c.PendingSuccessors, exprCtx, user); err != nil {
				return err
			}
		}

		canceled = it.item

		return nil
	})
	if err != nil {
		return nil, err
	}

	return canceled, nil
}
