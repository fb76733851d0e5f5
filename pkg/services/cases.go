package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/casework/pkg/access"
	"github.com/dukex/casework/pkg/events"
	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/otelhelper"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/validation"
	"go.opentelemetry.io/otel/attribute"
)

// StartCaseRequest describes a new case.
type StartCaseRequest struct {
	Workflow string `json:"workflow" validate:"required"`
	// Form creates an empty case document. Ignored when Document is given.
	Form string `json:"form,omitempty"`
	// Document is a prefilled case document; its answers must satisfy their value constraints.
	Document         *models.Document `json:"document,omitempty"`
	ParentWorkItemID string           `json:"parent_work_item_id,omitempty"`
	Meta             map[string]any   `json:"meta,omitempty"`
}

// StartCase creates a running case with one ready work item per start task.
func (e *Engine) StartCase(ctx context.Context, req StartCaseRequest, user *models.User) (*models.Case, error) {
	const op = "StartCase"

	if err := e.checkRequest(op, req); err != nil {
		return nil, err
	}

	wf, ok := e.defs.Workflow(req.Workflow)
	if !ok {
		return nil, invalidOperation(op, "workflow %q is not registered", req.Workflow)
	}

	if !wf.IsPublished {
		return nil, invalidOperation(op, "workflow %q is not published", wf.Slug)
	}

	if wf.IsArchived {
		return nil, invalidOperation(op, "workflow %q is archived", wf.Slug)
	}

	if err := e.permissions.Check(ctx, access.Key(access.OperationStartCase, wf.Slug), user, access.Target{Workflow: wf}); err != nil {
		return nil, err
	}

	formSlug := req.Form
	if req.Document != nil {
		if req.Document.Form == "" {
			req.Document.Form = formSlug
		}

		if formSlug != "" && req.Document.Form != formSlug {
			return nil, invalidOperation(op, "document is bound to form %q, not %q", req.Document.Form, formSlug)
		}

		formSlug = req.Document.Form
	}

	if formSlug != "" {
		if _, ok := e.defs.Form(formSlug); !ok {
			return nil, invalidOperation(op, "form %q is not registered", formSlug)
		}

		if !wf.AllowsForm(formSlug) {
			return nil, invalidOperation(op, "workflow %q does not allow form %q", wf.Slug, formSlug)
		}
	}

	startTasks := make([]*models.Task, 0, len(wf.StartTasks))

	for _, slug := range wf.StartTasks {
		task, err := e.task(op, slug)
		if err != nil {
			return nil, err
		}

		if task.Type == models.TaskTypeCompleteWorkflowForm && formSlug == "" {
			return nil, invalidOperation(op, "start task %q requires a case document", task.Slug)
		}

		startTasks = append(startTasks, task)
	}

	var started *models.Case

	attrs := append(userAttrs(user), attribute.String(otelhelper.WorkflowKey, wf.Slug))

	err := e.mutate(ctx, op, attrs, func(ctx context.Context, tx persistence.Tx, out *outbox) error {
		now := e.now()

		c := &models.Case{
			ID:         newID(),
			Workflow:   wf.Slug,
			Status:     models.CaseStatusRunning,
			Meta:       req.Meta,
			CreatedAt:  now,
			ModifiedAt: now,
		}
		c.FamilyID = c.ID

		if user != nil {
			c.CreatedByUser = user.Username
			c.CreatedByGroup = user.Group
		}

		if req.ParentWorkItemID != "" {
			parent, parentCase, err := lockedWorkItem(ctx, tx, req.ParentWorkItemID)
			if err != nil {
				return err
			}

			if parent.Status != models.WorkItemStatusReady {
				return invalidOperation(op, "parent work item %s is %s, not ready", parent.ID, parent.Status)
			}

			if parent.ChildCaseID != "" {
				return invalidOperation(op, "parent work item %s already has child case %s", parent.ID, parent.ChildCaseID)
			}

			c.ParentWorkItemID = parent.ID
			c.FamilyID = parentCase.FamilyID

			parent.ChildCaseID = c.ID
			parent.ModifiedAt = now

			if err := tx.SaveWorkItem(ctx, parent); err != nil {
				return err
			}
		}

		if formSlug != "" {
			doc, err := e.caseDocument(ctx, tx, req.Document, formSlug, c.ID, user, now)
			if err != nil {
				return err
			}

			c.DocumentID = doc.ID
		}

		if err := tx.SaveCase(ctx, c); err != nil {
			return err
		}

		out.add(events.NewCaseCreated(c, user))

		exprCtx, err := e.expressionContext(ctx, tx, c, nil)
		if err != nil {
			return err
		}

		for _, task := range startTasks {
			if _, err := e.createWorkItems(ctx, tx, out, c, task, nil, exprCtx, user, now); err != nil {
				return err
			}
		}

		started = c

		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Case started", "case_id", started.ID, "workflow", started.Workflow)

	return started, nil
}

// caseDocument stores the supplied document, or an empty one of form, as the case document.
func (e *Engine) caseDocument(
	ctx context.Context,
	tx persistence.Tx,
	supplied *models.Document,
	form, caseID string,
	user *models.User,
	now time.Time,
) (*models.Document, error) {
	if supplied == nil {
		return e.newDocument(ctx, tx, form, caseID, user, now)
	}

	doc := *supplied
	if doc.ID == "" {
		doc.ID = newID()
	}

	doc.FamilyID = doc.ID
	doc.CaseID = caseID
	doc.CreatedAt = now
	doc.ModifiedAt = now

	if user != nil {
		doc.CreatedByUser = user.Username
		doc.CreatedByGroup = user.Group
	}

	doc.Walk(func(d *models.Document) {
		if d == &doc {
			return
		}

		if d.ID == "" {
			d.ID = newID()
		}

		d.FamilyID = doc.ID
		d.CaseID = caseID
	})

	if err := e.checkValues(ctx, &doc, user); err != nil {
		return nil, err
	}

	if err := tx.SaveDocument(ctx, &doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

// checkValues validates the value constraints of every answer in the document tree.
// Requiredness is not checked; documents may be incomplete until their work item completes.
func (e *Engine) checkValues(ctx context.Context, doc *models.Document, user *models.User) error {
	var (
		issues  []validation.Issue
		walkErr error
	)

	doc.Walk(func(d *models.Document) {
		if walkErr != nil {
			return
		}

		if d != doc {
			if _, ok := e.defs.Form(d.Form); !ok {
				issues = append(issues, validation.Issue{Document: d.ID, Message: fmt.Sprintf("Row uses unknown form %q.", d.Form)})
				return
			}
		}

		questions, err := e.validator.Questions(d.Form)
		if err != nil {
			walkErr = err
			return
		}

		for _, slug := range sortedAnswerSlugs(d) {
			q, ok := questions[slug]
			if !ok {
				issues = append(issues, validation.Issue{Question: slug, Document: d.ID, Message: "Question is not part of the document's form."})
				continue
			}

			messages, err := e.validator.ValidateAnswer(ctx, d, q, d.Answers[slug], user)
			if err != nil {
				walkErr = err
				return
			}

			for _, message := range messages {
				issues = append(issues, validation.Issue{Question: slug, Document: d.ID, Message: message})
			}
		}
	})

	if walkErr != nil {
		return walkErr
	}

	if len(issues) > 0 {
		return &validation.ValidationError{Document: doc.ID, Issues: issues}
	}

	return nil
}

// CancelCase cancels a running case, its ready work items and, recursively, running child cases.
func (e *Engine) CancelCase(ctx context.Context, id string, user *models.User) (*models.Case, error) {
	const op = "CancelCase"

	var canceled *models.Case

	attrs := append(userAttrs(user), attribute.String(otelhelper.CaseIDKey, id))

	err := e.mutate(ctx, op, attrs, func(ctx context.Context, tx persistence.Tx, out *outbox) error {
		if err := tx.LockCase(ctx, id); err != nil {
			return err
		}

		c, err := tx.CaseByID(ctx, id)
		if err != nil {
			return err
		}

		if c.Status != models.CaseStatusRunning {
			return invalidOperation(op, "case %s is %s, not running", c.ID, c.Status)
		}

		wf, err := e.workflow(op, c.Workflow)
		if err != nil {
			return err
		}

		if err := e.permissions.Check(ctx, access.Key(access.OperationCancelCase, wf.Slug), user, access.Target{Workflow: wf, Case: c}); err != nil {
			return err
		}

		if err := e.cancelCaseTree(ctx, tx, out, c, user, e.now()); err != nil {
			return err
		}

		canceled = c

		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Case canceled", "case_id", canceled.ID)

	return canceled, nil
}

// cancelCaseTree cancels a locked running case. Child cases are locked after their parent.
func (e *Engine) cancelCaseTree(ctx context.Context, tx persistence.Tx, out *outbox, c *models.Case, user *models.User, now time.Time) error {
	items, err := tx.WorkItemsByCase(ctx, c.ID)
	if err != nil {
		return err
	}

	for _, item := range readyItems(items) {
		if err := e.cancelWorkItem(ctx, tx, out, c, item, user, now); err != nil {
			return err
		}
	}

	if err := c.Transition(models.CaseStatusCanceled, user, now); err != nil {
		return err
	}

	if err := tx.SaveCase(ctx, c); err != nil {
		return err
	}

	out.add(events.NewCaseClosed(c, user))

	return nil
}

// cancelWorkItem cancels a ready item of a locked case together with its running child case.
func (e *Engine) cancelWorkItem(ctx context.Context, tx persistence.Tx, out *outbox, c *models.Case, item *models.WorkItem, user *models.User, now time.Time) error {
	if item.ChildCaseID != "" {
		if err := tx.LockCase(ctx, item.ChildCaseID); err != nil {
			return err
		}

		child, err := tx.CaseByID(ctx, item.ChildCaseID)
		if err != nil {
			return err
		}

		if child.Status == models.CaseStatusRunning {
			if err := e.cancelCaseTree(ctx, tx, out, child, user, now); err != nil {
				return err
			}
		}
	}

	if err := item.Transition(models.WorkItemStatusCanceled, user, now); err != nil {
		return err
	}

	if err := tx.SaveWorkItem(ctx, item); err != nil {
		return err
	}

	out.add(events.NewWorkItemClosed(c, item, user))

	return nil
}
