package services

import (
	"context"

	"github.com/dukex/casework/pkg/access"
	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/validation"
)

// Entities hidden from a user are reported as missing.

func caseKey(c *models.Case) string         { return access.Key(access.EntityCase, c.Workflow) }
func workItemKey(w *models.WorkItem) string { return access.Key(access.EntityWorkItem, w.Task) }
func documentKey(d *models.Document) string { return access.Key(access.EntityDocument, d.Form) }

func visible[T any](ctx context.Context, v *access.Visibilities, user *models.User, entity T, key func(T) string) bool {
	return len(access.Filter(ctx, v, user, []T{entity}, key)) == 1
}

func (e *Engine) Case(ctx context.Context, id string, user *models.User) (*models.Case, error) {
	c, err := e.store.CaseByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !visible(ctx, e.visibility, user, c, caseKey) {
		return nil, persistence.NewEntityError("Case", "case", id, persistence.ErrCaseNotFound)
	}

	return c, nil
}

func (e *Engine) Cases(ctx context.Context, filter persistence.CaseFilter, user *models.User) ([]*models.Case, error) {
	cases, err := e.store.Cases(ctx, filter)
	if err != nil {
		return nil, err
	}

	return access.Filter(ctx, e.visibility, user, cases, caseKey), nil
}

func (e *Engine) WorkItem(ctx context.Context, id string, user *models.User) (*models.WorkItem, error) {
	item, err := e.store.WorkItemByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !visible(ctx, e.visibility, user, item, workItemKey) {
		return nil, persistence.NewEntityError("WorkItem", "work_item", id, persistence.ErrWorkItemNotFound)
	}

	return item, nil
}

// WorkItems lists the visible work items of a visible case in creation order.
func (e *Engine) WorkItems(ctx context.Context, caseID string, user *models.User) ([]*models.WorkItem, error) {
	if _, err := e.Case(ctx, caseID, user); err != nil {
		return nil, err
	}

	items, err := e.store.WorkItemsByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	return access.Filter(ctx, e.visibility, user, items, workItemKey), nil
}

func (e *Engine) Document(ctx context.Context, id string, user *models.User) (*models.Document, error) {
	doc, err := e.store.DocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !visible(ctx, e.visibility, user, doc, documentKey) {
		return nil, persistence.NewEntityError("Document", "document", id, persistence.ErrDocumentNotFound)
	}

	return doc, nil
}

// DocumentValidity computes the validity of a visible document without changing it.
func (e *Engine) DocumentValidity(ctx context.Context, id string, user *models.User) (*validation.Result, error) {
	doc, err := e.Document(ctx, id, user)
	if err != nil {
		return nil, err
	}

	return e.validator.ComputeValidity(ctx, doc, user)
}
