// Package persistence provides the storage abstraction for cases, work items and documents.
package persistence

import (
	"context"

	"github.com/dukex/casework/pkg/models"
)

// CaseFilter narrows case queries. Zero fields match everything.
type CaseFilter struct {
	Workflow         string
	Status           models.CaseStatus
	FamilyID         string
	ParentWorkItemID string
}

// Matches reports whether c satisfies the filter.
func (f CaseFilter) Matches(c *models.Case) bool {
	return (f.Workflow == "" || c.Workflow == f.Workflow) &&
		(f.Status == "" || c.Status == f.Status) &&
		(f.FamilyID == "" || c.FamilyID == f.FamilyID) &&
		(f.ParentWorkItemID == "" || c.ParentWorkItemID == f.ParentWorkItemID)
}

// Reader offers point lookups and per-case queries.
type Reader interface {
	CaseByID(ctx context.Context, id string) (*models.Case, error)
	Cases(ctx context.Context, filter CaseFilter) ([]*models.Case, error)
	WorkItemByID(ctx context.Context, id string) (*models.WorkItem, error)
	// WorkItemsByCase returns the work items of a case ordered by creation.
	WorkItemsByCase(ctx context.Context, caseID string) ([]*models.WorkItem, error)
	// DocumentByID loads a root document including its row documents.
	DocumentByID(ctx context.Context, id string) (*models.Document, error)
}

// Tx is a read-modify-write unit of work.
type Tx interface {
	Reader

	// LockCase serializes transactions touching the case until the transaction ends.
	LockCase(ctx context.Context, caseID string) error
	SaveCase(ctx context.Context, c *models.Case) error
	SaveWorkItem(ctx context.Context, w *models.WorkItem) error
	// SaveDocument stores a root document together with its row documents.
	SaveDocument(ctx context.Context, d *models.Document) error
}

type Persistence interface {
	Reader

	// Transaction runs fn atomically. Writes become visible only if fn returns nil.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
