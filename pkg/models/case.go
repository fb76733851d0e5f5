package models

import (
	"fmt"
	"time"
)

// CaseStatus represents the lifecycle state of a case.
type CaseStatus string

const (
	CaseStatusRunning   CaseStatus = "running"
	CaseStatusCompleted CaseStatus = "completed"
	CaseStatusCanceled  CaseStatus = "canceled"
)

// IsTerminal reports whether no further transition is possible.
func (s CaseStatus) IsTerminal() bool {
	return s == CaseStatusCompleted || s == CaseStatusCanceled
}

// Case is one running or finished instantiation of a workflow.
type Case struct {
	ID               string         `json:"id"`
	Workflow         string         `json:"workflow"`
	Status           CaseStatus     `json:"status"`
	DocumentID       string         `json:"document_id,omitempty"`
	ParentWorkItemID string         `json:"parent_work_item_id,omitempty"`
	FamilyID         string         `json:"family_id"` // ID of the root case of a case tree
	CreatedByUser    string         `json:"created_by_user,omitempty"`
	CreatedByGroup   string         `json:"created_by_group,omitempty"`
	ClosedByUser     string         `json:"closed_by_user,omitempty"`
	ClosedByGroup    string         `json:"closed_by_group,omitempty"`
	Meta             map[string]any `json:"meta,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	ModifiedAt       time.Time      `json:"modified_at"`
	ClosedAt         *time.Time     `json:"closed_at,omitempty"`

	// PendingSuccessors are tasks resolved as successors that wait for converging
	// branches still able to reach them.
	PendingSuccessors []string `json:"pending_successors,omitempty"`
}

// Transition moves the case into a terminal status. Terminal cases never change again.
func (c *Case) Transition(to CaseStatus, user *User, at time.Time) error {
	if c.Status.IsTerminal() {
		return fmt.Errorf("case %s is already %s", c.ID, c.Status)
	}

	if !to.IsTerminal() {
		return fmt.Errorf("case %s cannot transition to %s", c.ID, to)
	}

	c.Status = to
	c.ModifiedAt = at
	c.ClosedAt = &at

	if user != nil {
		c.ClosedByUser = user.Username
		c.ClosedByGroup = user.Group
	}

	return nil
}
