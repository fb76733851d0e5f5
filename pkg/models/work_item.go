package models

import (
	"fmt"
	"time"
)

// WorkItemStatus represents the lifecycle state of a work item.
type WorkItemStatus string

const (
	WorkItemStatusReady     WorkItemStatus = "ready"
	WorkItemStatusCompleted WorkItemStatus = "completed"
	WorkItemStatusSkipped   WorkItemStatus = "skipped"
	WorkItemStatusCanceled  WorkItemStatus = "canceled"
)

// IsTerminal reports whether no further transition is possible.
func (s WorkItemStatus) IsTerminal() bool {
	return s != WorkItemStatusReady
}

// WorkItem is one instance of a task within a case.
type WorkItem struct {
	ID                 string         `json:"id"`
	Task               string         `json:"task"`
	CaseID             string         `json:"case_id"`
	Status             WorkItemStatus `json:"status"`
	DocumentID         string         `json:"document_id,omitempty"`
	AddressedGroups    []string       `json:"addressed_groups"`
	ControllingGroups  []string       `json:"controlling_groups"`
	PreviousWorkItemID string         `json:"previous_work_item_id,omitempty"`
	ChildCaseID        string         `json:"child_case_id,omitempty"`
	Deadline           *time.Time     `json:"deadline,omitempty"`
	CreatedByUser      string         `json:"created_by_user,omitempty"`
	CreatedByGroup     string         `json:"created_by_group,omitempty"`
	ClosedByUser       string         `json:"closed_by_user,omitempty"`
	ClosedByGroup      string         `json:"closed_by_group,omitempty"`
	Meta               map[string]any `json:"meta,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	ModifiedAt         time.Time      `json:"modified_at"`
	ClosedAt           *time.Time     `json:"closed_at,omitempty"`
}

// Transition moves a ready work item into a terminal status.
func (w *WorkItem) Transition(to WorkItemStatus, user *User, at time.Time) error {
	if w.Status != WorkItemStatusReady {
		return fmt.Errorf("work item %s is %s, not ready", w.ID, w.Status)
	}

	if !to.IsTerminal() {
		return fmt.Errorf("work item %s cannot transition to %s", w.ID, to)
	}

	w.Status = to
	w.ModifiedAt = at
	w.ClosedAt = &at

	if user != nil {
		w.ClosedByUser = user.Username
		w.ClosedByGroup = user.Group
	}

	return nil
}
