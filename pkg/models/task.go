package models

import "time"

// TaskType determines what completing a work item of the task requires.
type TaskType string

const (
	TaskTypeSimple               TaskType = "simple"                 // No dedicated form
	TaskTypeCompleteWorkflowForm TaskType = "complete_workflow_form" // Completes the case document
	TaskTypeCompleteTaskForm     TaskType = "complete_task_form"     // Completes a per work item document
)

// Task is a unit of work definition referenced by workflows.
type Task struct {
	Slug               string         `json:"slug"                     validate:"required,min=1"`
	Name               string         `json:"name"                     validate:"required"`
	Description        string         `json:"description,omitempty"`
	Type               TaskType       `json:"type"                     validate:"required,oneof=simple complete_workflow_form complete_task_form"`
	Form               string         `json:"form,omitempty"           validate:"required_if=Type complete_task_form"`
	IsMultipleInstance bool           `json:"is_multiple_instance"`
	AddressGroups      string         `json:"address_groups,omitempty"` // JEXL yielding a list of group names
	ControlGroups      string         `json:"control_groups,omitempty"` // JEXL yielding a list of group names
	LeadTime           int            `json:"lead_time,omitempty"       validate:"min=0"` // Seconds until a work item is due
	IsArchived         bool           `json:"is_archived"`
	Meta               map[string]any `json:"meta,omitempty"`
}

// Deadline returns the due time of a work item created at the given time, if the task has a lead time.
func (t *Task) Deadline(createdAt time.Time) *time.Time {
	if t.LeadTime <= 0 {
		return nil
	}

	deadline := createdAt.Add(time.Duration(t.LeadTime) * time.Second)

	return &deadline
}
