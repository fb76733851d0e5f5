// Package models defines the core domain models for case and work item processing.
package models

import "time"

// Workflow is a named process definition: its start tasks and the flows between tasks.
type Workflow struct {
	Slug        string         `json:"slug"                  validate:"required,min=1"`
	Name        string         `json:"name"                  validate:"required"`
	Description string         `json:"description,omitempty"`
	StartTasks  []string       `json:"start_tasks"           validate:"required,min=1,dive,required"`
	Flows       []Flow         `json:"flows"                 validate:"dive"`
	AllowForms  []string       `json:"allow_forms,omitempty"` // Forms a case document may be bound to, empty means any
	IsPublished bool           `json:"is_published"`
	IsArchived  bool           `json:"is_archived"`
	Meta        map[string]any `json:"meta,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
}

// Flow connects a task to the JEXL expression that yields its successor task(s).
type Flow struct {
	Task string `json:"task" validate:"required"`
	Next string `json:"next" validate:"required"`
}

// FlowsFrom returns the flows leaving the given task, in definition order.
func (w *Workflow) FlowsFrom(task string) []Flow {
	var flows []Flow

	for _, idx := range w.flowIndex()[task] {
		flows = append(flows, w.Flows[idx])
	}

	return flows
}

// flowIndex builds the adjacency list of flow positions keyed by source task.
func (w *Workflow) flowIndex() map[string][]int {
	index := make(map[string][]int, len(w.Flows))
	for i, flow := range w.Flows {
		index[flow.Task] = append(index[flow.Task], i)
	}

	return index
}

// IsStartTask reports whether the task is one of the workflow's start tasks.
func (w *Workflow) IsStartTask(task string) bool {
	for _, slug := range w.StartTasks {
		if slug == task {
			return true
		}
	}

	return false
}

// AllowsForm reports whether a case of this workflow may use a document of the given form.
func (w *Workflow) AllowsForm(form string) bool {
	if len(w.AllowForms) == 0 {
		return true
	}

	for _, slug := range w.AllowForms {
		if slug == form {
			return true
		}
	}

	return false
}
