// Package events defines the lifecycle notifications emitted for cases and work items.
package events

import (
	"errors"
	"slices"
	"time"

	"github.com/dukex/casework/pkg/models"
	"github.com/google/uuid"
)

type EventType string

const Topic = "casework.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Case lifecycle events.
	CaseCreatedEvent   EventType = "case.created"
	CaseCompletedEvent EventType = "case.completed"
	CaseCanceledEvent  EventType = "case.canceled"

	// Work item lifecycle events.
	WorkItemCreatedEvent   EventType = "work_item.created"
	WorkItemCompletedEvent EventType = "work_item.completed"
	WorkItemSkippedEvent   EventType = "work_item.skipped"
	WorkItemCanceledEvent  EventType = "work_item.canceled"
)

var ErrMissingCaseID = errors.New("case_id is required")

// Event is implemented by every lifecycle event.
type Event interface {
	GetType() EventType
	GetCaseID() string
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	CaseID    string         `json:"case_id"`
	Workflow  string         `json:"workflow"`
	User      string         `json:"user,omitempty"`
	Group     string         `json:"group,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (b BaseEvent) GetCaseID() string {
	return b.CaseID
}

// Validate checks the fields every consumer relies on.
func (b BaseEvent) Validate() error {
	if b.CaseID == "" {
		return ErrMissingCaseID
	}

	return nil
}

type CaseCreated struct {
	BaseEvent

	FamilyID         string `json:"family_id"`
	DocumentID       string `json:"document_id,omitempty"`
	ParentWorkItemID string `json:"parent_work_item_id,omitempty"`
}

func (e CaseCreated) GetType() EventType {
	return CaseCreatedEvent
}

type CaseCompleted struct {
	BaseEvent
}

func (e CaseCompleted) GetType() EventType {
	return CaseCompletedEvent
}

type CaseCanceled struct {
	BaseEvent
}

func (e CaseCanceled) GetType() EventType {
	return CaseCanceledEvent
}

type WorkItemCreated struct {
	BaseEvent

	WorkItemID         string     `json:"work_item_id"`
	Task               string     `json:"task"`
	AddressedGroups    []string   `json:"addressed_groups"`
	ControllingGroups  []string   `json:"controlling_groups"`
	PreviousWorkItemID string     `json:"previous_work_item_id,omitempty"`
	Deadline           *time.Time `json:"deadline,omitempty"`
}

func (e WorkItemCreated) GetType() EventType {
	return WorkItemCreatedEvent
}

type WorkItemCompleted struct {
	BaseEvent

	WorkItemID string `json:"work_item_id"`
	Task       string `json:"task"`
}

func (e WorkItemCompleted) GetType() EventType {
	return WorkItemCompletedEvent
}

type WorkItemSkipped struct {
	BaseEvent

	WorkItemID string `json:"work_item_id"`
	Task       string `json:"task"`
}

func (e WorkItemSkipped) GetType() EventType {
	return WorkItemSkippedEvent
}

type WorkItemCanceled struct {
	BaseEvent

	WorkItemID string `json:"work_item_id"`
	Task       string `json:"task"`
}

func (e WorkItemCanceled) GetType() EventType {
	return WorkItemCanceledEvent
}

func NewBaseEvent(eventType EventType, c *models.Case, user *models.User) BaseEvent {
	base := BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		CaseID:    c.ID,
		Workflow:  c.Workflow,
		Metadata:  make(map[string]any),
	}

	if user != nil {
		base.User = user.Username
		base.Group = user.Group
	}

	return base
}

func NewCaseCreated(c *models.Case, user *models.User) *CaseCreated {
	return &CaseCreated{
		BaseEvent:        NewBaseEvent(CaseCreatedEvent, c, user),
		FamilyID:         c.FamilyID,
		DocumentID:       c.DocumentID,
		ParentWorkItemID: c.ParentWorkItemID,
	}
}

// NewCaseClosed builds the completed or canceled event matching the case status.
func NewCaseClosed(c *models.Case, user *models.User) Event {
	if c.Status == models.CaseStatusCanceled {
		return &CaseCanceled{BaseEvent: NewBaseEvent(CaseCanceledEvent, c, user)}
	}

	return &CaseCompleted{BaseEvent: NewBaseEvent(CaseCompletedEvent, c, user)}
}

func NewWorkItemCreated(c *models.Case, w *models.WorkItem, user *models.User) *WorkItemCreated {
	return &WorkItemCreated{
		BaseEvent:          NewBaseEvent(WorkItemCreatedEvent, c, user),
		WorkItemID:         w.ID,
		Task:               w.Task,
		AddressedGroups:    slices.Clone(w.AddressedGroups),
		ControllingGroups:  slices.Clone(w.ControllingGroups),
		PreviousWorkItemID: w.PreviousWorkItemID,
		Deadline:           w.Deadline,
	}
}

// NewWorkItemClosed builds the event matching the terminal status of w.
func NewWorkItemClosed(c *models.Case, w *models.WorkItem, user *models.User) Event {
	switch w.Status {
	case models.WorkItemStatusSkipped:
		return &WorkItemSkipped{BaseEvent: NewBaseEvent(WorkItemSkippedEvent, c, user), WorkItemID: w.ID, Task: w.Task}
	case models.WorkItemStatusCanceled:
		return &WorkItemCanceled{BaseEvent: NewBaseEvent(WorkItemCanceledEvent, c, user), WorkItemID: w.ID, Task: w.Task}
	default:
		return &WorkItemCompleted{BaseEvent: NewBaseEvent(WorkItemCompletedEvent, c, user), WorkItemID: w.ID, Task: w.Task}
	}
}

// New returns an empty event of the given type for decoding, or nil for unknown types.
func New(eventType EventType) Event {
	switch eventType {
	case CaseCreatedEvent:
		return &CaseCreated{}
	case CaseCompletedEvent:
		return &CaseCompleted{}
	case CaseCanceledEvent:
		return &CaseCanceled{}
	case WorkItemCreatedEvent:
		return &WorkItemCreated{}
	case WorkItemCompletedEvent:
		return &WorkItemCompleted{}
	case WorkItemSkippedEvent:
		return &WorkItemSkipped{}
	case WorkItemCanceledEvent:
		return &WorkItemCanceled{}
	}

	return nil
}
