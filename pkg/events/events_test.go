package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/casework/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCase() *models.Case {
	return &models.Case{ID: "case-1", Workflow: "permit", FamilyID: "case-1", DocumentID: "doc-1", Status: models.CaseStatusRunning}
}

func TestWorkItemCreated_JSON(t *testing.T) {
	deadline := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	item := &models.WorkItem{
		ID: "item-1", Task: "review", AddressedGroups: []string{"clerks"}, ControllingGroups: []string{},
		PreviousWorkItemID: "item-0", Deadline: &deadline,
	}

	original := NewWorkItemCreated(testCase(), item, &models.User{Username: "ada", Group: "clerks"})

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"work_item_id":"item-1"`)
	assert.Contains(t, string(jsonData), `"case_id":"case-1"`)
	assert.Contains(t, string(jsonData), `"user":"ada"`)

	decoded := New(WorkItemCreatedEvent)
	require.NotNil(t, decoded)
	require.NoError(t, json.Unmarshal(jsonData, decoded))

	created, ok := decoded.(*WorkItemCreated)
	require.True(t, ok)
	assert.Equal(t, []string{"clerks"}, created.AddressedGroups)
	assert.Equal(t, "item-0", created.PreviousWorkItemID)
	assert.True(t, created.Deadline.Equal(deadline))
	assert.Equal(t, "case-1", created.GetCaseID())
}

func TestClosedEventsFollowStatus(t *testing.T) {
	c := testCase()

	tests := []struct {
		status models.WorkItemStatus
		want   EventType
	}{
		{models.WorkItemStatusCompleted, WorkItemCompletedEvent},
		{models.WorkItemStatusSkipped, WorkItemSkippedEvent},
		{models.WorkItemStatusCanceled, WorkItemCanceledEvent},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			event := NewWorkItemClosed(c, &models.WorkItem{ID: "w", Task: "t", Status: tt.status}, nil)
			assert.Equal(t, tt.want, event.GetType())
		})
	}

	assert.Equal(t, CaseCompletedEvent, NewCaseClosed(c, nil).GetType())

	c.Status = models.CaseStatusCanceled
	assert.Equal(t, CaseCanceledEvent, NewCaseClosed(c, nil).GetType())
}

func TestBaseEvent_Validate(t *testing.T) {
	assert.NoError(t, NewCaseCreated(testCase(), nil).Validate())
	assert.ErrorIs(t, BaseEvent{}.Validate(), ErrMissingCaseID)
	assert.Nil(t, New("unknown"))
}
