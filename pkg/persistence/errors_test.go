package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("entity errors unwrap to sentinels", func(t *testing.T) {
		caseErr := persistence.NewEntityError("CaseByID", "case", "case-123", persistence.ErrCaseNotFound)
		itemErr := persistence.NewEntityError("WorkItemByID", "work_item", "item-456", persistence.ErrWorkItemNotFound)

		assert.True(t, errors.Is(caseErr, persistence.ErrCaseNotFound))
		assert.True(t, errors.Is(itemErr, persistence.ErrWorkItemNotFound))
		assert.False(t, errors.Is(itemErr, persistence.ErrCaseNotFound))
		assert.True(t, persistence.IsNotFound(caseErr))
		assert.True(t, persistence.IsNotFound(itemErr))
		assert.False(t, persistence.IsNotFound(errors.New("boom")))
	})

	t.Run("entity error contains context", func(t *testing.T) {
		err := persistence.NewEntityError("DocumentByID", "document", "doc-1", persistence.ErrDocumentNotFound)

		assert.Contains(t, err.Error(), "DocumentByID")
		assert.Contains(t, err.Error(), "doc-1")
		assert.Contains(t, err.Error(), "document not found")
	})
}

func TestCaseFilter_Matches(t *testing.T) {
	t.Parallel()

	c := &models.Case{ID: "c1", Workflow: "wf", Status: models.CaseStatusRunning, FamilyID: "c1"}

	assert.True(t, persistence.CaseFilter{}.Matches(c))
	assert.True(t, persistence.CaseFilter{Workflow: "wf", Status: models.CaseStatusRunning}.Matches(c))
	assert.False(t, persistence.CaseFilter{Status: models.CaseStatusCompleted}.Matches(c))
	assert.False(t, persistence.CaseFilter{ParentWorkItemID: "w1"}.Matches(c))
}
