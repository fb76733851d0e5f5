package workflow_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/testutil"
	"github.com/dukex/casework/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPublishingService(defs *testutil.Definitions) *workflow.PublishingService {
	return workflow.NewPublishingService(defs, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishingService_Publish(t *testing.T) {
	t.Parallel()

	defs := testutil.NewDefinitions().AddTasks(testutil.CreateTestTask("A"), testutil.CreateTestTask("B"))
	service := newPublishingService(defs)

	draft := testutil.CreateTestWorkflow("wf", []string{"A"},
		testutil.WithFlow("A", "'B'|task"),
		testutil.WithAllowForms("main"))
	draft.IsPublished = false
	draft.PublishedAt = nil
	draft.Meta = map[string]any{"owner": "permits"}

	published, err := service.Publish(draft)
	require.NoError(t, err)

	assert.True(t, published.IsPublished)
	assert.NotNil(t, published.PublishedAt)
	assert.Equal(t, []string{"A"}, published.StartTasks)
	assert.Equal(t, draft.Flows, published.Flows)

	// the published copy does not share state with the draft
	draft.StartTasks[0] = "B"
	draft.Meta["owner"] = "someone else"

	assert.Equal(t, "A", published.StartTasks[0])
	assert.Equal(t, "permits", published.Meta["owner"])
	assert.False(t, draft.IsPublished)
}

func TestPublishingService_MissingTask(t *testing.T) {
	t.Parallel()

	defs := testutil.NewDefinitions().AddTasks(testutil.CreateTestTask("A"))
	service := newPublishingService(defs)

	wf := testutil.CreateTestWorkflow("wf", []string{"A"}, testutil.WithFlow("A", "'missing-task'|task"))

	_, err := service.Publish(wf)
	require.Error(t, err)
	assert.True(t, workflow.IsGraphConfigurationError(err))
	assert.ErrorIs(t, err, workflow.ErrUnknownTask)
	assert.Contains(t, err.Error(), "missing-task")
}

func TestPublishingService_Rejects(t *testing.T) {
	t.Parallel()

	archived := testutil.CreateTestTask("old", func(task *models.Task) { task.IsArchived = true })
	defs := testutil.NewDefinitions().AddTasks(testutil.CreateTestTask("A"), archived)
	service := newPublishingService(defs)

	t.Run("no start tasks", func(t *testing.T) {
		_, err := service.Publish(testutil.CreateTestWorkflow("wf", nil))
		assert.ErrorIs(t, err, workflow.ErrNoStartTasks)
	})

	t.Run("archived start task", func(t *testing.T) {
		_, err := service.Publish(testutil.CreateTestWorkflow("wf", []string{"old"}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "archived")
	})
}
