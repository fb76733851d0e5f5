package workflow

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/dukex/casework/pkg/models"
)

var ErrNoStartTasks = errors.New("cannot publish workflow with no start tasks")

// PublishingService turns workflow definitions into immutable published versions.
type PublishingService struct {
	tasks  TaskLookup
	logger *slog.Logger
}

// NewPublishingService creates a publishing service validating against tasks.
func NewPublishingService(tasks TaskLookup, logger *slog.Logger) *PublishingService {
	return &PublishingService{tasks: tasks, logger: logger}
}

// Publish validates the workflow graph and returns a published copy of it.
func (s *PublishingService) Publish(wf *models.Workflow) (*models.Workflow, error) {
	if err := s.validateForPublishing(wf); err != nil {
		return nil, fmt.Errorf("workflow %q validation failed: %w", wf.Slug, err)
	}

	published := createPublishedCopy(wf)

	s.logger.Info("Published workflow",
		"workflow", wf.Slug,
		"start_tasks", len(wf.StartTasks),
		"flows", len(wf.Flows))

	return published, nil
}

func (s *PublishingService) validateForPublishing(wf *models.Workflow) error {
	if len(wf.StartTasks) == 0 {
		return ErrNoStartTasks
	}

	for _, slug := range wf.StartTasks {
		if task, ok := s.tasks.Task(slug); ok && task.IsArchived {
			return fmt.Errorf("start task %q is archived", slug)
		}
	}

	return ValidateFlows(wf, s.tasks)
}

// createPublishedCopy creates an immutable copy of a workflow for execution.
func createPublishedCopy(original *models.Workflow) *models.Workflow {
	now := time.Now()

	return &models.Workflow{
		Slug:        original.Slug,
		Name:        original.Name,
		Description: original.Description,
		StartTasks:  slices.Clone(original.StartTasks),
		Flows:       slices.Clone(original.Flows),
		AllowForms:  slices.Clone(original.AllowForms),
		IsPublished: true,
		IsArchived:  original.IsArchived,
		Meta:        maps.Clone(original.Meta),
		CreatedAt:   original.CreatedAt,
		PublishedAt: &now,
	}
}
