package services

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dukex/casework/pkg/access"
	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/otelhelper"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/validation"
	"go.opentelemetry.io/otel/attribute"
)

// SaveAnswerRequest sets the answer to one question of a root document.
type SaveAnswerRequest struct {
	DocumentID string       `json:"-"             validate:"required"`
	Question   string       `json:"-"             validate:"required"`
	Value      any          `json:"value"`
	File       *models.File `json:"file,omitempty"`
	// Rows replaces the rows of a table question, one answer map per row.
	Rows []map[string]any `json:"rows,omitempty"`
}

// SaveAnswer stores an answer after checking its value constraints. Table rows become
// row documents owned by the answer. Documents of closed cases cannot change.
func (e *Engine) SaveAnswer(ctx context.Context, req SaveAnswerRequest, user *models.User) (*models.Document, error) {
	const op = "SaveAnswer"

	if err := e.checkRequest(op, req); err != nil {
		return nil, err
	}

	var saved *models.Document

	attrs := append(userAttrs(user),
		attribute.String(otelhelper.DocumentIDKey, req.DocumentID),
		attribute.String(otelhelper.QuestionKey, req.Question))

	err := e.mutate(ctx, op, attrs, func(ctx context.Context, tx persistence.Tx, _ *outbox) error {
		doc, err := tx.DocumentByID(ctx, req.DocumentID)
		if err != nil {
			return err
		}

		if doc.CaseID != "" {
			if err := tx.LockCase(ctx, doc.CaseID); err != nil {
				return err
			}

			c, err := tx.CaseByID(ctx, doc.CaseID)
			if err != nil {
				return err
			}

			if c.Status != models.CaseStatusRunning {
				return invalidOperation(op, "case %s is %s, its documents are read-only", c.ID, c.Status)
			}

			if doc, err = tx.DocumentByID(ctx, req.DocumentID); err != nil {
				return err
			}
		}

		if err := e.permissions.Check(ctx, access.Key(access.OperationSaveAnswer, doc.Form), user, access.Target{Document: doc}); err != nil {
			return err
		}

		questions, err := e.validator.Questions(doc.Form)
		if err != nil {
			return err
		}

		q, ok := questions[req.Question]
		if !ok {
			return NewValidationError(op, "unknown_question",
				"question "+req.Question+" is not part of form "+doc.Form, ErrInvalidRequest)
		}

		now := e.now()
		answer := &models.Answer{Question: q.Slug, Value: req.Value, File: req.File, ModifiedAt: now}

		if q.Type == models.QuestionTypeTable {
			rows, err := e.buildRows(doc, q, req.Rows, user, now)
			if err != nil {
				return err
			}

			answer.Value = nil
			answer.Rows = rows
		}

		issues, err := e.answerIssues(ctx, doc, q, answer, user)
		if err != nil {
			return err
		}

		if len(issues) > 0 {
			return &validation.ValidationError{Document: doc.ID, Issues: issues}
		}

		doc.SetAnswer(answer)
		doc.ModifiedAt = now

		if err := tx.SaveDocument(ctx, doc); err != nil {
			return err
		}

		saved = doc

		return nil
	})
	if err != nil {
		return nil, err
	}

	return saved, nil
}

func (e *Engine) buildRows(doc *models.Document, q *models.Question, values []map[string]any, user *models.User, now time.Time) ([]*models.Document, error) {
	if q.RowForm == nil {
		return nil, configurationError("buildRows", ErrFormNotFound, q.Slug)
	}

	rows := make([]*models.Document, 0, len(values))

	for _, rowValues := range values {
		row := &models.Document{
			ID:         newID(),
			Form:       q.RowForm.Form,
			FamilyID:   doc.FamilyID,
			CaseID:     doc.CaseID,
			Answers:    map[string]*models.Answer{},
			CreatedAt:  now,
			ModifiedAt: now,
		}

		if user != nil {
			row.CreatedByUser = user.Username
			row.CreatedByGroup = user.Group
		}

		for slug, value := range rowValues {
			row.SetAnswer(&models.Answer{Question: slug, Value: value, ModifiedAt: now})
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// answerIssues checks the answer and, for tables, the value constraints of every row.
func (e *Engine) answerIssues(ctx context.Context, doc *models.Document, q *models.Question, answer *models.Answer, user *models.User) ([]validation.Issue, error) {
	messages, err := e.validator.ValidateAnswer(ctx, doc, q, answer, user)
	if err != nil {
		return nil, err
	}

	var issues []validation.Issue
	for _, message := range messages {
		issues = append(issues, validation.Issue{Question: q.Slug, Document: doc.ID, Message: message})
	}

	for _, row := range answer.Rows {
		err := e.checkValues(ctx, row, user)

		var rowErr *validation.ValidationError
		if errors.As(err, &rowErr) {
			issues = append(issues, rowErr.Issues...)
			continue
		}

		if err != nil {
			return nil, err
		}
	}

	return issues, nil
}

func sortedAnswerSlugs(doc *models.Document) []string {
	slugs := make([]string, 0, len(doc.Answers))
	for slug := range doc.Answers {
		slugs = append(slugs, slug)
	}

	slices.Sort(slugs)

	return slugs
}
