package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
)

// repository reads and writes entities through either the pool or an open transaction.
// Each row keeps its indexed columns next to the full entity in the data column.
type repository struct {
	q      queryer
	logger *slog.Logger
}

func (r *repository) CaseByID(ctx context.Context, id string) (*models.Case, error) {
	var c models.Case

	err := r.loadOne(ctx, `SELECT data FROM cases WHERE id = $1`, id, &c)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("CaseByID", "case", id, persistence.ErrCaseNotFound)
	}

	if err != nil {
		return nil, persistence.NewEntityError("CaseByID", "case", id, err)
	}

	return &c, nil
}

func (r *repository) Cases(ctx context.Context, filter persistence.CaseFilter) ([]*models.Case, error) {
	var (
		conditions []string
		args       []any
	)

	add := func(column, value string) {
		if value == "" {
			return
		}

		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	add("workflow", filter.Workflow)
	add("status", string(filter.Status))
	add("family_id", filter.FamilyID)
	add("parent_work_item_id", filter.ParentWorkItemID)

	query := `SELECT data FROM cases`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}

	query += ` ORDER BY created_at, id`

	cases := make([]*models.Case, 0)

	err := r.loadMany(ctx, query, args, func(data []byte) error {
		var c models.Case
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}

		cases = append(cases, &c)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}

	return cases, nil
}

func (r *repository) WorkItemByID(ctx context.Context, id string) (*models.WorkItem, error) {
	var w models.WorkItem

	err := r.loadOne(ctx, `SELECT data FROM work_items WHERE id = $1`, id, &w)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("WorkItemByID", "work_item", id, persistence.ErrWorkItemNotFound)
	}

	if err != nil {
		return nil, persistence.NewEntityError("WorkItemByID", "work_item", id, err)
	}

	return &w, nil
}

func (r *repository) WorkItemsByCase(ctx context.Context, caseID string) ([]*models.WorkItem, error) {
	items := make([]*models.WorkItem, 0)

	query := `SELECT data FROM work_items WHERE case_id = $1 ORDER BY created_at, id`

	err := r.loadMany(ctx, query, []any{caseID}, func(data []byte) error {
		var w models.WorkItem
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}

		items = append(items, &w)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query work items of case %s: %w", caseID, err)
	}

	return items, nil
}

func (r *repository) DocumentByID(ctx context.Context, id string) (*models.Document, error) {
	var d models.Document

	err := r.loadOne(ctx, `SELECT data FROM documents WHERE id = $1`, id, &d)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("DocumentByID", "document", id, persistence.ErrDocumentNotFound)
	}

	if err != nil {
		return nil, persistence.NewEntityError("DocumentByID", "document", id, err)
	}

	return &d, nil
}

func (r *repository) SaveCase(ctx context.Context, c *models.Case) error {
	data, err := json.Marshal(c)
	if err != nil {
		return persistence.NewEntityError("SaveCase", "case", c.ID, err)
	}

	query := `
		INSERT INTO cases (id, workflow, status, family_id, parent_work_item_id, document_id, data, created_at, modified_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			workflow = EXCLUDED.workflow,
			status = EXCLUDED.status,
			family_id = EXCLUDED.family_id,
			parent_work_item_id = EXCLUDED.parent_work_item_id,
			document_id = EXCLUDED.document_id,
			data = EXCLUDED.data,
			modified_at = EXCLUDED.modified_at
	`

	_, err = r.q.ExecContext(ctx, query,
		c.ID, c.Workflow, c.Status, c.FamilyID, c.ParentWorkItemID, c.DocumentID, data, c.CreatedAt, c.ModifiedAt)
	if err != nil {
		return persistence.NewEntityError("SaveCase", "case", c.ID, err)
	}

	return nil
}

func (r *repository) SaveWorkItem(ctx context.Context, w *models.WorkItem) error {
	data, err := json.Marshal(w)
	if err != nil {
		return persistence.NewEntityError("SaveWorkItem", "work_item", w.ID, err)
	}

	query := `
		INSERT INTO work_items (id, case_id, task, status, data, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			data = EXCLUDED.data,
			modified_at = EXCLUDED.modified_at
	`

	_, err = r.q.ExecContext(ctx, query, w.ID, w.CaseID, w.Task, w.Status, data, w.CreatedAt, w.ModifiedAt)
	if err != nil {
		return persistence.NewEntityError("SaveWorkItem", "work_item", w.ID, err)
	}

	return nil
}

func (r *repository) SaveDocument(ctx context.Context, d *models.Document) error {
	data, err := json.Marshal(d)
	if err != nil {
		return persistence.NewEntityError("SaveDocument", "document", d.ID, err)
	}

	query := `
		INSERT INTO documents (id, form, family_id, data, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			form = EXCLUDED.form,
			data = EXCLUDED.data,
			modified_at = EXCLUDED.modified_at
	`

	_, err = r.q.ExecContext(ctx, query, d.ID, d.Form, d.FamilyID, data, d.CreatedAt, d.ModifiedAt)
	if err != nil {
		return persistence.NewEntityError("SaveDocument", "document", d.ID, err)
	}

	return nil
}

func (r *repository) loadOne(ctx context.Context, query, id string, v any) error {
	var data []byte

	if err := r.q.QueryRowContext(ctx, query, id).Scan(&data); err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal row: %w", err)
	}

	return nil
}

func (r *repository) loadMany(ctx context.Context, query string, args []any, fn func(data []byte) error) error {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return err
		}

		if err := fn(data); err != nil {
			return fmt.Errorf("failed to unmarshal row: %w", err)
		}
	}

	return rows.Err()
}
