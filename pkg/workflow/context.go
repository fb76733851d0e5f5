package workflow

import (
	"fmt"

	"github.com/dukex/casework/pkg/jexl"
	"github.com/dukex/casework/pkg/models"
)

// Info is what flow and group expressions know about the surrounding case.
type Info struct {
	Case         *models.Case
	WorkItem     *models.WorkItem
	PrevWorkItem *models.WorkItem
	Form         *models.Form // Form of the case document, if any
}

// NewContext builds the evaluation context for flow `next` and task group expressions.
func NewContext(info Info) *jexl.Context {
	var (
		formSlug string
		formMeta map[string]any
	)

	if info.Form != nil {
		formSlug = info.Form.Slug
		formMeta = info.Form.Meta
	}

	root := map[string]any{"form": nullable(formSlug), "formMeta": orEmpty(formMeta)}

	values := map[string]any{
		"form": nullable(formSlug),
		"info": map[string]any{
			"form":           nullable(formSlug),
			"formMeta":       orEmpty(formMeta),
			"parent":         nil,
			"root":           root,
			"case":           caseValues(info.Case),
			"work_item":      workItemValues(info.WorkItem),
			"prev_work_item": workItemValues(info.PrevWorkItem),
		},
	}

	return jexl.NewContext(values).
		WithTransform("task", taskTransform).
		WithTransform("tasks", tasksTransform).
		WithTransform("groups", groupsTransform)
}

func caseValues(c *models.Case) any {
	if c == nil {
		return nil
	}

	return map[string]any{
		"id":               c.ID,
		"workflow":         c.Workflow,
		"created_by_user":  nullable(c.CreatedByUser),
		"created_by_group": nullable(c.CreatedByGroup),
		"meta":             orEmpty(c.Meta),
	}
}

func workItemValues(w *models.WorkItem) any {
	if w == nil {
		return nil
	}

	return map[string]any{
		"id":                 w.ID,
		"task":               w.Task,
		"created_by_user":    nullable(w.CreatedByUser),
		"created_by_group":   nullable(w.CreatedByGroup),
		"addressed_groups":   stringsToList(w.AddressedGroups),
		"controlling_groups": stringsToList(w.ControllingGroups),
		"meta":               orEmpty(w.Meta),
	}
}

func taskTransform(subject any, _ []any) (any, error) {
	slug, ok := subject.(string)
	if !ok {
		return nil, fmt.Errorf("task expects a task slug, got %T", subject)
	}

	return slug, nil
}

func tasksTransform(subject any, _ []any) (any, error) {
	slugs := make([]any, 0)

	for _, item := range jexl.ToList(subject) {
		slug, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("tasks expects a list of task slugs, got element %T", item)
		}

		slugs = append(slugs, slug)
	}

	return slugs, nil
}

func groupsTransform(subject any, _ []any) (any, error) {
	groups := make([]any, 0)

	for _, item := range jexl.ToList(subject) {
		if item == nil {
			continue
		}

		groups = append(groups, fmt.Sprint(item))
	}

	return groups, nil
}

// GroupList converts the result of an address or control group expression.
func GroupList(result any) ([]string, error) {
	if result == nil {
		return []string{}, nil
	}

	groups := []string{}

	for _, item := range jexl.ToList(result) {
		if item == nil {
			continue
		}

		group, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("group expressions must yield strings, got %T", item)
		}

		groups = append(groups, group)
	}

	return groups, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	return m
}

func stringsToList(values []string) []any {
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = v
	}

	return list
}
