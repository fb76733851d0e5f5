// Package access holds the permission and visibility hooks consulted by the engine.
//
// Hooks are registered under dotted keys such as "work_item.complete.review". A lookup
// walks from the full key towards its shortest prefix and the first registered hook
// wins; without a match the table's default applies.
package access

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/casework/pkg/models"
)

var ErrPermissionDenied = errors.New("permission denied")

// Operation keys checked by the engine. Task or workflow slugs are appended as a last segment.
const (
	OperationStartCase    = "case.start"
	OperationCancelCase   = "case.cancel"
	OperationCompleteItem = "work_item.complete"
	OperationSkipItem     = "work_item.skip"
	OperationCancelItem   = "work_item.cancel"
	OperationSaveAnswer   = "document.save_answer"
)

// Entity kinds used as visibility keys. The workflow or task slug may follow.
const (
	EntityCase     = "case"
	EntityWorkItem = "work_item"
	EntityDocument = "document"
)

const keySeparator = "."

// Table resolves hooks by most specific dotted prefix.
type Table[F any] struct {
	hooks    map[string]F
	fallback F
}

// NewTable creates a table answering fallback when no key matches.
func NewTable[F any](fallback F) *Table[F] {
	return &Table[F]{hooks: map[string]F{}, fallback: fallback}
}

// Register adds a hook. Registering a key again replaces the earlier hook.
func (t *Table[F]) Register(key string, hook F) *Table[F] {
	t.hooks[key] = hook
	return t
}

// Lookup returns the hook for the longest registered prefix of key.
func (t *Table[F]) Lookup(key string) F {
	segments := strings.Split(key, keySeparator)

	for i := len(segments); i > 0; i-- {
		if hook, ok := t.hooks[strings.Join(segments[:i], keySeparator)]; ok {
			return hook
		}
	}

	return t.fallback
}

// Keys lists the registered keys, sorted.
func (t *Table[F]) Keys() []string {
	keys := make([]string, 0, len(t.hooks))
	for key := range t.hooks {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	return keys
}

// Key joins segments into a lookup key, skipping empty ones.
func Key(segments ...string) string {
	parts := make([]string, 0, len(segments))

	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}

	return strings.Join(parts, keySeparator)
}

// Target is what an operation acts upon. Fields not involved in the operation are nil.
type Target struct {
	Workflow *models.Workflow
	Task     *models.Task
	Case     *models.Case
	WorkItem *models.WorkItem
	Document *models.Document
}

// PermissionFunc decides whether user may run an operation on target.
type PermissionFunc func(ctx context.Context, user *models.User, target Target) bool

// VisibilityFunc decides whether user may see entity.
type VisibilityFunc func(ctx context.Context, user *models.User, entity any) bool

// AllowAll permits every operation.
func AllowAll(context.Context, *models.User, Target) bool { return true }

// ShowAll makes every entity visible.
func ShowAll(context.Context, *models.User, any) bool { return true }

// PermissionError reports a denied operation.
type PermissionError struct {
	Operation string
	User      string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %q may not perform %s", e.User, e.Operation)
}

func (e *PermissionError) Unwrap() error {
	return ErrPermissionDenied
}

// Permissions is the table of permission hooks, allowing everything by default.
type Permissions struct {
	*Table[PermissionFunc]
}

func NewPermissions() *Permissions {
	return &Permissions{Table: NewTable[PermissionFunc](AllowAll)}
}

// Check returns a PermissionError when the hook registered for key denies the operation.
func (p *Permissions) Check(ctx context.Context, key string, user *models.User, target Target) error {
	if p.Lookup(key)(ctx, user, target) {
		return nil
	}

	username := ""
	if user != nil {
		username = user.Username
	}

	return &PermissionError{Operation: key, User: username}
}

// Visibilities is the table of visibility hooks, showing everything by default.
type Visibilities struct {
	*Table[VisibilityFunc]
}

func NewVisibilities() *Visibilities {
	return &Visibilities{Table: NewTable[VisibilityFunc](ShowAll)}
}

// Filter keeps the entities user may see. key selects the hook per entity.
func Filter[T any](ctx context.Context, v *Visibilities, user *models.User, entities []T, key func(T) string) []T {
	visible := make([]T, 0, len(entities))

	for _, entity := range entities {
		if v.Lookup(key(entity))(ctx, user, entity) {
			visible = append(visible, entity)
		}
	}

	return visible
}

// MemberOfAddressedGroups permits work item operations to members of an addressed
// group. Items without addressed groups are open to everyone.
func MemberOfAddressedGroups(_ context.Context, user *models.User, target Target) bool {
	if target.WorkItem == nil || len(target.WorkItem.AddressedGroups) == 0 {
		return true
	}

	return user != nil && sharesGroup(user, target.WorkItem.AddressedGroups)
}

// AddressedOrControlling shows work items to members of their addressed or controlling groups.
func AddressedOrControlling(_ context.Context, user *models.User, entity any) bool {
	item, ok := entity.(*models.WorkItem)
	if !ok {
		return true
	}

	if len(item.AddressedGroups) == 0 && len(item.ControllingGroups) == 0 {
		return true
	}

	return user != nil && (sharesGroup(user, item.AddressedGroups) || sharesGroup(user, item.ControllingGroups))
}

func sharesGroup(user *models.User, groups []string) bool {
	for _, group := range groups {
		if group == user.Group || slices.Contains(user.Groups, group) {
			return true
		}
	}

	return false
}
