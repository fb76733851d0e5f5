package access_test

import (
	"context"
	"testing"

	"github.com/dukex/casework/pkg/access"
	"github.com/dukex/casework/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_MostSpecificPrefixWins(t *testing.T) {
	t.Parallel()

	table := access.NewTable("default").
		Register("work_item", "any item").
		Register("work_item.complete", "complete").
		Register("work_item.complete.review", "complete review")

	tests := map[string]string{
		"work_item.complete.review": "complete review",
		"work_item.complete.submit": "complete",
		"work_item.complete":        "complete",
		"work_item.skip.review":     "any item",
		"case.cancel":               "default",
		"":                          "default",
	}

	for key, want := range tests {
		assert.Equal(t, want, table.Lookup(key), key)
	}

	assert.Equal(t, []string{"work_item", "work_item.complete", "work_item.complete.review"}, table.Keys())
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "work_item.complete.review", access.Key(access.OperationCompleteItem, "review"))
	assert.Equal(t, "case", access.Key(access.EntityCase, ""))
}

func TestPermissions_Check(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	permissions := access.NewPermissions()
	permissions.Register(access.OperationCompleteItem, access.MemberOfAddressedGroups)

	item := &models.WorkItem{ID: "w1", AddressedGroups: []string{"clerks"}}
	clerk := &models.User{Username: "ada", Group: "clerks"}
	outsider := &models.User{Username: "eve", Groups: []string{"public"}}

	require.NoError(t, permissions.Check(ctx, access.Key(access.OperationCompleteItem, "review"), clerk, access.Target{WorkItem: item}))

	err := permissions.Check(ctx, access.Key(access.OperationCompleteItem, "review"), outsider, access.Target{WorkItem: item})
	require.ErrorIs(t, err, access.ErrPermissionDenied)

	var permErr *access.PermissionError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, "eve", permErr.User)

	// other operations fall back to the default
	assert.NoError(t, permissions.Check(ctx, access.OperationSkipItem, outsider, access.Target{WorkItem: item}))
}

func TestFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	visibility := access.NewVisibilities()
	visibility.Register(access.EntityWorkItem, access.AddressedOrControlling)

	items := []*models.WorkItem{
		{ID: "open"},
		{ID: "clerks", AddressedGroups: []string{"clerks"}},
		{ID: "controlled", AddressedGroups: []string{"clerks"}, ControllingGroups: []string{"managers"}},
	}

	key := func(w *models.WorkItem) string { return access.Key(access.EntityWorkItem, w.Task) }

	manager := &models.User{Username: "bob", Groups: []string{"managers"}}
	visible := access.Filter(ctx, visibility, manager, items, key)
	require.Len(t, visible, 2)
	assert.Equal(t, "open", visible[0].ID)
	assert.Equal(t, "controlled", visible[1].ID)

	assert.Len(t, access.Filter(ctx, visibility, nil, items, key), 1)

	cases := []*models.Case{{ID: "c1"}}
	assert.Len(t, access.Filter(ctx, visibility, nil, cases, func(*models.Case) string { return access.EntityCase }), 1)
}
