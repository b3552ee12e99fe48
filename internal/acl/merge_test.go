package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bart-jansen/opencga/pkg/domain"
)

func TestMergeHelpers(t *testing.T) {
	entries := []domain.PermissionEntry{
		{Permissions: []string{"VIEW"}, Members: []string{"a", "b"}},
		{Permissions: []string{"DELETE", "VIEW"}, Members: []string{"c"}},
	}
	assert.Equal(t, []domain.PermissionEntry{{Permissions: []string{"VIEW"}, Members: []string{"a"}}},
		Strip(entries, []string{"b", "c"}))
	assert.Len(t, entries[0].Members, 2, "input untouched")

	got := Assign(entries, []domain.PermissionEntry{{Permissions: []string{"DELETE", "VIEW"}, Members: []string{"a", "c"}}})
	assert.Equal(t, []domain.PermissionEntry{
		{Permissions: []string{"VIEW"}, Members: []string{"b"}},
		{Permissions: []string{"DELETE", "VIEW"}, Members: []string{"a", "c"}},
	}, got)

	assert.True(t, Equal(entries, entries))
	assert.False(t, Equal(entries, got))
	assert.Len(t, Overlapping(entries, []string{"c"}), 1)
	assert.Len(t, Overlapping(entries, nil), 2)
}

func TestPlanGroupsMembersByTargetSet(t *testing.T) {
	entries := []domain.PermissionEntry{
		{Permissions: []string{"VIEW"}, Members: []string{"a"}},
		{Permissions: []string{"SHARE", "VIEW"}, Members: []string{"b"}},
	}
	assign, revoked := plan(entries, []string{"a", "b", "c"}, []string{"SHARE"}, domain.AclAdd)
	assert.Empty(t, revoked)
	assert.Equal(t, []domain.PermissionEntry{
		{Permissions: []string{"SHARE", "VIEW"}, Members: []string{"a", "b"}},
		{Permissions: []string{"SHARE"}, Members: []string{"c"}},
	}, assign)

	assign, revoked = plan(entries, []string{"a", "b", "c"}, []string{"VIEW"}, domain.AclRemove)
	assert.Equal(t, []string{"a", "c"}, revoked)
	assert.Equal(t, []domain.PermissionEntry{{Permissions: []string{"SHARE"}, Members: []string{"b"}}}, assign)
}
