package catalog

import (
	"context"

	"github.com/bart-jansen/opencga/pkg/domain"
)

// GrantAcl gives members exactly perms on entity id.
func (a *Adaptor[T]) GrantAcl(ctx context.Context, id int64, perms, members []string) ([]domain.PermissionEntry, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.acl.Grant(ctx, id, perms, members)
}

// RevokeAcl removes members from the entry that holds them.
func (a *Adaptor[T]) RevokeAcl(ctx context.Context, id int64, members []string) ([]domain.PermissionEntry, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.acl.Revoke(ctx, id, members)
}

// LookupAcl returns the entries overlapping members, or all entries.
func (a *Adaptor[T]) LookupAcl(ctx context.Context, id int64, members []string) ([]domain.PermissionEntry, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.acl.Lookup(ctx, id, members)
}

// UpdateAcl combines perms with the members' current grants per action.
func (a *Adaptor[T]) UpdateAcl(ctx context.Context, id int64, members, perms []string, action domain.AclAction) ([]domain.PermissionEntry, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.acl.Update(ctx, id, members, perms, action)
}

// Permissions lists the permission tokens valid for the kind.
func (a *Adaptor[T]) Permissions() []string { return a.acl.Permissions() }
