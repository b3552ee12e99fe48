package main

import (
	"github.com/spf13/cobra"

	"github.com/bart-jansen/opencga/internal/catalog"
	"github.com/bart-jansen/opencga/internal/core"
	"github.com/bart-jansen/opencga/pkg/domain"
)

func aclCmd[T any](a *app, pick func(*core.Catalog) *catalog.Adaptor[T]) *cobra.Command {
	cmd := &cobra.Command{Use: "acl", Short: "Inspect and change entity permissions"}
	run := func(cmd *cobra.Command, id string, fn func(*catalog.Adaptor[T], int64) ([]domain.PermissionEntry, error)) error {
		entityID, err := parseID(id)
		if err != nil {
			return err
		}
		return a.withCatalog(cmd.Context(), func(c *core.Catalog) error {
			entries, err := fn(pick(c), entityID)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []domain.PermissionEntry{}
			}
			return printJSON(cmd.OutOrStdout(), entries)
		})
	}

	get := &cobra.Command{
		Use:   "get <id> [member...]",
		Short: "Show the entries of an entity, optionally for some members only",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], func(ad *catalog.Adaptor[T], id int64) ([]domain.PermissionEntry, error) {
				return ad.LookupAcl(cmd.Context(), id, args[1:])
			})
		},
	}

	var grantPerms, grantMembers []string
	grant := &cobra.Command{
		Use:   "grant <id>",
		Short: "Add permissions for members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], func(ad *catalog.Adaptor[T], id int64) ([]domain.PermissionEntry, error) {
				return ad.GrantAcl(cmd.Context(), id, grantPerms, grantMembers)
			})
		},
	}
	grant.Flags().StringSliceVar(&grantPerms, "permission", nil, "Permission to grant (repeatable)")
	grant.Flags().StringSliceVar(&grantMembers, "member", nil, "User or @group (repeatable)")

	var revokeMembers []string
	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Remove every permission of members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], func(ad *catalog.Adaptor[T], id int64) ([]domain.PermissionEntry, error) {
				return ad.RevokeAcl(cmd.Context(), id, revokeMembers)
			})
		},
	}
	revoke.Flags().StringSliceVar(&revokeMembers, "member", nil, "User or @group (repeatable)")

	var (
		action                     string
		updatePerms, updateMembers []string
	)
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Set, add, remove or reset permissions of members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			act, err := domain.ParseAclAction(action)
			if err != nil {
				return err
			}
			return run(cmd, args[0], func(ad *catalog.Adaptor[T], id int64) ([]domain.PermissionEntry, error) {
				return ad.UpdateAcl(cmd.Context(), id, updateMembers, updatePerms, act)
			})
		},
	}
	update.Flags().StringVar(&action, "action", string(domain.AclSet), "SET, ADD, REMOVE or RESET")
	update.Flags().StringSliceVar(&updatePerms, "permission", nil, "Permission (repeatable)")
	update.Flags().StringSliceVar(&updateMembers, "member", nil, "User or @group (repeatable)")

	cmd.AddCommand(get, grant, revoke, update)
	return cmd
}
