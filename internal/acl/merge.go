package acl

import (
	"slices"
	"strings"

	"github.com/bart-jansen/opencga/pkg/domain"
)

// Strip removes members from every entry and drops entries left without
// members. The input is not modified.
func Strip(entries []domain.PermissionEntry, members []string) []domain.PermissionEntry {
	return merge(entries, members, nil)
}

// Assign moves every member of each assignment into the entry carrying the
// assignment's permission set, coalescing with an existing entry when one
// carries exactly that set and appending a new entry otherwise. Members named
// in no assignment keep their entries.
func Assign(entries []domain.PermissionEntry, assignments []domain.PermissionEntry) []domain.PermissionEntry {
	var moved []string
	for _, a := range assignments {
		moved = append(moved, a.Members...)
	}
	return merge(entries, moved, assignments)
}

// merge mirrors the batched store update: pull, coalesce or append, sweep.
// Emptied entries survive until the sweep so that coalescing still finds them.
func merge(entries []domain.PermissionEntry, pulled []string, assignments []domain.PermissionEntry) []domain.PermissionEntry {
	out := make([]domain.PermissionEntry, 0, len(entries)+len(assignments))
	for _, e := range entries {
		kept := make([]string, 0, len(e.Members))
		for _, m := range e.Members {
			if !slices.Contains(pulled, m) {
				kept = append(kept, m)
			}
		}
		out = append(out, domain.PermissionEntry{Permissions: slices.Clone(e.Permissions), Members: kept})
	}
	for _, a := range assignments {
		if i := indexOf(out, a.Permissions); i >= 0 {
			for _, m := range a.Members {
				if !slices.Contains(out[i].Members, m) {
					out[i].Members = append(out[i].Members, m)
				}
			}
			continue
		}
		out = append(out, domain.PermissionEntry{Permissions: slices.Clone(a.Permissions), Members: slices.Clone(a.Members)})
	}
	return slices.DeleteFunc(out, func(e domain.PermissionEntry) bool { return len(e.Members) == 0 })
}

func indexOf(entries []domain.PermissionEntry, perms []string) int {
	for i, e := range entries {
		if slices.Equal(e.Permissions, perms) {
			return i
		}
	}
	return -1
}

// Equal compares entry lists including order.
func Equal(a, b []domain.PermissionEntry) bool {
	return slices.EqualFunc(a, b, func(x, y domain.PermissionEntry) bool {
		return slices.Equal(x.Permissions, y.Permissions) && slices.Equal(x.Members, y.Members)
	})
}

// Overlapping returns the entries holding any of members; all entries when
// members is empty.
func Overlapping(entries []domain.PermissionEntry, members []string) []domain.PermissionEntry {
	out := []domain.PermissionEntry{}
	for _, e := range entries {
		if len(members) == 0 || slices.ContainsFunc(e.Members, func(m string) bool { return slices.Contains(members, m) }) {
			out = append(out, e)
		}
	}
	return out
}

// plan computes per-member target sets for UpdateAcl. Members whose target is
// empty are returned in revoked.
func plan(entries []domain.PermissionEntry, members, perms []string, action domain.AclAction) (assign []domain.PermissionEntry, revoked []string) {
	targets := map[string][]string{}
	var order []string
	for _, m := range members {
		current, _ := domain.EntryFor(entries, m)
		var target []string
		switch action {
		case domain.AclSet:
			target = perms
		case domain.AclAdd:
			target = domain.NormalizePermissions(append(slices.Clone(current.Permissions), perms...))
		case domain.AclRemove:
			target = slices.DeleteFunc(slices.Clone(current.Permissions), func(p string) bool { return slices.Contains(perms, p) })
		}
		if len(target) == 0 {
			revoked = append(revoked, m)
			continue
		}
		key := strings.Join(target, ",")
		if _, ok := targets[key]; !ok {
			order = append(order, key)
		}
		targets[key] = append(targets[key], m)
	}
	for _, key := range order {
		assign = append(assign, domain.PermissionEntry{Permissions: strings.Split(key, ","), Members: targets[key]})
	}
	return assign, revoked
}
