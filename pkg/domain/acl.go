package domain

import (
	"slices"
	"strings"
)

// PermissionEntry binds a permission set to the members holding it. Within a
// single entity a member appears in at most one entry.
type PermissionEntry struct {
	Permissions []string `json:"permissions"`
	Members     []string `json:"members"`
}

// AclAction selects how UpdateAcl combines the requested permissions with the
// members' current grants.
type AclAction string

// Supported ACL update actions.
const (
	AclSet    AclAction = "SET"
	AclAdd    AclAction = "ADD"
	AclRemove AclAction = "REMOVE"
	AclReset  AclAction = "RESET"
)

// ParseAclAction parses a case-insensitive action name.
func ParseAclAction(s string) (AclAction, error) {
	a := AclAction(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case AclSet, AclAdd, AclRemove, AclReset:
		return a, nil
	}
	return "", InvalidArgumentError{Field: "action", Value: s, Reason: "expected SET, ADD, REMOVE or RESET"}
}

// Common permission tokens.
const (
	PermissionView              = "VIEW"
	PermissionUpdate            = "UPDATE"
	PermissionDelete            = "DELETE"
	PermissionShare             = "SHARE"
	PermissionViewAnnotations   = "VIEW_ANNOTATIONS"
	PermissionWriteAnnotations  = "WRITE_ANNOTATIONS"
	PermissionDeleteAnnotations = "DELETE_ANNOTATIONS"
)

// NormalizePermissions returns the sorted, de-duplicated, upper-cased set.
func NormalizePermissions(perms []string) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// NormalizeMembers trims and de-duplicates member identifiers, keeping order.
func NormalizeMembers(members []string) []string {
	seen := make(map[string]struct{}, len(members))
	out := make([]string, 0, len(members))
	for _, m := range members {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// EntryFor returns the entry holding member, if any.
func EntryFor(entries []PermissionEntry, member string) (PermissionEntry, bool) {
	for _, e := range entries {
		if slices.Contains(e.Members, member) {
			return e, true
		}
	}
	return PermissionEntry{}, false
}
