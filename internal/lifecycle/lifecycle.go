// Package lifecycle governs entity status transitions. Entities start ACTIVE,
// are soft-deleted to DELETED and may later be REMOVED or restored; the last
// two transitions are declared but rejected as unsupported.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/pkg/domain"
)

// Document paths of the status sub-document.
const (
	StatusPath     = "status.name"
	StatusDatePath = "status.date"
)

// NotDeletedExpr is the status query expression injected for default
// visibility: neither DELETED nor REMOVED.
const NotDeletedExpr = "!=" + string(domain.StatusDeleted) + ";!=" + string(domain.StatusRemoved)

// Transition names a status change requested by a caller.
type Transition string

// Supported transition names.
const (
	Delete  Transition = "delete"
	Remove  Transition = "remove"
	Restore Transition = "restore"
)

type machine struct {
	from        map[domain.StatusName]struct{}
	target      domain.StatusName
	implemented bool
}

var machines = map[Transition]machine{
	Delete:  {from: toSet(domain.StatusActive), target: domain.StatusDeleted, implemented: true},
	Remove:  {from: toSet(domain.StatusDeleted), target: domain.StatusRemoved},
	Restore: {from: toSet(domain.StatusDeleted), target: domain.StatusActive},
}

var known = toSet(domain.StatusActive, domain.StatusDeleted, domain.StatusRemoved)

// Guard validates moving entity id of the given kind from current through t
// and returns the target status.
func Guard(kind domain.EntityKind, id int64, current domain.StatusName, t Transition) (domain.StatusName, error) {
	m, ok := machines[t]
	if !ok {
		return "", domain.InvalidArgumentError{Field: "transition", Value: string(t), Reason: "unknown transition"}
	}
	if !m.implemented {
		return "", domain.UnsupportedError{Entity: kind, Op: string(t)}
	}
	if _, ok := known[current]; !ok {
		return "", domain.InvalidArgumentError{Field: StatusPath, Value: string(current), Reason: fmt.Sprintf("%s %d has an unknown status", kind, id)}
	}
	if t == Delete && !current.Visible() {
		return "", domain.AlreadyDeletedError{Entity: kind, ID: id, Status: current}
	}
	if _, ok := m.from[current]; !ok {
		return "", domain.InvalidArgumentError{Field: StatusPath, Value: string(current), Reason: fmt.Sprintf("cannot %s %s %d", t, kind, id)}
	}
	return m.target, nil
}

// Initial is the status of a newly created entity.
func Initial(now time.Time) domain.Status {
	return domain.Status{Name: domain.StatusActive, Date: Stamp(now)}
}

// Stamp formats now in the catalog timestamp layout.
func Stamp(now time.Time) string { return now.UTC().Format(domain.TimeLayout) }

// StatusPatch sets the status and its timestamp in one update.
func StatusPatch(target domain.StatusName, now time.Time) []docstore.Mutation {
	return []docstore.Mutation{
		docstore.SetValue(StatusPath, string(target)),
		docstore.SetValue(StatusDatePath, Stamp(now)),
	}
}

// VisibleFilter matches documents visible to default reads. Mutations add it
// to their filter so a concurrent status change makes them match nothing.
func VisibleFilter() docstore.Filter {
	return docstore.NoneOf(StatusPath, string(domain.StatusDeleted), string(domain.StatusRemoved))
}

func toSet(values ...domain.StatusName) map[domain.StatusName]struct{} {
	set := make(map[domain.StatusName]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
