// Package acl maintains per-entity permission entries. A member appears in at
// most one entry of an entity; every mutation is a single conditional store
// update that pulls the affected members, coalesces or appends their new
// entry and sweeps entries left empty.
package acl

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/internal/query"
	"github.com/bart-jansen/opencga/internal/telemetry"
	"github.com/bart-jansen/opencga/pkg/domain"
)

// Entry field names inside the acls array.
const (
	fieldPermissions = "permissions"
	fieldMembers     = "members"
)

// Config wires an Engine to one entity collection.
type Config struct {
	Collection docstore.Collection
	Kind       domain.EntityKind
	// Permissions is the vocabulary of valid tokens for the kind.
	Permissions []string
	Directory   domain.StudyDirectory
	Hooks       telemetry.Hooks
}

// Engine grants, revokes and reads permission entries.
type Engine struct {
	coll   docstore.Collection
	kind   domain.EntityKind
	vocab  []string
	dir    domain.StudyDirectory
	hooks  telemetry.Hooks
	params *query.ParamTable
}

// New validates cfg and returns an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Collection == nil {
		return nil, errors.New("acl: collection is required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("acl: study directory is required")
	}
	return &Engine{
		coll:   cfg.Collection,
		kind:   cfg.Kind,
		vocab:  domain.NormalizePermissions(cfg.Permissions),
		dir:    cfg.Directory,
		hooks:  cfg.Hooks.Defaults(),
		params: query.NewParamTable(query.CommonParams()...),
	}, nil
}

// Permissions returns the accepted permission tokens.
func (e *Engine) Permissions() []string { return slices.Clone(e.vocab) }

// Grant gives members exactly perms, superseding any entry they held before.
func (e *Engine) Grant(ctx context.Context, id int64, perms, members []string) ([]domain.PermissionEntry, error) {
	var out []domain.PermissionEntry
	err := e.run(ctx, "grant", func(ctx context.Context) error {
		perms, members, err := e.validInput(perms, members, true)
		if err != nil {
			return err
		}
		out, err = e.mutate(ctx, "grant", id, members, []domain.PermissionEntry{{Permissions: perms, Members: members}})
		return err
	})
	return out, err
}

// Revoke pulls members from whichever entry holds them. Members holding no
// entry are ignored. All members are removed by one update or none are.
func (e *Engine) Revoke(ctx context.Context, id int64, members []string) ([]domain.PermissionEntry, error) {
	var out []domain.PermissionEntry
	err := e.run(ctx, "revoke", func(ctx context.Context) error {
		_, members, err := e.validInput(nil, members, false)
		if err != nil {
			return err
		}
		out, err = e.mutate(ctx, "revoke", id, members, nil)
		return err
	})
	return out, err
}

// Update combines perms with the members' current grants according to action.
// REMOVE revokes members left without permissions; RESET revokes outright.
func (e *Engine) Update(ctx context.Context, id int64, members, perms []string, action domain.AclAction) ([]domain.PermissionEntry, error) {
	if action == domain.AclReset {
		return e.Revoke(ctx, id, members)
	}
	var out []domain.PermissionEntry
	err := e.run(ctx, "update", func(ctx context.Context) error {
		switch action {
		case domain.AclSet, domain.AclAdd, domain.AclRemove:
		default:
			return domain.InvalidArgumentError{Field: "action", Value: action, Reason: "expected SET, ADD, REMOVE or RESET"}
		}
		perms, members, err := e.validInput(perms, members, true)
		if err != nil {
			return err
		}
		state, err := e.load(ctx, id)
		if err != nil {
			return err
		}
		assign, _ := plan(state.entries, members, perms, action)
		out, err = e.mutateFrom(ctx, "update", state, members, assign)
		return err
	})
	return out, err
}

// Lookup returns the entries holding any of members, or every entry when
// members is empty. No overlap yields an empty list.
func (e *Engine) Lookup(ctx context.Context, id int64, members []string) ([]domain.PermissionEntry, error) {
	var out []domain.PermissionEntry
	err := e.run(ctx, "lookup", func(ctx context.Context) error {
		members = domain.NormalizeMembers(members)
		filter, err := e.idFilter(id)
		if err != nil {
			return err
		}
		pipeline := docstore.Pipeline{
			docstore.Match{Filter: filter},
			docstore.Project{Projection: docstore.Projection{Include: []string{query.PathAcls}}},
			docstore.Unwind{Path: query.PathAcls},
		}
		if len(members) > 0 {
			pipeline = append(pipeline, docstore.Match{Filter: docstore.AnyOf(query.PathAcls+"."+fieldMembers, toAny(members)...)})
		}
		docs, err := e.coll.Aggregate(ctx, pipeline)
		if err != nil {
			return domain.StoreError{Op: e.op("lookup"), Err: err}
		}
		if len(docs) == 0 {
			n, err := e.coll.Count(ctx, filter)
			if err != nil {
				return domain.StoreError{Op: e.op("lookup"), Err: err}
			}
			if n == 0 {
				return domain.NotFoundError{Entity: e.kind, ID: id}
			}
		}
		out = make([]domain.PermissionEntry, 0, len(docs))
		for _, d := range docs {
			raw, _ := d.Get(query.PathAcls)
			entry, err := decodeEntry(raw)
			if err != nil {
				return domain.StoreError{Op: e.op("lookup"), Err: err}
			}
			out = append(out, entry)
		}
		return nil
	})
	return out, err
}

type entityState struct {
	id      int64
	studyID int64
	entries []domain.PermissionEntry
}

func (e *Engine) mutate(ctx context.Context, op string, id int64, members []string, assign []domain.PermissionEntry) ([]domain.PermissionEntry, error) {
	state, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.mutateFrom(ctx, op, state, members, assign)
}

// mutateFrom resolves members in the owning study and issues one update that
// pulls members, places the assignments and sweeps empty entries. The update
// is conditioned on the entries it relies on, so a concurrent change that
// invalidates the plan surfaces as an AclUpdateFailedError.
func (e *Engine) mutateFrom(ctx context.Context, op string, state entityState, members []string, assign []domain.PermissionEntry) ([]domain.PermissionEntry, error) {
	resolved, err := e.dir.ResolvePrincipals(ctx, state.studyID, members)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(resolved, members) {
		assign = resolveAssignments(assign, members, resolved)
		members = resolved
	}
	expected := merge(state.entries, members, assign)
	if Equal(expected, state.entries) {
		return state.entries, nil
	}

	idFilter, err := e.idFilter(state.id)
	if err != nil {
		return nil, err
	}
	conds := []docstore.Filter{idFilter}
	muts := []docstore.Mutation{
		docstore.ElemUpdate{
			Path:      query.PathAcls,
			Where:     docstore.AnyOf(fieldMembers, toAny(members)...),
			Mutations: []docstore.Mutation{docstore.PullAll(fieldMembers, toAny(members)...)},
		},
	}
	if len(assign) == 0 {
		conds = append(conds, docstore.ElemMatch{Path: query.PathAcls, Filter: docstore.AnyOf(fieldMembers, toAny(members)...)})
	}
	for _, a := range assign {
		if indexOf(state.entries, a.Permissions) >= 0 {
			where := docstore.Eq(fieldPermissions, a.Permissions)
			conds = append(conds, docstore.ElemMatch{Path: query.PathAcls, Filter: where})
			muts = append(muts, docstore.ElemUpdate{
				Path:      query.PathAcls,
				Where:     where,
				Mutations: []docstore.Mutation{docstore.AddValues(fieldMembers, toAny(a.Members)...)},
			})
			continue
		}
		muts = append(muts, docstore.PushValues(query.PathAcls, map[string]any{
			fieldPermissions: toAny(a.Permissions),
			fieldMembers:     toAny(a.Members),
		}))
	}
	muts = append(muts, docstore.PullWhere{Path: query.PathAcls, Filter: docstore.Size{Path: fieldMembers, N: 0}})

	res, err := e.coll.Update(ctx, docstore.AllOf(conds...), muts)
	if err != nil {
		return nil, domain.StoreError{Op: e.op(op), Err: err}
	}
	if res.Modified == 0 {
		return nil, domain.AclUpdateFailedError{Entity: e.kind, ID: state.id, Op: op, Members: members}
	}
	e.hooks.Logger.Debug("acl updated", "entity", e.kind, "id", state.id, "op", op, "members", members)
	after, err := e.load(ctx, state.id)
	if err != nil {
		return nil, err
	}
	return after.entries, nil
}

// resolveAssignments rewrites assignment members to the directory's canonical
// identifiers, which come back in input order.
func resolveAssignments(assign []domain.PermissionEntry, members, resolved []string) []domain.PermissionEntry {
	if len(resolved) != len(members) {
		return assign
	}
	canonical := make(map[string]string, len(members))
	for i, m := range members {
		canonical[m] = resolved[i]
	}
	out := make([]domain.PermissionEntry, len(assign))
	for i, a := range assign {
		ms := make([]string, len(a.Members))
		for j, m := range a.Members {
			ms[j] = canonical[m]
		}
		out[i] = domain.PermissionEntry{Permissions: a.Permissions, Members: ms}
	}
	return out
}

func (e *Engine) load(ctx context.Context, id int64) (entityState, error) {
	filter, err := e.idFilter(id)
	if err != nil {
		return entityState{}, err
	}
	doc, ok, err := docstore.FindOne(ctx, e.coll, filter, docstore.Projection{Include: []string{query.PathStudy, query.PathAcls}})
	if err != nil {
		return entityState{}, domain.StoreError{Op: e.op("load"), Err: err}
	}
	if !ok {
		return entityState{}, domain.NotFoundError{Entity: e.kind, ID: id}
	}
	studyID, _ := doc.Int64(query.PathStudy)
	raw, _ := doc.Get(query.PathAcls)
	entries, err := decodeEntries(raw)
	if err != nil {
		return entityState{}, domain.StoreError{Op: e.op("load"), Err: err}
	}
	return entityState{id: id, studyID: studyID, entries: entries}, nil
}

// idFilter locates a visible entity through the query compiler.
func (e *Engine) idFilter(id int64) (docstore.Filter, error) {
	return query.Compile(query.Query{query.KeyID: id}, e.params, nil)
}

func (e *Engine) validInput(perms, members []string, needPerms bool) ([]string, []string, error) {
	members = domain.NormalizeMembers(members)
	if len(members) == 0 {
		return nil, nil, domain.InvalidArgumentError{Field: "members", Value: members, Reason: "at least one member is required"}
	}
	if !needPerms {
		return nil, members, nil
	}
	perms = domain.NormalizePermissions(perms)
	if len(perms) == 0 {
		return nil, nil, domain.InvalidArgumentError{Field: "permissions", Value: perms, Reason: "at least one permission is required"}
	}
	for _, p := range perms {
		if !slices.Contains(e.vocab, p) {
			return nil, nil, domain.InvalidArgumentError{Field: "permissions", Value: p, Reason: fmt.Sprintf("not a %s permission", e.kind)}
		}
	}
	return perms, members, nil
}

func (e *Engine) op(name string) string { return fmt.Sprintf("%s.acl.%s", e.kind, name) }

func (e *Engine) run(ctx context.Context, name string, fn func(context.Context) error) error {
	return e.hooks.Run(ctx, e.op(name), fn)
}

func decodeEntries(raw any) ([]domain.PermissionEntry, error) {
	arr, _ := raw.([]any)
	out := make([]domain.PermissionEntry, 0, len(arr))
	for _, el := range arr {
		entry, err := decodeEntry(el)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func decodeEntry(raw any) (domain.PermissionEntry, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return domain.PermissionEntry{}, fmt.Errorf("acl entry has type %T", raw)
	}
	perms, err := stringList(m[fieldPermissions])
	if err != nil {
		return domain.PermissionEntry{}, fmt.Errorf("acl permissions: %w", err)
	}
	members, err := stringList(m[fieldMembers])
	if err != nil {
		return domain.PermissionEntry{}, fmt.Errorf("acl members: %w", err)
	}
	return domain.PermissionEntry{Permissions: perms, Members: members}, nil
}

func stringList(raw any) ([]string, error) {
	arr, _ := raw.([]any)
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		out = append(out, s)
	}
	return out, nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
