package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/internal/query"
	"github.com/bart-jansen/opencga/pkg/domain"
)

// Update applies patch to the visible entity id as one set-style update.
// Keys outside the kind's updatable fields are dropped.
func (a *Adaptor[T]) Update(ctx context.Context, id int64, patch map[string]any) (T, error) {
	var out T
	err := a.run(ctx, "update", func(ctx context.Context) error {
		doc, err := a.findVisible(ctx, id, docstore.Projection{Include: []string{query.PathStudy}})
		if err != nil {
			return err
		}
		studyID, _ := doc.Int64(query.PathStudy)
		muts, err := a.mutations(ctx, studyID, patch)
		if err != nil {
			return err
		}
		if err := a.apply(ctx, id, studyID, muts, patch); err != nil {
			return err
		}
		out, err = a.get(ctx, id)
		return err
	})
	return out, err
}

// UpdateByQuery applies patch to every entity matching q, one entity at a
// time. A failure stops the batch with a BatchError; earlier updates stay.
func (a *Adaptor[T]) UpdateByQuery(ctx context.Context, q query.Query, patch map[string]any) (int, error) {
	var done int
	err := a.run(ctx, "update_query", func(ctx context.Context) error {
		targets, err := a.targets(ctx, q)
		if err != nil {
			return err
		}
		byStudy := map[int64][]docstore.Mutation{}
		for _, t := range targets {
			muts, ok := byStudy[t.study]
			if !ok {
				muts, err = a.mutations(ctx, t.study, patch)
				if err != nil {
					return err
				}
				byStudy[t.study] = muts
			}
			if err := a.apply(ctx, t.id, t.study, muts, patch); err != nil {
				return domain.BatchError{Query: q.String(), ID: t.id, Completed: done, Err: err}
			}
			done++
		}
		return nil
	})
	return done, err
}

func (a *Adaptor[T]) apply(ctx context.Context, id, studyID int64, muts []docstore.Mutation, patch map[string]any) error {
	if len(muts) == 0 {
		return nil
	}
	filter, err := query.Compile(query.Query{query.KeyID: id}, a.kind.Params, nil)
	if err != nil {
		return err
	}
	res, err := a.coll.Update(ctx, filter, muts)
	if err != nil {
		if errors.Is(err, docstore.ErrDuplicateKey) {
			name, _ := patch["name"].(string)
			return a.nameTaken(studyID, name)
		}
		return a.storeErr("update", err)
	}
	if res.Matched == 0 {
		return domain.NotFoundError{Entity: a.kind.Name, ID: id}
	}
	return nil
}

// mutations validates patch against the updatable fields of the kind.
func (a *Adaptor[T]) mutations(ctx context.Context, studyID int64, patch map[string]any) ([]docstore.Mutation, error) {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var muts []docstore.Mutation
	for _, key := range keys {
		f, ok := a.kind.field(key)
		if !ok {
			a.hooks.Logger.Debug("dropping non-updatable field", "entity", a.kind.Name, "field", key)
			continue
		}
		v, err := a.fieldValue(ctx, studyID, f, patch[key])
		if err != nil {
			return nil, err
		}
		muts = append(muts, docstore.SetValue(f.Path, v))
	}
	return muts, nil
}

func (a *Adaptor[T]) fieldValue(ctx context.Context, studyID int64, f Field, raw any) (any, error) {
	bad := func(reason string) error {
		return domain.InvalidArgumentError{Field: f.Key, Value: raw, Reason: reason}
	}
	switch f.Type {
	case FieldText:
		s, ok := raw.(string)
		if !ok {
			return nil, bad("expected a string")
		}
		if f.Path == query.PathName && strings.TrimSpace(s) == "" {
			return nil, bad("name must not be empty")
		}
		return s, nil
	case FieldEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, bad("expected a string")
		}
		s = strings.ToUpper(strings.TrimSpace(s))
		if !slices.Contains(f.Enum, s) {
			return nil, bad("expected one of " + strings.Join(f.Enum, ","))
		}
		return s, nil
	case FieldInteger:
		n, err := integer(raw)
		if err != nil {
			return nil, bad(err.Error())
		}
		return n, nil
	case FieldBoolean:
		switch b := raw.(type) {
		case bool:
			return b, nil
		case string:
			v, err := strconv.ParseBool(b)
			if err != nil {
				return nil, bad("expected true or false")
			}
			return v, nil
		}
		return nil, bad("expected a boolean")
	case FieldID:
		n, err := integer(raw)
		if err != nil {
			return nil, bad(err.Error())
		}
		if n < 0 {
			return nil, bad("ids are positive")
		}
		if n > 0 {
			if err := a.existence.Exists(ctx, studyID, f.Ref, []int64{n}); err != nil {
				return nil, err
			}
		}
		return n, nil
	case FieldIDList:
		list, err := integers(raw)
		if err != nil {
			return nil, bad(err.Error())
		}
		if err := a.existence.Exists(ctx, studyID, f.Ref, list); err != nil {
			return nil, err
		}
		return list, nil
	case FieldMap:
		m, ok := docstore.Normalize(raw).(map[string]any)
		if !ok {
			return nil, bad("expected an object")
		}
		return m, nil
	case FieldObject:
		return docstore.Normalize(raw), nil
	}
	return nil, bad(fmt.Sprintf("field type %s is not updatable", f.Type))
}

func integer(raw any) (int64, error) {
	switch v := docstore.Normalize(raw).(type) {
	case int64:
		return v, nil
	case float64:
		if v == float64(int64(v)) {
			return int64(v), nil
		}
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err == nil {
			return n, nil
		}
	}
	return 0, errors.New("expected an integer")
}

// integers accepts a list or a comma separated string and drops duplicates.
func integers(raw any) ([]int64, error) {
	var items []any
	switch v := docstore.Normalize(raw).(type) {
	case []any:
		items = v
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
	case nil:
	default:
		return nil, errors.New("expected a list of ids")
	}
	out := make([]int64, 0, len(items))
	for _, it := range items {
		n, err := integer(it)
		if err != nil || n <= 0 {
			return nil, errors.New("expected positive integer ids")
		}
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out, nil
}
