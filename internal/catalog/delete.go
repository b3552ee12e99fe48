package catalog

import (
	"context"
	"errors"

	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/internal/lifecycle"
	"github.com/bart-jansen/opencga/internal/query"
	"github.com/bart-jansen/opencga/pkg/domain"
)

// deleteAttempts bounds retries when the status moves between read and write.
const deleteAttempts = 3

var errStatusContended = errors.New("status changed during delete")

// Delete soft-deletes entity id. The status and its timestamp change in one
// conditional update; an entity already DELETED or REMOVED is left untouched
// and reported as AlreadyDeleted.
func (a *Adaptor[T]) Delete(ctx context.Context, id int64) (T, error) {
	var out T
	err := a.run(ctx, "delete", func(ctx context.Context) error {
		if err := a.softDelete(ctx, id); err != nil {
			return err
		}
		doc, err := a.findExact(ctx, id, docstore.Projection{})
		if err != nil {
			return err
		}
		out, err = fromDocument[T](doc)
		if err != nil {
			return a.storeErr("delete", err)
		}
		return nil
	})
	return out, err
}

// DeleteByQuery soft-deletes every entity matching q one at a time and
// returns how many were deleted. The first failure stops the batch with a
// BatchError naming the query and the failing id.
func (a *Adaptor[T]) DeleteByQuery(ctx context.Context, q query.Query) (int, error) {
	var done int
	err := a.run(ctx, "delete_query", func(ctx context.Context) error {
		targets, err := a.targets(ctx, q)
		if err != nil {
			return err
		}
		for _, t := range targets {
			if err := a.softDelete(ctx, t.id); err != nil {
				return domain.BatchError{Query: q.String(), ID: t.id, Completed: done, Err: err}
			}
			done++
		}
		return nil
	})
	return done, err
}

// Remove is declared by the lifecycle but not implemented.
func (a *Adaptor[T]) Remove(ctx context.Context, id int64) error {
	return a.run(ctx, "remove", func(context.Context) error {
		_, err := lifecycle.Guard(a.kind.Name, id, "", lifecycle.Remove)
		return err
	})
}

// Restore is declared by the lifecycle but not implemented.
func (a *Adaptor[T]) Restore(ctx context.Context, id int64) error {
	return a.run(ctx, "restore", func(context.Context) error {
		_, err := lifecycle.Guard(a.kind.Name, id, "", lifecycle.Restore)
		return err
	})
}

func (a *Adaptor[T]) softDelete(ctx context.Context, id int64) error {
	for range deleteAttempts {
		doc, err := a.findExact(ctx, id, docstore.Projection{Include: []string{lifecycle.StatusPath}})
		if err != nil {
			return err
		}
		current := domain.StatusName(doc.String(lifecycle.StatusPath))
		target, err := lifecycle.Guard(a.kind.Name, id, current, lifecycle.Delete)
		if err != nil {
			return err
		}
		res, err := a.coll.Update(ctx, docstore.AllOf(
			docstore.Eq(query.PathID, id),
			docstore.Eq(lifecycle.StatusPath, string(current)),
		), lifecycle.StatusPatch(target, a.hooks.Clock.Now()))
		if err != nil {
			return a.storeErr("delete", err)
		}
		if res.Modified > 0 {
			a.hooks.Logger.Debug("entity deleted", "entity", a.kind.Name, "id", id)
			return nil
		}
	}
	return a.storeErr("delete", errStatusContended)
}

// findExact reads entity id regardless of its status.
func (a *Adaptor[T]) findExact(ctx context.Context, id int64, proj docstore.Projection) (docstore.Document, error) {
	filter, err := query.CompileExact(query.Query{query.KeyID: id}, a.kind.Params, nil)
	if err != nil {
		return nil, err
	}
	doc, ok, err := docstore.FindOne(ctx, a.coll, filter, proj)
	if err != nil {
		return nil, a.storeErr("get", err)
	}
	if !ok {
		return nil, domain.NotFoundError{Entity: a.kind.Name, ID: id}
	}
	return doc, nil
}

type target struct {
	id    int64
	study int64
}

// targets snapshots the entities matching q so batch writes never run against
// an open cursor.
func (a *Adaptor[T]) targets(ctx context.Context, q query.Query) ([]target, error) {
	filter, err := a.compile(ctx, q)
	if err != nil {
		return nil, err
	}
	docs, err := docstore.FindAll(ctx, a.coll, filter, docstore.FindOptions{
		Projection: docstore.Projection{Include: []string{query.PathID, query.PathStudy}},
		Sort:       []docstore.SortField{{Path: query.PathID}},
	})
	if err != nil {
		return nil, a.storeErr("select", err)
	}
	out := make([]target, 0, len(docs))
	for _, d := range docs {
		id, _ := d.Int64(query.PathID)
		study, _ := d.Int64(query.PathStudy)
		out = append(out, target{id: id, study: study})
	}
	return out, nil
}
