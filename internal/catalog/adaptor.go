package catalog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/bart-jansen/opencga/internal/acl"
	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/internal/ids"
	"github.com/bart-jansen/opencga/internal/lifecycle"
	"github.com/bart-jansen/opencga/internal/query"
	"github.com/bart-jansen/opencga/internal/telemetry"
	"github.com/bart-jansen/opencga/pkg/domain"
)

// KindStudy names studies in NotFound errors.
const KindStudy domain.EntityKind = "study"

// Options shapes reads. Keys use the public field names.
type Options struct {
	Include    []string
	Exclude    []string
	Sort       []string
	Descending bool
	Skip       int
	Limit      int
}

// Adaptor exposes the catalog operations for one entity kind.
type Adaptor[T any] struct {
	kind      Kind[T]
	store     docstore.Store
	coll      docstore.Collection
	dir       domain.StudyDirectory
	acl       *acl.Engine
	hooks     telemetry.Hooks
	timeout   time.Duration
	allocator ids.Allocator
	schemas   domain.VariableSetProvider
	existence domain.ExistenceChecker
}

// New wires an adaptor and ensures the per-study unique name index, which is
// partial on ACTIVE so soft-deleted names can be reused.
func New[T any](ctx context.Context, store docstore.Store, kind Kind[T], dir domain.StudyDirectory, opts ...Option) (*Adaptor[T], error) {
	if store == nil {
		return nil, errors.New("catalog: store is required")
	}
	if dir == nil {
		return nil, errors.New("catalog: study directory is required")
	}
	if kind.Name == "" || kind.Params == nil || kind.Base == nil {
		return nil, fmt.Errorf("catalog: kind %q is incomplete", kind.Name)
	}
	o := adaptorOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	o.hooks = o.hooks.Defaults()
	coll := store.Collection(kind.Collection())
	if o.allocator == nil {
		o.allocator = ids.NewStoreAllocator(store, kind.Collection())
	}
	if o.existence == nil {
		o.existence = StoreExistence{Store: store}
	}
	engine, err := acl.New(acl.Config{
		Collection:  coll,
		Kind:        kind.Name,
		Permissions: kind.Permissions,
		Directory:   dir,
		Hooks:       o.hooks,
	})
	if err != nil {
		return nil, err
	}
	a := &Adaptor[T]{
		kind:      kind,
		store:     store,
		coll:      coll,
		dir:       dir,
		acl:       engine,
		hooks:     o.hooks,
		timeout:   o.timeout,
		allocator: o.allocator,
		schemas:   o.schemas,
		existence: o.existence,
	}
	err = store.EnsureIndex(ctx, kind.Collection(), docstore.Index{
		Name:    "study_name",
		Keys:    []string{query.PathStudy, query.PathName},
		Unique:  true,
		Partial: docstore.Eq(lifecycle.StatusPath, string(domain.StatusActive)),
	})
	if err != nil {
		return nil, domain.StoreError{Op: a.op("ensure_index"), Err: err}
	}
	return a, nil
}

// Kind returns the kind descriptor.
func (a *Adaptor[T]) Kind() Kind[T] { return a.kind }

// Create validates entity, allocates its id and stores it ACTIVE in study.
// The stored form is read back and returned.
func (a *Adaptor[T]) Create(ctx context.Context, studyID int64, entity T) (T, error) {
	var out T
	err := a.run(ctx, "create", func(ctx context.Context) error {
		base := a.kind.Base(&entity)
		base.StudyID = studyID
		if base.Name == "" {
			return domain.InvalidArgumentError{Field: "name", Value: base.Name, Reason: "name is required"}
		}
		if a.kind.Validate != nil {
			if err := a.kind.Validate(&entity); err != nil {
				return err
			}
		}
		ok, err := a.dir.StudyExists(ctx, studyID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFoundError{Entity: KindStudy, ID: studyID}
		}
		if a.kind.References != nil {
			for _, ref := range a.kind.References(&entity) {
				if len(ref.IDs) == 0 {
					continue
				}
				if err := a.existence.Exists(ctx, studyID, ref.Kind, ref.IDs); err != nil {
					return err
				}
			}
		}
		taken, err := a.coll.Count(ctx, docstore.AllOf(
			docstore.Eq(query.PathStudy, studyID),
			docstore.Eq(query.PathName, base.Name),
			docstore.Eq(lifecycle.StatusPath, string(domain.StatusActive)),
		))
		if err != nil {
			return a.storeErr("create", err)
		}
		if taken > 0 {
			return a.nameTaken(studyID, base.Name)
		}

		id, err := a.allocator.Next(ctx)
		if err != nil {
			return err
		}
		now := a.hooks.Clock.Now()
		base.ID = id
		base.Status = lifecycle.Initial(now)
		base.CreationDate = lifecycle.Stamp(now)
		if base.Acls == nil {
			base.Acls = []domain.PermissionEntry{}
		}
		if base.AnnotationSets == nil {
			base.AnnotationSets = []domain.AnnotationSet{}
		}
		doc, err := toDocument(entity)
		if err != nil {
			return err
		}
		if err := a.coll.Insert(ctx, doc); err != nil {
			if errors.Is(err, docstore.ErrDuplicateKey) {
				return a.nameTaken(studyID, base.Name)
			}
			return a.storeErr("create", err)
		}
		a.hooks.Logger.Debug("entity created", "entity", a.kind.Name, "id", id, "study", studyID)
		out, err = a.get(ctx, id)
		return err
	})
	return out, err
}

// GetByID returns the visible entity with id.
func (a *Adaptor[T]) GetByID(ctx context.Context, id int64) (T, error) {
	var out T
	err := a.run(ctx, "get", func(ctx context.Context) error {
		var err error
		out, err = a.get(ctx, id)
		return err
	})
	return out, err
}

// StudyOf returns the owning study of a visible entity.
func (a *Adaptor[T]) StudyOf(ctx context.Context, id int64) (int64, error) {
	var studyID int64
	err := a.run(ctx, "study", func(ctx context.Context) error {
		doc, err := a.findVisible(ctx, id, docstore.Projection{Include: []string{query.PathStudy}})
		if err != nil {
			return err
		}
		studyID, _ = doc.Int64(query.PathStudy)
		return nil
	})
	return studyID, err
}

// Search returns every entity matching q.
func (a *Adaptor[T]) Search(ctx context.Context, q query.Query, opts Options) ([]T, error) {
	out := []T{}
	for v, err := range a.Iterate(ctx, q, opts) {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Count returns the number of entities matching q.
func (a *Adaptor[T]) Count(ctx context.Context, q query.Query) (int64, error) {
	var n int64
	err := a.run(ctx, "count", func(ctx context.Context) error {
		filter, err := a.compile(ctx, q)
		if err != nil {
			return err
		}
		n, err = a.coll.Count(ctx, filter)
		if err != nil {
			return a.storeErr("count", err)
		}
		return nil
	})
	return n, err
}

// Distinct returns the distinct values of field over entities matching q.
func (a *Adaptor[T]) Distinct(ctx context.Context, q query.Query, field string) ([]any, error) {
	var out []any
	err := a.run(ctx, "distinct", func(ctx context.Context) error {
		filter, err := a.compile(ctx, q)
		if err != nil {
			return err
		}
		path, err := a.path(field)
		if err != nil {
			return err
		}
		out, err = a.coll.Distinct(ctx, path, filter)
		if err != nil {
			return a.storeErr("distinct", err)
		}
		if out == nil {
			out = []any{}
		}
		return nil
	})
	return out, err
}

// Iterate lazily yields the entities matching q. The cursor is released when
// iteration ends, fails or the caller stops early.
func (a *Adaptor[T]) Iterate(ctx context.Context, q query.Query, opts Options) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		_ = a.run(ctx, "iterate", func(ctx context.Context) (err error) {
			defer func() {
				if err != nil {
					yield(zero, err)
				}
			}()
			filter, err := a.compile(ctx, q)
			if err != nil {
				return err
			}
			fo, err := a.findOptions(opts)
			if err != nil {
				return err
			}
			cur, err := a.coll.Find(ctx, filter, fo)
			if err != nil {
				return a.storeErr("iterate", err)
			}
			defer func() { _ = cur.Close(context.WithoutCancel(ctx)) }()
			for cur.Next(ctx) {
				v, err := fromDocument[T](cur.Document())
				if err != nil {
					return a.storeErr("iterate", err)
				}
				if !yield(v, nil) {
					return nil
				}
			}
			if err := cur.Err(); err != nil {
				return a.storeErr("iterate", err)
			}
			return nil
		})
	}
}

// ForEach calls fn for every entity matching q and stops at the first error.
func (a *Adaptor[T]) ForEach(ctx context.Context, q query.Query, opts Options, fn func(T) error) error {
	for v, err := range a.Iterate(ctx, q, opts) {
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adaptor[T]) get(ctx context.Context, id int64) (T, error) {
	var zero T
	doc, err := a.findVisible(ctx, id, docstore.Projection{})
	if err != nil {
		return zero, err
	}
	v, err := fromDocument[T](doc)
	if err != nil {
		return zero, a.storeErr("get", err)
	}
	return v, nil
}

func (a *Adaptor[T]) findVisible(ctx context.Context, id int64, proj docstore.Projection) (docstore.Document, error) {
	filter, err := query.Compile(query.Query{query.KeyID: id}, a.kind.Params, nil)
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

// compile translates q with the variable set it pins, if any.
func (a *Adaptor[T]) compile(ctx context.Context, q query.Query) (docstore.Filter, error) {
	var schema *domain.VariableSet
	if id, ok := query.VariableSetOf(q); ok && a.schemas != nil {
		vs, err := a.schemas.VariableSet(ctx, id)
		if err != nil {
			return nil, err
		}
		schema = &vs
	}
	return query.Compile(q, a.kind.Params, schema)
}

// path maps a public field name to its document path. Names outside the
// param table address the document directly.
func (a *Adaptor[T]) path(field string) (string, error) {
	b, err := a.kind.Params.Resolve(field)
	if err != nil {
		return field, nil
	}
	switch b.Strategy {
	case query.IDAlias, query.Direct, query.AttributeMap:
		return b.StoragePath()
	}
	return "", domain.InvalidArgumentError{Field: "field", Value: field, Reason: "not a document field"}
}

func (a *Adaptor[T]) paths(fields []string) ([]string, error) {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		p, err := a.path(f)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (a *Adaptor[T]) findOptions(opts Options) (docstore.FindOptions, error) {
	if len(opts.Include) > 0 && len(opts.Exclude) > 0 {
		return docstore.FindOptions{}, domain.InvalidArgumentError{Field: "include", Value: opts.Include, Reason: "include and exclude are exclusive"}
	}
	if opts.Skip < 0 || opts.Limit < 0 {
		return docstore.FindOptions{}, domain.InvalidArgumentError{Field: "limit", Value: opts.Limit, Reason: "skip and limit must not be negative"}
	}
	include, err := a.paths(opts.Include)
	if err != nil {
		return docstore.FindOptions{}, err
	}
	exclude, err := a.paths(opts.Exclude)
	if err != nil {
		return docstore.FindOptions{}, err
	}
	sortPaths, err := a.paths(opts.Sort)
	if err != nil {
		return docstore.FindOptions{}, err
	}
	fo := docstore.FindOptions{
		Projection: docstore.Projection{Include: include, Exclude: exclude},
		Skip:       opts.Skip,
		Limit:      opts.Limit,
	}
	for _, p := range sortPaths {
		fo.Sort = append(fo.Sort, docstore.SortField{Path: p, Desc: opts.Descending})
	}
	if len(fo.Sort) == 0 {
		fo.Sort = []docstore.SortField{{Path: query.PathID}}
	}
	return fo, nil
}

func (a *Adaptor[T]) nameTaken(studyID int64, name string) error {
	return domain.AlreadyExistsError{Entity: a.kind.Name, StudyID: studyID, Field: "name", Value: name}
}

func (a *Adaptor[T]) op(name string) string { return fmt.Sprintf("%s.%s", a.kind.Name, name) }

func (a *Adaptor[T]) storeErr(op string, err error) error {
	return domain.StoreError{Op: a.op(op), Err: err}
}

// run bounds fn by the adaptor timeout and reports it to the hooks.
func (a *Adaptor[T]) run(ctx context.Context, name string, fn func(context.Context) error) error {
	return a.hooks.Run(ctx, a.op(name), func(ctx context.Context) error {
		ctx, cancel := a.bound(ctx)
		defer cancel()
		return fn(ctx)
	})
}

func (a *Adaptor[T]) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}
