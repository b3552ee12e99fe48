package docstore

import (
	"context"
	"errors"
)

// ErrDuplicateKey is returned (wrapped) when a write violates a unique index.
var ErrDuplicateKey = errors.New("docstore: duplicate key")

// ErrClosed is returned by stores and cursors used after Close.
var ErrClosed = errors.New("docstore: closed")

// UpdateResult reports how many documents matched the filter and how many
// were actually changed.
type UpdateResult struct {
	Matched  int64
	Modified int64
}

// Index declares a (possibly unique, possibly partial) index.
type Index struct {
	Name    string
	Keys    []string
	Unique  bool
	Partial Filter
}

// Cursor is a single-pass iterator over query results. Callers must Close it
// on every exit path.
type Cursor interface {
	Next(ctx context.Context) bool
	Document() Document
	Err() error
	Close(ctx context.Context) error
}

// Collection is the document-store surface the catalog depends on.
type Collection interface {
	Name() string
	Insert(ctx context.Context, doc Document) error
	Find(ctx context.Context, filter Filter, opts FindOptions) (Cursor, error)
	Update(ctx context.Context, filter Filter, muts []Mutation) (UpdateResult, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	Distinct(ctx context.Context, path string, filter Filter) ([]any, error)
	Aggregate(ctx context.Context, pipeline Pipeline) ([]Document, error)
}

// Store groups collections and the atomic counter primitive.
type Store interface {
	Collection(name string) Collection
	EnsureIndex(ctx context.Context, collection string, idx Index) error
	// NextID atomically increments and returns the named counter.
	NextID(ctx context.Context, counter string) (int64, error)
	Close(ctx context.Context) error
}

// FindAll drains a cursor into a slice and closes it.
func FindAll(ctx context.Context, c Collection, filter Filter, opts FindOptions) (docs []Document, err error) {
	cur, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := cur.Close(ctx); err == nil {
			err = cerr
		}
	}()
	for cur.Next(ctx) {
		docs = append(docs, cur.Document())
	}
	return docs, cur.Err()
}

// FindOne returns the first matching document. ok is false when none match.
func FindOne(ctx context.Context, c Collection, filter Filter, proj Projection) (Document, bool, error) {
	docs, err := FindAll(ctx, c, filter, FindOptions{Projection: proj, Limit: 1})
	if err != nil || len(docs) == 0 {
		return nil, false, err
	}
	return docs[0], true, nil
}

// SliceCursor iterates an in-memory result set.
type SliceCursor struct {
	docs   []Document
	pos    int
	closed bool
	err    error
}

// NewSliceCursor wraps docs in a Cursor.
func NewSliceCursor(docs []Document) *SliceCursor {
	return &SliceCursor{docs: docs, pos: -1}
}

// Next advances the cursor.
func (c *SliceCursor) Next(ctx context.Context) bool {
	if c.closed || c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	c.pos++
	return c.pos < len(c.docs)
}

// Document returns the current document.
func (c *SliceCursor) Document() Document {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return nil
	}
	return c.docs[c.pos]
}

// Err reports the error that stopped iteration.
func (c *SliceCursor) Err() error { return c.err }

// Close releases the cursor.
func (c *SliceCursor) Close(context.Context) error {
	c.closed = true
	c.docs = nil
	return nil
}

// Closed reports whether Close was called.
func (c *SliceCursor) Closed() bool { return c.closed }
