// Package snapshot layers durable persistence over the in-memory document
// store: the working set lives in memory and every successful write flushes
// the touched collection to a Sink.
package snapshot

import (
	"context"
	"fmt"
	"sync"

	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/internal/infra/docstore/memory"
)

var _ docstore.Store = (*Store)(nil)

// Sink persists collections and counters.
type Sink interface {
	Load(ctx context.Context) (memory.Snapshot, error)
	SaveCollection(ctx context.Context, name string, docs []docstore.Document) error
	SaveCounter(ctx context.Context, name string, value int64) error
	Close() error
}

// Counter is implemented by sinks whose backend offers an atomic increment.
// When present it replaces the in-memory counter, which keeps ids unique
// across processes sharing the backend.
type Counter interface {
	NextID(ctx context.Context, name string) (int64, error)
}

// Store persists the in-memory state to a Sink after every write.
type Store struct {
	mem  *memory.Store
	sink Sink
	mu   sync.Mutex
}

// Open hydrates a store from the sink.
func Open(ctx context.Context, sink Sink) (*Store, error) {
	snap, err := sink.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	mem := memory.NewStore()
	mem.ImportState(snap)
	return &Store{mem: mem, sink: sink}, nil
}

// Memory exposes the working set, mainly for tests.
func (s *Store) Memory() *memory.Store { return s.mem }

// Collection implements docstore.Store.
func (s *Store) Collection(name string) docstore.Collection {
	return &collection{Collection: s.mem.Collection(name), store: s}
}

// EnsureIndex implements docstore.Store. Indexes live in memory only and are
// re-declared on every start.
func (s *Store) EnsureIndex(ctx context.Context, coll string, idx docstore.Index) error {
	return s.mem.EnsureIndex(ctx, coll, idx)
}

// NextID implements docstore.Store.
func (s *Store) NextID(ctx context.Context, counter string) (int64, error) {
	if c, ok := s.sink.(Counter); ok {
		return c.NextID(ctx, counter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.mem.NextID(ctx, counter)
	if err != nil {
		return 0, err
	}
	if err := s.sink.SaveCounter(ctx, counter, id); err != nil {
		return 0, fmt.Errorf("persist counter %s: %w", counter, err)
	}
	return id, nil
}

// Close implements docstore.Store.
func (s *Store) Close(ctx context.Context) error {
	if err := s.mem.Close(ctx); err != nil {
		return err
	}
	return s.sink.Close()
}

func (s *Store) persist(ctx context.Context, name string) error {
	if err := s.sink.SaveCollection(ctx, name, s.mem.ExportCollection(name)); err != nil {
		return fmt.Errorf("persist %s: %w", name, err)
	}
	return nil
}

type collection struct {
	docstore.Collection
	store *Store
}

func (c *collection) Insert(ctx context.Context, doc docstore.Document) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if err := c.Collection.Insert(ctx, doc); err != nil {
		return err
	}
	return c.store.persist(ctx, c.Name())
}

func (c *collection) Update(ctx context.Context, filter docstore.Filter, muts []docstore.Mutation) (docstore.UpdateResult, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	res, err := c.Collection.Update(ctx, filter, muts)
	if err != nil || res.Modified == 0 {
		return res, err
	}
	return res, c.store.persist(ctx, c.Name())
}
