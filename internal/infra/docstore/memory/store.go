// Package memory provides an in-memory implementation of the document store
// used for tests, ephemeral environments and as the working set of the
// snapshotting backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bart-jansen/opencga/internal/docstore"
)

// Compile-time contract assertion.
var _ docstore.Store = (*Store)(nil)

// Snapshot is a point-in-time export of every collection and counter.
type Snapshot struct {
	Collections map[string][]docstore.Document `json:"collections"`
	Counters    map[string]int64               `json:"counters"`
}

type memoryState struct {
	collections map[string][]docstore.Document
	indexes     map[string][]docstore.Index
	counters    map[string]int64
}

func newMemoryState() memoryState {
	return memoryState{
		collections: make(map[string][]docstore.Document),
		indexes:     make(map[string][]docstore.Index),
		counters:    make(map[string]int64),
	}
}

// Store keeps documents in process memory. Every write works on a copy of the
// target collection and replaces it only when the whole write succeeds.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	closed bool
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{state: newMemoryState()}
}

// ExportState returns a deep copy of the stored documents and counters.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exportLocked()
}

// ExportCollection returns a deep copy of one collection.
func (s *Store) ExportCollection(name string) []docstore.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneDocs(s.state.collections[name])
}

func (s *Store) exportLocked() Snapshot {
	snap := Snapshot{
		Collections: make(map[string][]docstore.Document, len(s.state.collections)),
		Counters:    make(map[string]int64, len(s.state.counters)),
	}
	for name, docs := range s.state.collections {
		snap.Collections[name] = cloneDocs(docs)
	}
	for name, v := range s.state.counters {
		snap.Counters[name] = v
	}
	return snap
}

// ImportState replaces the stored documents and counters. Indexes are kept.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.collections = make(map[string][]docstore.Document, len(snap.Collections))
	for name, docs := range snap.Collections {
		normalized := make([]docstore.Document, len(docs))
		for i, d := range docs {
			normalized[i] = docstore.Document(docstore.Normalize(map[string]any(d)).(map[string]any))
		}
		s.state.collections[name] = normalized
	}
	s.state.counters = make(map[string]int64, len(snap.Counters))
	for name, v := range snap.Counters {
		s.state.counters[name] = v
	}
}

// CollectionNames lists the collections holding at least one document.
func (s *Store) CollectionNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.state.collections))
	for name := range s.state.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Collection implements docstore.Store.
func (s *Store) Collection(name string) docstore.Collection {
	return &collection{store: s, name: name}
}

// EnsureIndex implements docstore.Store. Existing documents must already
// satisfy a new unique index.
func (s *Store) EnsureIndex(ctx context.Context, coll string, idx docstore.Index) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.state.collections[coll]
	if idx.Unique {
		seen := map[string]struct{}{}
		for _, d := range docs {
			key, ok := indexKey(idx, d)
			if !ok {
				continue
			}
			if _, dup := seen[key]; dup {
				return fmt.Errorf("%w: index %s on %s already violated", docstore.ErrDuplicateKey, idx.Name, coll)
			}
			seen[key] = struct{}{}
		}
	}
	existing := s.state.indexes[coll]
	for i, cur := range existing {
		if cur.Name == idx.Name {
			existing[i] = idx
			return nil
		}
	}
	s.state.indexes[coll] = append(existing, idx)
	return nil
}

// NextID implements docstore.Store.
func (s *Store) NextID(ctx context.Context, counter string) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.counters[counter]++
	return s.state.counters[counter], nil
}

// Close implements docstore.Store.
func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return docstore.ErrClosed
	}
	return nil
}

type collection struct {
	store *Store
	name  string
}

func (c *collection) Name() string { return c.name }

func (c *collection) Insert(ctx context.Context, doc docstore.Document) error {
	if err := c.store.check(ctx); err != nil {
		return err
	}
	if _, ok := doc[docstore.IDField]; !ok {
		return fmt.Errorf("insert into %s: document without %s", c.name, docstore.IDField)
	}
	candidate := docstore.Document(docstore.Normalize(map[string]any(doc)).(map[string]any))

	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	docs := c.store.state.collections[c.name]
	if err := c.checkUnique(docs, candidate, -1); err != nil {
		return err
	}
	c.store.state.collections[c.name] = append(docs, candidate)
	return nil
}

func (c *collection) Find(ctx context.Context, filter docstore.Filter, opts docstore.FindOptions) (docstore.Cursor, error) {
	if err := c.store.check(ctx); err != nil {
		return nil, err
	}
	c.store.mu.RLock()
	docs := cloneDocs(c.store.state.collections[c.name])
	c.store.mu.RUnlock()
	return docstore.NewSliceCursor(docstore.ApplyFind(docs, filter, opts)), nil
}

func (c *collection) Update(ctx context.Context, filter docstore.Filter, muts []docstore.Mutation) (docstore.UpdateResult, error) {
	if err := c.store.check(ctx); err != nil {
		return docstore.UpdateResult{}, err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	current := c.store.state.collections[c.name]
	next := make([]docstore.Document, len(current))
	copy(next, current)

	var res docstore.UpdateResult
	var touched []int
	for i, d := range current {
		if filter != nil && !filter.Match(d) {
			continue
		}
		res.Matched++
		updated, modified, err := docstore.Apply(d, muts)
		if err != nil {
			return docstore.UpdateResult{}, fmt.Errorf("update %s: %w", c.name, err)
		}
		if !modified {
			continue
		}
		res.Modified++
		next[i] = updated
		touched = append(touched, i)
	}
	for _, i := range touched {
		if err := c.checkUnique(next, next[i], i); err != nil {
			return docstore.UpdateResult{}, err
		}
	}
	c.store.state.collections[c.name] = next
	return res, nil
}

func (c *collection) Count(ctx context.Context, filter docstore.Filter) (int64, error) {
	if err := c.store.check(ctx); err != nil {
		return 0, err
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	var n int64
	for _, d := range c.store.state.collections[c.name] {
		if filter == nil || filter.Match(d) {
			n++
		}
	}
	return n, nil
}

func (c *collection) Distinct(ctx context.Context, path string, filter docstore.Filter) ([]any, error) {
	if err := c.store.check(ctx); err != nil {
		return nil, err
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return distinct(c.store.state.collections[c.name], path, filter), nil
}

func (c *collection) Aggregate(ctx context.Context, pipeline docstore.Pipeline) ([]docstore.Document, error) {
	if err := c.store.check(ctx); err != nil {
		return nil, err
	}
	c.store.mu.RLock()
	docs := c.store.state.collections[c.name]
	c.store.mu.RUnlock()
	return docstore.RunPipeline(docs, pipeline), nil
}

// checkUnique validates candidate (stored at position self, or -1 for a new
// document) against the _id key and every unique index. Caller holds the lock.
func (c *collection) checkUnique(docs []docstore.Document, candidate docstore.Document, self int) error {
	id := candidate[docstore.IDField]
	for i, d := range docs {
		if i != self && docstore.Equal(d[docstore.IDField], id) {
			return fmt.Errorf("%w: %s %s=%v", docstore.ErrDuplicateKey, c.name, docstore.IDField, id)
		}
	}
	for _, idx := range c.store.state.indexes[c.name] {
		if !idx.Unique {
			continue
		}
		key, ok := indexKey(idx, candidate)
		if !ok {
			continue
		}
		for i, d := range docs {
			if i == self {
				continue
			}
			if other, ok := indexKey(idx, d); ok && other == key {
				return fmt.Errorf("%w: %s index %s %s", docstore.ErrDuplicateKey, c.name, idx.Name, key)
			}
		}
	}
	return nil
}

// indexKey renders the index tuple of doc. ok is false when doc falls outside
// a partial index.
func indexKey(idx docstore.Index, doc docstore.Document) (string, bool) {
	if idx.Partial != nil && !idx.Partial.Match(doc) {
		return "", false
	}
	tuple := make([]any, len(idx.Keys))
	for i, k := range idx.Keys {
		tuple[i], _ = doc.Get(k)
	}
	return docstore.Key(tuple), true
}

func distinct(docs []docstore.Document, path string, filter docstore.Filter) []any {
	seen := map[string]struct{}{}
	out := []any{}
	for _, d := range docs {
		if filter != nil && !filter.Match(d) {
			continue
		}
		for _, v := range docstore.Lookup(d, path) {
			if _, isArr := v.([]any); isArr {
				continue
			}
			k := docstore.Key(v)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func cloneDocs(docs []docstore.Document) []docstore.Document {
	out := make([]docstore.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}
