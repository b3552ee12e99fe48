// Package ids issues catalog entity identifiers. Every allocator delegates
// uniqueness to an atomic increment owned by its backend, so allocators in
// different processes sharing a backend never hand out the same id.
package ids

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bart-jansen/opencga/pkg/domain"
)

// Allocator returns unique, positive, strictly increasing identifiers.
type Allocator interface {
	Next(ctx context.Context) (int64, error)
}

// ErrCounterRegressed reports a backend value that is not positive or not
// greater than the last value this allocator returned.
var ErrCounterRegressed = errors.New("counter did not advance")

// Counter is the atomic increment primitive of a document store.
type Counter interface {
	NextID(ctx context.Context, counter string) (int64, error)
}

// monotonic rejects backend values that would break the allocator contract.
// The backend call runs under mu so that concurrent callers observe values in
// the order the backend issued them.
type monotonic struct {
	mu   sync.Mutex
	last int64
}

func (m *monotonic) next(ctx context.Context, op string, fetch func(context.Context) (int64, error)) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := fetch(ctx)
	if err != nil {
		return 0, domain.StoreError{Op: op, Err: err}
	}
	return m.accept(op, id)
}

func (m *monotonic) accept(op string, id int64) (int64, error) {
	if id <= 0 || id <= m.last {
		return 0, domain.StoreError{Op: op, Err: fmt.Errorf("%w: got %d after %d", ErrCounterRegressed, id, m.last)}
	}
	m.last = id
	return id, nil
}

// StoreAllocator draws ids from a named document-store counter.
type StoreAllocator struct {
	store   Counter
	counter string
	mono    monotonic
}

// NewStoreAllocator returns an allocator over the named counter.
func NewStoreAllocator(store Counter, counter string) *StoreAllocator {
	return &StoreAllocator{store: store, counter: counter}
}

// Next implements Allocator.
func (a *StoreAllocator) Next(ctx context.Context) (int64, error) {
	return a.mono.next(ctx, "ids.next "+a.counter, func(ctx context.Context) (int64, error) {
		return a.store.NextID(ctx, a.counter)
	})
}

// Func adapts a function to Allocator.
type Func func(ctx context.Context) (int64, error)

// Next implements Allocator.
func (f Func) Next(ctx context.Context) (int64, error) { return f(ctx) }
