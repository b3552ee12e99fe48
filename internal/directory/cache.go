package directory

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bart-jansen/opencga/pkg/domain"
)

// DefaultCacheSize is used when a non-positive size is requested.
const DefaultCacheSize = 128

// CachedVariableSets memoizes a provider. Lookup failures are not cached.
type CachedVariableSets struct {
	next  domain.VariableSetProvider
	cache *lru.Cache[int64, domain.VariableSet]
}

var _ domain.VariableSetProvider = (*CachedVariableSets)(nil)

// NewCachedVariableSets wraps next with an LRU cache of size entries.
func NewCachedVariableSets(next domain.VariableSetProvider, size int) (*CachedVariableSets, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[int64, domain.VariableSet](size)
	if err != nil {
		return nil, fmt.Errorf("variable set cache: %w", err)
	}
	return &CachedVariableSets{next: next, cache: cache}, nil
}

// VariableSet implements domain.VariableSetProvider.
func (c *CachedVariableSets) VariableSet(ctx context.Context, id int64) (domain.VariableSet, error) {
	if vs, ok := c.cache.Get(id); ok {
		return vs, nil
	}
	vs, err := c.next.VariableSet(ctx, id)
	if err != nil {
		return domain.VariableSet{}, err
	}
	c.cache.Add(id, vs)
	return vs, nil
}

// Len returns the number of cached sets.
func (c *CachedVariableSets) Len() int { return c.cache.Len() }
