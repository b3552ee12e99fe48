package core

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/bart-jansen/opencga/internal/config"
	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/internal/ids"
	"github.com/bart-jansen/opencga/pkg/domain"
)

// allocators builds one id allocator per entity kind.
type allocators struct {
	cfg    config.IDsConfig
	store  docstore.Store
	client *redis.Client
}

func openAllocators(ctx context.Context, cfg config.IDsConfig, store docstore.Store, kinds []domain.EntityKind) (*allocators, map[domain.EntityKind]ids.Allocator, error) {
	a := &allocators{cfg: cfg, store: store}
	out := make(map[domain.EntityKind]ids.Allocator, len(kinds))
	for _, kind := range kinds {
		alloc, err := a.forKind(ctx, kind)
		if err != nil {
			_ = a.Close()
			return nil, nil, err
		}
		out[kind] = alloc
	}
	return a, out, nil
}

func (a *allocators) forKind(ctx context.Context, kind domain.EntityKind) (ids.Allocator, error) {
	switch a.cfg.Driver {
	case "", config.IDsStore:
		return ids.NewStoreAllocator(a.store, string(kind)), nil
	case config.IDsRedis:
		key := a.cfg.RedisPrefix + string(kind)
		if a.client != nil {
			return ids.NewRedisAllocator(a.client, key), nil
		}
		alloc, client, err := ids.DialRedis(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB, key)
		if err != nil {
			return nil, err
		}
		a.client = client
		return alloc, nil
	case config.IDsFile:
		alloc, err := ids.NewFileAllocator(filepath.Join(a.cfg.FileDir, string(kind)+".id"))
		if err != nil {
			return nil, err
		}
		return alloc, nil
	default:
		return nil, fmt.Errorf("unknown id driver %s", a.cfg.Driver)
	}
}

// Close releases the redis connection, if any.
func (a *allocators) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}
