package ids

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/bart-jansen/opencga/pkg/domain"
)

// Incrementer is the subset of the redis client the allocator needs.
// *redis.Client and *redis.ClusterClient satisfy it.
type Incrementer interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// RedisAllocator issues ids with INCR on a single key.
type RedisAllocator struct {
	client Incrementer
	key    string
	mono   monotonic
}

// NewRedisAllocator returns an allocator incrementing key.
func NewRedisAllocator(client Incrementer, key string) *RedisAllocator {
	return &RedisAllocator{client: client, key: key}
}

// DialRedis connects to addr and returns an allocator for key.
func DialRedis(ctx context.Context, addr, password string, db int, key string) (*RedisAllocator, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, domain.StoreError{Op: "ids.redis ping " + addr, Err: err}
	}
	return NewRedisAllocator(client, key), client, nil
}

// Next implements Allocator.
func (a *RedisAllocator) Next(ctx context.Context) (int64, error) {
	return a.mono.next(ctx, "ids.incr "+a.key, func(ctx context.Context) (int64, error) {
		return a.client.Incr(ctx, a.key).Result()
	})
}
