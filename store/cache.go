// Package store provides the shared cache used for entitlement and
// partition-set lookups. Redis when available, in-process otherwise.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/normgate/normgate/errors"
	"github.com/normgate/normgate/logger"
)

// Miss is returned by Get when a key is absent or expired.
var Miss = redis.Nil

// Cache is the minimal key/value surface NormGate needs. All values
// are serialized strings; callers own the encoding.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// IsMiss reports whether err indicates an absent key rather than a
// cache backend failure.
func IsMiss(err error) bool {
	return errors.Is(err, Miss)
}

// RedisCache backs Cache with a Redis server.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// MemoryCache is an in-process TTL cache used when Redis is not
// configured or unreachable. Expired entries are swept lazily on
// access.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memItem
}

type memItem struct {
	value     string
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: map[string]memItem{}}
}

func (m *MemoryCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	item, ok := m.items[key]
	if !ok {
		return "", Miss
	}
	return item.value, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	m.items[key] = memItem{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryCache) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *MemoryCache) sweepLocked() {
	now := time.Now()
	for k, v := range m.items {
		if now.After(v.expiresAt) {
			delete(m.items, k)
		}
	}
}

// NewCache returns a RedisCache when the client responds to a ping,
// otherwise an in-process MemoryCache. Entitlement lookups degrade
// gracefully either way.
func NewCache(ctx context.Context, client *redis.Client) Cache {
	if client != nil {
		if err := client.Ping(ctx).Err(); err == nil {
			return NewRedisCache(client)
		}
		logger.Warnw("redis unreachable, falling back to in-process cache")
	}
	return NewMemoryCache()
}
