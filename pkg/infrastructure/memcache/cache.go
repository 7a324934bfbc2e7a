package memcache

import (
	"context"
	"sync"
	"time"

	"gitea.xscloud.ru/xscloud/orders/pkg/application/cache"
)

// New returns an in-process TTL cache. Entries are evicted lazily on
// access, so an abandoned key occupies memory until its next read.
func New() cache.Cache {
	return &memCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func (c *memCache) GetOrCreate(ctx context.Context, key string, ttl time.Duration, factory cache.Factory) (interface{}, error) {
	if value, ok := c.get(key); ok {
		return value, nil
	}

	value, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	c.put(key, value, ttl)
	return value, nil
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	c.put(key, value, ttl)
	return nil
}

func (c *memCache) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *memCache) SetIfAbsent(_ context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.now().Before(e.expiresAt) {
		return false, nil
	}
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	return true, nil
}

func (c *memCache) get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *memCache) put(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}
