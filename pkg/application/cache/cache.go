package cache

import (
	"context"
	"time"
)

// Factory builds the value on a cache miss.
type Factory func(ctx context.Context) (interface{}, error)

// Cache is a best-effort side table. Callers must tolerate every operation
// failing: correctness never depends on a cached value being present.
type Cache interface {
	// GetOrCreate returns the cached value for key, or runs factory,
	// stores the result with the given ttl and returns it.
	GetOrCreate(ctx context.Context, key string, ttl time.Duration, factory Factory) (interface{}, error)

	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Remove(ctx context.Context, key string) error

	// SetIfAbsent atomically stores value under key only when no
	// unexpired value is present. It reports whether the store happened.
	SetIfAbsent(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}
