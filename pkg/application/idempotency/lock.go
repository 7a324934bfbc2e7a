package idempotency

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gitea.xscloud.ru/xscloud/orders/pkg/application/cache"
)

// Lock is an advisory cross-instance lock backed by an atomic
// conditional set with a TTL. An unconditional "set key" gives no mutual
// exclusion, so acquisition must fail when an unexpired holder exists.
type Lock struct {
	cache cache.Cache
	name  string
	ttl   time.Duration
}

func NewLock(c cache.Cache, name string, ttl time.Duration) *Lock {
	return &Lock{
		cache: c,
		name:  name,
		ttl:   ttl,
	}
}

// Acquire reports whether this instance now holds the lock. A false
// result means another holder is assumed active and the caller should
// skip its pass.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	return l.cache.SetIfAbsent(ctx, l.name, uuid.NewString(), l.ttl)
}

// Release must run on all paths after a successful Acquire, or future
// passes stall until the TTL expires.
func (l *Lock) Release(ctx context.Context) error {
	return l.cache.Remove(ctx, l.name)
}
