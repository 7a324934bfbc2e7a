package idempotency

import (
	"context"
	"time"

	"gitea.xscloud.ru/xscloud/orders/pkg/application/cache"
	"gitea.xscloud.ru/xscloud/orders/pkg/application/logging"
)

// Guard keeps time-bounded "already handled" markers. It is advisory:
// losing a marker causes at most duplicate work, never data loss.
type Guard struct {
	cache  cache.Cache
	ttl    time.Duration
	prefix string
	logger logging.Logger
}

func NewGuard(c cache.Cache, ttl time.Duration, prefix string, logger logging.Logger) *Guard {
	return &Guard{
		cache:  c,
		ttl:    ttl,
		prefix: prefix,
		logger: logger,
	}
}

func (g *Guard) AlreadyHandled(ctx context.Context, key string) bool {
	value, err := g.cache.GetOrCreate(ctx, g.cacheKey(key), g.ttl, func(context.Context) (interface{}, error) {
		return false, nil
	})
	if err != nil {
		g.logger.Warning(err, "idempotency marker lookup failed, assuming not handled")
		return false
	}
	handled, ok := value.(bool)
	return ok && handled
}

func (g *Guard) MarkHandled(ctx context.Context, key string) {
	if err := g.cache.Set(ctx, g.cacheKey(key), true, g.ttl); err != nil {
		g.logger.Warning(err, "failed to store idempotency marker")
	}
}

func (g *Guard) cacheKey(key string) string {
	return g.prefix + ":handled:" + key
}
