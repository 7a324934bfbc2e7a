package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.xscloud.ru/xscloud/orders/pkg/application/cache"
	"gitea.xscloud.ru/xscloud/orders/pkg/application/logging"
	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/memcache"
)

type nopLogger struct{}

func (nopLogger) WithField(string, interface{}) logging.Logger { return nopLogger{} }
func (nopLogger) WithFields(logging.Fields) logging.Logger     { return nopLogger{} }
func (nopLogger) Debug(...interface{})                         {}
func (nopLogger) Info(...interface{})                          {}
func (nopLogger) Warning(error, ...interface{})                {}
func (nopLogger) Error(error, ...interface{})                  {}

type failingCache struct{}

func (failingCache) GetOrCreate(context.Context, string, time.Duration, cache.Factory) (interface{}, error) {
	return nil, errors.New("cache unavailable")
}

func (failingCache) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("cache unavailable")
}

func (failingCache) Remove(context.Context, string) error {
	return errors.New("cache unavailable")
}

func (failingCache) SetIfAbsent(context.Context, string, interface{}, time.Duration) (bool, error) {
	return false, errors.New("cache unavailable")
}

func TestGuard(t *testing.T) {
	ctx := context.Background()

	t.Run("marker round trip", func(t *testing.T) {
		guard := NewGuard(memcache.New(), time.Hour, "relay", nopLogger{})

		assert.False(t, guard.AlreadyHandled(ctx, "record-1"))
		guard.MarkHandled(ctx, "record-1")
		assert.True(t, guard.AlreadyHandled(ctx, "record-1"))
		assert.False(t, guard.AlreadyHandled(ctx, "record-2"))
	})

	t.Run("prefixes isolate relay and consumer markers", func(t *testing.T) {
		c := memcache.New()
		relayGuard := NewGuard(c, time.Hour, "relay", nopLogger{})
		consumerGuard := NewGuard(c, time.Hour, "consumer", nopLogger{})

		relayGuard.MarkHandled(ctx, "record-1")
		assert.True(t, relayGuard.AlreadyHandled(ctx, "record-1"))
		assert.False(t, consumerGuard.AlreadyHandled(ctx, "record-1"))
	})

	t.Run("cache failure degrades to not handled", func(t *testing.T) {
		guard := NewGuard(failingCache{}, time.Hour, "relay", nopLogger{})

		guard.MarkHandled(ctx, "record-1")
		assert.False(t, guard.AlreadyHandled(ctx, "record-1"))
	})
}

func TestLock(t *testing.T) {
	ctx := context.Background()

	t.Run("second acquire fails until release", func(t *testing.T) {
		c := memcache.New()
		first := NewLock(c, "outbox:relay:lock", 10*time.Second)
		second := NewLock(c, "outbox:relay:lock", 10*time.Second)

		acquired, err := first.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, acquired)

		acquired, err = second.Acquire(ctx)
		require.NoError(t, err)
		assert.False(t, acquired)

		require.NoError(t, first.Release(ctx))

		acquired, err = second.Acquire(ctx)
		require.NoError(t, err)
		assert.True(t, acquired)
	})

	t.Run("at most one of concurrent acquirers wins", func(t *testing.T) {
		c := memcache.New()

		var wg sync.WaitGroup
		results := make(chan bool, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				lock := NewLock(c, "outbox:relay:lock", 10*time.Second)
				acquired, err := lock.Acquire(ctx)
				assert.NoError(t, err)
				results <- acquired
			}()
		}
		wg.Wait()
		close(results)

		winners := 0
		for acquired := range results {
			if acquired {
				winners++
			}
		}
		assert.Equal(t, 1, winners)
	})
}
