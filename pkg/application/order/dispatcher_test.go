package order

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.xscloud.ru/xscloud/orders/pkg/application/cache"
	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/memcache"
)

type recordingGuard struct {
	mu      sync.Mutex
	handled map[string]bool
}

func newRecordingGuard() *recordingGuard {
	return &recordingGuard{handled: map[string]bool{}}
}

func (g *recordingGuard) AlreadyHandled(_ context.Context, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handled[key]
}

func (g *recordingGuard) MarkHandled(_ context.Context, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handled[key] = true
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return body
}

func cachedOrder(t *testing.T, c cache.Cache, id string) {
	t.Helper()
	require.NoError(t, c.Set(context.Background(), orderCacheKey(id), &Order{ID: id}, time.Minute))
}

func cacheHolds(c cache.Cache, id string) bool {
	value, err := c.GetOrCreate(context.Background(), orderCacheKey(id), time.Minute, func(context.Context) (interface{}, error) {
		return nil, nil
	})
	return err == nil && value != nil
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("order created invalidates the cached order", func(t *testing.T) {
		c := memcache.New()
		d := NewDispatcher(c, newRecordingGuard(), nopLogger{})
		cachedOrder(t, c, "42")

		body := mustMarshal(t, OrderCreatedPayload{OrderID: "42", CustomerName: "A", Amount: 100})
		require.NoError(t, d.Dispatch(ctx, "ordercreated", body))
		assert.False(t, cacheHolds(c, "42"))
	})

	t.Run("duplicate created delivery is acknowledged without reprocessing", func(t *testing.T) {
		c := memcache.New()
		guard := newRecordingGuard()
		d := NewDispatcher(c, guard, nopLogger{})

		body := mustMarshal(t, OrderCreatedPayload{OrderID: "42", CustomerName: "A", Amount: 100})
		require.NoError(t, d.Dispatch(ctx, "ordercreated", body))
		assert.True(t, guard.AlreadyHandled(ctx, dedupKey(MessageTypeOrderCreated, "42")))

		// redelivery of the same message succeeds and stays handled
		require.NoError(t, d.Dispatch(ctx, "ordercreated", body))
	})

	t.Run("status updated and deleted handlers invalidate", func(t *testing.T) {
		c := memcache.New()
		d := NewDispatcher(c, newRecordingGuard(), nopLogger{})

		cachedOrder(t, c, "42")
		body := mustMarshal(t, OrderStatusUpdatedPayload{OrderID: "42", OldStatus: StatusPending, NewStatus: StatusProcessed})
		require.NoError(t, d.Dispatch(ctx, "orderstatusupdated", body))
		assert.False(t, cacheHolds(c, "42"))

		cachedOrder(t, c, "42")
		body = mustMarshal(t, OrderDeletedPayload{OrderID: "42", CustomerName: "A", Status: StatusPending})
		require.NoError(t, d.Dispatch(ctx, "orderdeleted", body))
		assert.False(t, cacheHolds(c, "42"))
	})

	t.Run("routing keys are matched case-insensitively", func(t *testing.T) {
		d := NewDispatcher(memcache.New(), newRecordingGuard(), nopLogger{})
		body := mustMarshal(t, OrderCreatedPayload{OrderID: "42"})
		assert.NoError(t, d.Dispatch(ctx, "OrderCreated", body))
	})

	t.Run("unknown type is treated as handled", func(t *testing.T) {
		d := NewDispatcher(memcache.New(), newRecordingGuard(), nopLogger{})
		assert.NoError(t, d.Dispatch(ctx, "orderarchived", []byte(`{}`)))
	})

	t.Run("malformed body is an error so the broker redelivers", func(t *testing.T) {
		d := NewDispatcher(memcache.New(), newRecordingGuard(), nopLogger{})
		assert.Error(t, d.Dispatch(ctx, "ordercreated", []byte(`{not json`)))
	})
}
