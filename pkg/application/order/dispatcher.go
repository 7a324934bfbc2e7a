package order

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"gitea.xscloud.ru/xscloud/orders/pkg/application/cache"
	"gitea.xscloud.ru/xscloud/orders/pkg/application/logging"
	"gitea.xscloud.ru/xscloud/orders/pkg/application/outbox"
)

type HandlerFunc func(ctx context.Context, body []byte) error

// Dispatcher routes consumed order events to handlers by routing key.
// Handlers are side-effect-only and must tolerate redelivery: the broker
// will hand the same message more than once.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   logging.Logger
}

func NewDispatcher(c cache.Cache, guard outbox.Guard, logger logging.Logger) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger.WithField("component", "order_event_dispatcher"),
	}
	h := eventHandlers{cache: c, guard: guard, logger: d.logger}
	d.handlers[routingKey(MessageTypeOrderCreated)] = h.orderCreated
	d.handlers[routingKey(MessageTypeOrderStatusUpdated)] = h.orderStatusUpdated
	d.handlers[routingKey(MessageTypeOrderDeleted)] = h.orderDeleted
	return d
}

// Dispatch returns nil for unknown message types: nacking those would
// loop the redelivery forever.
func (d *Dispatcher) Dispatch(ctx context.Context, key string, body []byte) error {
	handler, ok := d.handlers[strings.ToLower(key)]
	if !ok {
		d.logger.WithField("routing_key", key).Warning(nil, "unknown order event type, acknowledging")
		return nil
	}
	return handler(ctx, body)
}

func routingKey(messageType string) string {
	return strings.ToLower(messageType)
}

type eventHandlers struct {
	cache  cache.Cache
	guard  outbox.Guard
	logger logging.Logger
}

func (h eventHandlers) orderCreated(ctx context.Context, body []byte) error {
	var payload OrderCreatedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return errors.WithStack(err)
	}
	if h.skipDuplicate(ctx, MessageTypeOrderCreated, payload.OrderID) {
		return nil
	}

	h.logger.WithFields(logging.Fields{
		"order_id": payload.OrderID,
		"customer": payload.CustomerName,
		"amount":   payload.Amount,
	}).Info("order created event handled")

	h.invalidate(ctx, payload.OrderID)
	h.markHandled(ctx, MessageTypeOrderCreated, payload.OrderID)
	return nil
}

func (h eventHandlers) orderStatusUpdated(ctx context.Context, body []byte) error {
	var payload OrderStatusUpdatedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return errors.WithStack(err)
	}

	h.logger.WithFields(logging.Fields{
		"order_id":   payload.OrderID,
		"old_status": payload.OldStatus,
		"new_status": payload.NewStatus,
	}).Info("order status updated event handled")

	h.invalidate(ctx, payload.OrderID)
	return nil
}

func (h eventHandlers) orderDeleted(ctx context.Context, body []byte) error {
	var payload OrderDeletedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return errors.WithStack(err)
	}

	h.logger.WithFields(logging.Fields{
		"order_id": payload.OrderID,
		"customer": payload.CustomerName,
		"status":   payload.Status,
	}).Info("order deleted event handled")

	h.invalidate(ctx, payload.OrderID)
	return nil
}

// skipDuplicate consults the consumer-scoped dedup key. Only handlers
// whose side effects are not naturally idempotent need it; cache
// invalidation alone is safe to repeat.
func (h eventHandlers) skipDuplicate(ctx context.Context, messageType, orderID string) bool {
	if h.guard.AlreadyHandled(ctx, dedupKey(messageType, orderID)) {
		h.logger.WithField("order_id", orderID).Info("duplicate delivery, skipping")
		return true
	}
	return false
}

func (h eventHandlers) markHandled(ctx context.Context, messageType, orderID string) {
	h.guard.MarkHandled(ctx, dedupKey(messageType, orderID))
}

func (h eventHandlers) invalidate(ctx context.Context, orderID string) {
	if err := h.cache.Remove(ctx, orderCacheKey(orderID)); err != nil {
		h.logger.Warning(err, "order cache invalidation failed")
	}
}

func dedupKey(messageType, orderID string) string {
	return routingKey(messageType) + ":" + orderID
}
