package amqp

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"gitea.xscloud.ru/xscloud/orders/pkg/application/outbox"
)

// NewEventPublisher adapts a confirmed producer to the relay publisher
// contract. The routing key is the lowercased message type, so topic
// bindings stay case-insensitive on the producing side.
func NewEventPublisher(producer Producer) outbox.Publisher {
	return &eventPublisher{producer: producer}
}

type eventPublisher struct {
	producer Producer
}

func (p *eventPublisher) Publish(ctx context.Context, messageType string, payload []byte) error {
	return p.producer.Publish(ctx, Delivery{
		RoutingKey:  strings.ToLower(messageType),
		MessageID:   uuid.NewString(),
		ContentType: "application/json",
		Type:        messageType,
		Body:        payload,
	})
}
