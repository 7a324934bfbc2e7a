package order

import "time"

// Message types double as outbox dispatch keys; the broker routing key is
// the lower-cased form.
const (
	MessageTypeOrderCreated       = "OrderCreated"
	MessageTypeOrderStatusUpdated = "OrderStatusUpdated"
	MessageTypeOrderDeleted       = "OrderDeleted"
)

// Event payloads are serialized snapshots captured at mutation time. The
// published body is exactly this JSON, no envelope wrapper.

type OrderCreatedPayload struct {
	OrderID      string    `json:"orderId"`
	CustomerName string    `json:"customerName"`
	Amount       float64   `json:"amount"`
	CreatedAt    time.Time `json:"createdAt"`
}

type OrderStatusUpdatedPayload struct {
	OrderID   string    `json:"orderId"`
	OldStatus Status    `json:"oldStatus"`
	NewStatus Status    `json:"newStatus"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type OrderDeletedPayload struct {
	OrderID      string    `json:"orderId"`
	CustomerName string    `json:"customerName"`
	Status       Status    `json:"status"`
	DeletedAt    time.Time `json:"deletedAt"`
}
