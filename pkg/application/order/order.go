package order

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrOrderNotFound = errors.New("order not found")

type Status string

const (
	StatusPending   Status = "Pending"
	StatusProcessed Status = "Processed"
	StatusFailed    Status = "Failed"
)

func ParseStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return StatusPending, true
	case "processed":
		return StatusProcessed, true
	case "failed":
		return StatusFailed, true
	default:
		return "", false
	}
}

type Order struct {
	ID           string    `db:"id" json:"id"`
	CustomerName string    `db:"customer_name" json:"customerName"`
	Amount       float64   `db:"amount" json:"amount"`
	Status       Status    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

func NewOrder(customerName string, amount float64) *Order {
	return &Order{
		ID:           uuid.NewString(),
		CustomerName: customerName,
		Amount:       amount,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
}

func (o *Order) SetStatus(newStatus Status) {
	o.Status = newStatus
}

type Repository interface {
	Add(ctx context.Context, order *Order) error
	// Find returns ErrOrderNotFound when no order matches id.
	Find(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerName string, limit int) ([]*Order, error)
	Update(ctx context.Context, order *Order) error
	Remove(ctx context.Context, id string) error
}
