package orderstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"gitea.xscloud.ru/xscloud/orders/pkg/application/order"
	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/mysql"
)

// NewRepository returns an order repository bound to the given client,
// which may be a pooled connection or an open transaction.
func NewRepository(client mysql.ClientContext) order.Repository {
	return &repository{client: client}
}

type repository struct {
	client mysql.ClientContext
}

func (r *repository) Add(ctx context.Context, o *order.Order) error {
	const sqlQuery = `
		INSERT INTO orders (id, customer_name, amount, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.client.ExecContext(ctx, sqlQuery, o.ID, o.CustomerName, o.Amount, o.Status, o.CreatedAt)
	return errors.WithStack(err)
}

func (r *repository) Find(ctx context.Context, id string) (*order.Order, error) {
	const sqlQuery = `
		SELECT id, customer_name, amount, status, created_at
		FROM orders
		WHERE id = ?
	`
	var o order.Order
	err := r.client.GetContext(ctx, &o, sqlQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.WithStack(order.ErrOrderNotFound)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &o, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerName string, limit int) ([]*order.Order, error) {
	sqlQuery := fmt.Sprintf(`
		SELECT id, customer_name, amount, status, created_at
		FROM orders
		WHERE customer_name = ?
		ORDER BY created_at DESC
		LIMIT %v
	`, limit)
	var result []*order.Order
	err := r.client.SelectContext(ctx, &result, sqlQuery, customerName)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return result, nil
}

func (r *repository) Update(ctx context.Context, o *order.Order) error {
	// RowsAffected is not checked here: MySQL reports zero changed rows
	// for an update that writes the value already stored, and callers
	// verify existence with Find in the same transaction.
	const sqlQuery = `UPDATE orders SET status = ? WHERE id = ?`
	_, err := r.client.ExecContext(ctx, sqlQuery, o.Status, o.ID)
	return errors.WithStack(err)
}

func (r *repository) Remove(ctx context.Context, id string) error {
	const sqlQuery = `DELETE FROM orders WHERE id = ?`
	result, err := r.client.ExecContext(ctx, sqlQuery, id)
	if err != nil {
		return errors.WithStack(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if affected == 0 {
		return errors.WithStack(order.ErrOrderNotFound)
	}
	return nil
}
