package outboxstore

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"gitea.xscloud.ru/xscloud/orders/pkg/application/outbox"
	liberr "gitea.xscloud.ru/xscloud/orders/pkg/common/errors"
	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/mysql"
)

// NewRepository binds the write-path append to a transaction-scoped
// client, so the record commits or rolls back with the business row.
func NewRepository(client mysql.ClientContext) outbox.Repository {
	return &repository{client: client}
}

type repository struct {
	client mysql.ClientContext
}

func (r *repository) Append(ctx context.Context, record *outbox.Record) error {
	const sqlQuery = `
		INSERT INTO outbox_record (id, message_type, payload, status, created_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.client.ExecContext(
		ctx,
		sqlQuery,
		record.ID, record.MessageType, record.Payload, record.Status, record.CreatedAt, record.ProcessedAt,
	)
	return errors.WithStack(err)
}

// NewStore is the relay-side store; every call borrows a pooled
// connection for its own duration.
func NewStore(pool mysql.ConnectionPool) outbox.Store {
	return &store{pool: pool}
}

type store struct {
	pool mysql.ConnectionPool
}

func (s *store) FetchPending(ctx context.Context, limit uint) (records []*outbox.Record, err error) {
	conn, err := s.pool.TransactionalConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = liberr.Join(err, conn.Close())
	}()

	sqlQuery := fmt.Sprintf(`
		SELECT
		    id,
		    message_type,
		    payload,
		    status,
		    created_at,
		    processed_at
		FROM outbox_record
		WHERE status = ?
		ORDER BY created_at
		LIMIT %v
	`, limit)
	err = conn.SelectContext(ctx, &records, sqlQuery, outbox.StatusPending)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return records, nil
}

func (s *store) Update(ctx context.Context, record *outbox.Record) (err error) {
	conn, err := s.pool.TransactionalConnection(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = liberr.Join(err, conn.Close())
	}()

	const sqlQuery = `
		UPDATE outbox_record
		SET payload = ?, status = ?, processed_at = ?
		WHERE id = ?
	`
	_, err = conn.ExecContext(ctx, sqlQuery, record.Payload, record.Status, record.ProcessedAt, record.ID)
	return errors.WithStack(err)
}

func (s *store) RequeueStuck(ctx context.Context, olderThan time.Duration) (requeued int64, err error) {
	conn, err := s.pool.TransactionalConnection(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = liberr.Join(err, conn.Close())
	}()

	const sqlQuery = `
		UPDATE outbox_record
		SET status = ?
		WHERE status = ? AND created_at < ?
	`
	result, err := conn.ExecContext(
		ctx,
		sqlQuery,
		outbox.StatusPending, outbox.StatusProcessing, time.Now().UTC().Add(-olderThan),
	)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	requeued, err = result.RowsAffected()
	return requeued, errors.WithStack(err)
}

func (s *store) RequeueFailed(ctx context.Context) (requeued int64, err error) {
	conn, err := s.pool.TransactionalConnection(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = liberr.Join(err, conn.Close())
	}()

	const sqlQuery = `UPDATE outbox_record SET status = ? WHERE status = ?`
	result, err := conn.ExecContext(ctx, sqlQuery, outbox.StatusPending, outbox.StatusFailed)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	requeued, err = result.RowsAffected()
	return requeued, errors.WithStack(err)
}

func (s *store) Stats(ctx context.Context) (stats outbox.Stats, err error) {
	conn, err := s.pool.TransactionalConnection(ctx)
	if err != nil {
		return outbox.Stats{}, err
	}
	defer func() {
		err = liberr.Join(err, conn.Close())
	}()

	const sqlQuery = `
		SELECT
		    COUNT(IF(status = ?, 1, NULL)) AS pending,
		    COUNT(IF(status = ?, 1, NULL)) AS failed
		FROM outbox_record
	`
	err = conn.GetContext(ctx, &stats, sqlQuery, outbox.StatusPending, outbox.StatusFailed)
	if err != nil {
		return outbox.Stats{}, errors.WithStack(err)
	}
	return stats, nil
}
