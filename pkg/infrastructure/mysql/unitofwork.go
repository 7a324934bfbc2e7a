package mysql

import (
	"context"
	"fmt"

	liberrors "github.com/pkg/errors"

	"gitea.xscloud.ru/xscloud/orders/pkg/common/errors"
	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/sharedpool"
)

type RepositoryProviderBuilder[RepositoryProvider any] func(client ClientContext) RepositoryProvider

type UnitOfWork[RepositoryProvider any] interface {
	ExecuteWithUnitOfWork(ctx context.Context, callback func(provider RepositoryProvider) error) error
}

func NewUnitOfWork[RepositoryProvider any](
	pool ConnectionPool,
	builder RepositoryProviderBuilder[RepositoryProvider],
) UnitOfWork[RepositoryProvider] {
	return &unitOfWork[RepositoryProvider]{
		pool: sharedpool.NewPool[context.Context, Transaction](
			func(ctx context.Context) (Transaction, sharedpool.WrappedValueReleaseFunc, error) {
				conn, err := pool.TransactionalConnection(ctx)
				if err != nil {
					return nil, nil, err
				}

				var err2 error
				defer func() {
					if err2 != nil {
						err2 = errors.Join(err2, conn.Close())
					}
				}()

				transaction, err2 := conn.BeginTransaction(ctx, nil)
				if err2 != nil {
					return nil, nil, err2
				}

				wt := &wrappedTransaction{
					Transaction: transaction,
					state:       commit,
				}
				return wt, func() error {
					return errors.Join(wt.finish(), conn.Close())
				}, nil
			},
		),
		builder: builder,
	}
}

type unitOfWork[RepositoryProvider any] struct {
	pool    *sharedpool.Pool[context.Context, Transaction]
	builder RepositoryProviderBuilder[RepositoryProvider]
}

func (uow unitOfWork[RepositoryProvider]) ExecuteWithUnitOfWork(ctx context.Context, callback func(provider RepositoryProvider) error) (err error) {
	sharedTransaction, err := uow.pool.Get(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, sharedTransaction.Release())
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = errors.Join(err, sharedTransaction.Value().Rollback())
		}
	}()
	err = callback(uow.builder(sharedTransaction.Value()))
	return err
}

const (
	commit = iota
	rollback
)

// wrappedTransaction defers the real commit/rollback until the last
// shared reference is released, so nested units of work on the same
// context land in one transaction.
type wrappedTransaction struct {
	Transaction
	state int
}

func (wt *wrappedTransaction) Commit() error {
	return nil
}

func (wt *wrappedTransaction) Rollback() error {
	wt.state = rollback
	return nil
}

func (wt *wrappedTransaction) finish() error {
	var err error
	switch wt.state {
	case commit:
		err = wt.Transaction.Commit()
	case rollback:
		err = wt.Transaction.Rollback()
	}
	return liberrors.WithStack(err)
}
