package order

import (
	"context"
	"errors"
	"time"

	"gitea.xscloud.ru/xscloud/orders/pkg/application/cache"
	"gitea.xscloud.ru/xscloud/orders/pkg/application/logging"
	"gitea.xscloud.ru/xscloud/orders/pkg/application/outbox"
)

const (
	listLimit     = 50
	orderCacheTTL = 5 * time.Minute
)

func orderCacheKey(id string) string {
	return "order:" + id
}

// Repositories is the transaction-scoped view the unit of work hands to
// write callbacks. Both repositories run on the same transaction, which
// is what makes the outbox append atomic with the business mutation.
type Repositories struct {
	Orders Repository
	Outbox outbox.Repository
}

type UnitOfWork interface {
	ExecuteWithUnitOfWork(ctx context.Context, callback func(provider Repositories) error) error
}

type Service struct {
	uow    UnitOfWork
	reader Repository
	cache  cache.Cache
	logger logging.Logger
}

// NewService builds the business write path. reader serves the
// non-transactional read operations.
func NewService(uow UnitOfWork, reader Repository, c cache.Cache, logger logging.Logger) *Service {
	return &Service{
		uow:    uow,
		reader: reader,
		cache:  c,
		logger: logger.WithField("component", "order_service"),
	}
}

func (s *Service) Create(ctx context.Context, customerName string, amount float64) (string, error) {
	order := NewOrder(customerName, amount)

	record, err := outbox.NewRecord(MessageTypeOrderCreated, OrderCreatedPayload{
		OrderID:      order.ID,
		CustomerName: order.CustomerName,
		Amount:       order.Amount,
		CreatedAt:    order.CreatedAt,
	})
	if err != nil {
		return "", err
	}

	err = s.uow.ExecuteWithUnitOfWork(ctx, func(provider Repositories) error {
		if err := provider.Orders.Add(ctx, order); err != nil {
			return err
		}
		return provider.Outbox.Append(ctx, record)
	})
	if err != nil {
		return "", err
	}

	s.logger.WithFields(logging.Fields{
		"order_id":  order.ID,
		"record_id": record.ID,
	}).Info("order created, outbox record stored")
	s.invalidateAsync(order.ID)
	return order.ID, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id string, newStatus Status) error {
	err := s.uow.ExecuteWithUnitOfWork(ctx, func(provider Repositories) error {
		order, err := provider.Orders.Find(ctx, id)
		if err != nil {
			return err
		}

		oldStatus := order.Status
		order.SetStatus(newStatus)
		if err = provider.Orders.Update(ctx, order); err != nil {
			return err
		}

		record, err := outbox.NewRecord(MessageTypeOrderStatusUpdated, OrderStatusUpdatedPayload{
			OrderID:   order.ID,
			OldStatus: oldStatus,
			NewStatus: newStatus,
			UpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		return provider.Outbox.Append(ctx, record)
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logging.Fields{
		"order_id": id,
		"status":   newStatus,
	}).Info("order status updated")
	s.invalidateAsync(id)
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.uow.ExecuteWithUnitOfWork(ctx, func(provider Repositories) error {
		order, err := provider.Orders.Find(ctx, id)
		if err != nil {
			return err
		}

		if err = provider.Orders.Remove(ctx, order.ID); err != nil {
			return err
		}

		record, err := outbox.NewRecord(MessageTypeOrderDeleted, OrderDeletedPayload{
			OrderID:      order.ID,
			CustomerName: order.CustomerName,
			Status:       order.Status,
			DeletedAt:    time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		return provider.Outbox.Append(ctx, record)
	})
	if err != nil {
		return err
	}

	s.logger.WithField("order_id", id).Info("order deleted")
	s.invalidateAsync(id)
	return nil
}

// Get reads through the cache. Cache failures fall back to the store and
// are logged, never propagated.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	value, err := s.cache.GetOrCreate(ctx, orderCacheKey(id), orderCacheTTL, func(ctx context.Context) (interface{}, error) {
		return s.reader.Find(ctx, id)
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		s.logger.Warning(err, "order cache read failed, falling back to store")
		return s.reader.Find(ctx, id)
	}
	order, ok := value.(*Order)
	if !ok {
		return s.reader.Find(ctx, id)
	}
	return order, nil
}

func (s *Service) ListByCustomer(ctx context.Context, customerName string) ([]*Order, error) {
	return s.reader.ListByCustomer(ctx, customerName, listLimit)
}

// invalidateAsync drops cached state after a committed write. Best
// effort only: the read path repopulates on the next miss.
func (s *Service) invalidateAsync(id string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.cache.Remove(ctx, orderCacheKey(id)); err != nil {
			s.logger.Warning(err, "order cache invalidation failed")
		}
	}()
}
