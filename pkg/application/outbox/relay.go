package outbox

import (
	"context"
	"time"

	"gitea.xscloud.ru/xscloud/orders/pkg/application/logging"
)

// Lock serializes relay passes across concurrent relay instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Guard marks records whose payload already reached the broker, so a
// crash between publish and status update does not republish.
type Guard interface {
	AlreadyHandled(ctx context.Context, key string) bool
	MarkHandled(ctx context.Context, key string)
}

type RelayConfig struct {
	BatchSize       uint
	Interval        time.Duration
	ProcessingGrace time.Duration
}

// Relay drains pending outbox records into the broker with at-least-once
// delivery. One periodic pass per process; batches are strictly
// sequential inside a pass.
type Relay struct {
	store     Store
	publisher Publisher
	lock      Lock
	guard     Guard
	config    RelayConfig
	logger    logging.Logger
}

func NewRelay(
	store Store,
	publisher Publisher,
	lock Lock,
	guard Guard,
	config RelayConfig,
	logger logging.Logger,
) *Relay {
	return &Relay{
		store:     store,
		publisher: publisher,
		lock:      lock,
		guard:     guard,
		config:    config,
		logger:    logger.WithField("component", "outbox_relay"),
	}
}

// Run cycles until ctx is cancelled. Cycle errors are transient by
// definition here: they are logged and left for the next cycle.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay started")
	defer r.logger.Info("outbox relay stopped")

	for {
		if err := r.RunCycle(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error(err, "outbox relay cycle failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.config.Interval):
		}
	}
}

// RunCycle executes a single locked fetch-and-publish pass.
func (r *Relay) RunCycle(ctx context.Context) (err error) {
	acquired, err := r.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		r.logger.Debug("relay lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		if releaseErr := r.lock.Release(ctx); releaseErr != nil {
			r.logger.Error(releaseErr, "failed to release relay lock")
		}
	}()

	requeued, err := r.store.RequeueStuck(ctx, r.config.ProcessingGrace)
	if err != nil {
		return err
	}
	if requeued > 0 {
		r.logger.WithField("count", requeued).Info("requeued stuck processing records")
	}

	records, err := r.store.FetchPending(ctx, r.config.BatchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	r.logger.WithField("count", len(records)).Info("found pending outbox records")

	for _, record := range records {
		r.dispatch(ctx, record)
	}
	return nil
}

func (r *Relay) dispatch(ctx context.Context, record *Record) {
	logger := r.logger.WithFields(logging.Fields{
		"record_id":    record.ID,
		"message_type": record.MessageType,
	})

	// A marker without a Processed status means a previous relay died
	// after the broker accepted the payload. Settle the status without
	// publishing again.
	if r.guard.AlreadyHandled(ctx, record.ID) {
		record.MarkProcessed()
		if err := r.store.Update(ctx, record); err != nil {
			logger.Error(err, "failed to settle already published record")
			return
		}
		logger.Info("record already published, settled without republish")
		return
	}

	record.MarkProcessing()
	if err := r.store.Update(ctx, record); err != nil {
		logger.Error(err, "failed to mark record processing")
		return
	}

	if err := r.publisher.Publish(ctx, record.MessageType, []byte(record.Payload)); err != nil {
		logger.Error(err, "publish failed, marking record failed")
		record.MarkFailed(err.Error())
		if updateErr := r.store.Update(ctx, record); updateErr != nil {
			logger.Error(updateErr, "failed to mark record failed")
		}
		return
	}

	record.MarkProcessed()
	if err := r.store.Update(ctx, record); err != nil {
		// The payload is out; the guard keeps the next cycle from
		// publishing it twice.
		logger.Error(err, "failed to mark record processed")
	}
	r.guard.MarkHandled(ctx, record.ID)
	logger.Info("outbox record published")
}
