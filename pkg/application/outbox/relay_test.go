package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.xscloud.ru/xscloud/orders/pkg/application/logging"
)

type nopLogger struct{}

func (nopLogger) WithField(string, interface{}) logging.Logger { return nopLogger{} }
func (nopLogger) WithFields(logging.Fields) logging.Logger     { return nopLogger{} }
func (nopLogger) Debug(...interface{})                         {}
func (nopLogger) Info(...interface{})                          {}
func (nopLogger) Warning(error, ...interface{})                {}
func (nopLogger) Error(error, ...interface{})                  {}

type fakeStore struct {
	mu      sync.Mutex
	records []*Record

	fetchErr   error
	updateErr  error
	requeueErr error
}

func (s *fakeStore) FetchPending(_ context.Context, limit uint) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var pending []*Record
	for _, r := range s.records {
		if r.Status == StatusPending {
			pending = append(pending, r)
		}
		if uint(len(pending)) == limit {
			break
		}
	}
	return pending, nil
}

func (s *fakeStore) Update(context.Context, *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateErr
}

func (s *fakeStore) RequeueStuck(context.Context, time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requeueErr != nil {
		return 0, s.requeueErr
	}
	var requeued int64
	for _, r := range s.records {
		if r.Status == StatusProcessing {
			r.Status = StatusPending
			requeued++
		}
	}
	return requeued, nil
}

func (s *fakeStore) RequeueFailed(context.Context) (int64, error) { return 0, nil }

func (s *fakeStore) Stats(context.Context) (Stats, error) { return Stats{}, nil }

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	failTypes map[string]error
}

func (p *fakePublisher) Publish(_ context.Context, messageType string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failTypes[messageType]; ok {
		return err
	}
	p.published = append(p.published, messageType)
	return nil
}

type fakeLock struct {
	mu       sync.Mutex
	held     bool
	acquires int
	releases int
	denied   bool
}

func (l *fakeLock) Acquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	if l.denied || l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLock) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	l.held = false
	return nil
}

type fakeGuard struct {
	mu      sync.Mutex
	handled map[string]bool
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{handled: map[string]bool{}}
}

func (g *fakeGuard) AlreadyHandled(_ context.Context, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handled[key]
}

func (g *fakeGuard) MarkHandled(_ context.Context, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handled[key] = true
}

func newTestRelay(store Store, publisher Publisher, lock Lock, guard Guard) *Relay {
	return NewRelay(store, publisher, lock, guard, RelayConfig{
		BatchSize:       50,
		Interval:        time.Millisecond,
		ProcessingGrace: 5 * time.Minute,
	}, nopLogger{})
}

func pendingRecord(t *testing.T, messageType string, createdAt time.Time) *Record {
	t.Helper()
	record, err := NewRecord(messageType, map[string]string{"orderId": "42"})
	require.NoError(t, err)
	record.CreatedAt = createdAt
	return record
}

func TestRunCycle(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 7, 22, 12, 0, 0, 0, time.UTC)

	t.Run("publishes a batch in creation order", func(t *testing.T) {
		var records []*Record
		for i := 0; i < 5; i++ {
			records = append(records, pendingRecord(t, fmt.Sprintf("Type%d", i), base.Add(time.Duration(i)*time.Second)))
		}
		store := &fakeStore{records: records}
		publisher := &fakePublisher{}
		lock := &fakeLock{}

		relay := newTestRelay(store, publisher, lock, newFakeGuard())
		require.NoError(t, relay.RunCycle(ctx))

		assert.Equal(t, []string{"Type0", "Type1", "Type2", "Type3", "Type4"}, publisher.published)
		for _, record := range records {
			assert.Equal(t, StatusProcessed, record.Status)
			assert.NotNil(t, record.ProcessedAt)
		}
		assert.Equal(t, 1, lock.releases)
	})

	t.Run("skips the cycle when the lock is held elsewhere", func(t *testing.T) {
		store := &fakeStore{records: []*Record{pendingRecord(t, "OrderCreated", base)}}
		publisher := &fakePublisher{}
		lock := &fakeLock{denied: true}

		relay := newTestRelay(store, publisher, lock, newFakeGuard())
		require.NoError(t, relay.RunCycle(ctx))

		assert.Empty(t, publisher.published)
		assert.Equal(t, StatusPending, store.records[0].Status)
		assert.Zero(t, lock.releases)
	})

	t.Run("publish failure marks the record failed with the reason appended", func(t *testing.T) {
		record := pendingRecord(t, "OrderCreated", base)
		original := record.Payload
		store := &fakeStore{records: []*Record{record}}
		publisher := &fakePublisher{failTypes: map[string]error{
			"OrderCreated": errors.New("broker unreachable"),
		}}
		lock := &fakeLock{}

		relay := newTestRelay(store, publisher, lock, newFakeGuard())
		require.NoError(t, relay.RunCycle(ctx))

		assert.Equal(t, StatusFailed, record.Status)
		assert.Equal(t, original+"\nError: broker unreachable", record.Payload)
		assert.Nil(t, record.ProcessedAt)
		// the lock is released even though the batch had failures
		assert.Equal(t, 1, lock.releases)
	})

	t.Run("one failure does not stop the rest of the batch", func(t *testing.T) {
		failing := pendingRecord(t, "OrderDeleted", base)
		ok := pendingRecord(t, "OrderCreated", base.Add(time.Second))
		store := &fakeStore{records: []*Record{failing, ok}}
		publisher := &fakePublisher{failTypes: map[string]error{
			"OrderDeleted": errors.New("broker unreachable"),
		}}

		relay := newTestRelay(store, publisher, &fakeLock{}, newFakeGuard())
		require.NoError(t, relay.RunCycle(ctx))

		assert.Equal(t, StatusFailed, failing.Status)
		assert.Equal(t, StatusProcessed, ok.Status)
		assert.Equal(t, []string{"OrderCreated"}, publisher.published)
	})

	t.Run("already published record is settled without republish", func(t *testing.T) {
		record := pendingRecord(t, "OrderCreated", base)
		store := &fakeStore{records: []*Record{record}}
		publisher := &fakePublisher{}
		guard := newFakeGuard()
		guard.MarkHandled(ctx, record.ID)

		relay := newTestRelay(store, publisher, &fakeLock{}, guard)
		require.NoError(t, relay.RunCycle(ctx))

		assert.Empty(t, publisher.published)
		assert.Equal(t, StatusProcessed, record.Status)
	})

	t.Run("stuck processing records are reclaimed and published", func(t *testing.T) {
		record := pendingRecord(t, "OrderCreated", base)
		record.MarkProcessing()
		store := &fakeStore{records: []*Record{record}}
		publisher := &fakePublisher{}

		relay := newTestRelay(store, publisher, &fakeLock{}, newFakeGuard())
		require.NoError(t, relay.RunCycle(ctx))

		assert.Equal(t, []string{"OrderCreated"}, publisher.published)
		assert.Equal(t, StatusProcessed, record.Status)
	})

	t.Run("fetch failure releases the lock and reports the error", func(t *testing.T) {
		store := &fakeStore{fetchErr: errors.New("store unreachable")}
		lock := &fakeLock{}

		relay := newTestRelay(store, &fakePublisher{}, lock, newFakeGuard())
		assert.Error(t, relay.RunCycle(ctx))
		assert.Equal(t, 1, lock.releases)
	})
}

func TestRunStopsBetweenCycles(t *testing.T) {
	store := &fakeStore{}
	relay := newTestRelay(store, &fakePublisher{}, &fakeLock{}, newFakeGuard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- relay.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancellation")
	}
}

func TestRunSurvivesCycleErrors(t *testing.T) {
	store := &fakeStore{fetchErr: errors.New("store unreachable")}
	lock := &fakeLock{}
	relay := newTestRelay(store, &fakePublisher{}, lock, newFakeGuard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- relay.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	lock.mu.Lock()
	defer lock.mu.Unlock()
	assert.Greater(t, lock.acquires, 1, "relay should keep cycling after a failed cycle")
}
