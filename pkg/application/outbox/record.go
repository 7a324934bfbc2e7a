package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusProcessed  Status = "Processed"
	StatusFailed     Status = "Failed"
)

// Record is an intent to publish, written in the same transaction as the
// business mutation it describes. A record exists if and only if that
// mutation committed.
type Record struct {
	ID          string     `db:"id"`
	MessageType string     `db:"message_type"`
	Payload     string     `db:"payload"`
	Status      Status     `db:"status"`
	CreatedAt   time.Time  `db:"created_at"`
	ProcessedAt *time.Time `db:"processed_at"`
}

// NewRecord captures a serialized snapshot of the event. The payload is
// immutable afterwards, except for the failure annotation appended on
// terminal failure.
func NewRecord(messageType string, payload interface{}) (*Record, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Record{
		ID:          uuid.NewString(),
		MessageType: messageType,
		Payload:     string(body),
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (r *Record) MarkProcessing() {
	r.Status = StatusProcessing
}

func (r *Record) MarkProcessed() {
	r.Status = StatusProcessed
	if r.ProcessedAt == nil {
		now := time.Now().UTC()
		r.ProcessedAt = &now
	}
}

func (r *Record) MarkFailed(reason string) {
	r.Status = StatusFailed
	r.Payload = r.Payload + "\nError: " + reason
}

// Repository appends records inside the caller's transaction; it is the
// only write-path entry into the outbox.
type Repository interface {
	Append(ctx context.Context, record *Record) error
}

type Stats struct {
	Pending int `db:"pending"`
	Failed  int `db:"failed"`
}

// Store is the relay-side view of the outbox table.
type Store interface {
	// FetchPending returns at most limit Pending records, FIFO by
	// creation time. Processing records are never returned; crashed
	// ones come back through RequeueStuck.
	FetchPending(ctx context.Context, limit uint) ([]*Record, error)
	Update(ctx context.Context, record *Record) error

	// RequeueStuck flips Processing records older than olderThan back
	// to Pending. It reports how many records were reclaimed.
	RequeueStuck(ctx context.Context, olderThan time.Duration) (int64, error)

	// RequeueFailed moves Failed records back to Pending. Failed is a
	// dead-letter state; this transition is operator triggered only.
	RequeueFailed(ctx context.Context) (int64, error)

	Stats(ctx context.Context) (Stats, error)
}

// Publisher hands a record's payload to the broker. No retry inside:
// retry policy lives in the relay's cycle.
type Publisher interface {
	Publish(ctx context.Context, messageType string, payload []byte) error
}
