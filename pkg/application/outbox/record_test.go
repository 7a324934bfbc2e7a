package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	record, err := NewRecord("OrderCreated", map[string]interface{}{
		"orderId":      "42",
		"customerName": "A",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "OrderCreated", record.MessageType)
	assert.Equal(t, StatusPending, record.Status)
	assert.False(t, record.CreatedAt.IsZero())
	assert.Nil(t, record.ProcessedAt)
	assert.JSONEq(t, `{"orderId":"42","customerName":"A"}`, record.Payload)
}

func TestNewRecordUnserializablePayload(t *testing.T) {
	_, err := NewRecord("OrderCreated", make(chan int))
	assert.Error(t, err)
}

func TestRecordTransitions(t *testing.T) {
	t.Run("pending to processing to processed", func(t *testing.T) {
		record, err := NewRecord("OrderCreated", struct{}{})
		require.NoError(t, err)

		record.MarkProcessing()
		assert.Equal(t, StatusProcessing, record.Status)
		assert.Nil(t, record.ProcessedAt)

		record.MarkProcessed()
		assert.Equal(t, StatusProcessed, record.Status)
		require.NotNil(t, record.ProcessedAt)
	})

	t.Run("processed at is set once", func(t *testing.T) {
		record, err := NewRecord("OrderCreated", struct{}{})
		require.NoError(t, err)

		record.MarkProcessed()
		first := record.ProcessedAt
		record.MarkProcessed()
		assert.Equal(t, first, record.ProcessedAt)
	})

	t.Run("failure appends the reason to the payload", func(t *testing.T) {
		record, err := NewRecord("OrderCreated", map[string]string{"orderId": "42"})
		require.NoError(t, err)
		original := record.Payload

		record.MarkProcessing()
		record.MarkFailed("broker unreachable")

		assert.Equal(t, StatusFailed, record.Status)
		assert.Equal(t, original+"\nError: broker unreachable", record.Payload)
	})
}
