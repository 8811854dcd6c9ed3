package history

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"provider-integrity-go/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	block    chan struct{}
	closed   bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func closeout(round string) models.Closeout {
	return models.Closeout{
		Provider:           "hub88",
		ExternalIdentifier: round,
		UserId:             "user1",
		BalanceType:        "EUR",
		BetAmount:          decimal.NewFromInt(10),
		PayAmount:          decimal.NewFromInt(4),
		Profit:             decimal.NewFromInt(6),
		ClosedAt:           time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestKafkaRecorder_PublishesOnClose(t *testing.T) {
	writer := &captureWriter{}
	recorder := NewKafkaRecorder(writer, 8, time.Second)

	published := 0
	recorder.OnPublished = func() { published++ }

	recorder.RecordCloseout(context.Background(), closeout("r1"))
	recorder.RecordCloseout(context.Background(), closeout("r2"))
	require.NoError(t, recorder.Close())

	require.Len(t, writer.messages, 2)
	assert.True(t, writer.closed)
	assert.Equal(t, 2, published)
	assert.Equal(t, "hub88:r1", string(writer.messages[0].Key))

	var decoded models.Closeout
	require.NoError(t, json.Unmarshal(writer.messages[1].Value, &decoded))
	assert.Equal(t, "r2", decoded.ExternalIdentifier)
	assert.True(t, decoded.Profit.Equal(decimal.NewFromInt(6)))

	// Recording after close is ignored.
	recorder.RecordCloseout(context.Background(), closeout("r3"))
	assert.NoError(t, recorder.Close())
}

func TestKafkaRecorder_DropsWhenFull(t *testing.T) {
	writer := &captureWriter{block: make(chan struct{})}
	recorder := NewKafkaRecorder(writer, 1, time.Second)

	var mu sync.Mutex
	dropped := 0
	recorder.OnDropped = func() {
		mu.Lock()
		dropped++
		mu.Unlock()
	}

	// The first closeout may already be held by the publisher goroutine, so
	// at most two fit before the buffer rejects.
	for i := 0; i < 5; i++ {
		recorder.RecordCloseout(context.Background(), closeout("r"))
	}
	close(writer.block)
	require.NoError(t, recorder.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, dropped, 3)
	assert.Equal(t, 5-dropped, len(writer.messages))
}
