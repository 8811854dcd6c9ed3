package listener

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"provider-integrity-go/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
	fetchErr  error
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if err := r.fetchErr; err != nil {
		r.fetchErr = nil
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	r.mu.Unlock()

	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeWriter struct {
	mu       sync.Mutex
	replies  []models.CallbackReply
	failures int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return errors.New("broker unavailable")
	}
	for _, m := range msgs {
		var reply models.CallbackReply
		if err := json.Unmarshal(m.Value, &reply); err != nil {
			return err
		}
		w.replies = append(w.replies, reply)
	}
	return nil
}

func (w *fakeWriter) sent() []models.CallbackReply {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.CallbackReply(nil), w.replies...)
}

type echoHandler struct {
	mu      sync.Mutex
	sources []string
}

func (h *echoHandler) Reply(_ context.Context, msg models.CallbackMessage, source string) models.CallbackReply {
	h.mu.Lock()
	h.sources = append(h.sources, source)
	h.mu.Unlock()

	reply := models.CallbackReply{RequestId: msg.RequestId, Provider: msg.Provider}
	if msg.Provider == "broken" {
		reply.Error = "unknown provider: broken"
		return reply
	}
	reply.Response = &models.ProviderResponse{Success: true, Code: models.CodeOK}
	return reply
}

type stageCounter struct {
	mu     sync.Mutex
	stages map[string]int
}

func (c *stageCounter) inc(stage string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stages == nil {
		c.stages = map[string]int{}
	}
	c.stages[stage]++
}

func (c *stageCounter) get(stage string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stages[stage]
}

func message(t *testing.T, offset int64, msg models.CallbackMessage) kafka.Message {
	t.Helper()
	value, err := json.Marshal(msg)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(msg.RequestId), Value: value}
}

func TestNewCallbackListenerRequiresReaderAndHandler(t *testing.T) {
	_, err := NewCallbackListener(CallbackListenerConfig{})
	assert.Error(t, err)
}

func TestListenerRepliesAndCommits(t *testing.T) {
	reader := newFakeReader(
		message(t, 1, models.CallbackMessage{RequestId: "a", Provider: "acme", Action: "bet"}),
		message(t, 2, models.CallbackMessage{RequestId: "b", Provider: "broken", Action: "bet"}),
		kafka.Message{Offset: 3, Value: []byte("not json")},
	)
	writer := &fakeWriter{}
	handler := &echoHandler{}
	errs := &stageCounter{}
	consumed := 0

	l, err := NewCallbackListener(CallbackListenerConfig{
		Reader:     reader,
		Writer:     writer,
		Handler:    handler,
		RetryDelay: time.Millisecond,
		OnConsumed: func() { consumed++ },
		OnError:    errs.inc,
	})
	require.NoError(t, err)

	l.Start(context.Background())
	require.Eventually(t, func() bool { return len(reader.commits()) == 3 }, time.Second, 5*time.Millisecond)
	l.Stop()

	assert.Equal(t, []int64{1, 2, 3}, reader.commits())
	assert.Equal(t, 3, consumed)

	replies := writer.sent()
	require.Len(t, replies, 2)
	assert.Equal(t, "a", replies[0].RequestId)
	assert.True(t, replies[0].Response.Success)
	assert.Equal(t, "b", replies[1].RequestId)
	assert.Contains(t, replies[1].Error, "unknown provider")

	assert.Equal(t, 1, errs.get(StageDecode))
	assert.Equal(t, 1, errs.get(StageHandler))
	assert.Equal(t, []string{"kafka", "kafka"}, handler.sources)
}

func TestListenerRetriesPublish(t *testing.T) {
	reader := newFakeReader(message(t, 7, models.CallbackMessage{RequestId: "a", Provider: "acme"}))
	writer := &fakeWriter{failures: 2}
	errs := &stageCounter{}

	l, err := NewCallbackListener(CallbackListenerConfig{
		Reader:     reader,
		Writer:     writer,
		Handler:    &echoHandler{},
		RetryDelay: time.Millisecond,
		OnError:    errs.inc,
	})
	require.NoError(t, err)

	l.Start(context.Background())
	require.Eventually(t, func() bool { return len(reader.commits()) == 1 }, time.Second, 5*time.Millisecond)
	l.Stop()

	assert.Len(t, writer.sent(), 1)
	assert.Equal(t, 2, errs.get(StageReply))
}

func TestListenerSkipsCommitWhenPublishFails(t *testing.T) {
	reader := newFakeReader(message(t, 9, models.CallbackMessage{RequestId: "a", Provider: "acme"}))
	writer := &fakeWriter{failures: 10}
	errs := &stageCounter{}

	l, err := NewCallbackListener(CallbackListenerConfig{
		Reader:         reader,
		Writer:         writer,
		Handler:        &echoHandler{},
		RetryDelay:     time.Millisecond,
		PublishRetries: 2,
		OnError:        errs.inc,
	})
	require.NoError(t, err)

	l.Start(context.Background())
	require.Eventually(t, func() bool { return errs.get(StageReply) == 2 }, time.Second, 5*time.Millisecond)
	l.Stop()

	assert.Empty(t, reader.commits())
}

func TestListenerRecoversFromFetchError(t *testing.T) {
	reader := newFakeReader(message(t, 1, models.CallbackMessage{RequestId: "a", Provider: "acme"}))
	reader.fetchErr = errors.New("rebalancing")
	errs := &stageCounter{}

	l, err := NewCallbackListener(CallbackListenerConfig{
		Reader:     reader,
		Handler:    &echoHandler{},
		RetryDelay: time.Millisecond,
		OnError:    errs.inc,
	})
	require.NoError(t, err)

	l.Start(context.Background())
	require.Eventually(t, func() bool { return len(reader.commits()) == 1 }, time.Second, 5*time.Millisecond)
	l.Stop()

	assert.Equal(t, 1, errs.get(StageRead))
}

func TestListenerStopsWithContext(t *testing.T) {
	l, err := NewCallbackListener(CallbackListenerConfig{Reader: newFakeReader(), Handler: &echoHandler{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	cancel()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("listener did not stop after context cancellation")
	}
}
