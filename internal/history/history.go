package history

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"provider-integrity-go/internal/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of *kafka.Writer the recorder needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewWriter(brokers string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

// KafkaRecorder publishes round closeouts in the background. Recording never
// blocks the caller; closeouts that do not fit in the buffer are dropped.
type KafkaRecorder struct {
	writer       MessageWriter
	writeTimeout time.Duration
	queue        chan models.Closeout
	done         chan struct{}

	mu     sync.RWMutex
	closed bool

	OnPublished func()
	OnDropped   func()
}

func NewKafkaRecorder(writer MessageWriter, buffer int, writeTimeout time.Duration) *KafkaRecorder {
	if buffer <= 0 {
		buffer = 256
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	r := &KafkaRecorder{
		writer:       writer,
		writeTimeout: writeTimeout,
		queue:        make(chan models.Closeout, buffer),
		done:         make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *KafkaRecorder) RecordCloseout(_ context.Context, closeout models.Closeout) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- closeout:
	default:
		zap.L().Warn("Closeout buffer full, dropping",
			zap.String("provider", closeout.Provider),
			zap.String("external_bet_id", closeout.ExternalIdentifier))
		if r.OnDropped != nil {
			r.OnDropped()
		}
	}
}

func (r *KafkaRecorder) run() {
	defer close(r.done)
	for closeout := range r.queue {
		r.publish(closeout)
	}
}

func (r *KafkaRecorder) publish(closeout models.Closeout) {
	value, err := json.Marshal(closeout)
	if err != nil {
		zap.L().Error("Failed to encode closeout", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	err = r.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(closeout.Provider + ":" + closeout.ExternalIdentifier),
		Value: value,
		Time:  closeout.ClosedAt,
	})
	if err != nil {
		zap.L().Error("Failed to publish closeout",
			zap.String("provider", closeout.Provider),
			zap.String("external_bet_id", closeout.ExternalIdentifier),
			zap.Error(err))
		return
	}
	if r.OnPublished != nil {
		r.OnPublished()
	}
}

// Close drains queued closeouts and closes the writer.
func (r *KafkaRecorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	return r.writer.Close()
}

// LogRecorder writes closeouts to the log. Used when no broker is configured.
type LogRecorder struct{}

func (LogRecorder) RecordCloseout(_ context.Context, c models.Closeout) {
	zap.L().Info("Round closed out",
		zap.String("provider", c.Provider),
		zap.String("external_bet_id", c.ExternalIdentifier),
		zap.String("user_id", c.UserId),
		zap.String("game_id", c.GameIdentifier),
		zap.String("bet_amount", c.BetAmount.String()),
		zap.String("pay_amount", c.PayAmount.String()),
		zap.String("profit", c.Profit.String()))
}
