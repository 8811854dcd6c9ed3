/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"provider-integrity-go/internal/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Error stages reported to OnError.
const (
	StageRead    = "read"
	StageDecode  = "decode"
	StageReply   = "reply"
	StageCommit  = "commit"
	StageHandler = "handler"
)

// MessageReader is the part of *kafka.Reader the listener needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageWriter publishes callback replies.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// CallbackHandler turns one bus message into its reply.
type CallbackHandler interface {
	Reply(ctx context.Context, msg models.CallbackMessage, source string) models.CallbackReply
}

// CallbackListenerConfig contains configuration for CallbackListener
type CallbackListenerConfig struct {
	Reader  MessageReader
	Writer  MessageWriter // nil disables replies
	Handler CallbackHandler

	RetryDelay     time.Duration
	PublishRetries int

	OnConsumed func()
	OnError    func(stage string)
}

// CallbackListener consumes provider callbacks from Kafka and publishes the
// rendered replies. Offsets are committed once the reply is out, so a crash
// before that redelivers the callback and the engine replays it.
type CallbackListener struct {
	reader  MessageReader
	writer  MessageWriter
	handler CallbackHandler

	retryDelay     time.Duration
	publishRetries int

	onConsumed func()
	onError    func(stage string)

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewCallbackListener(cfg CallbackListenerConfig) (*CallbackListener, error) {
	if cfg.Reader == nil || cfg.Handler == nil {
		return nil, fmt.Errorf("reader and handler are required")
	}
	l := &CallbackListener{
		reader:         cfg.Reader,
		writer:         cfg.Writer,
		handler:        cfg.Handler,
		retryDelay:     cfg.RetryDelay,
		publishRetries: cfg.PublishRetries,
		onConsumed:     cfg.OnConsumed,
		onError:        cfg.OnError,
		stopChan:       make(chan struct{}),
		doneChan:       make(chan struct{}),
	}
	if l.retryDelay <= 0 {
		l.retryDelay = 500 * time.Millisecond
	}
	if l.publishRetries <= 0 {
		l.publishRetries = 3
	}
	return l, nil
}

// NewReader builds a consumer group reader for the callback topic.
func NewReader(brokers, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(brokers, ","),
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// Start begins consuming in the background
func (l *CallbackListener) Start(ctx context.Context) {
	zap.L().Info("Starting callback listener")

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-l.stopChan:
		case <-runCtx.Done():
		}
		cancel()
	}()

	go l.consumeLoop(runCtx)
}

// Stop gracefully stops the listener and waits for the in-flight message
func (l *CallbackListener) Stop() {
	zap.L().Info("Stopping callback listener")
	close(l.stopChan)
	<-l.doneChan
	zap.L().Info("Callback listener stopped")
}

// Done is closed once the consume loop has exited.
func (l *CallbackListener) Done() <-chan struct{} {
	return l.doneChan
}

func (l *CallbackListener) consumeLoop(ctx context.Context) {
	defer close(l.doneChan)

	for {
		m, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			zap.L().Warn("Kafka fetch failed", zap.Error(err))
			l.reportError(StageRead)
			if !l.sleep(ctx) {
				return
			}
			continue
		}

		if l.onConsumed != nil {
			l.onConsumed()
		}

		if err := l.processMessage(ctx, m); err != nil {
			if ctx.Err() != nil {
				return
			}
			zap.L().Error("Callback message not committed",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
			continue
		}

		if err := l.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return
			}
			zap.L().Warn("Kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
			l.reportError(StageCommit)
		}
	}
}

// processMessage returns an error only when the message must not be committed.
func (l *CallbackListener) processMessage(ctx context.Context, m kafka.Message) error {
	var msg models.CallbackMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		zap.L().Warn("Invalid callback message, skipping",
			zap.Int64("offset", m.Offset),
			zap.Error(err))
		l.reportError(StageDecode)
		return nil
	}
	if msg.RequestId == "" {
		msg.RequestId = string(m.Key)
	}

	reply := l.handler.Reply(ctx, msg, "kafka")
	if reply.Error != "" {
		l.reportError(StageHandler)
	}

	if l.writer == nil {
		return nil
	}
	return l.publish(ctx, reply)
}

func (l *CallbackListener) publish(ctx context.Context, reply models.CallbackReply) error {
	value, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("unable to encode reply %s: %w", reply.RequestId, err)
	}
	msg := kafka.Message{Key: []byte(reply.RequestId), Value: value, Time: time.Now()}

	var lastErr error
	for attempt := 1; attempt <= l.publishRetries; attempt++ {
		if lastErr = l.writer.WriteMessages(ctx, msg); lastErr == nil {
			return nil
		}
		l.reportError(StageReply)
		zap.L().Warn("Reply publish failed",
			zap.String("request_id", reply.RequestId),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if errors.Is(lastErr, context.Canceled) || !l.sleep(ctx) {
			break
		}
	}
	return fmt.Errorf("unable to publish reply %s: %w", reply.RequestId, lastErr)
}

func (l *CallbackListener) sleep(ctx context.Context) bool {
	t := time.NewTimer(l.retryDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *CallbackListener) reportError(stage string) {
	if l.onError != nil {
		l.onError(stage)
	}
}
