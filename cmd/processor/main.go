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

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"provider-integrity-go/internal/common"
	"provider-integrity-go/internal/config"
	"provider-integrity-go/internal/history"
	"provider-integrity-go/internal/listener"
	"provider-integrity-go/internal/metrics"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zap.L().Info("Starting provider callback processor",
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("ledger_backend", cfg.Ledger.Backend))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if cfg.Kafka.Brokers == "" {
		zap.L().Fatal("KAFKA_BROKERS is required to consume provider callbacks")
	}

	reader := listener.NewReader(cfg.Kafka.Brokers, cfg.Kafka.CallbackTopic, cfg.Kafka.GroupID)
	defer reader.Close()

	var replies *kafka.Writer
	if cfg.Kafka.ReplyTopic != "" {
		replies = history.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.ReplyTopic)
		defer replies.Close()
	}

	l, err := listener.NewCallbackListener(listener.CallbackListenerConfig{
		Reader:  reader,
		Writer:  replyWriter(replies),
		Handler: services.Callbacks,
		OnError: func(stage string) { services.Observer.ListenerErrors.WithLabelValues(stage).Inc() },
	})
	if err != nil {
		zap.L().Fatal("Failed to create callback listener", zap.Error(err))
	}

	srv := metrics.StartMetricsServer(cfg.Metrics.Port, services.Metrics, services.Callbacks.HealthCheck)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.Start(gctx)
		<-l.Done()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("Shutdown signal received, stopping processor...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	zap.L().Info("Processor running",
		zap.Strings("providers", services.Callbacks.Providers()),
		zap.String("callback_topic", cfg.Kafka.CallbackTopic))
	zap.L().Info("Press Ctrl+C to stop")

	if err := g.Wait(); err != nil {
		zap.L().Error("Processor stopped with error", zap.Error(err))
		return
	}
	zap.L().Info("Processor stopped gracefully")
}

// replyWriter keeps a nil *kafka.Writer from becoming a non-nil interface.
func replyWriter(w *kafka.Writer) listener.MessageWriter {
	if w == nil {
		return nil
	}
	return w
}
