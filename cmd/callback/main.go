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
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"provider-integrity-go/internal/common"
	"provider-integrity-go/internal/config"
	"provider-integrity-go/internal/history"
	"provider-integrity-go/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func readPayload(inline, file string) (json.RawMessage, error) {
	var raw []byte
	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("use either --payload or --file, not both")
	case inline != "":
		raw = []byte(inline)
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("unable to read payload file: %w", err)
		}
		raw = data
	default:
		return nil, fmt.Errorf("a payload is required (--payload or --file)")
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return raw, nil
}

// publish hands the callback to the processor through the callback topic.
func publish(ctx context.Context, cfg *models.Config, msg models.CallbackMessage) error {
	if cfg.Kafka.Brokers == "" {
		return fmt.Errorf("KAFKA_BROKERS is required with --publish")
	}
	writer := history.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.CallbackTopic)
	defer writer.Close()

	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return writer.WriteMessages(ctx, kafka.Message{Key: []byte(msg.RequestId), Value: value, Time: msg.ReceivedAt})
}

func handleLocally(ctx context.Context, cfg *models.Config, msg models.CallbackMessage) (models.CallbackReply, error) {
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		return models.CallbackReply{}, fmt.Errorf("failed to initialize services: %w", err)
	}
	defer services.Close()

	return services.Callbacks.Reply(ctx, msg, "cli"), nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	provider := flag.String("provider", "", "Provider name as configured in the providers file (required)")
	action := flag.String("action", "", "Provider action, native or canonical (required)")
	payload := flag.String("payload", "", "Inline JSON payload")
	file := flag.String("file", "", "Path to a JSON payload file")
	publishFlag := flag.Bool("publish", false, "Publish to the callback topic instead of handling in-process")
	flag.Parse()

	if *provider == "" || *action == "" {
		fmt.Println("Error: --provider and --action are required")
		flag.Usage()
		os.Exit(1)
	}

	raw, err := readPayload(*payload, *file)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	msg := models.CallbackMessage{
		RequestId:  uuid.New().String(),
		Provider:   *provider,
		Action:     *action,
		Payload:    raw,
		ReceivedAt: time.Now().UTC(),
	}

	if *publishFlag {
		if err := publish(ctx, cfg, msg); err != nil {
			logger.Fatal("Failed to publish callback", zap.Error(err))
		}
		fmt.Printf("✓ Published callback %s to %s\n", msg.RequestId, cfg.Kafka.CallbackTopic)
		return
	}

	reply, err := handleLocally(ctx, cfg, msg)
	if err != nil {
		logger.Fatal("Failed to handle callback", zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("CALLBACK %s %s/%s", reply.RequestId, *provider, *action), common.DefaultWidth)
	if reply.Response != nil {
		fmt.Printf("Success:  %t\n", reply.Response.Success)
		fmt.Printf("Code:     %s\n", reply.Response.Code)
		fmt.Printf("Balance:  %s\n", common.FormatAmount(reply.Response.Balance, reply.Response.Currency))
		fmt.Printf("Tx:       %s\n", common.ShortId(reply.Response.TransactionId))
	}
	if reply.Error != "" {
		fmt.Printf("Error:    %s\n", reply.Error)
	}
	fmt.Printf("Body:     %s\n", string(reply.Body))
	common.PrintFooter("Done", common.DefaultWidth)
}
