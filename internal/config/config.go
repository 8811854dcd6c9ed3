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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"provider-integrity-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	shortTTL, err := getEnvDuration("BONUS_CACHE_SHORT_TTL", time.Minute)
	if err != nil {
		return nil, err
	}

	longTTL, err := getEnvDuration("BONUS_CACHE_LONG_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	staleAfter, err := getEnvDuration("ACTION_STALE_AFTER", time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Driver:           strings.ToLower(getEnvString("DATABASE_DRIVER", "sqlite")),
			Path:             getEnvString("DATABASE_PATH", "provider.db"),
			PostgresDSN:      getEnvString("POSTGRES_DSN", ""),
			MaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  connMaxLifetime,
			ConnMaxIdleTime:  connMaxIdleTime,
			PingTimeout:      pingTimeout,
			CreateDummyUsers: getEnvBool("CREATE_DUMMY_USERS", false),
		},
		Ledger: models.LedgerConfig{
			Backend: strings.ToLower(getEnvString("LEDGER_BACKEND", "sqlite")),
			Formance: models.FormanceConfig{
				StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
				ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
				ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
				LedgerName:   getEnvString("FORMANCE_LEDGER", "provider-wallets"),
			},
		},
		Engine: models.EngineConfig{
			ProvidersFile:    getEnvString("PROVIDERS_FILE", "providers.yaml"),
			GamesFile:        getEnvString("GAMES_FILE", "games.yaml"),
			DefaultMaxPayout: getEnvString("DEFAULT_MAX_PAYOUT", "0"),
			StaleAfter:       staleAfter,
		},
		Bonus: models.BonusConfig{
			RedisAddr:     getEnvString("REDIS_ADDR", ""),
			ShortTTL:      shortTTL,
			LongTTL:       longTTL,
			TemplatesFile: getEnvString("BONUS_TEMPLATES_FILE", "bonus_templates.yaml"),
		},
		Kafka: models.KafkaConfig{
			Brokers:       getEnvString("KAFKA_BROKERS", ""),
			CallbackTopic: getEnvString("KAFKA_CALLBACK_TOPIC", "provider.callbacks"),
			ReplyTopic:    getEnvString("KAFKA_REPLY_TOPIC", "provider.callbacks.replies"),
			CloseoutTopic: getEnvString("KAFKA_CLOSEOUT_TOPIC", "provider.closeouts"),
			GroupID:       getEnvString("KAFKA_GROUP_ID", "provider-processor"),
		},
		Metrics: models.MetricsConfig{
			Port: getEnvString("METRICS_PORT", "9102"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *models.Config) error {
	switch cfg.Database.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Database.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when DATABASE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.Database.Driver)
	}

	switch cfg.Ledger.Backend {
	case "sqlite", "formance":
	default:
		return fmt.Errorf("unsupported LEDGER_BACKEND %q", cfg.Ledger.Backend)
	}

	if _, err := decimal.NewFromString(cfg.Engine.DefaultMaxPayout); err != nil {
		return fmt.Errorf("invalid DEFAULT_MAX_PAYOUT %q: %w", cfg.Engine.DefaultMaxPayout, err)
	}
	if cfg.Bonus.LongTTL < cfg.Bonus.ShortTTL {
		return fmt.Errorf("BONUS_CACHE_LONG_TTL must not be shorter than BONUS_CACHE_SHORT_TTL")
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
