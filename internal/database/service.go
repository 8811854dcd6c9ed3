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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time checks: *Service backs every store the engine consumes.
var (
	_ store.UserDirectory  = (*Service)(nil)
	_ store.BalanceLedger  = (*Service)(nil)
	_ store.BonusStore     = (*Service)(nil)
	_ store.ActionLedger   = (*ActionLedger)(nil)
	_ store.AggregateStore = (*AggregateStore)(nil)
)

type Service struct {
	db         *sql.DB
	subledger  *SubledgerService
	actions    *ActionLedger
	aggregates *AggregateStore
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service, err := NewServiceFromDB(db, cfg.CreateDummyUsers)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

// NewServiceFromDB wraps an open handle and initializes both schemas.
func NewServiceFromDB(db *sql.DB, createDummyUsers bool) (*Service, error) {
	subledger := NewSubledgerService(db)
	service := &Service{
		db:         db,
		subledger:  subledger,
		actions:    NewActionLedger(db),
		aggregates: NewAggregateStore(db),
	}
	if err := service.initSchema(createDummyUsers); err != nil {
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}
	if err := subledger.InitSchema(); err != nil {
		return nil, fmt.Errorf("unable to initialize subledger schema: %w", err)
	}
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

// Ping reports whether the database is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Actions returns the action ledger backed by this database.
func (s *Service) Actions() *ActionLedger {
	return s.actions
}

// Aggregates returns the bet aggregate store backed by this database.
func (s *Service) Aggregates() *AggregateStore {
	return s.aggregates
}

// Subledger exposes the balance subledger for reporting.
func (s *Service) Subledger() *SubledgerService {
	return s.subledger
}

func (s *Service) initSchema(createDummyUsers bool) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		currency TEXT NOT NULL DEFAULT 'EUR',
		country TEXT NOT NULL DEFAULT '',
		locked BOOLEAN NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	-- One row per inbound logical provider event
	CREATE TABLE IF NOT EXISTS provider_actions (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		external_bet_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		user_id TEXT NOT NULL,
		external_transaction_id TEXT NOT NULL DEFAULT '',
		amount TEXT,
		resulting_transaction_id TEXT NOT NULL DEFAULT '',
		fingerprint TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		decline_code TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(provider, external_bet_id, event_type)
	);

	CREATE INDEX IF NOT EXISTS idx_provider_actions_user ON provider_actions(user_id);

	-- One row per provider round
	CREATE TABLE IF NOT EXISTS bet_aggregates (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		external_identifier TEXT NOT NULL,
		user_id TEXT NOT NULL,
		state TEXT NOT NULL,
		bet_amount TEXT NOT NULL DEFAULT '0',
		pay_amount TEXT NOT NULL DEFAULT '0',
		balance_type TEXT NOT NULL,
		game_identifier TEXT NOT NULL DEFAULT '',
		closed_out TIMESTAMP,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(provider, external_identifier, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_bet_aggregates_state ON bet_aggregates(state);

	CREATE TABLE IF NOT EXISTS bonus_templates (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		external_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		balance_type TEXT NOT NULL DEFAULT '',
		value TEXT NOT NULL DEFAULT '0',
		UNIQUE(provider, external_id)
	);

	CREATE TABLE IF NOT EXISTS bonuses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		template_id TEXT NOT NULL,
		status TEXT NOT NULL,
		round_ref TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bonuses_round_ref ON bonuses(round_ref);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	if createDummyUsers {
		users := []struct {
			id       string
			name     string
			email    string
			currency string
			country  string
		}{
			{uuid.New().String(), "Alice Johnson", "alice.johnson@example.com", "EUR", "MT"},
			{uuid.New().String(), "Bob Smith", "bob.smith@example.com", "USD", "CA"},
			{uuid.New().String(), "Carol Williams", "carol.williams@example.com", "EUR", "EE"},
		}

		for _, user := range users {
			_, err := s.db.Exec(queryInsertUser, user.id, user.name, user.email, user.currency, user.country)
			if err != nil {
				zap.L().Error("Failed to insert dummy user", zap.String("name", user.name), zap.Error(err))
			} else {
				zap.L().Info("Dummy user created", zap.String("id", user.id), zap.String("name", user.name))
			}
		}
	} else {
		zap.L().Info("Skipping dummy user creation (CREATE_DUMMY_USERS=false)")
	}

	return nil
}

// Debit removes funds from a player wallet.
func (s *Service) Debit(ctx context.Context, params store.MutationParams) (*store.MutationResult, error) {
	return s.mutate(ctx, params, params.Amount.Abs().Neg())
}

// Credit adds funds to a player wallet.
func (s *Service) Credit(ctx context.Context, params store.MutationParams) (*store.MutationResult, error) {
	return s.mutate(ctx, params, params.Amount.Abs())
}

func (s *Service) mutate(ctx context.Context, params store.MutationParams, signed decimal.Decimal) (*store.MutationResult, error) {
	balanceType := params.BalanceTypeOverride
	if balanceType == "" {
		user, err := s.GetUserById(ctx, params.UserId)
		if err != nil {
			return nil, err
		}
		balanceType = user.Currency
	}

	meta := params.Meta
	if cc := models.GetCallbackContext(ctx); cc != nil && cc.RequestId != "" {
		meta = make(map[string]string, len(params.Meta)+1)
		for k, v := range params.Meta {
			meta[k] = v
		}
		meta["request_id"] = cc.RequestId
	}

	tx, err := s.subledger.ProcessTransaction(ctx, ProcessTransactionParams{
		UserId:          params.UserId,
		BalanceType:     balanceType,
		TransactionType: params.TransactionType,
		Amount:          signed,
		Reference:       params.Reference,
		Meta:            meta,
		AllowNegative:   params.AllowNegative,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateTransaction) && tx != nil {
			return &store.MutationResult{TransactionId: tx.Id, BalanceAfter: tx.BalanceAfter, Existing: true}, nil
		}
		return nil, err
	}
	return &store.MutationResult{TransactionId: tx.Id, BalanceAfter: tx.BalanceAfter}, nil
}

func (s *Service) GetBalance(ctx context.Context, userId, balanceType string) (decimal.Decimal, error) {
	return s.subledger.GetBalance(ctx, userId, balanceType)
}

func (s *Service) GetAllUserBalances(ctx context.Context, userId string) ([]models.AccountBalance, error) {
	return s.subledger.GetAllBalances(ctx, userId)
}

func (s *Service) GetTransactionHistory(ctx context.Context, userId, balanceType string, limit, offset int) ([]models.Transaction, error) {
	return s.subledger.GetTransactionHistory(ctx, userId, balanceType, limit, offset)
}

// ReconcileUserBalance returns ErrReconciliation when the wallet's balance,
// transactions or provider actions disagree.
func (s *Service) ReconcileUserBalance(ctx context.Context, userId, balanceType string) error {
	rec, err := s.subledger.ReconcileBalance(ctx, userId, balanceType)
	if err != nil {
		return err
	}
	return rec.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
