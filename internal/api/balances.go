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

package api

import (
	"context"
	"fmt"

	"provider-integrity-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetUserBalance returns the current balance for a user and balance type
func (s *CallbackService) GetUserBalance(ctx context.Context, userId, balanceType string) (decimal.Decimal, error) {
	if userId == "" || balanceType == "" {
		return decimal.Zero, fmt.Errorf("user_id and balance_type are required")
	}

	balance, err := s.wallet.GetBalance(ctx, userId, balanceType)
	if err != nil {
		zap.L().Error("Failed to get user balance",
			zap.String("user_id", userId),
			zap.String("balance_type", balanceType),
			zap.Error(err))
		return decimal.Zero, fmt.Errorf("failed to retrieve balance")
	}

	return balance, nil
}

// GetUserBalances returns all non-zero balances for a user
func (s *CallbackService) GetUserBalances(ctx context.Context, userId string) ([]models.UserBalance, error) {
	if userId == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	balances, err := s.wallet.GetAllUserBalances(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to get user balances", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve balances")
	}

	result := make([]models.UserBalance, 0, len(balances))
	for _, balance := range balances {
		if balance.Balance.IsZero() {
			continue
		}
		result = append(result, models.UserBalance{
			BalanceType: balance.BalanceType,
			Balance:     balance.Balance,
		})
	}

	return result, nil
}

// GetTransactionHistory returns paginated wallet history for a user and balance type
func (s *CallbackService) GetTransactionHistory(ctx context.Context, userId, balanceType string, limit, offset int) ([]models.TransactionRecord, error) {
	if userId == "" || balanceType == "" {
		return nil, fmt.Errorf("user_id and balance_type are required")
	}

	history, ok := s.wallet.(TransactionHistory)
	if !ok {
		return nil, fmt.Errorf("transaction history is not available for this ledger backend")
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	transactions, err := history.GetTransactionHistory(ctx, userId, balanceType, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get transaction history",
			zap.String("user_id", userId),
			zap.String("balance_type", balanceType),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve transaction history")
	}

	result := make([]models.TransactionRecord, len(transactions))
	for i, tx := range transactions {
		result[i] = models.TransactionRecord{
			Id:          tx.Id,
			Type:        tx.TransactionType,
			BalanceType: tx.BalanceType,
			Amount:      tx.Amount,
			Reference:   tx.Reference,
			Status:      tx.Status,
			ProcessedAt: tx.ProcessedAt,
		}
	}

	return result, nil
}
