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
	"flag"
	"fmt"

	"provider-integrity-go/internal/api"
	"provider-integrity-go/internal/common"
	"provider-integrity-go/internal/config"
	"provider-integrity-go/internal/models"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalUsers        int
	totalBalances     int
	usersWithBalances int
	reconciled        int
}

// reconciler is implemented by the SQLite subledger.
type reconciler interface {
	ReconcileUserBalance(ctx context.Context, userId, balanceType string) error
}

func printBalance(balance models.AccountBalance, isLast bool) {
	fmt.Printf("%s %-6s: %20s (v%d, last_tx: %s, updated: %s)\n",
		common.BoxPrefix(isLast),
		balance.BalanceType,
		common.FormatAmount(balance.Balance, balance.BalanceType),
		balance.Version,
		common.ShortId(balance.LastTransactionId),
		balance.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func printUserHeader(user common.UserInfo, balanceCount int) {
	fmt.Printf("\n┌─ User: %s (%s)\n", user.Name, user.Email)
	fmt.Printf("│  ID: %s  [%s, %s]\n", user.Id, user.Currency, common.LockLabel(user.Locked))
	fmt.Printf("│  Balances: %d\n", balanceCount)
	common.PrintBoxSeparator(78)
}

func processUser(ctx context.Context, user common.UserInfo, wallet api.Wallet, reconcile bool) (int, int, error) {
	balances, err := wallet.GetAllUserBalances(ctx, user.Id)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get balances: %w", err)
	}

	reconciled := 0
	if r, ok := wallet.(reconciler); ok && reconcile {
		for _, b := range balances {
			if err := r.ReconcileUserBalance(ctx, user.Id, b.BalanceType); err != nil {
				return 0, reconciled, fmt.Errorf("reconcile %s: %w", b.BalanceType, err)
			}
			reconciled++
		}
	}

	if len(balances) == 0 {
		return 0, reconciled, nil
	}

	printUserHeader(user, len(balances))
	for i, balance := range balances {
		printBalance(balance, i == len(balances)-1)
	}

	return len(balances), reconciled, nil
}

func generateReport(ctx context.Context, users []common.UserInfo, wallet api.Wallet, reconcile bool, logger *zap.Logger) balanceStats {
	stats := balanceStats{}

	for _, user := range users {
		stats.totalUsers++

		balanceCount, reconciled, err := processUser(ctx, user, wallet, reconcile)
		stats.reconciled += reconciled
		if err != nil {
			logger.Error("Failed to process user",
				zap.String("user_id", user.Id),
				zap.String("user_name", user.Name),
				zap.Error(err))
			continue
		}

		if balanceCount > 0 {
			stats.usersWithBalances++
			stats.totalBalances += balanceCount
		}
	}

	return stats
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific user email (optional)")
	reconcileFlag := flag.Bool("reconcile", false, "Verify each balance against its transaction history (SQLite ledger only)")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	wallet, err := common.InitializeLedger(ctx, cfg, dbService)
	if err != nil {
		logger.Fatal("Failed to initialize ledger", zap.Error(err))
	}

	users, err := common.InitializeUsers(ctx, dbService, *emailFlag, logger)
	if err != nil {
		logger.Fatal("Failed to initialize users", zap.Error(err))
	}

	common.PrintHeader("USER BALANCE REPORT", common.DefaultWidth)

	stats := generateReport(ctx, users, wallet, *reconcileFlag, logger)

	summary := fmt.Sprintf("SUMMARY: %d users with balances (%d total balances across %d users queried)",
		stats.usersWithBalances, stats.totalBalances, stats.totalUsers)
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.String("ledger_backend", cfg.Ledger.Backend),
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("users_with_balances", stats.usersWithBalances),
		zap.Int("total_balances", stats.totalBalances),
		zap.Int("reconciled", stats.reconciled))
}
