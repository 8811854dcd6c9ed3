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
	"regexp"
	"strings"

	"provider-integrity-go/internal/common"
	"provider-integrity-go/internal/config"
	"provider-integrity-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	currencyRegex = regexp.MustCompile(`^[A-Z]{3,4}$`)
	countryRegex  = regexp.MustCompile(`^[A-Z]{2}$`)
)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

func validateCurrency(currency string) error {
	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("invalid currency code: %s", currency)
	}
	return nil
}

func validateCountry(country string) error {
	if !countryRegex.MatchString(country) {
		return fmt.Errorf("invalid country code: %s", country)
	}
	return nil
}

func parseDeposit(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid deposit amount %q: %w", raw, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("deposit amount cannot be negative")
	}
	return amount, nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nameFlag := flag.String("name", "", "User's full name (required)")
	emailFlag := flag.String("email", "", "User's email address (required)")
	currencyFlag := flag.String("currency", "EUR", "Wallet currency")
	countryFlag := flag.String("country", "MT", "ISO country code")
	depositFlag := flag.String("deposit", "", "Optional opening deposit, e.g. 100.00")
	lockedFlag := flag.Bool("locked", false, "Create the account locked for betting")
	flag.Parse()

	currency := strings.ToUpper(*currencyFlag)
	country := strings.ToUpper(*countryFlag)

	for _, check := range []error{
		validateName(*nameFlag),
		validateEmail(*emailFlag),
		validateCurrency(currency),
		validateCountry(country),
	} {
		if check != nil {
			zap.L().Fatal("Invalid input", zap.Error(check))
		}
	}

	deposit, err := parseDeposit(*depositFlag)
	if err != nil {
		zap.L().Fatal("Invalid deposit", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	userId := uuid.New().String()
	user, err := dbService.CreateUser(ctx, userId, *nameFlag, *emailFlag, currency, country)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			zap.L().Fatal("User already exists with this email", zap.String("email", *emailFlag))
		}
		zap.L().Fatal("Failed to create user", zap.Error(err))
	}

	if *lockedFlag {
		if err := dbService.SetUserLocked(ctx, user.Id, true); err != nil {
			zap.L().Fatal("Failed to lock user", zap.Error(err))
		}
		user.Locked = true
	}

	balance := decimal.Zero
	if deposit.IsPositive() {
		ledger, err := common.InitializeLedger(ctx, cfg, dbService)
		if err != nil {
			zap.L().Fatal("Failed to initialize ledger", zap.Error(err))
		}
		result, err := ledger.Credit(ctx, store.MutationParams{
			UserId:          user.Id,
			Amount:          deposit,
			TransactionType: "deposit",
			Reference:       "deposit:" + user.Id + ":opening",
			Meta:            map[string]string{"source": "adduser"},
		})
		if err != nil {
			zap.L().Fatal("User created but opening deposit failed", zap.String("user_id", user.Id), zap.Error(err))
		}
		balance = result.BalanceAfter
	}

	fmt.Println()
	common.PrintHeader("USER CREATED", common.DefaultWidth)
	fmt.Printf("ID:       %s\n", user.Id)
	fmt.Printf("Name:     %s\n", user.Name)
	fmt.Printf("Email:    %s\n", user.Email)
	fmt.Printf("Country:  %s\n", user.Country)
	fmt.Printf("Status:   %s\n", common.LockLabel(user.Locked))
	fmt.Printf("Balance:  %s\n", common.FormatAmount(balance, user.Currency))
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("User created successfully",
		zap.String("id", user.Id),
		zap.String("currency", user.Currency),
		zap.String("opening_balance", balance.String()))
}
