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

	"provider-integrity-go/internal/bonus"
	"provider-integrity-go/internal/catalog"
	"provider-integrity-go/internal/common"
	"provider-integrity-go/internal/config"
	"provider-integrity-go/internal/database"
	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/postgres"
	"provider-integrity-go/internal/providers"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// migratePostgres creates the action and aggregate tables when they live in PostgreSQL.
func migratePostgres(ctx context.Context, cfg *models.Config) error {
	if cfg.Database.Driver != "postgres" {
		return nil
	}
	zap.L().Info("Migrating PostgreSQL schema")
	pg, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pg.Close()
	return postgres.Migrate(ctx, pg)
}

func seedTemplates(ctx context.Context, dbService *database.Service, file string) (int, error) {
	templates, err := bonus.LoadTemplates(file)
	if err != nil {
		return 0, err
	}
	if err := bonus.SeedTemplates(ctx, dbService, templates); err != nil {
		return 0, err
	}
	return len(templates), nil
}

// checkFiles loads the provider and game files so a broken deployment fails here
// rather than on the first callback.
func checkFiles(cfg *models.Config) (int, int, error) {
	registry, err := providers.LoadRegistry(cfg.Engine.ProvidersFile)
	if err != nil {
		return 0, 0, fmt.Errorf("providers file: %w", err)
	}
	limit, err := decimal.NewFromString(cfg.Engine.DefaultMaxPayout)
	if err != nil {
		return 0, 0, fmt.Errorf("default max payout: %w", err)
	}
	games, err := catalog.Load(cfg.Engine.GamesFile, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("games file: %w", err)
	}
	return len(registry.Names()), len(games.Games()), nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	skipTemplates := flag.Bool("skip-templates", false, "Do not seed bonus templates")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	zap.L().Info("Setting up SQLite database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	if err := migratePostgres(ctx, cfg); err != nil {
		zap.L().Fatal("Failed to migrate PostgreSQL", zap.Error(err))
	}

	seeded := 0
	if !*skipTemplates {
		seeded, err = seedTemplates(ctx, dbService, cfg.Bonus.TemplatesFile)
		if err != nil {
			zap.L().Fatal("Failed to seed bonus templates", zap.Error(err))
		}
	}

	providerCount, gameCount, err := checkFiles(cfg)
	if err != nil {
		zap.L().Fatal("Configuration check failed", zap.Error(err))
	}

	common.PrintHeader("SETUP COMPLETE", common.DefaultWidth)
	fmt.Printf("Database driver:   %s\n", cfg.Database.Driver)
	fmt.Printf("Ledger backend:    %s\n", cfg.Ledger.Backend)
	fmt.Printf("Bonus templates:   %d seeded\n", seeded)
	fmt.Printf("Providers enabled: %d\n", providerCount)
	fmt.Printf("Games configured:  %d\n", gameCount)
	common.PrintSeparator("=", common.DefaultWidth)

	zap.L().Info("Initialization complete",
		zap.Int("templates", seeded),
		zap.Int("providers", providerCount),
		zap.Int("games", gameCount))
}
