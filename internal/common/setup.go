package common

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"provider-integrity-go/internal/api"
	"provider-integrity-go/internal/bonus"
	"provider-integrity-go/internal/catalog"
	"provider-integrity-go/internal/database"
	"provider-integrity-go/internal/engine"
	"provider-integrity-go/internal/formance"
	"provider-integrity-go/internal/history"
	"provider-integrity-go/internal/metrics"
	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/postgres"
	"provider-integrity-go/internal/providers"
	"provider-integrity-go/internal/store"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// WalletLedger is a balance ledger that can also report balances.
type WalletLedger interface {
	store.BalanceLedger
	api.Wallet
}

type Services struct {
	DbService  *database.Service
	Postgres   *sql.DB // nil unless DATABASE_DRIVER=postgres
	Redis      *redis.Client
	Actions    store.ActionLedger
	Aggregates store.AggregateStore
	Ledger     WalletLedger
	Catalog    *catalog.Catalog
	Bonuses    *bonus.Service
	Registry   *providers.Registry
	Closeouts  engine.CloseoutRecorder
	Observer   *metrics.Observer
	Metrics    *prometheus.Registry
	Callbacks  *api.CallbackService

	staleAfter time.Duration
	closers    []func()
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the stores, the ledger backend, the catalogue, the
// bonus service and one orchestrator per enabled provider.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	s := &Services{
		staleAfter: cfg.Engine.StaleAfter,
		DbService:  dbService,
		Actions:    dbService.Actions(),
		Aggregates: dbService.Aggregates(),
		Ledger:     dbService,
		Metrics:    prometheus.NewRegistry(),
	}
	s.closers = append(s.closers, dbService.Close)

	if err := s.initialize(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) initialize(ctx context.Context, cfg *models.Config) error {
	if cfg.Database.Driver == "postgres" {
		zap.L().Info("Using PostgreSQL for actions and bet aggregates")
		pg, err := postgres.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		s.Postgres = pg
		s.closers = append(s.closers, func() { _ = pg.Close() })
		if err := postgres.Migrate(ctx, pg); err != nil {
			return err
		}
		s.Actions = postgres.NewActionLedger(pg)
		s.Aggregates = postgres.NewAggregateStore(pg)
	}

	ledger, err := InitializeLedger(ctx, cfg, s.DbService)
	if err != nil {
		return err
	}
	s.Ledger = ledger

	defaultMaxPayout, err := decimal.NewFromString(cfg.Engine.DefaultMaxPayout)
	if err != nil {
		return fmt.Errorf("invalid default max payout: %w", err)
	}
	s.Catalog, err = catalog.Load(cfg.Engine.GamesFile, defaultMaxPayout)
	if err != nil {
		return fmt.Errorf("failed to load game catalogue: %w", err)
	}

	if err := s.initBonuses(ctx, cfg.Bonus); err != nil {
		return err
	}

	s.Registry, err = providers.LoadRegistry(cfg.Engine.ProvidersFile)
	if err != nil {
		return fmt.Errorf("failed to load providers: %w", err)
	}

	s.Observer = metrics.NewObserver(s.Metrics)
	s.initCloseouts(cfg.Kafka)

	s.Callbacks, err = api.NewCallbackService(s.Registry, s.Dependencies, s.Ledger, s)
	return err
}

func (s *Services) initBonuses(ctx context.Context, cfg models.BonusConfig) error {
	var long bonus.Tier = bonus.NewMemoryTier(nil)
	if cfg.RedisAddr != "" {
		rdb, err := bonus.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		s.Redis = rdb
		s.closers = append(s.closers, func() { _ = rdb.Close() })
		long = bonus.NewRedisTier(rdb)
	} else {
		zap.L().Warn("REDIS_ADDR not set, bonus templates fall back to process memory")
	}

	templates, err := bonus.NewTemplateCache(s.DbService, bonus.NewMemoryTier(nil), long, cfg.ShortTTL, cfg.LongTTL)
	if err != nil {
		return err
	}
	s.Bonuses = bonus.NewService(s.DbService, templates)
	return nil
}

func (s *Services) initCloseouts(cfg models.KafkaConfig) {
	if cfg.Brokers == "" || cfg.CloseoutTopic == "" {
		zap.L().Info("No Kafka brokers configured, closeouts are logged only")
		s.Closeouts = history.LogRecorder{}
		return
	}

	recorder := history.NewKafkaRecorder(history.NewWriter(cfg.Brokers, cfg.CloseoutTopic), 1024, 5*time.Second)
	recorder.OnPublished = s.Observer.CloseoutsPublished.Inc
	recorder.OnDropped = s.Observer.CloseoutsDropped.Inc
	s.Closeouts = recorder
	s.closers = append(s.closers, func() {
		if err := recorder.Close(); err != nil {
			zap.L().Warn("Failed to close closeout writer", zap.Error(err))
		}
	})
}

// Dependencies wires the orchestrator of one provider.
func (s *Services) Dependencies(provider string) engine.Dependencies {
	return engine.Dependencies{
		Users:      s.DbService,
		Actions:    s.Actions,
		Aggregates: s.Aggregates,
		Ledger:     s.Ledger,
		Catalog:    s.Catalog,
		Payouts:    s.Catalog.PayoutGuard(provider),
		Bonuses:    s.Bonuses,
		Closeouts:  s.Closeouts,
		Observer:   s.Observer,
		StaleAfter: s.staleAfter,
	}
}

// Ping checks every backing store the processor depends on.
func (s *Services) Ping(ctx context.Context) error {
	var errs []error
	if err := s.DbService.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("sqlite: %w", err))
	}
	if s.Postgres != nil {
		if err := s.Postgres.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// InitializeLedger returns the configured balance ledger backend. The SQLite
// subledger lives in dbService itself.
func InitializeLedger(ctx context.Context, cfg *models.Config, dbService *database.Service) (WalletLedger, error) {
	if cfg.Ledger.Backend != "formance" {
		return dbService, nil
	}
	zap.L().Info("Using Formance as balance ledger", zap.String("ledger", cfg.Ledger.Formance.LedgerName))
	ledger, err := formance.NewLedger(ctx, cfg.Ledger.Formance, dbService)
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

// InitializeDatabaseOnly initializes just the database service without the engine
// Useful for read-only operations like querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

// Close releases resources in reverse order of acquisition.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
