package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	"github.com/shopspring/decimal"
)

func aggregateParams() store.AggregateParams {
	return store.AggregateParams{
		Provider:           "hub88",
		ExternalIdentifier: "round-1",
		UserId:             "user1",
		BalanceType:        "EUR",
		GameIdentifier:     "starburst",
	}
}

func TestGetOrCreate_CreatesOnce(t *testing.T) {
	service, cleanup := setupServiceTestDB(t)
	defer cleanup()

	ctx := context.Background()
	aggregates := service.Aggregates()

	first, err := aggregates.GetOrCreate(ctx, aggregateParams())
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if first.State != models.StateWaiting {
		t.Errorf("Expected waiting, got %s", first.State)
	}
	if first.Version != 1 || !first.BetAmount.IsZero() || first.ClosedOut != nil {
		t.Errorf("Unexpected new aggregate: %+v", first)
	}

	params := aggregateParams()
	params.BalanceType = "USD"
	second, err := aggregates.GetOrCreate(ctx, params)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if second.Id != first.Id {
		t.Errorf("Expected same aggregate %s, got %s", first.Id, second.Id)
	}
	if second.BalanceType != "EUR" {
		t.Errorf("Balance type is fixed at creation, got %s", second.BalanceType)
	}
}

func TestUpdateAggregate_AppliesPatch(t *testing.T) {
	service, cleanup := setupServiceTestDB(t)
	defer cleanup()

	ctx := context.Background()
	aggregates := service.Aggregates()

	agg, err := aggregates.GetOrCreate(ctx, aggregateParams())
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	playing := models.StatePlaying
	updated, err := aggregates.Update(ctx, agg.Id, agg.Version, store.AggregatePatch{State: &playing, BetDelta: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.State != models.StatePlaying || !updated.BetAmount.Equal(decimal.NewFromInt(10)) || updated.Version != 2 {
		t.Errorf("Unexpected aggregate after update: %+v", updated)
	}

	settled := models.StateSettled
	closed := time.Now()
	final, err := aggregates.Update(ctx, agg.Id, updated.Version, store.AggregatePatch{State: &settled, ClosedOut: &closed, PayDelta: decimal.NewFromInt(25)})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	loaded, err := aggregates.Get(ctx, "hub88", "round-1", "user1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.State != models.StateSettled || loaded.ClosedOut == nil {
		t.Errorf("Expected settled with closed_out, got %+v", loaded)
	}
	if !loaded.PayAmount.Equal(decimal.NewFromInt(25)) || !loaded.BetAmount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Unexpected amounts bet=%s pay=%s", loaded.BetAmount, loaded.PayAmount)
	}
	if loaded.Version != final.Version {
		t.Errorf("Expected version %d, got %d", final.Version, loaded.Version)
	}
}

func TestUpdateAggregate_StaleVersion(t *testing.T) {
	service, cleanup := setupServiceTestDB(t)
	defer cleanup()

	ctx := context.Background()
	aggregates := service.Aggregates()

	agg, _ := aggregates.GetOrCreate(ctx, aggregateParams())
	playing := models.StatePlaying
	if _, err := aggregates.Update(ctx, agg.Id, agg.Version, store.AggregatePatch{State: &playing}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	gameOver := models.StateGameOver
	_, err := aggregates.Update(ctx, agg.Id, agg.Version, store.AggregatePatch{State: &gameOver})
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Fatalf("Expected ErrConcurrentModification, got %v", err)
	}

	loaded, _ := aggregates.Get(ctx, "hub88", "round-1", "user1")
	if loaded.State != models.StatePlaying {
		t.Errorf("Stale update must not apply, state is %s", loaded.State)
	}
}

func TestBonusLifecycle(t *testing.T) {
	service, cleanup := setupServiceTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := service.UpsertTemplate(ctx, models.BonusTemplate{Provider: "slotegrator", ExternalId: "fs-10", Kind: "freespin", Value: decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("UpsertTemplate failed: %v", err)
	}
	tpl, err := service.GetTemplate(ctx, "slotegrator", "fs-10")
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}

	bonus, err := service.CreateBonus(ctx, "user1", tpl.Id)
	if err != nil {
		t.Fatalf("CreateBonus failed: %v", err)
	}
	if err := service.UpdateBonusStatus(ctx, bonus.Id, models.BonusUsed, "round-1"); err != nil {
		t.Fatalf("UpdateBonusStatus failed: %v", err)
	}

	byRound, err := service.GetBonusByRound(ctx, "round-1")
	if err != nil {
		t.Fatalf("GetBonusByRound failed: %v", err)
	}
	if byRound.Id != bonus.Id || byRound.Status != models.BonusUsed {
		t.Errorf("Unexpected bonus %+v", byRound)
	}

	if _, err := service.GetBonusByRound(ctx, "round-2"); !errors.Is(err, store.ErrBonusNotFound) {
		t.Errorf("Expected ErrBonusNotFound, got %v", err)
	}
}
