package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"provider-integrity-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) (*SubledgerService, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	service := NewSubledgerService(db)

	if err := service.InitSchema(); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func TestProcessTransaction_Credit(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	amount := decimal.NewFromFloat(1.5)

	result, err := service.ProcessTransaction(ctx, ProcessTransactionParams{
		UserId:          "user1",
		BalanceType:     "EUR",
		TransactionType: "deposit",
		Amount:          amount,
		Reference:       "deposit-1",
		Meta:            map[string]string{"source": "test"},
	})
	if err != nil {
		t.Fatalf("ProcessTransaction failed: %v", err)
	}

	if result.UserId != "user1" {
		t.Errorf("Expected userId user1, got %s", result.UserId)
	}
	if result.BalanceType != "EUR" {
		t.Errorf("Expected balance type EUR, got %s", result.BalanceType)
	}
	if !result.Amount.Equal(amount) {
		t.Errorf("Expected amount %s, got %s", amount.String(), result.Amount.String())
	}
	if !result.BalanceAfter.Equal(amount) {
		t.Errorf("Expected balance %s, got %s", amount.String(), result.BalanceAfter.String())
	}
	if result.Meta != `{"source":"test"}` {
		t.Errorf("Unexpected meta %s", result.Meta)
	}
}

func TestProcessTransaction_Debit(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	_, err := service.ProcessTransaction(ctx, ProcessTransactionParams{UserId: "user1", BalanceType: "EUR", TransactionType: "deposit", Amount: decimal.NewFromFloat(2.0), Reference: "r1"})
	if err != nil {
		t.Fatalf("Initial deposit failed: %v", err)
	}

	result, err := service.ProcessTransaction(ctx, ProcessTransactionParams{UserId: "user1", BalanceType: "EUR", TransactionType: "bet", Amount: decimal.NewFromFloat(-0.5), Reference: "r2"})
	if err != nil {
		t.Fatalf("ProcessTransaction debit failed: %v", err)
	}

	expectedBalance := decimal.NewFromFloat(1.5)
	if !result.BalanceAfter.Equal(expectedBalance) {
		t.Errorf("Expected balance %s, got %s", expectedBalance.String(), result.BalanceAfter.String())
	}
	if !result.BalanceBefore.Equal(decimal.NewFromFloat(2.0)) {
		t.Errorf("Expected balance before 2, got %s", result.BalanceBefore.String())
	}
}

func TestProcessTransaction_DuplicateReferenceReturnsOriginal(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	params := ProcessTransactionParams{UserId: "user1", BalanceType: "EUR", TransactionType: "win", Amount: decimal.NewFromInt(10), Reference: "hub88:round-1:win"}

	first, err := service.ProcessTransaction(ctx, params)
	if err != nil {
		t.Fatalf("First ProcessTransaction failed: %v", err)
	}

	second, err := service.ProcessTransaction(ctx, params)
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Fatalf("Expected duplicate transaction error, got: %v", err)
	}
	if second == nil || second.Id != first.Id {
		t.Fatalf("Expected original transaction %s to be returned, got %+v", first.Id, second)
	}

	balance, err := service.GetBalance(ctx, "user1", "EUR")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected balance 10 after duplicate, got %s", balance.String())
	}
}

func TestProcessTransaction_InsufficientFunds(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	_, err := service.ProcessTransaction(ctx, ProcessTransactionParams{UserId: "user1", BalanceType: "EUR", TransactionType: "bet", Amount: decimal.NewFromFloat(-1.0), Reference: "r1"})
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("Expected insufficient funds, got: %v", err)
	}

	// Nothing recorded, so the same reference can be used again
	if _, err := service.GetTransactionByReference(ctx, "r1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected no transaction for declined debit, got: %v", err)
	}
}

func TestProcessTransaction_NegativeBalanceAllowed(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	withdrawalAmount := decimal.NewFromFloat(-1.0)
	result, err := service.ProcessTransaction(ctx, ProcessTransactionParams{
		UserId:          "user1",
		BalanceType:     "EUR",
		TransactionType: "rollback",
		Amount:          withdrawalAmount,
		Reference:       "r1",
		AllowNegative:   true,
	})
	if err != nil {
		t.Fatalf("ProcessTransaction with negative balance failed: %v", err)
	}

	if !result.BalanceAfter.Equal(withdrawalAmount) {
		t.Errorf("Expected negative balance %s, got %s", withdrawalAmount.String(), result.BalanceAfter.String())
	}
}

func TestProcessTransaction_ZeroAmountRecorded(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	result, err := service.ProcessTransaction(ctx, ProcessTransactionParams{UserId: "user1", BalanceType: "EUR", TransactionType: "bet", Amount: decimal.Zero, Reference: "freebet-1"})
	if err != nil {
		t.Fatalf("ProcessTransaction zero amount failed: %v", err)
	}
	if result.Id == "" {
		t.Error("Expected a transaction id for zero-amount debit")
	}

	history, err := service.GetTransactionHistory(ctx, "user1", "EUR", 10, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("Expected 1 transaction in history, got %d", len(history))
	}
}
