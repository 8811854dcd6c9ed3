package formance

import (
	"context"
	"errors"
	"os"
	"testing"

	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------- Integration tests (need a Formance stack) ----------

type staticUsers map[string]*models.User

func (u staticUsers) GetUserById(_ context.Context, userId string) (*models.User, error) {
	user, ok := u[userId]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

func integrationLedger(t *testing.T, users store.UserDirectory) *Ledger {
	t.Helper()
	cfg := models.FormanceConfig{
		StackURL:     os.Getenv("FORMANCE_TEST_STACK_URL"),
		ClientID:     os.Getenv("FORMANCE_TEST_CLIENT_ID"),
		ClientSecret: os.Getenv("FORMANCE_TEST_CLIENT_SECRET"),
		LedgerName:   "integrity-test",
	}
	if cfg.StackURL == "" {
		t.Skip("FORMANCE_TEST_STACK_URL not set")
	}
	l, err := NewLedger(context.Background(), cfg, users)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return l
}

func TestIntegration_ReferenceConflictReturnsOriginal(t *testing.T) {
	userId := "it-" + uuid.NewString()
	l := integrationLedger(t, staticUsers{userId: {Id: userId, Currency: "EUR"}})
	ctx := context.Background()

	params := store.MutationParams{
		UserId:          userId,
		Amount:          decimal.RequireFromString("12.50"),
		TransactionType: "win",
		Reference:       "hub88:" + userId + ":win",
	}
	first, err := l.Credit(ctx, params)
	if err != nil {
		t.Fatalf("first credit: %v", err)
	}
	if first.Existing {
		t.Error("first credit reported as existing")
	}

	second, err := l.Credit(ctx, params)
	if err != nil {
		t.Fatalf("repeated credit: %v", err)
	}
	if !second.Existing {
		t.Error("repeated credit not reported as existing")
	}
	if second.TransactionId != first.TransactionId {
		t.Errorf("repeated credit tx = %s, want %s", second.TransactionId, first.TransactionId)
	}

	balance, err := l.GetBalance(ctx, userId, "EUR")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("12.50")) {
		t.Errorf("balance = %s, want 12.50", balance)
	}
}

func TestIntegration_DebitRefusesOverdraft(t *testing.T) {
	userId := "it-" + uuid.NewString()
	l := integrationLedger(t, staticUsers{userId: {Id: userId, Currency: "EUR"}})

	_, err := l.Debit(context.Background(), store.MutationParams{
		UserId:          userId,
		Amount:          decimal.NewFromInt(5),
		TransactionType: "bet",
		Reference:       "hub88:" + userId + ":bet",
	})
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}
