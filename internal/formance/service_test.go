package formance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"provider-integrity-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
)

// ---------- Unit tests for pure helpers (no Formance stack needed) ----------

func TestFormanceAsset(t *testing.T) {
	tests := []struct {
		balanceType string
		want        string
	}{
		{"EUR", "EUR/2"},
		{"JPY", "JPY/0"},
		{"BTC", "BTC/8"},
		{"XYZ", "XYZ/2"}, // default precision
	}
	for _, tt := range tests {
		if got := formanceAsset(tt.balanceType); got != tt.want {
			t.Errorf("formanceAsset(%q) = %q, want %q", tt.balanceType, got, tt.want)
		}
	}
}

func TestAssetSymbol(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"EUR/2", "EUR"},
		{"BTC/8", "BTC"},
		{"PLAIN", "PLAIN"},
	}
	for _, tt := range tests {
		if got := assetSymbol(tt.input); got != tt.want {
			t.Errorf("assetSymbol(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestToSmallestUnit(t *testing.T) {
	got, err := toSmallestUnit(decimal.RequireFromString("12.34"), "EUR")
	if err != nil || got != "1234" {
		t.Errorf("toSmallestUnit(12.34 EUR) = %q, %v", got, err)
	}

	got, err = toSmallestUnit(decimal.NewFromInt(500), "JPY")
	if err != nil || got != "500" {
		t.Errorf("toSmallestUnit(500 JPY) = %q, %v", got, err)
	}

	if _, err := toSmallestUnit(decimal.RequireFromString("0.001"), "EUR"); err == nil {
		t.Error("expected error for sub-cent EUR amount")
	}
}

func TestBigIntToDecimal(t *testing.T) {
	result := bigIntToDecimal(big.NewInt(1050), "EUR")
	if !result.Equal(decimal.RequireFromString("10.50")) {
		t.Errorf("expected 10.50, got %s", result.String())
	}

	result = bigIntToDecimal(big.NewInt(100_000_000), "BTC")
	if !result.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected 1, got %s", result.String())
	}

	if result = bigIntToDecimal(nil, "EUR"); !result.IsZero() {
		t.Errorf("expected 0, got %s", result.String())
	}
}

func TestVolumeBalance(t *testing.T) {
	vols := map[string]shared.V2Volume{
		"EUR/2": {Input: big.NewInt(1000), Output: big.NewInt(250)},
		"USD/2": {Input: big.NewInt(10), Output: big.NewInt(0), Balance: big.NewInt(10)},
	}
	if got := volumeBalance(vols, "EUR/2"); got == nil || got.Int64() != 750 {
		t.Errorf("expected 750, got %v", got)
	}
	if got := volumeBalance(vols, "USD/2"); got == nil || got.Int64() != 10 {
		t.Errorf("expected 10, got %v", got)
	}
	if got := volumeBalance(vols, "GBP/2"); got != nil {
		t.Errorf("expected nil for missing asset, got %v", got)
	}
}

func TestErrorClassification(t *testing.T) {
	insufficient := fmt.Errorf("post: %w", &sdkerrors.V2ErrorResponse{ErrorCode: shared.V2ErrorsEnumInsufficientFund})
	conflict := &sdkerrors.V2ErrorResponse{ErrorCode: shared.V2ErrorsEnumConflict}

	if !isInsufficientFundError(insufficient) {
		t.Error("expected wrapped INSUFFICIENT_FUND to be detected")
	}
	if isInsufficientFundError(conflict) {
		t.Error("conflict must not read as insufficient funds")
	}
	if !isConflictError(conflict) {
		t.Error("expected CONFLICT to be detected")
	}
	if isNotFoundError(errors.New("plain")) {
		t.Error("plain error must not read as not found")
	}
}

func TestMutationMetadata(t *testing.T) {
	ctx := models.WithCallbackContext(context.Background(), &models.CallbackContext{RequestId: "req-1", Source: "kafka"})
	meta := mutationMetadata(ctx, map[string]string{"round": "r-1"})

	if meta["round"] != "r-1" || meta["request_id"] != "req-1" || meta["source"] != "kafka" {
		t.Errorf("unexpected metadata %v", meta)
	}
	if got := mutationMetadata(context.Background(), nil); len(got) != 0 {
		t.Errorf("expected empty metadata, got %v", got)
	}
}

func TestPostCommitBalance(t *testing.T) {
	tx := shared.V2Transaction{
		PostCommitVolumes: map[string]map[string]shared.V2Volume{
			"users:u1": {"EUR/2": {Input: big.NewInt(500), Output: big.NewInt(100)}},
		},
	}
	if got := postCommitBalance(tx, "users:u1", "EUR/2"); got == nil || got.Int64() != 400 {
		t.Errorf("expected 400, got %v", got)
	}
	if got := postCommitBalance(tx, "users:u2", "EUR/2"); got != nil {
		t.Errorf("expected nil for untouched account, got %v", got)
	}
}

func TestNewLedgerRequiresConfig(t *testing.T) {
	if _, err := NewLedger(context.Background(), models.FormanceConfig{}, nil); err == nil {
		t.Error("expected error for empty config")
	}
}
