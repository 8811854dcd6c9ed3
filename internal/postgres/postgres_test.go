package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestBuildActionUpdate(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	txId := "tx-1"
	status := models.ActionProcessed

	query, args := buildActionUpdate("action-1", store.ActionPatch{ResultingTransactionId: &txId, Status: &status}, now)

	assert.Equal(t, "UPDATE provider_actions SET resulting_transaction_id = $1, status = $2, updated_at = $3 WHERE id = $4", query)
	require.Len(t, args, 4)
	assert.Equal(t, "tx-1", args[0])
	assert.Equal(t, "processed", args[1])
	assert.Equal(t, now, args[2])
	assert.Equal(t, "action-1", args[3])
}

func TestBuildActionUpdateWithAmount(t *testing.T) {
	amount := decimal.RequireFromString("12.50")
	decline := "INSUFFICIENT_FUNDS"

	query, args := buildActionUpdate("a", store.ActionPatch{Amount: &amount, DeclineCode: &decline}, time.Time{})

	assert.Equal(t, "UPDATE provider_actions SET amount = $1, decline_code = $2, updated_at = $3 WHERE id = $4", query)
	assert.Equal(t, "12.5", args[0])
}

type fakeRow struct {
	values []any
}

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r.values) {
		return fmt.Errorf("expected %d columns, got %d", len(r.values), len(dest))
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *int64:
			*d = v.(int64)
		case *bool:
			*d = v.(bool)
		case *time.Time:
			*d = v.(time.Time)
		case interface{ Scan(any) error }:
			if err := d.Scan(v); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported destination %T", dest[i])
		}
	}
	return nil
}

func TestScanActionWithInsertedFlag(t *testing.T) {
	now := time.Now().UTC()
	row := fakeRow{values: []any{
		"id-1", "hub88", "round-1", "bet", "user-1", "tx-1",
		"10.000000000000000000", "", "fp", "pending", "", 1,
		now, now, true,
	}}

	var inserted bool
	action, err := scanAction(row, &inserted)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, models.EventBet, action.EventType)
	assert.True(t, action.Amount.Valid)
	assert.True(t, action.Amount.Decimal.Equal(decimal.NewFromInt(10)))
}

func TestScanAggregateClosedOut(t *testing.T) {
	now := time.Now().UTC()
	row := fakeRow{values: []any{
		"agg-1", "hub88", "round-1", "user-1", "settled", "5", "12.5",
		"EUR", "starburst", now, int64(4), now, now,
	}}

	agg, err := scanAggregate(row)
	require.NoError(t, err)
	assert.Equal(t, models.StateSettled, agg.State)
	require.NotNil(t, agg.ClosedOut)
	assert.True(t, agg.PayAmount.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, int64(4), agg.Version)
}
