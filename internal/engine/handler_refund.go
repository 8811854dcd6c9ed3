package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RefundReason classifies why a provider refunded a bet.
type RefundReason string

const (
	RefundDefault      RefundReason = "default"
	RefundCashOut      RefundReason = "cash_out"
	RefundReject       RefundReason = "reject"
	RefundUnrecognized RefundReason = "unrecognized"
)

// ClassifyRefundReason maps provider reason strings to a RefundReason.
func ClassifyRefundReason(raw string) RefundReason {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "default", "refund", "cancel", "cancelled", "canceled", "void":
		return RefundDefault
	case "cash_out", "cashout", "cash-out":
		return RefundCashOut
	case "reject", "rejected", "bet_rejected":
		return RefundReject
	}
	return RefundUnrecognized
}

func (o *Orchestrator) processRefund(ctx context.Context, in *ProcessInput) error {
	ev, ok := in.Event.(RefundEvent)
	if !ok {
		return fmt.Errorf("%w: refund handler got %s", ErrInvalidPayload, in.Event.Type())
	}

	betAction, err := o.actions.Get(ctx, models.ActionKey{
		Provider:      o.provider.Name(),
		ExternalBetId: ev.ExternalBetId,
		EventType:     models.EventBet,
	})
	if err != nil && !errors.Is(err, store.ErrActionNotFound) {
		return fmt.Errorf("load bet action: %w", err)
	}
	if betAction == nil || betAction.Status != models.ActionProcessed || !betAction.Amount.Valid {
		zap.L().Warn("Refund without recorded bet, recording marker",
			zap.String("provider", o.provider.Name()),
			zap.String("external_bet_id", ev.ExternalBetId),
			zap.String("user_id", in.User.Id))
		return o.attachResult(ctx, in, "", decimal.Zero)
	}

	amount := betAction.Amount.Decimal
	if ev.Amount.Valid && !ev.Amount.Decimal.Equal(amount) {
		zap.L().Warn("Refund amount differs from original debit, crediting original",
			zap.String("external_bet_id", ev.ExternalBetId),
			zap.String("requested", ev.Amount.Decimal.String()),
			zap.String("original", amount.String()))
	}

	reason := ClassifyRefundReason(ev.Reason)
	result, err := o.ledger.Credit(ctx, o.mutationParams(in, "refund", amount, map[string]string{
		"refund_reason":           string(reason),
		"refund_reason_raw":       ev.Reason,
		"original_transaction_id": betAction.ResultingTransactionId,
	}))
	if err != nil {
		return fmt.Errorf("credit refund: %w", err)
	}

	in.Patch.PayDelta = in.Patch.PayDelta.Add(amount)
	return o.attachResult(ctx, in, result.TransactionId, amount)
}
