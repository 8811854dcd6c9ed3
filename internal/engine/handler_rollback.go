package engine

import (
	"context"
	"fmt"

	"provider-integrity-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// rollbackTarget is the credit a rollback reverses from the given state.
func rollbackTarget(state models.BetState) (models.EventType, bool) {
	switch state {
	case models.StateGameOver:
		return models.EventWin, true
	case models.StateRefunded:
		return models.EventRefund, true
	}
	return "", false
}

func (o *Orchestrator) processRollback(ctx context.Context, in *ProcessInput) error {
	ev, ok := in.Event.(RollbackEvent)
	if !ok {
		return fmt.Errorf("%w: rollback handler got %s", ErrInvalidPayload, in.Event.Type())
	}

	target, ok := rollbackTarget(in.Aggregate.State)
	if !ok {
		return fmt.Errorf("rollback bound in state %s", in.Aggregate.State)
	}

	original, err := o.actions.Get(ctx, models.ActionKey{
		Provider:      o.provider.Name(),
		ExternalBetId: ev.ExternalBetId,
		EventType:     target,
	})
	if err != nil {
		return fmt.Errorf("load %s action to roll back: %w", target, err)
	}

	amount := original.Amount.Decimal
	if !original.Amount.Valid || amount.IsZero() || original.ResultingTransactionId == "" {
		zap.L().Info("Nothing credited, rollback has no balance effect",
			zap.String("external_bet_id", ev.ExternalBetId),
			zap.String("rolled_back_event", string(target)))
		return o.attachResult(ctx, in, "", decimal.Zero)
	}

	params := o.mutationParams(in, "rollback", amount, map[string]string{
		"original_transaction_id": original.ResultingTransactionId,
		"rolled_back_event":       string(target),
	})
	params.AllowNegative = true

	result, err := o.ledger.Debit(ctx, params)
	if err != nil {
		return fmt.Errorf("debit rollback: %w", err)
	}

	in.Patch.PayDelta = in.Patch.PayDelta.Sub(amount)
	return o.attachResult(ctx, in, result.TransactionId, amount)
}
