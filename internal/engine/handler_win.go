package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

func (o *Orchestrator) processWin(ctx context.Context, in *ProcessInput) error {
	ev, ok := in.Event.(WinEvent)
	if !ok {
		return fmt.Errorf("%w: win handler got %s", ErrInvalidPayload, in.Event.Type())
	}
	if ev.Amount.IsNegative() {
		return fmt.Errorf("%w: win amount %s", ErrNegativeAmount, ev.Amount)
	}

	if ev.Amount.IsZero() {
		zap.L().Debug("Zero win, completing round as a loss",
			zap.String("provider", o.provider.Name()),
			zap.String("external_bet_id", ev.ExternalBetId))
		if err := o.attachResult(ctx, in, "", ev.Amount); err != nil {
			return err
		}
	} else {
		exceeds, err := o.payouts.ExceedsMaxPayout(ctx, in.User.Id, ev.Amount, in.Aggregate.GameIdentifier)
		if err != nil {
			return fmt.Errorf("check max payout: %w", err)
		}
		if exceeds {
			return declined(CodeMaxPayoutExceeded, "win %s exceeds max payout for game %s", ev.Amount, in.Aggregate.GameIdentifier)
		}

		result, err := o.ledger.Credit(ctx, o.mutationParams(in, "win", ev.Amount, nil))
		if err != nil {
			return fmt.Errorf("credit win: %w", err)
		}
		in.Patch.PayDelta = in.Patch.PayDelta.Add(ev.Amount)
		if err := o.attachResult(ctx, in, result.TransactionId, ev.Amount); err != nil {
			return err
		}
	}

	o.closeouts.RecordCloseout(ctx, o.closeout(in))
	return nil
}
