package engine

import (
	"context"
	"fmt"
)

func (o *Orchestrator) processSettle(ctx context.Context, in *ProcessInput) error {
	if err := o.bonuses.SettleRound(ctx, in.Aggregate.Id); err != nil {
		return fmt.Errorf("settle round bonus: %w", err)
	}
	return nil
}

// processSettleLoss closes a round that never produced a win.
func (o *Orchestrator) processSettleLoss(ctx context.Context, in *ProcessInput) error {
	if err := o.processSettle(ctx, in); err != nil {
		return err
	}
	o.closeouts.RecordCloseout(ctx, o.closeout(in))
	return nil
}
