package engine

import (
	"context"
	"fmt"

	"provider-integrity-go/internal/fsm"
	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	"github.com/shopspring/decimal"
)

// ProcessInput is what a handler sees. Handlers add amount deltas to Patch;
// the orchestrator persists Patch together with the state change.
type ProcessInput struct {
	Event     Event
	Action    *models.Action
	User      *models.User
	Aggregate *models.BetAggregate
	Patch     store.AggregatePatch
}

// Handler performs the side effect bound to a transition.
type Handler interface {
	Process(ctx context.Context, in *ProcessInput) error
}

type handlerFunc func(ctx context.Context, in *ProcessInput) error

func (f handlerFunc) Process(ctx context.Context, in *ProcessInput) error { return f(ctx, in) }

func (o *Orchestrator) handlerFor(h fsm.Handler) (Handler, error) {
	switch h {
	case fsm.HandlerBet:
		return handlerFunc(o.processBet), nil
	case fsm.HandlerWin:
		return handlerFunc(o.processWin), nil
	case fsm.HandlerRefund:
		return handlerFunc(o.processRefund), nil
	case fsm.HandlerRollback:
		return handlerFunc(o.processRollback), nil
	case fsm.HandlerSettle:
		return handlerFunc(o.processSettle), nil
	case fsm.HandlerSettleLoss:
		return handlerFunc(o.processSettleLoss), nil
	}
	return nil, fmt.Errorf("no handler bound to %q", h)
}

// attachResult writes the balance outcome back onto the action record.
func (o *Orchestrator) attachResult(ctx context.Context, in *ProcessInput, transactionId string, amount decimal.Decimal) error {
	patch := store.ActionPatch{Amount: &amount}
	if transactionId != "" {
		patch.ResultingTransactionId = &transactionId
	}
	if err := o.actions.Update(ctx, in.Action.Id, patch); err != nil {
		return fmt.Errorf("attach result to action: %w", err)
	}
	in.Action.Amount = decimal.NewNullDecimal(amount)
	if transactionId != "" {
		in.Action.ResultingTransactionId = transactionId
	}
	return nil
}

func (o *Orchestrator) mutationParams(in *ProcessInput, transactionType string, amount decimal.Decimal, extra map[string]string) store.MutationParams {
	base := in.Event.Base()
	meta := map[string]string{
		"provider":                o.provider.Name(),
		"round_id":                base.ExternalBetId,
		"game_id":                 in.Aggregate.GameIdentifier,
		"external_transaction_id": base.ExternalTransactionId,
		"action_id":               in.Action.Id,
	}
	for k, v := range extra {
		meta[k] = v
	}
	return store.MutationParams{
		UserId:              in.User.Id,
		Amount:              amount,
		TransactionType:     transactionType,
		Reference:           in.Action.Key().String(),
		Meta:                meta,
		BalanceTypeOverride: in.Aggregate.BalanceType,
	}
}

// closeout summarises the round as it will be once Patch is persisted.
func (o *Orchestrator) closeout(in *ProcessInput) models.Closeout {
	bet := in.Aggregate.BetAmount.Add(in.Patch.BetDelta)
	pay := in.Aggregate.PayAmount.Add(in.Patch.PayDelta)
	return models.Closeout{
		Provider:           o.provider.Name(),
		ExternalIdentifier: in.Aggregate.ExternalIdentifier,
		UserId:             in.User.Id,
		GameIdentifier:     in.Aggregate.GameIdentifier,
		BalanceType:        in.Aggregate.BalanceType,
		BetAmount:          bet,
		PayAmount:          pay,
		Profit:             bet.Sub(pay),
		ClosedAt:           o.clock().UTC(),
	}
}
