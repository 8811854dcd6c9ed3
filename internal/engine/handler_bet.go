package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"provider-integrity-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (o *Orchestrator) processBet(ctx context.Context, in *ProcessInput) error {
	ev, ok := in.Event.(BetEvent)
	if !ok {
		return fmt.Errorf("%w: bet handler got %s", ErrInvalidPayload, in.Event.Type())
	}
	if ev.Amount.IsNegative() {
		return fmt.Errorf("%w: bet amount %s", ErrNegativeAmount, ev.Amount)
	}

	if in.User.Locked {
		return declined(CodeAccountLocked, "user %s is locked", in.User.Id)
	}

	game, found := o.catalog.LookupGame(o.provider.Name(), in.Aggregate.GameIdentifier)
	if !found || !game.Enabled {
		return declined(CodeGameNotFound, "game %q is not available", in.Aggregate.GameIdentifier)
	}

	currency := ev.Currency
	if currency == "" {
		currency = in.Aggregate.BalanceType
	}
	if !strings.EqualFold(currency, in.User.Currency) || !game.AcceptsCurrency(currency) {
		return declined(CodeInvalidCurrency, "currency %s not accepted for user %s on game %s", currency, in.User.Id, game.Id)
	}

	usage, err := o.bonuses.Resolve(ctx, o.provider.Name(), in.User.Id, ev.BonusRef, in.Aggregate.Id)
	if errors.Is(err, store.ErrBonusUnavailable) {
		return &BusinessError{Code: CodeBonusUnavailable, Message: "bonus " + ev.BonusRef + " already consumed", Err: err}
	}
	if err != nil {
		return fmt.Errorf("resolve bonus %q: %w", ev.BonusRef, err)
	}

	amount := ev.Amount
	extra := map[string]string{}
	if usage != nil {
		extra["bonus_id"] = usage.BonusId
		extra["bonus_kind"] = usage.Template.Kind
		if usage.ZeroDebit() {
			zap.L().Info("Bet paid by bonus",
				zap.String("user_id", in.User.Id),
				zap.String("bonus_id", usage.BonusId),
				zap.String("requested_amount", ev.Amount.String()))
			amount = decimal.Zero
		}
	}

	result, err := o.ledger.Debit(ctx, o.mutationParams(in, "bet", amount, extra))
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			return &BusinessError{Code: CodeInsufficientFunds, Message: "insufficient funds for bet " + amount.String(), Err: err}
		}
		return fmt.Errorf("debit bet: %w", err)
	}

	if usage != nil {
		if err := o.bonuses.MarkUsed(ctx, usage.BonusId, in.Aggregate.Id); err != nil {
			return fmt.Errorf("mark bonus used: %w", err)
		}
	}

	in.Patch.BetDelta = in.Patch.BetDelta.Add(amount)
	return o.attachResult(ctx, in, result.TransactionId, amount)
}
