package engine

import (
	"context"
	"fmt"

	"provider-integrity-go/internal/models"

	"go.uber.org/zap"
)

// ResponseInput is the post-mutation view a response is built from.
type ResponseInput struct {
	Event     Event
	Action    *models.Action
	User      *models.User
	Aggregate *models.BetAggregate // nil when the round was never created
}

// ResolveResponse builds the success reply with the authoritative balance.
func (o *Orchestrator) ResolveResponse(ctx context.Context, in *ResponseInput) (*models.ProviderResponse, error) {
	balanceType := balanceTypeFor(in.Aggregate, in.Event, in.User)
	balance, err := o.ledger.GetBalance(ctx, in.User.Id, balanceType)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}

	transactionId := in.Action.ResultingTransactionId
	if transactionId == "" {
		transactionId = in.Action.Id
	}

	return &models.ProviderResponse{
		Success:       true,
		UserId:        in.User.Id,
		Balance:       balance,
		Currency:      balanceType,
		TransactionId: transactionId,
		Code:          models.CodeOK,
	}, nil
}

func (o *Orchestrator) declinedResponse(ctx context.Context, user *models.User, balanceType, code, message string) *models.ProviderResponse {
	resp := &models.ProviderResponse{
		Success:  false,
		UserId:   user.Id,
		Currency: balanceType,
		Code:     code,
		Message:  message,
	}
	balance, err := o.ledger.GetBalance(ctx, user.Id, balanceType)
	if err != nil {
		zap.L().Warn("Failed to load balance for declined response", zap.String("user_id", user.Id), zap.Error(err))
		return resp
	}
	resp.Balance = balance
	return resp
}

func cannotProcessResponse(message string) *models.ProviderResponse {
	return &models.ProviderResponse{
		Success: false,
		Code:    models.CodeCannotProcess,
		Message: message,
	}
}

// balanceTypeFor prefers the wallet fixed on the round, then the event's
// currency, then the user's.
func balanceTypeFor(agg *models.BetAggregate, ev Event, user *models.User) string {
	if agg != nil && agg.BalanceType != "" {
		return agg.BalanceType
	}
	if ev != nil {
		if c := ev.Base().Currency; c != "" {
			return c
		}
	}
	return user.Currency
}
