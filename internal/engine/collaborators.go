package engine

import (
	"context"
	"time"

	"provider-integrity-go/internal/fsm"
	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	"github.com/shopspring/decimal"
)

// Provider adapts one integration's callbacks to engine events.
type Provider interface {
	Name() string
	// Decode returns ErrUnknownEventType for actions the provider does not send.
	Decode(eventType string, raw []byte) (Event, error)
	// RedeliveryCheck is nil when redeliveries are accepted without comparison.
	RedeliveryCheck() store.RedeliveryCheck
}

// GameCatalog resolves games referenced by bets.
type GameCatalog interface {
	LookupGame(provider, gameId string) (*models.Game, bool)
}

// PayoutGuard caps single wins.
type PayoutGuard interface {
	ExceedsMaxPayout(ctx context.Context, userId string, amount decimal.Decimal, gameIdentifier string) (bool, error)
}

// BonusResolver finds and transitions bonuses attached to rounds.
type BonusResolver interface {
	// Resolve returns nil when bonusRef is empty. A bonus already attached to
	// roundRef is returned again so retried bets resolve the same bonus.
	Resolve(ctx context.Context, provider, userId, bonusRef, roundRef string) (*models.BonusUsage, error)
	MarkUsed(ctx context.Context, bonusId, roundRef string) error
	SettleRound(ctx context.Context, roundRef string) error
}

// CloseoutRecorder receives finished rounds. It must not block.
type CloseoutRecorder interface {
	RecordCloseout(ctx context.Context, closeout models.Closeout)
}

// Observer is notified of pipeline outcomes.
type Observer interface {
	HandlerInvoked(provider string, handler fsm.Handler)
	EventHandled(provider string, event models.EventType, outcome string, elapsed time.Duration)
	Compensated(provider string, event models.EventType)
}

// Outcome labels passed to Observer.EventHandled.
const (
	OutcomeProcessed = "processed"
	OutcomeReplayed  = "replayed"
	OutcomeDeclined  = "declined"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeInFlight  = "in_flight"
)

type nopObserver struct{}

func (nopObserver) HandlerInvoked(string, fsm.Handler)                           {}
func (nopObserver) EventHandled(string, models.EventType, string, time.Duration) {}
func (nopObserver) Compensated(string, models.EventType)                         {}

type nopBonuses struct{}

func (nopBonuses) Resolve(context.Context, string, string, string, string) (*models.BonusUsage, error) {
	return nil, nil
}
func (nopBonuses) MarkUsed(context.Context, string, string) error { return nil }
func (nopBonuses) SettleRound(context.Context, string) error      { return nil }

type nopRecorder struct{}

func (nopRecorder) RecordCloseout(context.Context, models.Closeout) {}

type noPayoutLimit struct{}

func (noPayoutLimit) ExceedsMaxPayout(context.Context, string, decimal.Decimal, string) (bool, error) {
	return false, nil
}
