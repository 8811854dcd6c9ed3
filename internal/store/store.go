package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"provider-integrity-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrUserNotFound           = errors.New("user not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrActionNotFound         = errors.New("action not found")
	ErrAggregateNotFound      = errors.New("bet aggregate not found")
	ErrBonusNotFound          = errors.New("bonus not found")
	ErrBonusUnavailable       = errors.New("no active bonus left for template")
	ErrPayloadMismatch        = errors.New("redelivered payload does not match original")
	ErrActionWrite            = errors.New("failed to write or load action record")
)

// RedeliveryCheck validates a redelivered event against the record created by
// its first delivery. It runs only when Touch finds an existing record.
type RedeliveryCheck func(existing, incoming *models.Action) error

// MatchPayload rejects a redelivery whose semantic fields differ from the
// original: same key, different amount, transaction id or payload digest.
func MatchPayload(existing, incoming *models.Action) error {
	if existing.UserId != incoming.UserId {
		return fmt.Errorf("%w: user %s != %s", ErrPayloadMismatch, incoming.UserId, existing.UserId)
	}
	if existing.ExternalTransactionId != incoming.ExternalTransactionId {
		return fmt.Errorf("%w: transaction %s != %s", ErrPayloadMismatch, incoming.ExternalTransactionId, existing.ExternalTransactionId)
	}
	if existing.Fingerprint != "" && incoming.Fingerprint != "" && existing.Fingerprint != incoming.Fingerprint {
		return fmt.Errorf("%w: fingerprint", ErrPayloadMismatch)
	}
	// The stored amount of a bet may already be the debited amount.
	if existing.Fingerprint == "" || incoming.Fingerprint == "" {
		if existing.Amount.Valid != incoming.Amount.Valid ||
			(existing.Amount.Valid && !existing.Amount.Decimal.Equal(incoming.Amount.Decimal)) {
			return fmt.Errorf("%w: amount", ErrPayloadMismatch)
		}
	}
	return nil
}

// ActionPatch lists the fields of an action record that may change after
// insertion. Nil fields are left untouched.
type ActionPatch struct {
	Amount                 *decimal.Decimal
	ResultingTransactionId *string
	Status                 *models.ActionStatus
	DeclineCode            *string
}

// IsEmpty reports whether the patch would change nothing.
func (p ActionPatch) IsEmpty() bool {
	return p.Amount == nil && p.ResultingTransactionId == nil && p.Status == nil && p.DeclineCode == nil
}

// ActionLedger is the uniquely keyed record of inbound provider events.
type ActionLedger interface {
	// Touch inserts the action or, when its key already exists, increments
	// attempts on the stored record and returns it with existed = true.
	Touch(ctx context.Context, action *models.Action, check RedeliveryCheck) (*models.Action, bool, error)
	Get(ctx context.Context, key models.ActionKey) (*models.Action, error)
	Update(ctx context.Context, id string, patch ActionPatch) error
	// Delete removes the record with this id only. It reports whether a row was removed.
	Delete(ctx context.Context, id string) (bool, error)
}

// AggregateParams identifies a round and carries the fields fixed at creation.
type AggregateParams struct {
	Provider           string
	ExternalIdentifier string
	UserId             string
	BalanceType        string
	GameIdentifier     string
}

// AggregatePatch is applied atomically against an expected version.
type AggregatePatch struct {
	State     *models.BetState
	ClosedOut *time.Time
	BetDelta  decimal.Decimal
	PayDelta  decimal.Decimal
}

// IsEmpty reports whether the patch would change nothing.
func (p AggregatePatch) IsEmpty() bool {
	return p.State == nil && p.ClosedOut == nil && p.BetDelta.IsZero() && p.PayDelta.IsZero()
}

// AggregateStore holds bet aggregates.
type AggregateStore interface {
	GetOrCreate(ctx context.Context, params AggregateParams) (*models.BetAggregate, error)
	Get(ctx context.Context, provider, externalIdentifier, userId string) (*models.BetAggregate, error)
	// Update returns ErrConcurrentModification when the stored version differs.
	Update(ctx context.Context, id string, expectedVersion int64, patch AggregatePatch) (*models.BetAggregate, error)
}

// UserDirectory resolves player accounts.
type UserDirectory interface {
	GetUserById(ctx context.Context, userId string) (*models.User, error)
}

// MutationParams describes one balance mutation.
type MutationParams struct {
	UserId              string
	Amount              decimal.Decimal
	TransactionType     string
	Reference           string // dedup key, "provider:bet:event"
	Meta                map[string]string
	BalanceTypeOverride string
	AllowNegative       bool
}

// MutationResult is returned by Debit and Credit.
type MutationResult struct {
	TransactionId string
	BalanceAfter  decimal.Decimal
	Existing      bool // the reference had already been applied
}

// BalanceLedger is the atomic debit/credit primitive. A reference is applied
// at most once; repeating it returns the original result.
type BalanceLedger interface {
	Debit(ctx context.Context, params MutationParams) (*MutationResult, error)
	Credit(ctx context.Context, params MutationParams) (*MutationResult, error)
	GetBalance(ctx context.Context, userId, balanceType string) (decimal.Decimal, error)
}

// BonusStore persists bonuses granted to users.
type BonusStore interface {
	CreateBonus(ctx context.Context, userId, templateId string) (*models.Bonus, error)
	GetBonus(ctx context.Context, bonusId string) (*models.Bonus, error)
	GetBonusByRound(ctx context.Context, roundRef string) (*models.Bonus, error)
	GetActiveBonus(ctx context.Context, userId, templateId string) (*models.Bonus, error)
	UpdateBonusStatus(ctx context.Context, bonusId, status, roundRef string) error
	UpsertTemplate(ctx context.Context, template models.BonusTemplate) error
	GetTemplate(ctx context.Context, provider, externalId string) (*models.BonusTemplate, error)
}
