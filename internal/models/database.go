package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// User represents a player account
type User struct {
	Id        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Currency  string    `db:"currency"`
	Country   string    `db:"country"`
	Locked    bool      `db:"locked"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// AccountBalance represents current balance state (hot data)
type AccountBalance struct {
	Id                string          `db:"id"`
	UserId            string          `db:"user_id"`
	BalanceType       string          `db:"balance_type"`
	Balance           decimal.Decimal `db:"balance"`
	LastTransactionId string          `db:"last_transaction_id"`
	Version           int64           `db:"version"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// Transaction represents immutable balance ledger history (cold data)
type Transaction struct {
	Id              string          `db:"id"`
	UserId          string          `db:"user_id"`
	BalanceType     string          `db:"balance_type"`
	TransactionType string          `db:"transaction_type"`
	Amount          decimal.Decimal `db:"amount"`
	BalanceBefore   decimal.Decimal `db:"balance_before"`
	BalanceAfter    decimal.Decimal `db:"balance_after"`
	Reference       string          `db:"reference"`
	Meta            string          `db:"meta"`
	Status          string          `db:"status"`
	CreatedAt       time.Time       `db:"created_at"`
	ProcessedAt     time.Time       `db:"processed_at"`
}

// EventType names one kind of provider callback
type EventType string

const (
	EventBet      EventType = "bet"
	EventWin      EventType = "win"
	EventRollback EventType = "rollback"
	EventRefund   EventType = "refund"
	EventSettle   EventType = "settle"
)

// EventTypes lists every recognised event type in table order.
var EventTypes = []EventType{EventBet, EventWin, EventRollback, EventRefund, EventSettle}

// ParseEventType validates a raw event name.
func ParseEventType(s string) (EventType, bool) {
	for _, et := range EventTypes {
		if string(et) == s {
			return et, true
		}
	}
	return "", false
}

// BetState is the lifecycle state of a provider round
type BetState string

const (
	StateWaiting  BetState = "waiting"
	StatePlaying  BetState = "playing"
	StateGameOver BetState = "game_over"
	StateRefunded BetState = "refunded"
	StateSettled  BetState = "settled"
)

// ActionStatus tracks how far an inbound event got
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionProcessed ActionStatus = "processed"
	ActionDeclined  ActionStatus = "declined"
)

// ActionKey is the idempotency key of an inbound provider event
type ActionKey struct {
	Provider      string
	ExternalBetId string
	EventType     EventType
}

// String renders the key as used for balance ledger references
func (k ActionKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Provider, k.ExternalBetId, k.EventType)
}

// Action is one row per inbound logical provider event
type Action struct {
	Id                     string              `db:"id"`
	Provider               string              `db:"provider"`
	ExternalBetId          string              `db:"external_bet_id"`
	EventType              EventType           `db:"event_type"`
	UserId                 string              `db:"user_id"`
	ExternalTransactionId  string              `db:"external_transaction_id"`
	Amount                 decimal.NullDecimal `db:"amount"`
	ResultingTransactionId string              `db:"resulting_transaction_id"`
	Fingerprint            string              `db:"fingerprint"`
	Status                 ActionStatus        `db:"status"`
	DeclineCode            string              `db:"decline_code"`
	Attempts               int                 `db:"attempts"`
	CreatedAt              time.Time           `db:"created_at"`
	UpdatedAt              time.Time           `db:"updated_at"`
}

// Key returns the idempotency key of the action
func (a *Action) Key() ActionKey {
	return ActionKey{Provider: a.Provider, ExternalBetId: a.ExternalBetId, EventType: a.EventType}
}

// BetAggregate holds the lifecycle of one provider round
type BetAggregate struct {
	Id                 string          `db:"id"`
	Provider           string          `db:"provider"`
	ExternalIdentifier string          `db:"external_identifier"`
	UserId             string          `db:"user_id"`
	State              BetState        `db:"state"`
	BetAmount          decimal.Decimal `db:"bet_amount"`
	PayAmount          decimal.Decimal `db:"pay_amount"`
	BalanceType        string          `db:"balance_type"`
	GameIdentifier     string          `db:"game_identifier"`
	ClosedOut          *time.Time      `db:"closed_out"`
	Version            int64           `db:"version"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

// BonusTemplate is a provider-side bonus definition (free spins, free bets)
type BonusTemplate struct {
	Id          string          `db:"id" yaml:"id"`
	Provider    string          `db:"provider" yaml:"provider"`
	ExternalId  string          `db:"external_id" yaml:"external_id"`
	Kind        string          `db:"kind" yaml:"kind"` // "freebet", "freespin", "deposit"
	BalanceType string          `db:"balance_type" yaml:"balance_type"`
	Value       decimal.Decimal `db:"value" yaml:"value"`
}

// Bonus statuses
const (
	BonusActive  = "active"
	BonusUsed    = "used"
	BonusSettled = "settled"
)

// Bonus is a bonus granted to a user, optionally consumed by a round
type Bonus struct {
	Id         string    `db:"id"`
	UserId     string    `db:"user_id"`
	TemplateId string    `db:"template_id"`
	Status     string    `db:"status"`
	RoundRef   string    `db:"round_ref"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}
