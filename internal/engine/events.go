package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"provider-integrity-go/internal/models"

	"github.com/shopspring/decimal"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// EventBase carries the fields every provider callback has.
type EventBase struct {
	UserId                string
	ExternalBetId         string // provider round / betslip id
	ExternalTransactionId string
	GameIdentifier        string
	Currency              string
}

// Base returns the shared fields of an event.
func (b EventBase) Base() EventBase { return b }

// Event is one decoded provider callback. The set of implementations is
// closed: BetEvent, WinEvent, RefundEvent, RollbackEvent and SettleEvent.
type Event interface {
	Type() models.EventType
	Base() EventBase
	isEvent()
}

type BetEvent struct {
	EventBase
	Amount   decimal.Decimal
	BonusRef string // provider bonus or free spin reference, empty for cash bets
}

type WinEvent struct {
	EventBase
	Amount decimal.Decimal
}

type RefundEvent struct {
	EventBase
	Amount decimal.NullDecimal // informational; the original debit is what gets credited
	Reason string
}

type RollbackEvent struct {
	EventBase
	Amount decimal.NullDecimal
}

type SettleEvent struct {
	EventBase
}

func (BetEvent) Type() models.EventType      { return models.EventBet }
func (WinEvent) Type() models.EventType      { return models.EventWin }
func (RefundEvent) Type() models.EventType   { return models.EventRefund }
func (RollbackEvent) Type() models.EventType { return models.EventRollback }
func (SettleEvent) Type() models.EventType   { return models.EventSettle }

func (BetEvent) isEvent()      {}
func (WinEvent) isEvent()      {}
func (RefundEvent) isEvent()   {}
func (RollbackEvent) isEvent() {}
func (SettleEvent) isEvent()   {}

// CanonicalPayload is the provider-neutral JSON shape of a callback.
type CanonicalPayload struct {
	UserId        string           `json:"user_id"`
	RoundId       string           `json:"round_id"`
	TransactionId string           `json:"transaction_id"`
	GameId        string           `json:"game_id"`
	Currency      string           `json:"currency"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	BonusRef      string           `json:"bonus_ref,omitempty"`
	Reason        string           `json:"reason,omitempty"`
}

// DecodeCanonical parses a canonical payload for the named event type.
func DecodeCanonical(eventType string, raw []byte) (Event, error) {
	et, ok := models.ParseEventType(eventType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	var p CanonicalPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p.ToEvent(et)
}

// ToEvent validates the payload and builds the typed event.
func (p CanonicalPayload) ToEvent(et models.EventType) (Event, error) {
	base := EventBase{
		UserId:                strings.TrimSpace(p.UserId),
		ExternalBetId:         strings.TrimSpace(p.RoundId),
		ExternalTransactionId: p.TransactionId,
		GameIdentifier:        p.GameId,
		Currency:              strings.ToUpper(strings.TrimSpace(p.Currency)),
	}
	if err := base.validate(); err != nil {
		return nil, err
	}

	var amount decimal.NullDecimal
	if p.Amount != nil {
		amount = decimal.NewNullDecimal(*p.Amount)
	}

	switch et {
	case models.EventBet:
		if !amount.Valid {
			return nil, fmt.Errorf("%w: bet without amount", ErrInvalidPayload)
		}
		if amount.Decimal.IsNegative() {
			return nil, fmt.Errorf("%w: bet amount %s", ErrInvalidPayload, amount.Decimal)
		}
		return BetEvent{EventBase: base, Amount: amount.Decimal, BonusRef: p.BonusRef}, nil
	case models.EventWin:
		if !amount.Valid {
			return nil, fmt.Errorf("%w: win without amount", ErrInvalidPayload)
		}
		return WinEvent{EventBase: base, Amount: amount.Decimal}, nil
	case models.EventRefund:
		return RefundEvent{EventBase: base, Amount: amount, Reason: p.Reason}, nil
	case models.EventRollback:
		return RollbackEvent{EventBase: base, Amount: amount}, nil
	case models.EventSettle:
		return SettleEvent{EventBase: base}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, et)
}

func (b EventBase) validate() error {
	if b.UserId == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidPayload)
	}
	if b.ExternalBetId == "" {
		return fmt.Errorf("%w: missing round id", ErrInvalidPayload)
	}
	if b.Currency != "" && !currencyPattern.MatchString(b.Currency) {
		return fmt.Errorf("%w: malformed currency %q", ErrInvalidPayload, b.Currency)
	}
	return nil
}
