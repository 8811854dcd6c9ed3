package engine

import (
	"errors"
	"fmt"

	"provider-integrity-go/internal/fsm"
	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"
)

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrNegativeAmount   = errors.New("negative amount")
	ErrActionInFlight   = errors.New("action is still being processed")
	ErrUnknownProvider  = errors.New("unknown provider")
)

// Declined response codes.
const (
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeInvalidCurrency   = "INVALID_CURRENCY"
	CodeAccountLocked     = "ACCOUNT_LOCKED"
	CodeMaxPayoutExceeded = "MAX_PAYOUT_EXCEEDED"
	CodeGameNotFound      = "GAME_NOT_FOUND"
	CodeBonusUnavailable  = "BONUS_NOT_AVAILABLE"
)

// BusinessError is an expected decline. The event was received validly, so
// its action record is kept and marked declined.
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error { return e.Err }

func declined(code, format string, args ...any) *BusinessError {
	return &BusinessError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// UnsupportedActionError tags an event the round's state machine rejects.
type UnsupportedActionError struct {
	Provider string
	Round    string
	State    models.BetState
	Event    models.EventType
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("unsupported action %s for round %s/%s in state %s", e.Event, e.Provider, e.Round, e.State)
}

func (e *UnsupportedActionError) Unwrap() error { return fsm.ErrIllegalTransition }

// IsProtocolError reports errors caused by an event that should never have
// been sent as it was.
func IsProtocolError(err error) bool {
	var unsupported *UnsupportedActionError
	return errors.As(err, &unsupported) ||
		errors.Is(err, ErrUnknownEventType) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrNegativeAmount) ||
		errors.Is(err, store.ErrPayloadMismatch) ||
		errors.Is(err, fsm.ErrIllegalTransition)
}
