package providers

import (
	"encoding/json"

	"provider-integrity-go/internal/engine"
	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	"github.com/shopspring/decimal"
)

// Hub88 amounts are integers in 1/100000 of the currency unit.
const hub88AmountExp = -5

// Hub88 status codes.
const (
	hub88OK                  = "RS_OK"
	hub88NotEnoughMoney      = "RS_ERROR_NOT_ENOUGH_MONEY"
	hub88UserDisabled        = "RS_ERROR_USER_DISABLED"
	hub88WrongCurrency       = "RS_ERROR_WRONG_CURRENCY"
	hub88LimitReached        = "RS_ERROR_LIMIT_REACHED"
	hub88WrongTypes          = "RS_ERROR_WRONG_TYPES"
	hub88InvalidGame         = "RS_ERROR_INVALID_GAME"
	hub88UnknownUser         = "RS_ERROR_INVALID_TOKEN"
	hub88DuplicateTx         = "RS_ERROR_DUPLICATE_TRANSACTION"
	hub88TransactionNotFound = "RS_ERROR_TRANSACTION_DOES_NOT_EXIST"
	hub88Unknown             = "RS_ERROR_UNKNOWN"
)

var hub88Aliases = map[string]models.EventType{
	"transaction/bet":          models.EventBet,
	"transaction/win":          models.EventWin,
	"transaction/rollback":     models.EventRefund,
	"transaction/win_rollback": models.EventRollback,
	"transaction/settle":       models.EventSettle,
}

type hub88Request struct {
	User                     string `json:"user"`
	RequestUUID              string `json:"request_uuid"`
	TransactionUUID          string `json:"transaction_uuid"`
	ReferenceTransactionUUID string `json:"reference_transaction_uuid"`
	Round                    string `json:"round"`
	GameCode                 string `json:"game_code"`
	Currency                 string `json:"currency"`
	Amount                   *int64 `json:"amount"`
	RewardUUID               string `json:"reward_uuid"`
	IsFree                   bool   `json:"is_free"`
	Reason                   string `json:"reason"`
}

type hub88Response struct {
	User     string `json:"user,omitempty"`
	Status   string `json:"status"`
	Currency string `json:"currency,omitempty"`
	Balance  int64  `json:"balance"`
}

type hub88 struct {
	name         string
	matchPayload bool
}

func newHub88(name string, matchPayload bool) *hub88 {
	return &hub88{name: name, matchPayload: matchPayload}
}

func (h *hub88) Name() string { return h.name }

func (h *hub88) RedeliveryCheck() store.RedeliveryCheck {
	if h.matchPayload {
		return store.MatchPayload
	}
	return nil
}

func (h *hub88) Decode(eventType string, raw []byte) (engine.Event, error) {
	et, err := resolveAlias(hub88Aliases, eventType)
	if err != nil {
		return nil, err
	}

	var req hub88Request
	if err := unmarshal(raw, &req); err != nil {
		return nil, err
	}

	p := engine.CanonicalPayload{
		UserId:        req.User,
		RoundId:       req.Round,
		TransactionId: req.TransactionUUID,
		GameId:        req.GameCode,
		Currency:      req.Currency,
		Reason:        req.Reason,
	}
	if req.Amount != nil {
		amount := decimal.New(*req.Amount, hub88AmountExp)
		p.Amount = &amount
	}
	if req.IsFree {
		p.BonusRef = req.RewardUUID
	}
	return p.ToEvent(et)
}

func hub88Amount(d decimal.Decimal) int64 {
	return d.Shift(-hub88AmountExp).Round(0).IntPart()
}

func (h *hub88) Render(resp *models.ProviderResponse, err error) ([]byte, error) {
	if err != nil {
		status := hub88Unknown
		switch classify(err) {
		case failureUnknownUser:
			status = hub88UnknownUser
		case failureDuplicate:
			status = hub88DuplicateTx
		case failureBadRequest:
			status = hub88WrongTypes
		}
		return json.Marshal(hub88Response{Status: status})
	}

	out := hub88Response{
		User:     resp.UserId,
		Currency: resp.Currency,
		Balance:  hub88Amount(resp.Balance),
		Status:   hub88Status(resp.Code),
	}
	return json.Marshal(out)
}

func hub88Status(code string) string {
	switch code {
	case models.CodeOK:
		return hub88OK
	case engine.CodeInsufficientFunds:
		return hub88NotEnoughMoney
	case engine.CodeAccountLocked:
		return hub88UserDisabled
	case engine.CodeInvalidCurrency:
		return hub88WrongCurrency
	case engine.CodeMaxPayoutExceeded:
		return hub88LimitReached
	case engine.CodeGameNotFound:
		return hub88InvalidGame
	case models.CodeCannotProcess:
		return hub88TransactionNotFound
	}
	return hub88Unknown
}
