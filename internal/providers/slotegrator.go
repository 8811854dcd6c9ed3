package providers

import (
	"encoding/json"

	"provider-integrity-go/internal/engine"
	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	"github.com/shopspring/decimal"
)

// Slotegrator error codes.
const (
	slotegratorInsufficientFunds = "INSUFFICIENT_FUNDS"
	slotegratorInternal          = "INTERNAL_ERROR"
)

type slotegratorRequest struct {
	PlayerId      string           `json:"player_id"`
	TransactionId string           `json:"transaction_id"`
	RoundId       string           `json:"round_id"`
	GameUUID      string           `json:"game_uuid"`
	Currency      string           `json:"currency"`
	Amount        *decimal.Decimal `json:"amount"`
	Type          string           `json:"type"`
	FreespinId    string           `json:"freespin_id"`
	Reason        string           `json:"reason"`
}

type slotegratorResponse struct {
	Balance       string `json:"balance"`
	TransactionId string `json:"transaction_id,omitempty"`
}

type slotegratorError struct {
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

type slotegrator struct {
	name         string
	matchPayload bool
}

func newSlotegrator(name string, matchPayload bool) *slotegrator {
	return &slotegrator{name: name, matchPayload: matchPayload}
}

func (s *slotegrator) Name() string { return s.name }

func (s *slotegrator) RedeliveryCheck() store.RedeliveryCheck {
	if s.matchPayload {
		return store.MatchPayload
	}
	return nil
}

func (s *slotegrator) Decode(eventType string, raw []byte) (engine.Event, error) {
	et, err := resolveAlias(nil, eventType)
	if err != nil {
		return nil, err
	}

	var req slotegratorRequest
	if err := unmarshal(raw, &req); err != nil {
		return nil, err
	}

	p := engine.CanonicalPayload{
		UserId:        req.PlayerId,
		RoundId:       req.RoundId,
		TransactionId: req.TransactionId,
		GameId:        req.GameUUID,
		Currency:      req.Currency,
		Amount:        req.Amount,
		Reason:        req.Reason,
	}
	if req.Type == "freespin" {
		p.BonusRef = req.FreespinId
	}
	return p.ToEvent(et)
}

func (s *slotegrator) Render(resp *models.ProviderResponse, err error) ([]byte, error) {
	if err != nil {
		return json.Marshal(slotegratorError{ErrorCode: slotegratorInternal, ErrorDescription: err.Error()})
	}
	if resp.Code == engine.CodeInsufficientFunds {
		return json.Marshal(slotegratorError{ErrorCode: slotegratorInsufficientFunds, ErrorDescription: resp.Message})
	}
	if !resp.Success {
		return json.Marshal(slotegratorError{ErrorCode: slotegratorInternal, ErrorDescription: resp.Code + ": " + resp.Message})
	}
	return json.Marshal(slotegratorResponse{
		Balance:       resp.Balance.StringFixed(2),
		TransactionId: resp.TransactionId,
	})
}
