package providers

import (
	"encoding/json"

	"provider-integrity-go/internal/engine"
	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	"github.com/shopspring/decimal"
)

// Play'n GO status codes.
const (
	pngOK                 = 0
	pngNoUser             = 1
	pngInternal           = 2
	pngInvalidCurrency    = 3
	pngAccountLocked      = 6
	pngNotEnoughMoney     = 7
	pngSpendingExceeded   = 9
	pngServiceUnavailable = 12
	pngInvalidGame        = 13
	pngUnknownTx          = 14
)

var playNGoAliases = map[string]models.EventType{
	"reserve":       models.EventBet,
	"release":       models.EventWin,
	"cancelReserve": models.EventRefund,
	"cancelRelease": models.EventRollback,
	"endRound":      models.EventSettle,
}

type playNGoRequest struct {
	ExternalId    string           `json:"externalId"`
	TransactionId string           `json:"transactionId"`
	RoundId       string           `json:"roundId"`
	GameId        string           `json:"gameId"`
	Currency      string           `json:"currency"`
	Real          *decimal.Decimal `json:"real"`
	FreegameId    string           `json:"freegameExternalId"`
	State         string           `json:"state"`
}

type playNGoResponse struct {
	ExternalId            string `json:"externalId,omitempty"`
	Real                  string `json:"real"`
	Currency              string `json:"currency,omitempty"`
	ExternalTransactionId string `json:"externalTransactionId,omitempty"`
	StatusCode            int    `json:"statusCode"`
	StatusMessage         string `json:"statusMessage,omitempty"`
}

type playNGo struct {
	name         string
	matchPayload bool
}

func newPlayNGo(name string, matchPayload bool) *playNGo {
	return &playNGo{name: name, matchPayload: matchPayload}
}

func (p *playNGo) Name() string { return p.name }

func (p *playNGo) RedeliveryCheck() store.RedeliveryCheck {
	if p.matchPayload {
		return store.MatchPayload
	}
	return nil
}

func (p *playNGo) Decode(eventType string, raw []byte) (engine.Event, error) {
	et, err := resolveAlias(playNGoAliases, eventType)
	if err != nil {
		return nil, err
	}

	var req playNGoRequest
	if err := unmarshal(raw, &req); err != nil {
		return nil, err
	}

	return engine.CanonicalPayload{
		UserId:        req.ExternalId,
		RoundId:       req.RoundId,
		TransactionId: req.TransactionId,
		GameId:        req.GameId,
		Currency:      req.Currency,
		Amount:        req.Real,
		BonusRef:      req.FreegameId,
		Reason:        req.State,
	}.ToEvent(et)
}

func (p *playNGo) Render(resp *models.ProviderResponse, err error) ([]byte, error) {
	if err != nil {
		code := pngInternal
		switch classify(err) {
		case failureUnknownUser:
			code = pngNoUser
		case failureInFlight:
			code = pngServiceUnavailable
		}
		return json.Marshal(playNGoResponse{Real: "0.00", StatusCode: code, StatusMessage: err.Error()})
	}

	out := playNGoResponse{
		ExternalId:            resp.UserId,
		Real:                  resp.Balance.StringFixed(2),
		Currency:              resp.Currency,
		ExternalTransactionId: resp.TransactionId,
		StatusCode:            playNGoStatus(resp.Code),
	}
	if out.StatusCode != pngOK {
		out.StatusMessage = resp.Message
	}
	return json.Marshal(out)
}

func playNGoStatus(code string) int {
	switch code {
	case models.CodeOK:
		return pngOK
	case engine.CodeInsufficientFunds:
		return pngNotEnoughMoney
	case engine.CodeAccountLocked:
		return pngAccountLocked
	case engine.CodeInvalidCurrency:
		return pngInvalidCurrency
	case engine.CodeMaxPayoutExceeded:
		return pngSpendingExceeded
	case engine.CodeGameNotFound:
		return pngInvalidGame
	case models.CodeCannotProcess:
		return pngUnknownTx
	}
	return pngInternal
}
