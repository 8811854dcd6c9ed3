package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"provider-integrity-go/internal/models"

	"github.com/shopspring/decimal"
)

// ResolveAction extracts the action record for an event. It performs no I/O.
func ResolveAction(provider string, ev Event) *models.Action {
	base := ev.Base()
	action := &models.Action{
		Provider:              provider,
		ExternalBetId:         base.ExternalBetId,
		EventType:             ev.Type(),
		UserId:                base.UserId,
		ExternalTransactionId: base.ExternalTransactionId,
		Status:                models.ActionPending,
	}

	var extra []string
	switch e := ev.(type) {
	case BetEvent:
		action.Amount = decimal.NewNullDecimal(e.Amount)
		extra = append(extra, e.BonusRef)
	case WinEvent:
		action.Amount = decimal.NewNullDecimal(e.Amount)
	case RefundEvent:
		action.Amount = e.Amount
		extra = append(extra, e.Reason)
	case RollbackEvent:
		action.Amount = e.Amount
	case SettleEvent:
	}

	action.Fingerprint = fingerprint(base, action.Amount, extra...)
	return action
}

// fingerprint digests the semantic fields of a delivery so redeliveries can
// be compared after the stored amount has been rewritten.
func fingerprint(base EventBase, amount decimal.NullDecimal, extra ...string) string {
	amountText := "-"
	if amount.Valid {
		amountText = amount.Decimal.String()
	}
	parts := append([]string{
		base.UserId,
		base.ExternalTransactionId,
		base.GameIdentifier,
		base.Currency,
		amountText,
	}, extra...)

	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}
