package formance

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"provider-integrity-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetBalance returns the wallet balance for a user and balance type.
// An account the ledger has never seen holds zero.
func (l *Ledger) GetBalance(ctx context.Context, userId, balanceType string) (decimal.Decimal, error) {
	zap.L().Debug("Getting wallet balance from Formance",
		zap.String("user_id", userId), zap.String("balance_type", balanceType))

	vols, _, err := l.getAccountVolumes(ctx, userAccount(userId))
	if err != nil {
		return decimal.Zero, err
	}
	if bal := volumeBalance(vols, formanceAsset(balanceType)); bal != nil {
		return bigIntToDecimal(bal, balanceType), nil
	}
	return decimal.Zero, nil
}

// GetAllUserBalances returns all non-zero balances for a user.
func (l *Ledger) GetAllUserBalances(ctx context.Context, userId string) ([]models.AccountBalance, error) {
	addr := userAccount(userId)
	vols, updatedAt, err := l.getAccountVolumes(ctx, addr)
	if err != nil {
		return nil, err
	}

	var balances []models.AccountBalance
	for fAsset := range vols {
		bal := volumeBalance(vols, fAsset)
		if bal == nil || bal.Sign() == 0 {
			continue
		}
		symbol := assetSymbol(fAsset)
		balances = append(balances, models.AccountBalance{
			Id:          addr,
			UserId:      userId,
			BalanceType: symbol,
			Balance:     bigIntToDecimal(bal, symbol),
			UpdatedAt:   updatedAt,
		})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].BalanceType < balances[j].BalanceType })
	return balances, nil
}

// ---------- helpers ----------

func (l *Ledger) getAccountVolumes(ctx context.Context, address string) (map[string]shared.V2Volume, time.Time, error) {
	resp, err := l.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  l.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("failed to get account %s: %w", address, err)
	}
	acct := resp.V2AccountResponse.Data
	updatedAt := time.Time{}
	if acct.UpdatedAt != nil {
		updatedAt = *acct.UpdatedAt
	} else if acct.FirstUsage != nil {
		updatedAt = *acct.FirstUsage
	}
	return acct.Volumes, updatedAt, nil
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a *big.Int in minor units to a decimal amount.
func bigIntToDecimal(raw *big.Int, balanceType string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(balanceType)))
}

// assetSymbol extracts the symbol from a Formance asset like "EUR/2".
func assetSymbol(fAsset string) string {
	for i, c := range fAsset {
		if c == '/' {
			return fAsset[:i]
		}
	}
	return fAsset
}
