package formance

import (
	"context"
	"fmt"
	"math/big"

	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Numscript templates. Metadata that identifies the mutation is set inside
// the script so the Formance transaction is self-describing.
// ---------------------------------------------------------------------------

const numscriptDebit = `vars {
  asset $asset
  number $amount
  account $user_id
  string $transaction_type
  string $balance_type
}

send [$asset $amount] (
  source = @users:$user_id
  destination = @house:wagers
)

set_tx_meta("transaction_type", $transaction_type)
set_tx_meta("balance_type", $balance_type)
`

const numscriptDebitOverdraft = `vars {
  asset $asset
  number $amount
  account $user_id
  string $transaction_type
  string $balance_type
}

send [$asset $amount] (
  source = @users:$user_id allowing unbounded overdraft
  destination = @house:wagers
)

set_tx_meta("transaction_type", $transaction_type)
set_tx_meta("balance_type", $balance_type)
`

const numscriptCredit = `vars {
  asset $asset
  number $amount
  account $user_id
  string $transaction_type
  string $balance_type
}

send [$asset $amount] (
  source = @house:payouts allowing unbounded overdraft
  destination = @users:$user_id
)

set_tx_meta("transaction_type", $transaction_type)
set_tx_meta("balance_type", $balance_type)
`

// Debit moves funds from the player wallet to the house. Without
// AllowNegative the ledger refuses to overdraw the wallet.
func (l *Ledger) Debit(ctx context.Context, params store.MutationParams) (*store.MutationResult, error) {
	script := numscriptDebit
	if params.AllowNegative {
		script = numscriptDebitOverdraft
	}
	return l.post(ctx, params, script)
}

// Credit moves funds from the house to the player wallet.
func (l *Ledger) Credit(ctx context.Context, params store.MutationParams) (*store.MutationResult, error) {
	return l.post(ctx, params, numscriptCredit)
}

func (l *Ledger) post(ctx context.Context, params store.MutationParams, script string) (*store.MutationResult, error) {
	balanceType, err := l.balanceTypeFor(ctx, params)
	if err != nil {
		return nil, err
	}

	smallAmt, err := toSmallestUnit(params.Amount.Abs(), balanceType)
	if err != nil {
		return nil, err
	}

	postTx := shared.V2PostTransaction{
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars: map[string]string{
				"asset":            formanceAsset(balanceType),
				"amount":           smallAmt,
				"user_id":          params.UserId,
				"transaction_type": params.TransactionType,
				"balance_type":     balanceType,
			},
		},
		Metadata: mutationMetadata(ctx, params.Meta),
	}
	if params.Reference != "" {
		postTx.Reference = strPtr(params.Reference)
	}

	resp, err := l.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            l.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) && params.Reference != "" {
			return l.existing(ctx, params.UserId, balanceType, params.Reference)
		}
		if isInsufficientFundError(err) {
			return nil, fmt.Errorf("%w: user %s", store.ErrInsufficientFunds, params.UserId)
		}
		return nil, fmt.Errorf("error recording %s for user %s: %w", params.TransactionType, params.UserId, err)
	}

	tx := resp.V2CreateTransactionResponse.Data
	result := &store.MutationResult{TransactionId: txId(tx)}
	if bal := postCommitBalance(tx, userAccount(params.UserId), formanceAsset(balanceType)); bal != nil {
		result.BalanceAfter = bigIntToDecimal(bal, balanceType)
	} else if result.BalanceAfter, err = l.GetBalance(ctx, params.UserId, balanceType); err != nil {
		return nil, err
	}

	zap.L().Info("Wallet mutation recorded in Formance",
		zap.String("user_id", params.UserId),
		zap.String("transaction_type", params.TransactionType),
		zap.String("amount", params.Amount.String()),
		zap.String("reference", params.Reference))
	return result, nil
}

// existing resolves a reference the ledger has already applied.
func (l *Ledger) existing(ctx context.Context, userId, balanceType, reference string) (*store.MutationResult, error) {
	pageSize := int64(1)
	resp, err := l.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   l.ledger,
		PageSize: &pageSize,
		RequestBody: map[string]any{
			"$match": map[string]any{
				"reference": reference,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction by reference %s: %w", reference, err)
	}
	if len(resp.V2TransactionsCursorResponse.Cursor.Data) == 0 {
		return nil, fmt.Errorf("conflict on reference %s but no transaction found", reference)
	}

	tx := resp.V2TransactionsCursorResponse.Cursor.Data[0]
	balance, err := l.GetBalance(ctx, userId, balanceType)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Reference already applied in Formance",
		zap.String("reference", reference),
		zap.String("tx_id", txId(tx)))
	return &store.MutationResult{TransactionId: txId(tx), BalanceAfter: balance, Existing: true}, nil
}

func (l *Ledger) balanceTypeFor(ctx context.Context, params store.MutationParams) (string, error) {
	if params.BalanceTypeOverride != "" {
		return params.BalanceTypeOverride, nil
	}
	user, err := l.users.GetUserById(ctx, params.UserId)
	if err != nil {
		return "", err
	}
	return user.Currency, nil
}

func mutationMetadata(ctx context.Context, meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta)+2)
	for k, v := range meta {
		out[k] = v
	}
	if cc := models.GetCallbackContext(ctx); cc != nil {
		if cc.RequestId != "" {
			out["request_id"] = cc.RequestId
		}
		if cc.Source != "" {
			out["source"] = cc.Source
		}
	}
	return out
}

// toSmallestUnit renders an amount in minor units, refusing sub-unit remainders.
func toSmallestUnit(amount decimal.Decimal, balanceType string) (string, error) {
	shifted := amount.Shift(int32(precisionFor(balanceType)))
	if !shifted.IsInteger() {
		return "", fmt.Errorf("amount %s exceeds %s precision of %d", amount, balanceType, precisionFor(balanceType))
	}
	return shifted.BigInt().String(), nil
}

func postCommitBalance(tx shared.V2Transaction, address, fAsset string) *big.Int {
	vols, ok := tx.PostCommitVolumes[address]
	if !ok {
		return nil
	}
	return volumeBalance(vols, fAsset)
}

func txId(tx shared.V2Transaction) string {
	if tx.ID == nil {
		return ""
	}
	return tx.ID.String()
}

func strPtr(s string) *string { return &s }
