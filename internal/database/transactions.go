package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"
)

// ProcessTransactionParams contains the parameters for processing a transaction
type ProcessTransactionParams struct {
	UserId          string
	BalanceType     string
	TransactionType string
	Amount          decimal.Decimal // signed: negative debits, positive credits
	Reference       string
	Meta            map[string]string
	AllowNegative   bool
}

// ProcessTransaction atomically updates balance and records transaction.
// A repeated reference returns the stored transaction together with
// store.ErrDuplicateTransaction.
func (s *SubledgerService) ProcessTransaction(ctx context.Context, params ProcessTransactionParams) (*models.Transaction, error) {

	zap.L().Info("Processing transaction",
		zap.String("user_id", params.UserId),
		zap.String("balance_type", params.BalanceType),
		zap.String("type", params.TransactionType),
		zap.String("amount", params.Amount.String()),
		zap.String("reference", params.Reference))

	if params.Reference != "" {
		existing, err := s.GetTransactionByReference(ctx, params.Reference)
		if err == nil {
			zap.L().Warn("Duplicate transaction reference detected, returning original",
				zap.String("reference", params.Reference),
				zap.String("existing_internal_tx_id", existing.Id))
			return existing, fmt.Errorf("%w: reference %s already exists", store.ErrDuplicateTransaction, params.Reference)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to check for duplicate transaction: %w", err)
		}
	}

	meta := "{}"
	if len(params.Meta) > 0 {
		raw, err := json.Marshal(params.Meta)
		if err != nil {
			return nil, fmt.Errorf("failed to encode transaction meta: %w", err)
		}
		meta = string(raw)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentBalanceStr string
	var accountId string
	var version int64

	err = tx.QueryRowContext(ctx, queryGetAccountBalance, params.UserId, params.BalanceType).Scan(&accountId, &currentBalanceStr, &version)

	var currentBalance decimal.Decimal
	if errors.Is(err, sql.ErrNoRows) {
		accountId = uuid.New().String()
		currentBalance = decimal.Zero
		version = 1

		_, err = tx.ExecContext(ctx, queryInsertAccountBalance, accountId, params.UserId, params.BalanceType, "0", 1)
		if err != nil {
			return nil, fmt.Errorf("failed to create account balance: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to get current balance: %w", err)
	} else {
		currentBalance, err = decimal.NewFromString(currentBalanceStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse current balance '%s': %w", currentBalanceStr, err)
		}
	}

	newBalance := currentBalance.Add(params.Amount)
	if params.Amount.IsNegative() && newBalance.IsNegative() && !params.AllowNegative {
		zap.L().Warn("Insufficient funds",
			zap.String("user_id", params.UserId),
			zap.String("balance_type", params.BalanceType),
			zap.String("balance", currentBalance.String()),
			zap.String("amount", params.Amount.String()))
		return nil, fmt.Errorf("%w: balance %s, requested %s", store.ErrInsufficientFunds, currentBalance.String(), params.Amount.Neg().String())
	}

	transactionId := uuid.New().String()
	now := time.Now().UTC()

	transaction, err := scanTransaction(tx.QueryRowContext(ctx, queryInsertTransaction,
		transactionId, params.UserId, params.BalanceType, params.TransactionType,
		params.Amount.String(), currentBalance.String(), newBalance.String(),
		params.Reference, meta, "confirmed", now, now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: reference %s inserted concurrently", store.ErrDuplicateTransaction, params.Reference)
		}
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	// Optimistic lock on the balance row
	result, err := tx.ExecContext(ctx, queryUpdateAccountBalance, newBalance.String(), transactionId, params.UserId, params.BalanceType, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	if err := s.addJournalEntries(ctx, tx, transaction); err != nil {
		return nil, fmt.Errorf("failed to add journal entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Transaction processed successfully",
		zap.String("transaction_id", transactionId),
		zap.String("user_id", params.UserId),
		zap.String("balance_type", params.BalanceType),
		zap.String("old_balance", currentBalance.String()),
		zap.String("new_balance", newBalance.String()))

	return transaction, nil
}

type journalEntry struct {
	accountType  string
	accountId    string
	debitAmount  decimal.Decimal
	creditAmount decimal.Decimal
}

// addJournalEntries creates double-entry bookkeeping entries.
// Credits to a player increase the operator's liability; debits reduce it.
func (s *SubledgerService) addJournalEntries(ctx context.Context, tx *sql.Tx, transaction *models.Transaction) error {
	if transaction.Amount.IsZero() {
		return nil
	}

	wallet := fmt.Sprintf("%s_%s", transaction.UserId, transaction.BalanceType)
	liability := fmt.Sprintf("player_funds_%s", transaction.BalanceType)
	amount := transaction.Amount.Abs()

	var entries []journalEntry
	if transaction.Amount.IsPositive() {
		entries = []journalEntry{
			{"player_wallet", wallet, amount, decimal.Zero},
			{"operator_liability", liability, decimal.Zero, amount},
		}
	} else {
		entries = []journalEntry{
			{"player_wallet", wallet, decimal.Zero, amount},
			{"operator_liability", liability, amount, decimal.Zero},
		}
	}

	for _, entry := range entries {
		_, err := tx.ExecContext(ctx, queryInsertJournalEntry,
			uuid.New().String(), transaction.Id, entry.accountType, entry.accountId,
			entry.debitAmount.String(), entry.creditAmount.String())
		if err != nil {
			return err
		}
	}

	return nil
}

// GetTransactionByReference returns the transaction recorded under a reference
// or sql.ErrNoRows.
func (s *SubledgerService) GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return scanTransaction(s.db.QueryRowContext(ctx, queryGetTransactionByReference, reference))
}

// GetTransactionHistory returns paginated transaction history for a user
func (s *SubledgerService) GetTransactionHistory(ctx context.Context, userId, balanceType string, limit, offset int) ([]models.Transaction, error) {
	zap.L().Debug("Getting transaction history",
		zap.String("user_id", userId),
		zap.String("balance_type", balanceType),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	rows, err := s.db.QueryContext(ctx, queryGetTransactionHistory, userId, balanceType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var transactions []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *tx)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during transaction row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return transactions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var amountStr, balanceBeforeStr, balanceAfterStr string
	err := row.Scan(&tx.Id, &tx.UserId, &tx.BalanceType, &tx.TransactionType,
		&amountStr, &balanceBeforeStr, &balanceAfterStr,
		&tx.Reference, &tx.Meta, &tx.Status, &tx.CreatedAt, &tx.ProcessedAt)
	if err != nil {
		return nil, err
	}

	tx.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	tx.BalanceBefore, err = decimal.NewFromString(balanceBeforeStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance before '%s': %w", balanceBeforeStr, err)
	}
	tx.BalanceAfter, err = decimal.NewFromString(balanceAfterStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance after '%s': %w", balanceAfterStr, err)
	}
	return &tx, nil
}
