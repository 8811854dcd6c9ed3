package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"provider-integrity-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrReconciliation = errors.New("wallet reconciliation failed")

// Reconciliation is the result of checking one wallet against its own
// history and against the provider actions that moved it.
type Reconciliation struct {
	UserId      string
	BalanceType string
	Balance     decimal.Decimal // account_balances row
	Replayed    decimal.Decimal // sum of confirmed transactions
	// Unbacked holds the keys of processed actions whose resulting transaction
	// is missing or carries a different reference.
	Unbacked []string
}

// Err returns nil when the wallet is consistent.
func (r *Reconciliation) Err() error {
	var errs []error
	if !r.Balance.Equal(r.Replayed) {
		errs = append(errs, fmt.Errorf("balance %s != replayed %s", r.Balance, r.Replayed))
	}
	if len(r.Unbacked) > 0 {
		errs = append(errs, fmt.Errorf("%d processed actions without ledger transaction: %v", len(r.Unbacked), r.Unbacked))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w for %s/%s: %w", ErrReconciliation, r.UserId, r.BalanceType, errors.Join(errs...))
}

// GetBalance reads the hot balance row. A wallet never touched is zero.
func (s *SubledgerService) GetBalance(ctx context.Context, userId, balanceType string) (decimal.Decimal, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, queryGetBalance, userId, balanceType).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance of %s/%s: %w", userId, balanceType, err)
	}
	return parseAmount("balance", raw)
}

// GetAllBalances lists the user's non-zero wallets ordered by balance type.
func (s *SubledgerService) GetAllBalances(ctx context.Context, userId string) ([]models.AccountBalance, error) {
	rows, err := s.db.QueryContext(ctx, queryGetAllUserBalances, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets of %s: %w", userId, err)
	}
	defer rows.Close()

	var wallets []models.AccountBalance
	for rows.Next() {
		var w models.AccountBalance
		var raw string
		if err := rows.Scan(&w.Id, &w.UserId, &w.BalanceType, &raw, &w.LastTransactionId, &w.Version, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		if w.Balance, err = parseAmount("balance", raw); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list wallets of %s: %w", userId, err)
	}

	zap.L().Debug("Loaded wallets", zap.String("user_id", userId), zap.Int("count", len(wallets)))
	return wallets, nil
}

// ReconcileBalance replays the wallet's confirmed transactions against the
// hot balance and checks that every processed provider action settled on
// this wallet points at a transaction recorded under its action key.
func (s *SubledgerService) ReconcileBalance(ctx context.Context, userId, balanceType string) (*Reconciliation, error) {
	rec := &Reconciliation{UserId: userId, BalanceType: balanceType}

	var err error
	if rec.Balance, err = s.GetBalance(ctx, userId, balanceType); err != nil {
		return nil, err
	}

	var replayed string
	if err := s.db.QueryRowContext(ctx, queryReconcileBalance, userId, balanceType).Scan(&replayed); err != nil {
		return nil, fmt.Errorf("failed to replay transactions of %s/%s: %w", userId, balanceType, err)
	}
	if rec.Replayed, err = parseAmount("replayed balance", replayed); err != nil {
		return nil, err
	}

	if rec.Unbacked, err = s.unbackedActions(ctx, userId, balanceType); err != nil {
		return nil, err
	}

	if err := rec.Err(); err != nil {
		zap.L().Error("Wallet reconciliation failed",
			zap.String("user_id", userId),
			zap.String("balance_type", balanceType),
			zap.String("balance", rec.Balance.String()),
			zap.String("replayed", rec.Replayed.String()),
			zap.Strings("unbacked_actions", rec.Unbacked))
		return rec, nil
	}

	zap.L().Info("Wallet reconciled",
		zap.String("user_id", userId),
		zap.String("balance_type", balanceType),
		zap.String("balance", rec.Balance.String()))
	return rec, nil
}

func (s *SubledgerService) unbackedActions(ctx context.Context, userId, balanceType string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, queryUnbackedActions, userId, balanceType)
	if err != nil {
		return nil, fmt.Errorf("failed to check actions of %s/%s: %w", userId, balanceType, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan action key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func parseAmount(what, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s '%s': %w", what, raw, err)
	}
	return d, nil
}
