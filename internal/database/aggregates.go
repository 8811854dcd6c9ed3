package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AggregateStore is the SQLite bet_aggregates table.
type AggregateStore struct {
	db *sql.DB
}

func NewAggregateStore(db *sql.DB) *AggregateStore {
	return &AggregateStore{db: db}
}

// GetOrCreate returns the round's aggregate, inserting it in the waiting
// state on first reference.
func (a *AggregateStore) GetOrCreate(ctx context.Context, params store.AggregateParams) (*models.BetAggregate, error) {
	now := time.Now().UTC()
	result, err := a.db.ExecContext(ctx, queryInsertAggregate,
		uuid.New().String(), params.Provider, params.ExternalIdentifier, params.UserId,
		string(models.StateWaiting), params.BalanceType, params.GameIdentifier, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create bet aggregate: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		zap.L().Info("Bet aggregate created",
			zap.String("provider", params.Provider),
			zap.String("external_identifier", params.ExternalIdentifier),
			zap.String("user_id", params.UserId),
			zap.String("balance_type", params.BalanceType))
	}

	return a.Get(ctx, params.Provider, params.ExternalIdentifier, params.UserId)
}

func (a *AggregateStore) Get(ctx context.Context, provider, externalIdentifier, userId string) (*models.BetAggregate, error) {
	agg, err := scanAggregate(a.db.QueryRowContext(ctx, queryGetAggregate, provider, externalIdentifier, userId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s:%s", store.ErrAggregateNotFound, provider, externalIdentifier)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bet aggregate: %w", err)
	}
	return agg, nil
}

// Update applies the patch if the stored version still equals expectedVersion.
func (a *AggregateStore) Update(ctx context.Context, id string, expectedVersion int64, patch store.AggregatePatch) (*models.BetAggregate, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanAggregate(tx.QueryRowContext(ctx, queryGetAggregateById, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %s", store.ErrAggregateNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bet aggregate: %w", err)
	}
	if current.Version != expectedVersion {
		return nil, fmt.Errorf("bet aggregate %s at version %d, expected %d: %w",
			id, current.Version, expectedVersion, store.ErrConcurrentModification)
	}

	next := applyAggregatePatch(*current, patch)

	result, err := tx.ExecContext(ctx, queryUpdateAggregate,
		string(next.State), next.BetAmount.String(), next.PayAmount.String(), nullTimeArg(next.ClosedOut),
		next.UpdatedAt, id, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to update bet aggregate: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("bet aggregate update failed - %w", store.ErrConcurrentModification)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Debug("Bet aggregate updated",
		zap.String("aggregate_id", id),
		zap.String("state", string(next.State)),
		zap.Int64("version", next.Version))
	return &next, nil
}

func applyAggregatePatch(agg models.BetAggregate, patch store.AggregatePatch) models.BetAggregate {
	if patch.State != nil {
		agg.State = *patch.State
	}
	if patch.ClosedOut != nil {
		closed := patch.ClosedOut.UTC()
		agg.ClosedOut = &closed
	}
	agg.BetAmount = agg.BetAmount.Add(patch.BetDelta)
	agg.PayAmount = agg.PayAmount.Add(patch.PayDelta)
	agg.Version++
	agg.UpdatedAt = time.Now().UTC()
	return agg
}

func scanAggregate(row rowScanner) (*models.BetAggregate, error) {
	var agg models.BetAggregate
	var state, betAmount, payAmount string
	var closedOut sql.NullTime
	err := row.Scan(&agg.Id, &agg.Provider, &agg.ExternalIdentifier, &agg.UserId, &state,
		&betAmount, &payAmount, &agg.BalanceType, &agg.GameIdentifier, &closedOut,
		&agg.Version, &agg.CreatedAt, &agg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	agg.State = models.BetState(state)
	if closedOut.Valid {
		t := closedOut.Time
		agg.ClosedOut = &t
	}
	if agg.BetAmount, err = decimal.NewFromString(betAmount); err != nil {
		return nil, fmt.Errorf("failed to parse bet amount '%s': %w", betAmount, err)
	}
	if agg.PayAmount, err = decimal.NewFromString(payAmount); err != nil {
		return nil, fmt.Errorf("failed to parse pay amount '%s': %w", payAmount, err)
	}
	return &agg, nil
}

func nullTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
