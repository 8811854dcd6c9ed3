package postgres

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
)

var _ store.AggregateStore = (*AggregateStore)(nil)

const aggregateColumns = `id, provider, external_identifier, user_id, state, bet_amount::text, pay_amount::text,
	balance_type, game_identifier, closed_out, version, created_at, updated_at`

// AggregateStore is the PostgreSQL bet_aggregates table.
type AggregateStore struct {
	db *sql.DB
}

func NewAggregateStore(db *sql.DB) *AggregateStore {
	return &AggregateStore{db: db}
}

func (s *AggregateStore) GetOrCreate(ctx context.Context, params store.AggregateParams) (*models.BetAggregate, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bet_aggregates (id, provider, external_identifier, user_id, state, balance_type, game_identifier)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), params.Provider, params.ExternalIdentifier, params.UserId,
		string(models.StateWaiting), params.BalanceType, params.GameIdentifier)
	if err != nil && !isUniqueViolation(err) {
		return nil, fmt.Errorf("insert bet aggregate: %w", err)
	}
	return s.Get(ctx, params.Provider, params.ExternalIdentifier, params.UserId)
}

func (s *AggregateStore) Get(ctx context.Context, provider, externalIdentifier, userId string) (*models.BetAggregate, error) {
	agg, err := scanAggregate(s.db.QueryRowContext(ctx, `
		SELECT `+aggregateColumns+`
		FROM bet_aggregates
		WHERE provider = $1 AND external_identifier = $2 AND user_id = $3`,
		provider, externalIdentifier, userId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s:%s", store.ErrAggregateNotFound, provider, externalIdentifier)
	}
	if err != nil {
		return nil, fmt.Errorf("load bet aggregate: %w", err)
	}
	return agg, nil
}

// Update applies deltas in SQL and succeeds only at expectedVersion.
func (s *AggregateStore) Update(ctx context.Context, id string, expectedVersion int64, patch store.AggregatePatch) (*models.BetAggregate, error) {
	var state, closedOut any
	if patch.State != nil {
		state = string(*patch.State)
	}
	if patch.ClosedOut != nil {
		closedOut = patch.ClosedOut.UTC()
	}

	agg, err := scanAggregate(s.db.QueryRowContext(ctx, `
		UPDATE bet_aggregates
		SET state = COALESCE($1, state),
			bet_amount = bet_amount + $2,
			pay_amount = pay_amount + $3,
			closed_out = COALESCE($4, closed_out),
			version = version + 1,
			updated_at = $5
		WHERE id = $6 AND version = $7
		RETURNING `+aggregateColumns,
		state, patch.BetDelta.String(), patch.PayDelta.String(), closedOut, time.Now().UTC(), id, expectedVersion))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bet aggregate %s at version %d: %w", id, expectedVersion, store.ErrConcurrentModification)
	}
	if err != nil {
		return nil, fmt.Errorf("update bet aggregate: %w", err)
	}
	return agg, nil
}

func scanAggregate(row interface{ Scan(...any) error }) (*models.BetAggregate, error) {
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
		return nil, fmt.Errorf("parse bet amount %q: %w", betAmount, err)
	}
	if agg.PayAmount, err = decimal.NewFromString(payAmount); err != nil {
		return nil, fmt.Errorf("parse pay amount %q: %w", payAmount, err)
	}
	return &agg, nil
}
