package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var _ store.ActionLedger = (*ActionLedger)(nil)

const actionColumns = `id, provider, external_bet_id, event_type, user_id, external_transaction_id,
	amount::text, resulting_transaction_id, fingerprint, status, decline_code, attempts,
	created_at, updated_at`

// The upsert bumps attempts on conflict; xmax = 0 only for a freshly inserted row.
const queryTouchAction = `
	INSERT INTO provider_actions (
		id, provider, external_bet_id, event_type, user_id, external_transaction_id,
		amount, resulting_transaction_id, fingerprint, status, decline_code, attempts,
		created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $12)
	ON CONFLICT (provider, external_bet_id, event_type) DO UPDATE
		SET attempts = provider_actions.attempts + 1, updated_at = EXCLUDED.updated_at
	RETURNING ` + actionColumns + `, (xmax = 0) AS inserted`

const queryGetAction = `
	SELECT ` + actionColumns + `
	FROM provider_actions
	WHERE provider = $1 AND external_bet_id = $2 AND event_type = $3`

// ActionLedger is the PostgreSQL provider_actions table.
type ActionLedger struct {
	db *sql.DB
}

func NewActionLedger(db *sql.DB) *ActionLedger {
	return &ActionLedger{db: db}
}

func (l *ActionLedger) Touch(ctx context.Context, action *models.Action, check store.RedeliveryCheck) (*models.Action, bool, error) {
	id := action.Id
	if id == "" {
		id = uuid.New().String()
	}
	status := action.Status
	if status == "" {
		status = models.ActionPending
	}
	var amount any
	if action.Amount.Valid {
		amount = action.Amount.Decimal.String()
	}

	var inserted bool
	row := l.db.QueryRowContext(ctx, queryTouchAction,
		id, action.Provider, action.ExternalBetId, string(action.EventType), action.UserId,
		action.ExternalTransactionId, amount, action.ResultingTransactionId, action.Fingerprint,
		string(status), action.DeclineCode, time.Now().UTC())
	record, err := scanAction(row, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", store.ErrActionWrite, err)
	}

	if inserted {
		return record, false, nil
	}

	zap.L().Warn("Redelivered provider event",
		zap.String("provider", record.Provider),
		zap.String("external_bet_id", record.ExternalBetId),
		zap.String("event_type", string(record.EventType)),
		zap.Int("attempts", record.Attempts))

	if check != nil {
		if err := check(record, action); err != nil {
			return record, true, err
		}
	}
	return record, true, nil
}

func (l *ActionLedger) Get(ctx context.Context, key models.ActionKey) (*models.Action, error) {
	record, err := scanAction(l.db.QueryRowContext(ctx, queryGetAction, key.Provider, key.ExternalBetId, string(key.EventType)), nil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrActionNotFound, key.String())
	}
	if err != nil {
		return nil, fmt.Errorf("load action %s: %w", key.String(), err)
	}
	return record, nil
}

func (l *ActionLedger) Update(ctx context.Context, id string, patch store.ActionPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	query, args := buildActionUpdate(id, patch, time.Now().UTC())
	result, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update action %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %s", store.ErrActionNotFound, id)
	}
	return nil
}

func (l *ActionLedger) Delete(ctx context.Context, id string) (bool, error) {
	result, err := l.db.ExecContext(ctx, `DELETE FROM provider_actions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete action %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func buildActionUpdate(id string, patch store.ActionPatch, now time.Time) (string, []any) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Amount != nil {
		add("amount", patch.Amount.String())
	}
	if patch.ResultingTransactionId != nil {
		add("resulting_transaction_id", *patch.ResultingTransactionId)
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.DeclineCode != nil {
		add("decline_code", *patch.DeclineCode)
	}
	add("updated_at", now)

	args = append(args, id)
	query := fmt.Sprintf("UPDATE provider_actions SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	return query, args
}

func scanAction(row interface{ Scan(...any) error }, inserted *bool) (*models.Action, error) {
	var a models.Action
	var eventType, status string
	var amount sql.NullString
	dest := []any{&a.Id, &a.Provider, &a.ExternalBetId, &eventType, &a.UserId, &a.ExternalTransactionId,
		&amount, &a.ResultingTransactionId, &a.Fingerprint, &status, &a.DeclineCode, &a.Attempts,
		&a.CreatedAt, &a.UpdatedAt}
	if inserted != nil {
		dest = append(dest, inserted)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	a.EventType = models.EventType(eventType)
	a.Status = models.ActionStatus(status)
	if amount.Valid {
		d, err := decimal.NewFromString(amount.String)
		if err != nil {
			return nil, fmt.Errorf("parse action amount %q: %w", amount.String, err)
		}
		a.Amount = decimal.NewNullDecimal(d)
	}
	return &a, nil
}
