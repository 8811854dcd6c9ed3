package database

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

// ActionLedger is the SQLite provider_actions table.
type ActionLedger struct {
	db *sql.DB
}

func NewActionLedger(db *sql.DB) *ActionLedger {
	return &ActionLedger{db: db}
}

// Touch inserts the action keyed by (provider, external_bet_id, event_type).
// When the key already exists the stored row's attempts counter is bumped and
// the row is returned with existed = true.
func (l *ActionLedger) Touch(ctx context.Context, action *models.Action, check store.RedeliveryCheck) (*models.Action, bool, error) {
	key := action.Key()

	// The existing row can vanish between a failed insert and the update when
	// a concurrent delivery compensates, so the pair is retried once.
	for attempt := 0; attempt < 2; attempt++ {
		created, err := l.insertAction(ctx, action)
		if err == nil {
			zap.L().Debug("Action recorded",
				zap.String("provider", key.Provider),
				zap.String("external_bet_id", key.ExternalBetId),
				zap.String("event_type", string(key.EventType)),
				zap.String("action_id", created.Id))
			return created, false, nil
		}
		if !isUniqueViolation(err) {
			return nil, false, fmt.Errorf("%w: %w", store.ErrActionWrite, err)
		}

		existing, err := scanAction(l.db.QueryRowContext(ctx, queryTouchAction,
			time.Now().UTC(), key.Provider, key.ExternalBetId, string(key.EventType)))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("%w: %w", store.ErrActionWrite, err)
		}

		zap.L().Warn("Redelivered provider event",
			zap.String("provider", key.Provider),
			zap.String("external_bet_id", key.ExternalBetId),
			zap.String("event_type", string(key.EventType)),
			zap.Int("attempts", existing.Attempts))

		if check != nil {
			if err := check(existing, action); err != nil {
				return existing, true, err
			}
		}
		return existing, true, nil
	}

	return nil, false, fmt.Errorf("%w: %s", store.ErrActionWrite, key.String())
}

func (l *ActionLedger) insertAction(ctx context.Context, action *models.Action) (*models.Action, error) {
	created := *action
	if created.Id == "" {
		created.Id = uuid.New().String()
	}
	if created.Status == "" {
		created.Status = models.ActionPending
	}
	now := time.Now().UTC()
	created.Attempts = 1
	created.CreatedAt = now
	created.UpdatedAt = now

	_, err := l.db.ExecContext(ctx, queryInsertAction,
		created.Id, created.Provider, created.ExternalBetId, string(created.EventType), created.UserId,
		created.ExternalTransactionId, nullDecimalArg(created.Amount), created.ResultingTransactionId,
		created.Fingerprint, string(created.Status), created.DeclineCode, now, now)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Get returns the action stored under key or store.ErrActionNotFound.
func (l *ActionLedger) Get(ctx context.Context, key models.ActionKey) (*models.Action, error) {
	action, err := scanAction(l.db.QueryRowContext(ctx, queryGetAction, key.Provider, key.ExternalBetId, string(key.EventType)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrActionNotFound, key.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load action %s: %w", key.String(), err)
	}
	return action, nil
}

func (l *ActionLedger) Update(ctx context.Context, id string, patch store.ActionPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	var sets []string
	var args []any
	if patch.Amount != nil {
		sets = append(sets, "amount = ?")
		args = append(args, patch.Amount.String())
	}
	if patch.ResultingTransactionId != nil {
		sets = append(sets, "resulting_transaction_id = ?")
		args = append(args, *patch.ResultingTransactionId)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.DeclineCode != nil {
		sets = append(sets, "decline_code = ?")
		args = append(args, *patch.DeclineCode)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	query := "UPDATE provider_actions SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	result, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update action %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %s", store.ErrActionNotFound, id)
	}
	return nil
}

// Delete removes the action with this record id. A newer record created for
// the same key after a compensation has a different id and is left alone.
func (l *ActionLedger) Delete(ctx context.Context, id string) (bool, error) {
	result, err := l.db.ExecContext(ctx, queryDeleteAction, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete action %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n > 0, nil
}

func scanAction(row rowScanner) (*models.Action, error) {
	var a models.Action
	var eventType, status string
	var amount sql.NullString
	err := row.Scan(&a.Id, &a.Provider, &a.ExternalBetId, &eventType, &a.UserId, &a.ExternalTransactionId,
		&amount, &a.ResultingTransactionId, &a.Fingerprint, &status, &a.DeclineCode, &a.Attempts,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.EventType = models.EventType(eventType)
	a.Status = models.ActionStatus(status)
	if amount.Valid {
		d, err := decimal.NewFromString(amount.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse action amount '%s': %w", amount.String, err)
		}
		a.Amount = decimal.NewNullDecimal(d)
	}
	return &a, nil
}

func nullDecimalArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
