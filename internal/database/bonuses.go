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

func (s *Service) CreateBonus(ctx context.Context, userId, templateId string) (*models.Bonus, error) {
	now := time.Now().UTC()
	bonus := &models.Bonus{
		Id:         uuid.New().String(),
		UserId:     userId,
		TemplateId: templateId,
		Status:     models.BonusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.db.ExecContext(ctx, queryInsertBonus, bonus.Id, userId, templateId, bonus.Status, now, now)
	if err != nil {
		return nil, fmt.Errorf("unable to insert bonus: %w", err)
	}

	zap.L().Info("Bonus granted",
		zap.String("bonus_id", bonus.Id),
		zap.String("user_id", userId),
		zap.String("template_id", templateId))
	return bonus, nil
}

func (s *Service) GetBonus(ctx context.Context, bonusId string) (*models.Bonus, error) {
	return s.getBonus(ctx, queryGetBonus, bonusId)
}

// GetBonusByRound returns the bonus most recently attached to a round.
func (s *Service) GetBonusByRound(ctx context.Context, roundRef string) (*models.Bonus, error) {
	return s.getBonus(ctx, queryGetBonusByRound, roundRef)
}

// GetActiveBonus returns the oldest unused bonus of a template granted to the user.
func (s *Service) GetActiveBonus(ctx context.Context, userId, templateId string) (*models.Bonus, error) {
	return s.getBonus(ctx, queryGetActiveBonus, userId, templateId)
}

func (s *Service) getBonus(ctx context.Context, query string, args ...any) (*models.Bonus, error) {
	var b models.Bonus
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&b.Id, &b.UserId, &b.TemplateId, &b.Status,
		&b.RoundRef, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", store.ErrBonusNotFound, args)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query bonus: %w", err)
	}
	return &b, nil
}

func (s *Service) UpdateBonusStatus(ctx context.Context, bonusId, status, roundRef string) error {
	result, err := s.db.ExecContext(ctx, queryUpdateBonusStatus, status, roundRef, time.Now().UTC(), bonusId)
	if err != nil {
		return fmt.Errorf("unable to update bonus: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrBonusNotFound, bonusId)
	}

	zap.L().Info("Bonus status updated",
		zap.String("bonus_id", bonusId),
		zap.String("status", status),
		zap.String("round_ref", roundRef))
	return nil
}

func (s *Service) UpsertTemplate(ctx context.Context, template models.BonusTemplate) error {
	if template.Id == "" {
		template.Id = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, queryUpsertTemplate, template.Id, template.Provider, template.ExternalId,
		template.Kind, template.BalanceType, template.Value.String())
	if err != nil {
		return fmt.Errorf("unable to upsert bonus template: %w", err)
	}
	return nil
}

func (s *Service) GetTemplate(ctx context.Context, provider, externalId string) (*models.BonusTemplate, error) {
	var t models.BonusTemplate
	var value string
	err := s.db.QueryRowContext(ctx, queryGetTemplate, provider, externalId).Scan(
		&t.Id, &t.Provider, &t.ExternalId, &t.Kind, &t.BalanceType, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: template %s/%s", store.ErrBonusNotFound, provider, externalId)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query bonus template: %w", err)
	}
	if t.Value, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("failed to parse template value '%s': %w", value, err)
	}
	return &t, nil
}
