package bonus

import (
	"context"
	"errors"
	"fmt"

	"provider-integrity-go/internal/config"
	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	"go.uber.org/zap"
)

// Service resolves and transitions bonuses consumed by bets.
type Service struct {
	store     store.BonusStore
	templates *TemplateCache
}

func NewService(bonuses store.BonusStore, templates *TemplateCache) *Service {
	return &Service{store: bonuses, templates: templates}
}

func (s *Service) Resolve(ctx context.Context, provider, userId, bonusRef, roundRef string) (*models.BonusUsage, error) {
	if bonusRef == "" {
		return nil, nil
	}

	template, err := s.templates.Get(ctx, provider, bonusRef)
	if err != nil {
		return nil, err
	}

	attached, err := s.store.GetBonusByRound(ctx, roundRef)
	switch {
	case err == nil && attached.UserId == userId && attached.TemplateId == template.Id:
		return &models.BonusUsage{BonusId: attached.Id, Template: *template}, nil
	case err != nil && !errors.Is(err, store.ErrBonusNotFound):
		return nil, err
	}

	bonus, err := s.store.GetActiveBonus(ctx, userId, template.Id)
	if errors.Is(err, store.ErrBonusNotFound) {
		return nil, fmt.Errorf("%w: %s for user %s", store.ErrBonusUnavailable, bonusRef, userId)
	}
	if err != nil {
		return nil, fmt.Errorf("load active %s bonus for user %s: %w", bonusRef, userId, err)
	}

	zap.L().Debug("Resolved bonus",
		zap.String("provider", provider),
		zap.String("user_id", userId),
		zap.String("bonus_id", bonus.Id),
		zap.String("kind", template.Kind))
	return &models.BonusUsage{BonusId: bonus.Id, Template: *template}, nil
}

func (s *Service) MarkUsed(ctx context.Context, bonusId, roundRef string) error {
	return s.store.UpdateBonusStatus(ctx, bonusId, models.BonusUsed, roundRef)
}

// SettleRound settles the bonus a round consumed, if any.
func (s *Service) SettleRound(ctx context.Context, roundRef string) error {
	bonus, err := s.store.GetBonusByRound(ctx, roundRef)
	if errors.Is(err, store.ErrBonusNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if bonus.Status == models.BonusSettled {
		return nil
	}
	return s.store.UpdateBonusStatus(ctx, bonus.Id, models.BonusSettled, roundRef)
}

type templatesFile struct {
	Templates []models.BonusTemplate `yaml:"templates"`
}

// LoadTemplates reads bonus templates from a YAML file.
func LoadTemplates(path string) ([]models.BonusTemplate, error) {
	var file templatesFile
	if err := config.LoadYAML(path, &file); err != nil {
		return nil, err
	}
	for i, t := range file.Templates {
		if t.Provider == "" || t.ExternalId == "" {
			return nil, fmt.Errorf("template at index %d missing provider or external_id", i)
		}
		switch t.Kind {
		case models.BonusKindFreebet, models.BonusKindFreespin, models.BonusKindDeposit:
		default:
			return nil, fmt.Errorf("template %s/%s has unknown kind %q", t.Provider, t.ExternalId, t.Kind)
		}
	}
	return file.Templates, nil
}

// SeedTemplates upserts templates into the store.
func SeedTemplates(ctx context.Context, bonuses store.BonusStore, templates []models.BonusTemplate) error {
	for _, t := range templates {
		if err := bonuses.UpsertTemplate(ctx, t); err != nil {
			return fmt.Errorf("seed template %s/%s: %w", t.Provider, t.ExternalId, err)
		}
		zap.L().Info("Seeded bonus template",
			zap.String("provider", t.Provider),
			zap.String("external_id", t.ExternalId),
			zap.String("kind", t.Kind))
	}
	return nil
}
