package bonus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	"go.uber.org/zap"
)

var ErrCacheMiss = errors.New("template not cached")

// Tier is one layer of the template cache.
type Tier interface {
	Get(ctx context.Context, key string) (*models.BonusTemplate, error)
	Set(ctx context.Context, key string, template *models.BonusTemplate, ttl time.Duration) error
}

// TemplateSource is the system of record for bonus templates.
type TemplateSource interface {
	GetTemplate(ctx context.Context, provider, externalId string) (*models.BonusTemplate, error)
}

// MemoryTier is a process-local Tier with an injected clock.
type MemoryTier struct {
	clock   func() time.Time
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	template models.BonusTemplate
	expires  time.Time
}

func NewMemoryTier(clock func() time.Time) *MemoryTier {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryTier{clock: clock, entries: make(map[string]memoryEntry)}
}

func (m *MemoryTier) Get(_ context.Context, key string) (*models.BonusTemplate, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !m.clock().Before(entry.expires) {
		return nil, ErrCacheMiss
	}
	t := entry.template
	return &t, nil
}

func (m *MemoryTier) Set(_ context.Context, key string, template *models.BonusTemplate, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{template: *template, expires: m.clock().Add(ttl)}
	return nil
}

// TemplateCache serves templates from a short-lived tier, refreshes from the
// source on expiry and falls back to the long-lived tier while the source is
// failing.
type TemplateCache struct {
	source   TemplateSource
	short    Tier
	long     Tier
	shortTTL time.Duration
	longTTL  time.Duration
}

func NewTemplateCache(source TemplateSource, short, long Tier, shortTTL, longTTL time.Duration) (*TemplateCache, error) {
	if source == nil || short == nil || long == nil {
		return nil, fmt.Errorf("template cache needs a source and two tiers")
	}
	if shortTTL <= 0 || longTTL < shortTTL {
		return nil, fmt.Errorf("invalid template cache ttls: short %s, long %s", shortTTL, longTTL)
	}
	return &TemplateCache{source: source, short: short, long: long, shortTTL: shortTTL, longTTL: longTTL}, nil
}

func cacheKey(provider, externalId string) string {
	return "bonus:template:" + provider + ":" + externalId
}

// Get returns the template or store.ErrBonusNotFound.
func (c *TemplateCache) Get(ctx context.Context, provider, externalId string) (*models.BonusTemplate, error) {
	key := cacheKey(provider, externalId)

	if t, err := c.short.Get(ctx, key); err == nil {
		return t, nil
	}

	t, err := c.source.GetTemplate(ctx, provider, externalId)
	if err == nil {
		if err := c.short.Set(ctx, key, t, c.shortTTL); err != nil {
			zap.L().Warn("Failed to cache bonus template", zap.String("key", key), zap.Error(err))
		}
		if err := c.long.Set(ctx, key, t, c.longTTL); err != nil {
			zap.L().Warn("Failed to cache bonus template", zap.String("key", key), zap.Error(err))
		}
		return t, nil
	}
	if errors.Is(err, store.ErrBonusNotFound) {
		return nil, err
	}

	stale, lerr := c.long.Get(ctx, key)
	if lerr != nil {
		return nil, fmt.Errorf("load bonus template %s/%s: %w", provider, externalId, err)
	}
	zap.L().Warn("Template source unavailable, serving long-term cache",
		zap.String("provider", provider),
		zap.String("external_id", externalId),
		zap.Error(err))
	return stale, nil
}
