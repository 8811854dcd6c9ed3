package catalog

import (
	"context"
	"fmt"
	"sort"

	"provider-integrity-go/internal/config"
	"provider-integrity-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type gamesFile struct {
	Games []models.Game `yaml:"games"`
}

type gameKey struct {
	provider string
	id       string
}

// Catalog is the in-memory game catalogue loaded at startup.
type Catalog struct {
	games            map[gameKey]*models.Game
	defaultMaxPayout decimal.Decimal
}

// Load reads a games file. A zero defaultMaxPayout leaves games without
// their own limit uncapped.
func Load(path string, defaultMaxPayout decimal.Decimal) (*Catalog, error) {
	var file gamesFile
	if err := config.LoadYAML(path, &file); err != nil {
		return nil, err
	}

	c, err := New(file.Games, defaultMaxPayout)
	if err != nil {
		return nil, fmt.Errorf("invalid games file %s: %w", path, err)
	}

	zap.L().Info("Loaded game catalogue",
		zap.String("file", path),
		zap.Int("games", len(c.games)),
		zap.String("default_max_payout", defaultMaxPayout.String()))
	return c, nil
}

func New(games []models.Game, defaultMaxPayout decimal.Decimal) (*Catalog, error) {
	c := &Catalog{
		games:            make(map[gameKey]*models.Game, len(games)),
		defaultMaxPayout: defaultMaxPayout,
	}
	for i := range games {
		g := games[i]
		if g.Id == "" {
			return nil, fmt.Errorf("game at index %d missing id", i)
		}
		if g.Provider == "" {
			return nil, fmt.Errorf("game %s missing provider", g.Id)
		}
		if g.MaxPayout.IsNegative() {
			return nil, fmt.Errorf("game %s has negative max payout", g.Id)
		}
		key := gameKey{provider: g.Provider, id: g.Id}
		if _, dup := c.games[key]; dup {
			return nil, fmt.Errorf("game %s/%s listed twice", g.Provider, g.Id)
		}
		c.games[key] = &g
	}
	return c, nil
}

func (c *Catalog) LookupGame(provider, gameId string) (*models.Game, bool) {
	g, ok := c.games[gameKey{provider: provider, id: gameId}]
	return g, ok
}

// Games lists the catalogue ordered by provider and id.
func (c *Catalog) Games() []models.Game {
	out := make([]models.Game, 0, len(c.games))
	for _, g := range c.games {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Id < out[j].Id
	})
	return out
}

// MaxPayout returns the win cap for a game and whether one applies.
func (c *Catalog) MaxPayout(provider, gameId string) (decimal.Decimal, bool) {
	if g, ok := c.LookupGame(provider, gameId); ok && g.MaxPayout.IsPositive() {
		return g.MaxPayout, true
	}
	if c.defaultMaxPayout.IsPositive() {
		return c.defaultMaxPayout, true
	}
	return decimal.Zero, false
}

// PayoutGuard caps wins for one provider's games.
type PayoutGuard struct {
	catalog  *Catalog
	provider string
}

func (c *Catalog) PayoutGuard(provider string) *PayoutGuard {
	return &PayoutGuard{catalog: c, provider: provider}
}

func (g *PayoutGuard) ExceedsMaxPayout(_ context.Context, userId string, amount decimal.Decimal, gameIdentifier string) (bool, error) {
	limit, ok := g.catalog.MaxPayout(g.provider, gameIdentifier)
	if !ok || amount.LessThanOrEqual(limit) {
		return false, nil
	}
	zap.L().Warn("Win exceeds max payout",
		zap.String("provider", g.provider),
		zap.String("game_id", gameIdentifier),
		zap.String("user_id", userId),
		zap.String("amount", amount.String()),
		zap.String("limit", limit.String()))
	return true, nil
}
