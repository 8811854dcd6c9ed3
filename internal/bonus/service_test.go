package bonus

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"provider-integrity-go/internal/database"
	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupService(t *testing.T) (*Service, *database.Service) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	dbService, err := database.NewServiceFromDB(db, false)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = dbService.CreateUser(ctx, "user1", "Test User", "test@example.com", "EUR", "MT")
	require.NoError(t, err)
	require.NoError(t, SeedTemplates(ctx, dbService, []models.BonusTemplate{
		{Id: "tpl-fb", Provider: "hub88", ExternalId: "fb-5", Kind: models.BonusKindFreebet, BalanceType: "EUR", Value: decimal.NewFromInt(5)},
	}))

	cache, err := NewTemplateCache(dbService, NewMemoryTier(nil), NewMemoryTier(nil), time.Minute, time.Hour)
	require.NoError(t, err)
	return NewService(dbService, cache), dbService
}

func TestService_Lifecycle(t *testing.T) {
	svc, dbService := setupService(t)
	ctx := context.Background()

	granted, err := dbService.CreateBonus(ctx, "user1", "tpl-fb")
	require.NoError(t, err)

	usage, err := svc.Resolve(ctx, "hub88", "user1", "fb-5", "agg-1")
	require.NoError(t, err)
	require.NotNil(t, usage)
	assert.Equal(t, granted.Id, usage.BonusId)
	assert.True(t, usage.ZeroDebit())

	require.NoError(t, svc.MarkUsed(ctx, usage.BonusId, "agg-1"))

	// A retried bet for the same round resolves the bonus it already used.
	again, err := svc.Resolve(ctx, "hub88", "user1", "fb-5", "agg-1")
	require.NoError(t, err)
	assert.Equal(t, granted.Id, again.BonusId)

	// Another round has nothing left to use.
	_, err = svc.Resolve(ctx, "hub88", "user1", "fb-5", "agg-2")
	assert.ErrorIs(t, err, store.ErrBonusUnavailable)

	// An unknown template is not a spent bonus.
	_, err = svc.Resolve(ctx, "hub88", "user1", "fb-unknown", "agg-3")
	assert.ErrorIs(t, err, store.ErrBonusNotFound)
	assert.NotErrorIs(t, err, store.ErrBonusUnavailable)

	require.NoError(t, svc.SettleRound(ctx, "agg-1"))
	require.NoError(t, svc.SettleRound(ctx, "agg-1"))
	settled, err := dbService.GetBonus(ctx, granted.Id)
	require.NoError(t, err)
	assert.Equal(t, models.BonusSettled, settled.Status)
}

func TestService_NoBonusRef(t *testing.T) {
	svc, _ := setupService(t)

	usage, err := svc.Resolve(context.Background(), "hub88", "user1", "", "agg-1")
	require.NoError(t, err)
	assert.Nil(t, usage)

	assert.NoError(t, svc.SettleRound(context.Background(), "agg-without-bonus"))
}

func TestLoadTemplates(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "templates.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
templates:
  - id: tpl-fs
    provider: slotegrator
    external_id: fs-10
    kind: freespin
    balance_type: EUR
    value: "0.20"
`), 0o600))

	templates, err := LoadTemplates(good)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.True(t, templates[0].Value.Equal(decimal.RequireFromString("0.2")))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("templates:\n  - provider: x\n    external_id: y\n    kind: cashback\n"), 0o600))
	_, err = LoadTemplates(bad)
	assert.Error(t, err)
}
