package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"provider-integrity-go/internal/database"
	"provider-integrity-go/internal/fsm"
	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testProvider = "acme"
	testUser     = "user1"
	testGame     = "game-1"
)

type spyLedger struct {
	store.BalanceLedger

	mu           sync.Mutex
	debits       int
	credits      int
	creditErr    error
	failAfterOne bool
}

func (s *spyLedger) Debit(ctx context.Context, params store.MutationParams) (*store.MutationResult, error) {
	s.mu.Lock()
	s.debits++
	s.mu.Unlock()
	return s.BalanceLedger.Debit(ctx, params)
}

func (s *spyLedger) Credit(ctx context.Context, params store.MutationParams) (*store.MutationResult, error) {
	s.mu.Lock()
	s.credits++
	creditErr, failAfter := s.creditErr, s.failAfterOne
	s.mu.Unlock()

	if creditErr != nil && !failAfter {
		return nil, creditErr
	}
	result, err := s.BalanceLedger.Credit(ctx, params)
	if err != nil {
		return nil, err
	}
	if creditErr != nil {
		return nil, creditErr
	}
	return result, nil
}

func (s *spyLedger) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debits, s.credits
}

// flakyActions fails the next failProcessed attempts to mark an action processed.
type flakyActions struct {
	store.ActionLedger
	failProcessed int
}

func (f *flakyActions) Update(ctx context.Context, id string, patch store.ActionPatch) error {
	if patch.Status != nil && *patch.Status == models.ActionProcessed && f.failProcessed > 0 {
		f.failProcessed--
		return errActionsDown
	}
	return f.ActionLedger.Update(ctx, id, patch)
}

// flakyAggregates fails the next failUpdates aggregate updates.
type flakyAggregates struct {
	store.AggregateStore
	failUpdates int
}

func (f *flakyAggregates) Update(ctx context.Context, id string, expectedVersion int64, patch store.AggregatePatch) (*models.BetAggregate, error) {
	if f.failUpdates > 0 {
		f.failUpdates--
		return nil, store.ErrConcurrentModification
	}
	return f.AggregateStore.Update(ctx, id, expectedVersion, patch)
}

type fakeCatalog map[string]*models.Game

func (c fakeCatalog) LookupGame(provider, gameId string) (*models.Game, bool) {
	g, ok := c[gameId]
	return g, ok
}

type fakePayouts struct {
	limit decimal.Decimal
}

func (p fakePayouts) ExceedsMaxPayout(_ context.Context, _ string, amount decimal.Decimal, _ string) (bool, error) {
	return amount.GreaterThan(p.limit), nil
}

type fakeBonuses struct {
	usage      *models.BonusUsage
	resolveErr error
	used       map[string]string
	settled    []string
}

func (b *fakeBonuses) Resolve(_ context.Context, _, _, bonusRef, _ string) (*models.BonusUsage, error) {
	if bonusRef == "" {
		return nil, nil
	}
	if b.resolveErr != nil {
		return nil, b.resolveErr
	}
	return b.usage, nil
}

func (b *fakeBonuses) MarkUsed(_ context.Context, bonusId, roundRef string) error {
	if b.used == nil {
		b.used = map[string]string{}
	}
	b.used[bonusId] = roundRef
	return nil
}

func (b *fakeBonuses) SettleRound(_ context.Context, roundRef string) error {
	b.settled = append(b.settled, roundRef)
	return nil
}

type recordingRecorder struct {
	closeouts []models.Closeout
}

func (r *recordingRecorder) RecordCloseout(_ context.Context, c models.Closeout) {
	r.closeouts = append(r.closeouts, c)
}

type recordingObserver struct {
	handlers      []fsm.Handler
	outcomes      []string
	compensations int
}

func (o *recordingObserver) HandlerInvoked(_ string, h fsm.Handler) {
	o.handlers = append(o.handlers, h)
}

func (o *recordingObserver) EventHandled(_ string, _ models.EventType, outcome string, _ time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) Compensated(string, models.EventType) {
	o.compensations++
}

type harness struct {
	t          *testing.T
	ctx        context.Context
	svc        *database.Service
	ledger     *spyLedger
	actions    *flakyActions
	aggregates *flakyAggregates
	bonuses    *fakeBonuses
	closeouts  *recordingRecorder
	observer   *recordingObserver
	orch       *Orchestrator
}

func newHarness(t *testing.T, matchPayload bool) *harness {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	svc, err := database.NewServiceFromDB(db, false)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.CreateUser(ctx, testUser, "Test User", "test@example.com", "EUR", "MT")
	require.NoError(t, err)
	_, err = svc.Credit(ctx, store.MutationParams{
		UserId:          testUser,
		Amount:          decimal.NewFromInt(100),
		TransactionType: "deposit",
		Reference:       "seed-deposit",
	})
	require.NoError(t, err)

	h := &harness{
		t:          t,
		ctx:        ctx,
		svc:        svc,
		ledger:     &spyLedger{BalanceLedger: svc},
		actions:    &flakyActions{ActionLedger: svc.Actions()},
		aggregates: &flakyAggregates{AggregateStore: svc.Aggregates()},
		bonuses:    &fakeBonuses{},
		closeouts:  &recordingRecorder{},
		observer:   &recordingObserver{},
	}

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.orch, err = NewOrchestrator(NewCanonicalProvider(testProvider, matchPayload), Dependencies{
		Users:      svc,
		Actions:    h.actions,
		Aggregates: h.aggregates,
		Ledger:     h.ledger,
		Catalog: fakeCatalog{
			testGame:   {Id: testGame, Provider: testProvider, Enabled: true, Currencies: []string{"EUR"}},
			"game-off": {Id: "game-off", Provider: testProvider, Enabled: false},
		},
		Payouts:   fakePayouts{limit: decimal.NewFromInt(1000)},
		Bonuses:   h.bonuses,
		Closeouts: h.closeouts,
		Observer:  h.observer,
		Clock:     func() time.Time { return clock },
	})
	require.NoError(t, err)
	return h
}

func payload(round string, amount int64) CanonicalPayload {
	a := decimal.NewFromInt(amount)
	return CanonicalPayload{
		UserId:        testUser,
		RoundId:       round,
		TransactionId: "tx-" + round,
		GameId:        testGame,
		Currency:      "EUR",
		Amount:        &a,
	}
}

func (h *harness) send(eventType models.EventType, p CanonicalPayload) (*models.ProviderResponse, error) {
	h.t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(h.t, err)
	return h.orch.HandleProviderEvent(h.ctx, string(eventType), raw)
}

func (h *harness) mustSend(eventType models.EventType, p CanonicalPayload) *models.ProviderResponse {
	h.t.Helper()
	resp, err := h.send(eventType, p)
	require.NoError(h.t, err)
	require.NotNil(h.t, resp)
	return resp
}

func (h *harness) balance() decimal.Decimal {
	h.t.Helper()
	b, err := h.svc.GetBalance(h.ctx, testUser, "EUR")
	require.NoError(h.t, err)
	return b
}

func (h *harness) aggregate(round string) *models.BetAggregate {
	h.t.Helper()
	agg, err := h.svc.Aggregates().Get(h.ctx, testProvider, round, testUser)
	require.NoError(h.t, err)
	return agg
}

func (h *harness) action(round string, et models.EventType) (*models.Action, error) {
	return h.svc.Actions().Get(h.ctx, models.ActionKey{Provider: testProvider, ExternalBetId: round, EventType: et})
}

func requireBalance(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, got.Equal(decimal.NewFromInt(want)), "expected balance %d, got %s", want, got)
}

var (
	errLedgerDown  = errors.New("ledger unavailable")
	errActionsDown = errors.New("action ledger unavailable")
)
