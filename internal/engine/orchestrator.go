package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"provider-integrity-go/internal/fsm"
	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	"go.uber.org/zap"
)

// Dependencies wires an Orchestrator. Users, Actions, Aggregates, Ledger and
// Catalog are required; the rest default to no-ops.
type Dependencies struct {
	Users      store.UserDirectory
	Actions    store.ActionLedger
	Aggregates store.AggregateStore
	Ledger     store.BalanceLedger
	Catalog    GameCatalog
	Payouts    PayoutGuard
	Bonuses    BonusResolver
	Closeouts  CloseoutRecorder
	Observer   Observer
	Table      fsm.Table
	Clock      func() time.Time
	// StaleAfter is how long an action may stay pending before a redelivery
	// reclaims it. Defaults to DefaultStaleAfter.
	StaleAfter time.Duration
}

const DefaultStaleAfter = time.Minute

// Orchestrator runs the per-callback pipeline for one provider.
type Orchestrator struct {
	provider   Provider
	users      store.UserDirectory
	actions    store.ActionLedger
	aggregates store.AggregateStore
	ledger     store.BalanceLedger
	catalog    GameCatalog
	payouts    PayoutGuard
	bonuses    BonusResolver
	closeouts  CloseoutRecorder
	observer   Observer
	table      fsm.Table
	clock      func() time.Time
	staleAfter time.Duration
}

func NewOrchestrator(provider Provider, deps Dependencies) (*Orchestrator, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if deps.Users == nil || deps.Actions == nil || deps.Aggregates == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("users, actions, aggregates and ledger are required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("game catalog is required")
	}

	o := &Orchestrator{
		provider:   provider,
		users:      deps.Users,
		actions:    deps.Actions,
		aggregates: deps.Aggregates,
		ledger:     deps.Ledger,
		catalog:    deps.Catalog,
		payouts:    deps.Payouts,
		bonuses:    deps.Bonuses,
		closeouts:  deps.Closeouts,
		observer:   deps.Observer,
		table:      deps.Table,
		clock:      deps.Clock,
		staleAfter: deps.StaleAfter,
	}
	if o.payouts == nil {
		o.payouts = noPayoutLimit{}
	}
	if o.bonuses == nil {
		o.bonuses = nopBonuses{}
	}
	if o.closeouts == nil {
		o.closeouts = nopRecorder{}
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.table == nil {
		o.table = fsm.Default
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.staleAfter <= 0 {
		o.staleAfter = DefaultStaleAfter
	}
	if err := o.table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transition table: %w", err)
	}
	return o, nil
}

// Provider returns the provider this orchestrator serves.
func (o *Orchestrator) Provider() Provider {
	return o.provider
}

// HandleProviderEvent decodes a raw callback and handles it.
func (o *Orchestrator) HandleProviderEvent(ctx context.Context, eventType string, raw []byte) (*models.ProviderResponse, error) {
	ev, err := o.provider.Decode(eventType, raw)
	if err != nil {
		zap.L().Warn("Rejected provider callback",
			zap.String("provider", o.provider.Name()),
			zap.String("event_type", eventType),
			zap.Error(err))
		o.observer.EventHandled(o.provider.Name(), models.EventType(eventType), OutcomeRejected, 0)
		return nil, err
	}
	return o.Handle(ctx, ev)
}

// Handle runs a decoded event through the idempotency gate, the state
// machine and the bound handler.
func (o *Orchestrator) Handle(ctx context.Context, ev Event) (*models.ProviderResponse, error) {
	start := o.clock()
	resp, outcome, err := o.handle(ctx, ev)
	o.observer.EventHandled(o.provider.Name(), ev.Type(), outcome, o.clock().Sub(start))
	return resp, err
}

func (o *Orchestrator) handle(ctx context.Context, ev Event) (*models.ProviderResponse, string, error) {
	base := ev.Base()
	logger := zap.L().With(
		zap.String("provider", o.provider.Name()),
		zap.String("external_bet_id", base.ExternalBetId),
		zap.String("event_type", string(ev.Type())),
		zap.String("user_id", base.UserId))

	user, err := o.users.GetUserById(ctx, base.UserId)
	if err != nil {
		logger.Warn("Unable to resolve user", zap.Error(err))
		return nil, outcomeOf(err), fmt.Errorf("resolve user %s: %w", base.UserId, err)
	}

	incoming := ResolveAction(o.provider.Name(), ev)
	action, existed, err := o.actions.Touch(ctx, incoming, o.provider.RedeliveryCheck())
	if err != nil {
		logger.Warn("Action ledger rejected delivery", zap.Bool("existed", existed), zap.Error(err))
		return nil, outcomeOf(err), err
	}
	if existed && o.isStale(action) {
		reclaimed, err := o.reclaim(ctx, logger, action)
		if err != nil {
			return nil, OutcomeFailed, err
		}
		if reclaimed {
			action, existed, err = o.actions.Touch(ctx, incoming, o.provider.RedeliveryCheck())
			if err != nil {
				logger.Warn("Action ledger rejected delivery", zap.Bool("existed", existed), zap.Error(err))
				return nil, outcomeOf(err), err
			}
		}
	}
	if existed {
		return o.replay(ctx, ev, user, action)
	}

	agg, err := o.run(ctx, ev, user, action)
	if err != nil {
		return o.resolveFailure(ctx, logger, ev, user, action, agg, err)
	}

	// Balance and attempts may have moved while processing.
	if user, err = o.users.GetUserById(ctx, user.Id); err != nil {
		return nil, OutcomeFailed, fmt.Errorf("reload user: %w", err)
	}
	if action, err = o.actions.Get(ctx, action.Key()); err != nil {
		return nil, OutcomeFailed, fmt.Errorf("reload action: %w", err)
	}

	resp, err := o.ResolveResponse(ctx, &ResponseInput{Event: ev, Action: action, User: user, Aggregate: agg})
	if err != nil {
		return nil, OutcomeFailed, err
	}
	logger.Info("Provider event processed",
		zap.String("state", string(agg.State)),
		zap.String("transaction_id", resp.TransactionId),
		zap.String("balance", resp.Balance.String()))
	return resp, OutcomeProcessed, nil
}

// run loads the aggregate, applies the transition and persists the result.
// The returned aggregate may be nil when it could not be loaded.
func (o *Orchestrator) run(ctx context.Context, ev Event, user *models.User, action *models.Action) (*models.BetAggregate, error) {
	base := ev.Base()
	agg, err := o.aggregates.GetOrCreate(ctx, store.AggregateParams{
		Provider:           o.provider.Name(),
		ExternalIdentifier: base.ExternalBetId,
		UserId:             user.Id,
		BalanceType:        balanceTypeFor(nil, ev, user),
		GameIdentifier:     base.GameIdentifier,
	})
	if err != nil {
		return nil, fmt.Errorf("load bet aggregate: %w", err)
	}

	edge, err := o.table.Transition(agg.State, ev.Type())
	if err != nil {
		return agg, &UnsupportedActionError{
			Provider: o.provider.Name(),
			Round:    base.ExternalBetId,
			State:    agg.State,
			Event:    ev.Type(),
		}
	}

	in := &ProcessInput{Event: ev, Action: action, User: user, Aggregate: agg}
	if edge.Handler != fsm.HandlerNone {
		h, err := o.handlerFor(edge.Handler)
		if err != nil {
			return agg, err
		}
		o.observer.HandlerInvoked(o.provider.Name(), edge.Handler)
		if err := h.Process(ctx, in); err != nil {
			return agg, err
		}
	}

	// The action is marked before the aggregate moves, so a compensated
	// failure never leaves the round advanced past an action that is gone.
	processed := models.ActionProcessed
	if err := o.actions.Update(ctx, action.Id, store.ActionPatch{Status: &processed}); err != nil {
		return agg, fmt.Errorf("mark action processed: %w", err)
	}

	if edge.Next != agg.State {
		next := edge.Next
		in.Patch.State = &next
		if fsm.IsTerminal(next) {
			closedOut := o.clock().UTC()
			in.Patch.ClosedOut = &closedOut
		}
	}
	if !in.Patch.IsEmpty() {
		updated, err := o.aggregates.Update(ctx, agg.Id, agg.Version, in.Patch)
		if err != nil {
			return agg, fmt.Errorf("persist bet aggregate: %w", err)
		}
		agg = updated
	}
	return agg, nil
}

// resolveFailure classifies a failed run. Declines keep the action; everything else
// deletes it when this delivery created it.
func (o *Orchestrator) resolveFailure(ctx context.Context, logger *zap.Logger, ev Event, user *models.User, action *models.Action, agg *models.BetAggregate, cause error) (*models.ProviderResponse, string, error) {
	var biz *BusinessError
	if errors.As(cause, &biz) {
		status := models.ActionDeclined
		code := biz.Code
		if err := o.actions.Update(ctx, action.Id, store.ActionPatch{Status: &status, DeclineCode: &code}); err != nil {
			logger.Error("Failed to record decline", zap.Error(err))
			return nil, OutcomeFailed, errors.Join(fmt.Errorf("record decline: %w", err), o.compensate(ctx, logger, ev, action))
		}
		logger.Warn("Provider event declined", zap.String("code", biz.Code), zap.String("reason", biz.Message))
		return o.declinedResponse(ctx, user, balanceTypeFor(agg, ev, user), biz.Code, biz.Message), OutcomeDeclined, nil
	}

	if err := o.compensate(ctx, logger, ev, action); err != nil {
		return nil, OutcomeFailed, errors.Join(cause, err)
	}

	var unsupported *UnsupportedActionError
	if errors.As(cause, &unsupported) {
		logger.Warn("Illegal transition rejected", zap.String("state", string(unsupported.State)))
		return cannotProcessResponse(unsupported.Error()), OutcomeRejected, nil
	}

	logger.Error("Provider event failed", zap.Error(cause))
	return nil, outcomeOf(cause), cause
}

// compensate deletes the action this delivery created, by record id.
func (o *Orchestrator) compensate(ctx context.Context, logger *zap.Logger, ev Event, action *models.Action) error {
	removed, err := o.actions.Delete(ctx, action.Id)
	if err != nil {
		logger.Error("Compensating delete failed", zap.String("action_id", action.Id), zap.Error(err))
		return fmt.Errorf("compensate action %s: %w", action.Id, err)
	}
	if removed {
		o.observer.Compensated(o.provider.Name(), ev.Type())
		logger.Info("Action compensated", zap.String("action_id", action.Id))
	}
	return nil
}

// isStale reports a pending action older than the stale cutoff. Its first
// delivery is assumed lost between Touch and compensation.
func (o *Orchestrator) isStale(action *models.Action) bool {
	return action.Status == models.ActionPending && o.clock().Sub(action.CreatedAt) >= o.staleAfter
}

// reclaim deletes a stale pending action by record id. Of several concurrent
// redeliveries only the one whose delete removed the row proceeds.
func (o *Orchestrator) reclaim(ctx context.Context, logger *zap.Logger, action *models.Action) (bool, error) {
	removed, err := o.actions.Delete(ctx, action.Id)
	if err != nil {
		return false, fmt.Errorf("reclaim stale action %s: %w", action.Id, err)
	}
	if removed {
		logger.Warn("Reclaimed stale pending action",
			zap.String("action_id", action.Id),
			zap.Time("created_at", action.CreatedAt),
			zap.Int("attempts", action.Attempts))
	}
	return removed, nil
}

// replay answers a redelivery from the stored record without side effects.
func (o *Orchestrator) replay(ctx context.Context, ev Event, user *models.User, action *models.Action) (*models.ProviderResponse, string, error) {
	agg, err := o.aggregates.Get(ctx, o.provider.Name(), action.ExternalBetId, user.Id)
	if err != nil && !errors.Is(err, store.ErrAggregateNotFound) {
		return nil, OutcomeFailed, fmt.Errorf("load bet aggregate: %w", err)
	}

	switch action.Status {
	case models.ActionPending:
		return nil, OutcomeInFlight, fmt.Errorf("%w: %s (attempt %d)", ErrActionInFlight, action.Key().String(), action.Attempts)
	case models.ActionDeclined:
		return o.declinedResponse(ctx, user, balanceTypeFor(agg, ev, user), action.DeclineCode, "declined"), OutcomeReplayed, nil
	}

	resp, err := o.ResolveResponse(ctx, &ResponseInput{Event: ev, Action: action, User: user, Aggregate: agg})
	if err != nil {
		return nil, OutcomeFailed, err
	}
	return resp, OutcomeReplayed, nil
}

func outcomeOf(err error) string {
	if IsProtocolError(err) {
		return OutcomeRejected
	}
	return OutcomeFailed
}
