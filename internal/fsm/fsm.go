// Package fsm holds the bet lifecycle transition table.
package fsm

import (
	"errors"
	"fmt"

	"provider-integrity-go/internal/models"
)

var ErrIllegalTransition = errors.New("illegal transition")

// Handler names the side effect bound to a transition.
type Handler string

const (
	HandlerNone       Handler = "none"
	HandlerBet        Handler = "bet"
	HandlerWin        Handler = "win"
	HandlerRefund     Handler = "refund"
	HandlerRollback   Handler = "rollback"
	HandlerSettle     Handler = "settle"
	HandlerSettleLoss Handler = "settle_loss"
)

// Edge is the outcome of a legal (state, event) pair.
type Edge struct {
	Next    models.BetState
	Handler Handler
}

// Table maps state and event to an edge. Missing pairs are illegal.
type Table map[models.BetState]map[models.EventType]Edge

const (
	Initial  = models.StateWaiting
	Terminal = models.StateSettled
)

// Default is the bet lifecycle shared by every provider.
var Default = Table{
	models.StateWaiting: {
		models.EventBet:    {models.StatePlaying, HandlerBet},
		models.EventRefund: {models.StateRefunded, HandlerRefund},
	},
	models.StatePlaying: {
		models.EventBet:      {models.StatePlaying, HandlerNone},
		models.EventWin:      {models.StateGameOver, HandlerWin},
		models.EventRollback: {models.StatePlaying, HandlerNone},
		models.EventRefund:   {models.StateRefunded, HandlerRefund},
		models.EventSettle:   {models.StateSettled, HandlerSettleLoss},
	},
	models.StateGameOver: {
		models.EventWin:      {models.StateGameOver, HandlerNone},
		models.EventRollback: {models.StatePlaying, HandlerRollback},
		models.EventSettle:   {models.StateSettled, HandlerSettle},
	},
	models.StateRefunded: {
		models.EventRollback: {models.StatePlaying, HandlerRollback},
		models.EventRefund:   {models.StateRefunded, HandlerNone},
		models.EventSettle:   {models.StateSettled, HandlerSettle},
	},
	models.StateSettled: {
		models.EventSettle: {models.StateSettled, HandlerNone},
	},
}

// Transition looks up the edge for (state, event).
func (t Table) Transition(state models.BetState, event models.EventType) (Edge, error) {
	edge, ok := t[state][event]
	if !ok {
		return Edge{}, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, event, state)
	}
	return edge, nil
}

// Transition uses the default table.
func Transition(state models.BetState, event models.EventType) (Edge, error) {
	return Default.Transition(state, event)
}

// States lists every state of the machine.
func States() []models.BetState {
	return []models.BetState{
		models.StateWaiting,
		models.StatePlaying,
		models.StateGameOver,
		models.StateRefunded,
		models.StateSettled,
	}
}

// IsTerminal reports whether no edge leaves the state.
func IsTerminal(state models.BetState) bool {
	return state == Terminal
}

// Validate checks that a table only references known states and events, that
// the terminal state is absorbing and that self-loops bind no handler.
func (t Table) Validate() error {
	known := make(map[models.BetState]bool)
	for _, s := range States() {
		known[s] = true
	}
	for from, edges := range t {
		if !known[from] {
			return fmt.Errorf("unknown state %q", from)
		}
		for event, edge := range edges {
			if _, ok := models.ParseEventType(string(event)); !ok {
				return fmt.Errorf("unknown event %q in state %q", event, from)
			}
			if !known[edge.Next] {
				return fmt.Errorf("unknown target state %q from %q on %q", edge.Next, from, event)
			}
			if IsTerminal(from) && edge.Next != from {
				return fmt.Errorf("terminal state %q leaves on %q", from, event)
			}
			if from == edge.Next && edge.Handler != HandlerNone {
				return fmt.Errorf("self-loop %q on %q binds handler %q", from, event, edge.Handler)
			}
		}
	}
	return nil
}
