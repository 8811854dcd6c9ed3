package fsm

import (
	"errors"
	"testing"

	"provider-integrity-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	type want struct {
		next    models.BetState
		handler Handler
		legal   bool
	}
	reject := want{}
	to := func(next models.BetState, h Handler) want { return want{next, h, true} }

	cases := map[models.BetState]map[models.EventType]want{
		models.StateWaiting: {
			models.EventBet:      to(models.StatePlaying, HandlerBet),
			models.EventWin:      reject,
			models.EventRollback: reject,
			models.EventRefund:   to(models.StateRefunded, HandlerRefund),
			models.EventSettle:   reject,
		},
		models.StatePlaying: {
			models.EventBet:      to(models.StatePlaying, HandlerNone),
			models.EventWin:      to(models.StateGameOver, HandlerWin),
			models.EventRollback: to(models.StatePlaying, HandlerNone),
			models.EventRefund:   to(models.StateRefunded, HandlerRefund),
			models.EventSettle:   to(models.StateSettled, HandlerSettleLoss),
		},
		models.StateGameOver: {
			models.EventBet:      reject,
			models.EventWin:      to(models.StateGameOver, HandlerNone),
			models.EventRollback: to(models.StatePlaying, HandlerRollback),
			models.EventRefund:   reject,
			models.EventSettle:   to(models.StateSettled, HandlerSettle),
		},
		models.StateRefunded: {
			models.EventBet:      reject,
			models.EventWin:      reject,
			models.EventRollback: to(models.StatePlaying, HandlerRollback),
			models.EventRefund:   to(models.StateRefunded, HandlerNone),
			models.EventSettle:   to(models.StateSettled, HandlerSettle),
		},
		models.StateSettled: {
			models.EventBet:      reject,
			models.EventWin:      reject,
			models.EventRollback: reject,
			models.EventRefund:   reject,
			models.EventSettle:   to(models.StateSettled, HandlerNone),
		},
	}

	for _, state := range States() {
		for _, event := range models.EventTypes {
			w := cases[state][event]
			t.Run(string(state)+"/"+string(event), func(t *testing.T) {
				edge, err := Transition(state, event)
				if !w.legal {
					require.Error(t, err)
					assert.True(t, errors.Is(err, ErrIllegalTransition))
					return
				}
				require.NoError(t, err)
				assert.Equal(t, w.next, edge.Next)
				assert.Equal(t, w.handler, edge.Handler)
			})
		}
	}
}

func TestDefaultTableIsValid(t *testing.T) {
	require.NoError(t, Default.Validate())
}

func TestValidateRejectsLeavingTerminal(t *testing.T) {
	table := Table{
		models.StateSettled: {
			models.EventBet: {models.StatePlaying, HandlerBet},
		},
	}
	assert.Error(t, table.Validate())
}

func TestValidateRejectsSelfLoopWithHandler(t *testing.T) {
	table := Table{
		models.StatePlaying: {
			models.EventBet: {models.StatePlaying, HandlerBet},
		},
	}
	assert.Error(t, table.Validate())
}

func TestUnknownStateIsIllegal(t *testing.T) {
	_, err := Transition(models.BetState("limbo"), models.EventBet)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestInitialAndTerminal(t *testing.T) {
	assert.Equal(t, models.StateWaiting, Initial)
	assert.True(t, IsTerminal(models.StateSettled))
	assert.False(t, IsTerminal(models.StateGameOver))
}
