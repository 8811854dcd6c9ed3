package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Game is a catalogue entry for one provider game
type Game struct {
	Id         string          `yaml:"id"`
	Provider   string          `yaml:"provider"`
	Name       string          `yaml:"name"`
	Enabled    bool            `yaml:"enabled"`
	Currencies []string        `yaml:"currencies"`
	MaxPayout  decimal.Decimal `yaml:"max_payout"`
}

// AcceptsCurrency reports whether the game can be played in currency.
// An empty list accepts every currency.
func (g *Game) AcceptsCurrency(currency string) bool {
	if len(g.Currencies) == 0 {
		return true
	}
	for _, c := range g.Currencies {
		if strings.EqualFold(c, currency) {
			return true
		}
	}
	return false
}

// Bonus template kinds
const (
	BonusKindFreebet  = "freebet"
	BonusKindFreespin = "freespin"
	BonusKindDeposit  = "deposit"
)

// BonusUsage describes a bonus consumed by a bet
type BonusUsage struct {
	BonusId  string
	Template BonusTemplate
}

// ZeroDebit reports whether the bet is paid by the bonus instead of the wallet.
func (u *BonusUsage) ZeroDebit() bool {
	return u != nil && (u.Template.Kind == BonusKindFreebet || u.Template.Kind == BonusKindFreespin)
}
