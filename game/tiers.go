package game

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	BestOf    = 5
	WinsToWin = 3

	// StakeDecimals is the precision of the escrow contract's base unit.
	StakeDecimals = 18
)

// Tier is a stake bucket. Matchmaking only pairs within a tier.
type Tier int

var stakes = map[Tier]decimal.Decimal{
	1: decimal.RequireFromString("0.1"),
	2: decimal.RequireFromString("0.5"),
	3: decimal.NewFromInt(1),
	4: decimal.NewFromInt(5),
}

// Tiers lists the configured tiers in ascending order.
func Tiers() []Tier {
	return []Tier{1, 2, 3, 4}
}

// ParseTier validates a client supplied tier.
func ParseTier(n int) (Tier, error) {
	t := Tier(n)
	if _, ok := stakes[t]; !ok {
		return 0, fmt.Errorf("wager tier must be 1, 2, 3, or 4 (got %d)", n)
	}
	return t, nil
}

// Stake is the amount each side deposits for the tier.
func (t Tier) Stake() decimal.Decimal {
	return stakes[t]
}

// BaseUnits converts an amount into the contract's integer base unit.
func BaseUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(StakeDecimals).BigInt()
}
