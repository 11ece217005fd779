package types

import (
	"sort"

	"github.com/shopspring/decimal"
)

// AccountSnapshot is the read-only view of an account the trader needs to
// diff targets against holdings.
type AccountSnapshot struct {
	Cash      decimal.Decimal
	Positions []PositionSnapshot
}

type PositionSnapshot struct {
	SecurityID    SecurityID
	LongAmount    decimal.Decimal
	AvailableLong decimal.Decimal
	AvgCost       decimal.Decimal
	LastPrice     decimal.Decimal
}

// Held returns the securities with a positive available long quantity,
// sorted by id.
func (a AccountSnapshot) Held() []SecurityID {
	held := make([]SecurityID, 0, len(a.Positions))
	for _, pos := range a.Positions {
		if pos.AvailableLong.GreaterThan(decimal.Zero) {
			held = append(held, pos.SecurityID)
		}
	}
	sort.Slice(held, func(i, j int) bool { return held[i] < held[j] })
	return held
}
