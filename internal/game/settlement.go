// internal/game/settlement.go
package game

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// prizePlaces is the precision prizes are floored to.
const prizePlaces = 2

// Payout is the money side of a settled round.
type Payout struct {
	Pot      decimal.Decimal `json:"pot"`
	Prize    decimal.Decimal `json:"prize"`
	HouseCut decimal.Decimal `json:"houseCut"`
}

// ComputePayout returns pot = stake*confirmed and prize = pot*(1-cut), floored to two decimals.
// Whatever flooring removes stays with the house, so Prize+HouseCut always equals Pot.
func ComputePayout(stake decimal.Decimal, confirmed int, cut decimal.Decimal) Payout {
	pot := stake.Mul(decimal.NewFromInt(int64(confirmed)))
	prize := pot.Mul(decimal.NewFromInt(1).Sub(cut)).RoundFloor(prizePlaces)
	return Payout{
		Pot:      pot,
		Prize:    prize,
		HouseCut: pot.Sub(prize),
	}
}

// IdempotencyKey identifies the single winner credit of a round in the ledger.
func IdempotencyKey(roundID int64) string {
	return fmt.Sprintf("round:%d:win", roundID)
}
