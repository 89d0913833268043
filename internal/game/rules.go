// internal/game/rules.go
package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Rules holds the timing and money settings of a round. A change submitted mid-round takes effect
// when the next selection phase begins.
type Rules struct {
	StakeAmount      decimal.Decimal `json:"stakeAmount"`      // fixed stake each confirmed player pays
	HouseCut         decimal.Decimal `json:"houseCut"`         // fraction of the pot retained by the house, in [0,1)
	MinPlayers       int             `json:"minPlayers"`       // confirmed players needed when selection ends
	SelectionSeconds int             `json:"selectionSeconds"` // ticks in the selection window
	WinnerSeconds    int             `json:"winnerSeconds"`    // ticks the winner is displayed
	TickInterval     time.Duration   `json:"-"`
	DrawInterval     time.Duration   `json:"-"`
	AllCalledDelay   time.Duration   `json:"-"`
}

// DefaultRules mirrors the production cadence: 45s selection, a call every 3s, 5s winner display.
func DefaultRules() Rules {
	return Rules{
		StakeAmount:      decimal.NewFromInt(10),
		HouseCut:         decimal.NewFromFloat(0.20),
		MinPlayers:       1,
		SelectionSeconds: 45,
		WinnerSeconds:    5,
		TickInterval:     time.Second,
		DrawInterval:     3 * time.Second,
		AllCalledDelay:   5 * time.Second,
	}
}

// Validate rejects settings the engine cannot run with.
func (rules Rules) Validate() error {
	if !rules.StakeAmount.IsPositive() {
		return errors.New("stakeAmount must be positive")
	}
	if rules.HouseCut.IsNegative() || rules.HouseCut.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("houseCut must be in [0, 1)")
	}
	if rules.MinPlayers < 1 {
		return errors.New("minPlayers must be at least 1")
	}
	if rules.SelectionSeconds < 1 || rules.WinnerSeconds < 1 {
		return errors.New("phase durations must be at least one tick")
	}
	return nil
}

// Update applies the recognised keys of newRules. Keys that are absent keep their old value.
func (rules *Rules) Update(newRules map[string]interface{}) error {
	assignDecimal := func(field *decimal.Decimal, key string) error {
		val, exists := newRules[key]
		if !exists || val == nil {
			return nil
		}
		switch v := val.(type) {
		case float64:
			*field = decimal.NewFromFloat(v)
		case int:
			*field = decimal.NewFromInt(int64(v))
		case string:
			d, err := decimal.NewFromString(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*field = d
		default:
			return fmt.Errorf("invalid type for %s", key)
		}
		return nil
	}

	assignInt := func(field *int, key string) error {
		val, exists := newRules[key]
		if !exists || val == nil {
			return nil
		}
		switch v := val.(type) {
		case float64:
			*field = int(v)
		case int:
			*field = v
		default:
			return fmt.Errorf("invalid type for %s", key)
		}
		return nil
	}

	if err := assignDecimal(&rules.StakeAmount, "stakeAmount"); err != nil {
		return err
	}
	if err := assignDecimal(&rules.HouseCut, "houseCut"); err != nil {
		return err
	}
	if err := assignInt(&rules.MinPlayers, "minPlayers"); err != nil {
		return err
	}
	if err := assignInt(&rules.SelectionSeconds, "selectionSeconds"); err != nil {
		return err
	}
	if err := assignInt(&rules.WinnerSeconds, "winnerSeconds"); err != nil {
		return err
	}
	return rules.Validate()
}

// ParseRules returns a copy of current with newRules applied.
func ParseRules(newRules map[string]interface{}, current Rules) (Rules, error) {
	rules := current
	err := rules.Update(newRules)
	return rules, err
}
