// internal/models/game.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GameRecord is one round a user took part in.
type GameRecord struct {
	RoundID  int64           `json:"roundId"`
	CardID   int             `json:"cardId"`
	Stake    decimal.Decimal `json:"stake"`
	Won      bool            `json:"won"`
	Prize    decimal.Decimal `json:"prize"`
	PlayedAt time.Time       `json:"playedAt"`
}

// GameStats aggregates a user's history.
type GameStats struct {
	Played        int             `json:"played"`
	Won           int             `json:"won"`
	TotalWinnings decimal.Decimal `json:"totalWinnings"`
}

// WinnerCredit is the single credit owed to a round's winner.
type WinnerCredit struct {
	RoundID        int64           `json:"roundId"`
	UserID         uuid.UUID       `json:"userId"`
	Username       string          `json:"username"`
	CardID         int             `json:"cardId"`
	Pot            decimal.Decimal `json:"pot"`
	Prize          decimal.Decimal `json:"prize"`
	HouseCut       decimal.Decimal `json:"houseCut"`
	CalledNumbers  []int           `json:"calledNumbers"`
	IdempotencyKey string          `json:"idempotencyKey"`
}
