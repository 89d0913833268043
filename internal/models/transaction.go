package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction types recorded in the ledger.
const (
	TxWelcomeBonus = "welcome_bonus"
	TxDeposit      = "deposit"
	TxBet          = "bet"
	TxWin          = "win"
)

// Transaction is one ledger movement. Amount is negative for debits.
type Transaction struct {
	ID           int64           `json:"id"`
	UserID       uuid.UUID       `json:"userId"`
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	RoundID      *int64          `json:"roundId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}
