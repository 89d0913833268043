package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is an account with its wallet balance joined in.
type User struct {
	ID          uuid.UUID `json:"id"`
	TelegramID  string    `json:"telegramId,omitempty"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	Username    string    `json:"username"`
	Password    string    `json:"password,omitempty"`

	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
}
