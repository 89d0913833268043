// internal/game/events.go
package game

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/shopspring/decimal"
)

// Event is an input to Machine.Apply: a timer firing, a client action, or the outcome of an effect.
type Event interface {
	isEvent()
}

// Start enters the first selection phase.
type Start struct{}

// Tick is the fixed 1 Hz phase clock.
type Tick struct{}

// Draw is the number-call clock, only running during the active phase.
type Draw struct{}

// AllCalledTimeout ends a round whose pool ran dry without a winner.
type AllCalledTimeout struct {
	RoundID int64
}

// Connect registers a new session.
type Connect struct {
	SessionID uuid.UUID
}

// Disconnect discards a session.
type Disconnect struct {
	SessionID uuid.UUID
}

// Message is a decoded client message.
type Message struct {
	SessionID uuid.UUID
	Msg       ClientMessage
}

// RulesChanged queues new rules for the next selection phase.
type RulesChanged struct {
	Rules Rules
}

// AccountResolved answers ResolveAccount.
type AccountResolved struct {
	SessionID uuid.UUID
	User      *models.User
	Token     string
	Err       error
}

// ParticipantRecorded answers RecordParticipant.
type ParticipantRecorded struct {
	SessionID uuid.UUID
	RoundID   int64
	Balance   decimal.Decimal
	Err       error
}

// Settled answers Settle.
type Settled struct {
	SessionID uuid.UUID
	RoundID   int64
	UserID    uuid.UUID
	Balance   decimal.Decimal
	Err       error
}

// BalanceFetched answers FetchBalance.
type BalanceFetched struct {
	SessionID uuid.UUID
	Balance   decimal.Decimal
	Err       error
}

// HistoryFetched answers FetchHistory.
type HistoryFetched struct {
	SessionID uuid.UUID
	History   []models.GameRecord
	Stats     models.GameStats
	Err       error
}

// TransactionsFetched answers FetchTransactions.
type TransactionsFetched struct {
	SessionID    uuid.UUID
	Transactions []models.Transaction
	Err          error
}

func (Start) isEvent()               {}
func (Tick) isEvent()                {}
func (Draw) isEvent()                {}
func (AllCalledTimeout) isEvent()    {}
func (Connect) isEvent()             {}
func (Disconnect) isEvent()          {}
func (Message) isEvent()             {}
func (RulesChanged) isEvent()        {}
func (AccountResolved) isEvent()     {}
func (ParticipantRecorded) isEvent() {}
func (Settled) isEvent()             {}
func (BalanceFetched) isEvent()      {}
func (HistoryFetched) isEvent()      {}
func (TransactionsFetched) isEvent() {}
