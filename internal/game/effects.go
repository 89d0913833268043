// internal/game/effects.go
package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/shopspring/decimal"
)

// Effect is work Machine.Apply asks the Runner to perform after the state change is made.
type Effect interface {
	isEffect()
}

// Broadcast sends an event to every open session.
type Broadcast struct {
	Event GameEvent
}

// Unicast sends an event to one session only.
type Unicast struct {
	SessionID uuid.UUID
	Event     GameEvent
}

// CloseSession closes a session's transport.
type CloseSession struct {
	SessionID uuid.UUID
	Reason    string
}

// StartDrawing starts the number-call clock.
type StartDrawing struct {
	Interval time.Duration
}

// StopDrawing stops the number-call clock.
type StopDrawing struct{}

// Schedule feeds Event back into the machine after a delay.
type Schedule struct {
	After time.Duration
	Event Event
}

// PersistRound writes a new round row. Failures are logged; play continues without the row.
type PersistRound struct {
	RoundID int64
	Stake   decimal.Decimal
}

// ResolveAccount authenticates a session with one of the auth messages. Answered by AccountResolved.
type ResolveAccount struct {
	SessionID uuid.UUID
	Msg       ClientMessage
}

// RecordParticipant stores a confirmed card. Answered by ParticipantRecorded.
type RecordParticipant struct {
	SessionID uuid.UUID
	RoundID   int64
	UserID    uuid.UUID
	CardID    int
}

// Settle credits the winner exactly once. Answered by Settled.
type Settle struct {
	SessionID uuid.UUID
	Credit    models.WinnerCredit
}

// FetchBalance reads a wallet balance. Answered by BalanceFetched.
type FetchBalance struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
}

// FetchHistory reads a user's past rounds. Answered by HistoryFetched.
type FetchHistory struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
}

// FetchTransactions reads a user's recent ledger entries. Answered by TransactionsFetched.
type FetchTransactions struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
}

// Publish appends a record to the round audit trail.
type Publish struct {
	Record models.RoundEvent
}

func (Broadcast) isEffect()         {}
func (Unicast) isEffect()           {}
func (CloseSession) isEffect()      {}
func (StartDrawing) isEffect()      {}
func (StopDrawing) isEffect()       {}
func (Schedule) isEffect()          {}
func (PersistRound) isEffect()      {}
func (ResolveAccount) isEffect()    {}
func (RecordParticipant) isEffect() {}
func (Settle) isEffect()            {}
func (FetchBalance) isEffect()      {}
func (FetchHistory) isEffect()      {}
func (FetchTransactions) isEffect() {}
func (Publish) isEffect()           {}
