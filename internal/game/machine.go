// internal/game/machine.go
package game

import (
	"sort"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/bingo"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/shopspring/decimal"
)

// Phase is the stage of the current round.
type Phase string

const (
	PhaseSelection Phase = "selection"
	PhaseActive    Phase = "active"
	PhaseWinner    Phase = "winner"
)

// RoundInProgressMessage is the message sent to connections refused during play.
const RoundInProgressMessage = "round in progress"

// PlayerInfo describes a confirmed participant in phase_change payloads.
type PlayerInfo struct {
	SessionID uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	CardID    int       `json:"cardId"`
}

// Winner is the announced result of a round.
type Winner struct {
	SessionID uuid.UUID  `json:"sessionId"`
	UserID    uuid.UUID  `json:"userId"`
	Username  string     `json:"username"`
	CardID    int        `json:"cardId"`
	Line      bingo.Line `json:"line"`
	Payout
}

// Round is the state of one play cycle.
type Round struct {
	ID      int64
	Stake   decimal.Decimal
	Players []PlayerInfo // frozen on entering active
	Payout  Payout       // frozen on entering active
	Winner  *Winner

	events int
}

// Snapshot is a read-only view of the engine.
type Snapshot struct {
	RoundID       int64           `json:"roundId"`
	Phase         Phase           `json:"phase"`
	TimeLeft      int             `json:"timeLeft"`
	CalledNumbers []int           `json:"calledNumbers"`
	Sessions      int             `json:"sessions"`
	Confirmed     int             `json:"confirmed"`
	Stake         decimal.Decimal `json:"stake"`
	Pot           decimal.Decimal `json:"pot"`
	Winner        *Winner         `json:"winner,omitempty"`
	Rules         Rules           `json:"rules"`
}

// Machine is the round state machine. Apply is its only mutator; it performs no I/O and returns
// the effects the caller must carry out. A Machine must be driven from a single goroutine.
type Machine struct {
	rules   Rules
	pending *Rules

	catalog  *bingo.Catalog
	caller   *bingo.Caller
	sessions *Registry

	started     bool
	phase       Phase
	timeLeft    int
	round       Round
	lastRoundID int64
	taken       map[int]uuid.UUID // confirmed card -> session
	settled     bool
	exhausted   bool
}

// NewMachine builds a machine whose first round will be lastRoundID+1.
func NewMachine(rules Rules, catalog *bingo.Catalog, caller *bingo.Caller, lastRoundID int64) *Machine {
	if caller == nil {
		caller = bingo.NewCaller(nil)
	}
	return &Machine{
		rules:       rules,
		catalog:     catalog,
		caller:      caller,
		sessions:    NewRegistry(),
		lastRoundID: lastRoundID,
		taken:       make(map[int]uuid.UUID),
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// Rules returns the rules in force, followed by any pending change.
func (m *Machine) Rules() Rules {
	if m.pending != nil {
		return *m.pending
	}
	return m.rules
}

// Snapshot captures the engine state.
func (m *Machine) Snapshot() Snapshot {
	snap := Snapshot{
		RoundID:       m.round.ID,
		Phase:         m.phase,
		TimeLeft:      m.timeLeft,
		CalledNumbers: m.caller.Called(),
		Sessions:      m.sessions.Len(),
		Stake:         m.round.Stake,
		Winner:        m.round.Winner,
		Rules:         m.Rules(),
	}
	if m.phase == PhaseSelection {
		snap.Confirmed = m.sessions.ConfirmedCount()
		snap.Pot = ComputePayout(m.round.Stake, snap.Confirmed, m.rules.HouseCut).Pot
	} else {
		snap.Confirmed = len(m.round.Players)
		snap.Pot = m.round.Payout.Pot
	}
	return snap
}

// Apply advances the machine by one event.
func (m *Machine) Apply(ev Event) []Effect {
	switch e := ev.(type) {
	case Start:
		if m.started {
			return nil
		}
		m.started = true
		return m.enterSelection()
	case Tick:
		return m.tick()
	case Draw:
		return m.draw()
	case AllCalledTimeout:
		if m.phase == PhaseActive && e.RoundID == m.round.ID {
			effects := []Effect{m.publish("round_exhausted", map[string]interface{}{"calls": m.caller.Len()})}
			return append(effects, m.enterSelection()...)
		}
	case Connect:
		return m.connect(e.SessionID)
	case Disconnect:
		m.disconnect(e.SessionID)
	case Message:
		return m.handleMessage(e.SessionID, e.Msg)
	case RulesChanged:
		r := e.Rules
		m.pending = &r
	case AccountResolved:
		return m.accountResolved(e)
	case ParticipantRecorded:
		if e.Err != nil || e.RoundID != m.round.ID {
			return nil
		}
		return m.balanceChanged(e.SessionID, uuid.Nil, e.Balance)
	case Settled:
		if e.Err != nil {
			return nil
		}
		return m.balanceChanged(e.SessionID, e.UserID, e.Balance)
	case BalanceFetched:
		if e.Err != nil {
			return m.reply(e.SessionID, errorEvent("balance unavailable"))
		}
		return m.balanceChanged(e.SessionID, uuid.Nil, e.Balance)
	case HistoryFetched:
		if e.Err != nil {
			return m.reply(e.SessionID, errorEvent("game history unavailable"))
		}
		history := e.History
		if history == nil {
			history = []models.GameRecord{}
		}
		return m.reply(e.SessionID, GameEvent{Type: EventGameHistory, Payload: map[string]interface{}{
			"history": history,
			"stats":   e.Stats,
		}})
	case TransactionsFetched:
		if e.Err != nil {
			return m.reply(e.SessionID, errorEvent("transactions unavailable"))
		}
		txs := e.Transactions
		if txs == nil {
			txs = []models.Transaction{}
		}
		return m.reply(e.SessionID, GameEvent{Type: EventTransactions, Payload: map[string]interface{}{
			"transactions": txs,
		}})
	}
	return nil
}

// --- phases ---

func (m *Machine) enterSelection() []Effect {
	if m.pending != nil {
		m.rules = *m.pending
		m.pending = nil
	}
	m.lastRoundID++
	m.round = Round{ID: m.lastRoundID, Stake: m.rules.StakeAmount}
	m.phase = PhaseSelection
	m.timeLeft = m.rules.SelectionSeconds
	m.caller.Reset()
	m.taken = make(map[int]uuid.UUID)
	m.settled = false
	m.exhausted = false
	m.sessions.ResetSelections()

	return []Effect{
		PersistRound{RoundID: m.round.ID, Stake: m.round.Stake},
		Broadcast{Event: GameEvent{Type: EventPhaseChange, Payload: map[string]interface{}{
			"phase":    PhaseSelection,
			"timeLeft": m.timeLeft,
			"roundId":  m.round.ID,
			"stake":    m.round.Stake,
		}}},
		m.publish("round_started", map[string]interface{}{"stake": m.round.Stake.String()}),
	}
}

func (m *Machine) enterActive() []Effect {
	m.phase = PhaseActive
	m.timeLeft = 0
	m.caller.Reset()
	m.exhausted = false

	confirmed := m.sessions.Confirmed()
	players := make([]PlayerInfo, 0, len(confirmed))
	for _, s := range confirmed {
		players = append(players, PlayerInfo{SessionID: s.ID, Username: s.Username, CardID: s.CardID})
	}
	m.round.Players = players
	m.round.Payout = ComputePayout(m.round.Stake, len(players), m.rules.HouseCut)

	return []Effect{
		Broadcast{Event: GameEvent{Type: EventPhaseChange, Payload: map[string]interface{}{
			"phase":       PhaseActive,
			"roundId":     m.round.ID,
			"players":     players,
			"playerCount": len(players),
			"totalPot":    m.round.Payout.Pot,
			"prizeAmount": m.round.Payout.Prize,
		}}},
		StartDrawing{Interval: m.rules.DrawInterval},
		m.publish("round_active", map[string]interface{}{
			"players": len(players),
			"pot":     m.round.Payout.Pot.String(),
		}),
	}
}

func (m *Machine) enterWinner(s *Session, line bingo.Line) []Effect {
	m.phase = PhaseWinner
	m.timeLeft = m.rules.WinnerSeconds

	w := &Winner{
		SessionID: s.ID,
		UserID:    s.UserID,
		Username:  s.Username,
		CardID:    s.CardID,
		Line:      line,
		Payout:    m.round.Payout,
	}
	m.round.Winner = w
	called := m.caller.Called()

	effects := []Effect{
		StopDrawing{},
		Broadcast{Event: GameEvent{Type: EventPhaseChange, Payload: map[string]interface{}{
			"phase":         PhaseWinner,
			"timeLeft":      m.timeLeft,
			"roundId":       m.round.ID,
			"winner":        w,
			"calledNumbers": called,
		}}},
	}
	if !m.settled {
		m.settled = true
		effects = append(effects, Settle{SessionID: s.ID, Credit: models.WinnerCredit{
			RoundID:        m.round.ID,
			UserID:         s.UserID,
			Username:       s.Username,
			CardID:         s.CardID,
			Pot:            w.Pot,
			Prize:          w.Prize,
			HouseCut:       w.HouseCut,
			CalledNumbers:  called,
			IdempotencyKey: IdempotencyKey(m.round.ID),
		}})
	}
	return append(effects, m.publish("winner", map[string]interface{}{
		"userId": s.UserID.String(),
		"cardId": s.CardID,
		"prize":  w.Prize.String(),
		"calls":  len(called),
	}))
}

func (m *Machine) tick() []Effect {
	switch m.phase {
	case PhaseSelection:
		m.timeLeft--
		effects := []Effect{m.timerUpdate()}
		if m.timeLeft > 0 {
			return effects
		}
		confirmed := m.sessions.ConfirmedCount()
		if confirmed >= m.rules.MinPlayers {
			return append(effects, m.enterActive()...)
		}
		effects = append(effects, m.publish("round_skipped", map[string]interface{}{"confirmed": confirmed}))
		return append(effects, m.enterSelection()...)
	case PhaseWinner:
		m.timeLeft--
		effects := []Effect{m.timerUpdate()}
		if m.timeLeft > 0 {
			return effects
		}
		return append(effects, m.enterSelection()...)
	}
	return nil
}

func (m *Machine) timerUpdate() Effect {
	return Broadcast{Event: GameEvent{Type: EventTimerUpdate, Payload: map[string]interface{}{
		"phase":    m.phase,
		"timeLeft": m.timeLeft,
	}}}
}

func (m *Machine) draw() []Effect {
	if m.phase != PhaseActive || m.exhausted {
		return nil
	}
	call, err := m.caller.Next()
	if err != nil {
		return m.exhaust()
	}
	effects := []Effect{
		Broadcast{Event: GameEvent{Type: EventNumberCalled, Payload: map[string]interface{}{
			"number":        call.Number,
			"letter":        call.Letter,
			"calledNumbers": m.caller.Called(),
		}}},
		m.publish("number_called", map[string]interface{}{"number": call.Number}),
	}
	if m.caller.Remaining() == 0 {
		effects = append(effects, m.exhaust()...)
	}
	return effects
}

func (m *Machine) exhaust() []Effect {
	m.exhausted = true
	return []Effect{
		StopDrawing{},
		Broadcast{Event: GameEvent{Type: EventAllNumbersCalled, Payload: map[string]interface{}{
			"calledNumbers": m.caller.Called(),
		}}},
		Schedule{After: m.rules.AllCalledDelay, Event: AllCalledTimeout{RoundID: m.round.ID}},
		m.publish("all_numbers_called", nil),
	}
}

// --- sessions ---

func (m *Machine) connect(id uuid.UUID) []Effect {
	if m.phase == PhaseActive || m.phase == PhaseWinner {
		return []Effect{
			Unicast{SessionID: id, Event: errorEvent(RoundInProgressMessage)},
			CloseSession{SessionID: id, Reason: RoundInProgressMessage},
		}
	}
	m.sessions.Add(id)

	taken := make([]int, 0, len(m.taken))
	for card := range m.taken {
		taken = append(taken, card)
	}
	sort.Ints(taken)

	return m.reply(id, GameEvent{Type: EventInit, Payload: map[string]interface{}{
		"sessionId":     id,
		"roundId":       m.round.ID,
		"phase":         m.phase,
		"timeLeft":      m.timeLeft,
		"calledNumbers": m.caller.Called(),
		"winner":        m.round.Winner,
		"stake":         m.round.Stake,
		"takenCards":    taken,
	}})
}

func (m *Machine) disconnect(id uuid.UUID) {
	s, ok := m.sessions.Remove(id)
	if !ok {
		return
	}
	// A confirmed card is released only while cards can still be picked.
	if s.Confirmed && m.phase == PhaseSelection && m.taken[s.CardID] == s.ID {
		delete(m.taken, s.CardID)
	}
}

func (m *Machine) reply(id uuid.UUID, ev GameEvent) []Effect {
	if _, ok := m.sessions.Get(id); !ok {
		return nil
	}
	return []Effect{Unicast{SessionID: id, Event: ev}}
}

func (m *Machine) handleMessage(id uuid.UUID, msg ClientMessage) []Effect {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil
	}

	switch msg.Type {
	case MsgAuthenticate:
		if msg.Identity == "" {
			return m.authError(id, "identity is required")
		}
		return []Effect{ResolveAccount{SessionID: id, Msg: msg}}
	case MsgAuthToken:
		if msg.Token == "" {
			return m.authError(id, "token is required")
		}
		return []Effect{ResolveAccount{SessionID: id, Msg: msg}}
	case MsgRegister, MsgLogin:
		if msg.Username == "" || msg.Password == "" {
			return m.authError(id, "username and password are required")
		}
		return []Effect{ResolveAccount{SessionID: id, Msg: msg}}
	case MsgSelectCard:
		return m.selectCard(s, msg.CardID)
	case MsgConfirmCard:
		return m.confirmCard(s, msg.CardID)
	case MsgClaimWin:
		return m.claimWin(s, msg.CardID)
	case MsgGetBalance:
		if !s.Authenticated() {
			return m.reply(id, errorEvent("not authenticated"))
		}
		return []Effect{FetchBalance{SessionID: id, UserID: s.UserID}}
	case MsgGetGameHistory:
		if !s.Authenticated() {
			return m.reply(id, errorEvent("not authenticated"))
		}
		return []Effect{FetchHistory{SessionID: id, UserID: s.UserID}}
	case MsgGetTransactions:
		if !s.Authenticated() {
			return m.reply(id, errorEvent("not authenticated"))
		}
		return []Effect{FetchTransactions{SessionID: id, UserID: s.UserID}}
	case MsgPing:
		return m.reply(id, GameEvent{Type: EventPong})
	}
	return m.reply(id, errorEvent("unknown message type: "+msg.Type))
}

func (m *Machine) authError(id uuid.UUID, msg string) []Effect {
	return m.reply(id, GameEvent{Type: EventAuthError, Payload: map[string]interface{}{"error": msg}})
}

func (m *Machine) accountResolved(e AccountResolved) []Effect {
	s, ok := m.sessions.Get(e.SessionID)
	if !ok {
		return nil
	}
	if e.Err != nil || e.User == nil {
		msg := "authentication failed"
		if e.Err != nil {
			msg = e.Err.Error()
		}
		return m.authError(s.ID, msg)
	}
	if s.Confirmed && s.UserID != e.User.ID {
		return m.authError(s.ID, "cannot switch accounts with a confirmed card")
	}

	s.UserID = e.User.ID
	s.Username = e.User.Username
	s.Balance = e.User.Balance
	return m.reply(s.ID, GameEvent{Type: EventAuthResult, Payload: map[string]interface{}{
		"token": e.Token,
		"user": map[string]interface{}{
			"id":       e.User.ID,
			"username": e.User.Username,
			"balance":  e.User.Balance,
		},
		"balance": e.User.Balance,
	}})
}

// balanceChanged refreshes a session's cached balance. A non-nil userID must match the session.
func (m *Machine) balanceChanged(id, userID uuid.UUID, balance decimal.Decimal) []Effect {
	s, ok := m.sessions.Get(id)
	if !ok || (userID != uuid.Nil && s.UserID != userID) {
		return nil
	}
	s.Balance = balance
	return m.reply(id, GameEvent{Type: EventBalanceUpdate, Payload: map[string]interface{}{"balance": balance}})
}

func (m *Machine) selectCard(s *Session, cardID int) []Effect {
	if m.phase != PhaseSelection {
		return m.reply(s.ID, errorEvent("card selection is closed"))
	}
	if !m.catalog.Contains(cardID) {
		return m.reply(s.ID, errorEvent("unknown card"))
	}
	if s.Confirmed {
		return m.reply(s.ID, errorEvent("card already confirmed for this round"))
	}
	if owner, taken := m.taken[cardID]; taken && owner != s.ID {
		return m.reply(s.ID, errorEvent("card already taken"))
	}
	s.CardID = cardID
	return []Effect{Broadcast{Event: GameEvent{Type: EventCardTaken, Payload: map[string]interface{}{
		"cardId":    cardID,
		"confirmed": false,
	}}}}
}

func (m *Machine) confirmCard(s *Session, cardID int) []Effect {
	if m.phase != PhaseSelection {
		return m.reply(s.ID, errorEvent("card selection is closed"))
	}
	if !s.Authenticated() {
		return m.reply(s.ID, errorEvent("authenticate before confirming a card"))
	}
	if !m.catalog.Contains(cardID) {
		return m.reply(s.ID, errorEvent("unknown card"))
	}
	if s.Confirmed {
		return m.reply(s.ID, errorEvent("card already confirmed for this round"))
	}
	if _, taken := m.taken[cardID]; taken {
		return m.reply(s.ID, errorEvent("card already taken"))
	}

	s.CardID = cardID
	s.Confirmed = true
	m.taken[cardID] = s.ID

	return []Effect{
		Unicast{SessionID: s.ID, Event: GameEvent{Type: EventCardConfirmed, Payload: map[string]interface{}{
			"cardId":  cardID,
			"balance": s.Balance,
		}}},
		Broadcast{Event: GameEvent{Type: EventCardTaken, Payload: map[string]interface{}{
			"cardId":    cardID,
			"confirmed": true,
		}}},
		RecordParticipant{SessionID: s.ID, RoundID: m.round.ID, UserID: s.UserID, CardID: cardID},
		m.publish("card_confirmed", map[string]interface{}{
			"userId": s.UserID.String(),
			"cardId": cardID,
		}),
	}
}

func (m *Machine) claimWin(s *Session, cardID int) []Effect {
	if m.phase != PhaseActive {
		return m.reply(s.ID, errorEvent("no active round to claim"))
	}
	if !s.Confirmed {
		return m.rejectClaim(s, "not playing this round")
	}
	if cardID == 0 {
		cardID = s.CardID
	}
	if cardID != s.CardID {
		return m.rejectClaim(s, "card is not yours")
	}
	card, ok := m.catalog.Card(cardID)
	if !ok {
		return m.rejectClaim(s, "unknown card")
	}
	line, won := card.Grid.WinningLine(m.caller.Called())
	if !won {
		return m.rejectClaim(s, "no completed line")
	}
	return m.enterWinner(s, line)
}

func (m *Machine) rejectClaim(s *Session, reason string) []Effect {
	return m.reply(s.ID, GameEvent{Type: EventClaimRejected, Payload: map[string]interface{}{
		"cardId": s.CardID,
		"reason": reason,
	}})
}

func (m *Machine) publish(eventType string, payload map[string]interface{}) Effect {
	m.round.events++
	return Publish{Record: models.RoundEvent{
		RoundID:    m.round.ID,
		EventIndex: m.round.events,
		EventType:  eventType,
		Payload:    payload,
	}}
}
