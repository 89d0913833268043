// internal/game/machine_test.go
package game

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/bingo"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRules shortens the phases so tests can tick through them.
func testRules() Rules {
	r := DefaultRules()
	r.SelectionSeconds = 3
	r.WinnerSeconds = 2
	return r
}

// setupMachine returns a started machine whose caller draws 1, 2, 3, ... in order.
func setupMachine(t *testing.T, rules Rules) *Machine {
	t.Helper()
	m := NewMachine(rules, bingo.GenerateCatalog(100), bingo.NewCaller(func(int) int { return 0 }), 0)
	m.Apply(Start{})
	require.Equal(t, PhaseSelection, m.Phase())
	return m
}

func broadcasts(effects []Effect) []GameEvent {
	var out []GameEvent
	for _, e := range effects {
		if b, ok := e.(Broadcast); ok {
			out = append(out, b.Event)
		}
	}
	return out
}

func unicasts(effects []Effect, id uuid.UUID) []GameEvent {
	var out []GameEvent
	for _, e := range effects {
		if u, ok := e.(Unicast); ok && u.SessionID == id {
			out = append(out, u.Event)
		}
	}
	return out
}

func findEffect[T Effect](effects []Effect) (T, bool) {
	for _, e := range effects {
		if v, ok := e.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func countEffects[T Effect](effects []Effect) int {
	n := 0
	for _, e := range effects {
		if _, ok := e.(T); ok {
			n++
		}
	}
	return n
}

// connectPlayer connects and authenticates a session.
func connectPlayer(t *testing.T, m *Machine, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	effects := m.Apply(Connect{SessionID: id})
	welcome := unicasts(effects, id)
	require.Len(t, welcome, 1)
	require.Equal(t, EventInit, welcome[0].Type)

	effects = m.Apply(AccountResolved{
		SessionID: id,
		User:      &models.User{ID: uuid.New(), Username: name, Balance: decimal.NewFromInt(100)},
		Token:     "token-" + name,
	})
	res := unicasts(effects, id)
	require.Len(t, res, 1)
	require.Equal(t, EventAuthResult, res[0].Type)
	return id
}

func confirm(t *testing.T, m *Machine, id uuid.UUID, cardID int) []Effect {
	t.Helper()
	return m.Apply(Message{SessionID: id, Msg: ClientMessage{Type: MsgConfirmCard, CardID: cardID}})
}

// tickOut ticks until the phase or the round changes.
func tickOut(t *testing.T, m *Machine) []Effect {
	t.Helper()
	start := m.Phase()
	round := m.round.ID
	var all []Effect
	for i := 0; i < 100; i++ {
		all = append(all, m.Apply(Tick{})...)
		if m.Phase() != start || m.round.ID != round {
			return all
		}
	}
	t.Fatalf("phase %s never advanced", start)
	return nil
}

// drawUntilWin draws until cardID holds a completed line.
func drawUntilWin(t *testing.T, m *Machine, cardID int) {
	t.Helper()
	for i := 0; i < bingo.MaxNumber; i++ {
		if m.catalog.IsWinning(cardID, m.caller.Called()) {
			return
		}
		m.Apply(Draw{})
	}
	require.True(t, m.catalog.IsWinning(cardID, m.caller.Called()))
}

func TestStartEntersSelection(t *testing.T) {
	m := NewMachine(testRules(), bingo.GenerateCatalog(10), nil, 41)
	effects := m.Apply(Start{})

	assert.Equal(t, PhaseSelection, m.Phase())
	persist, ok := findEffect[PersistRound](effects)
	require.True(t, ok)
	assert.Equal(t, int64(42), persist.RoundID)
	assert.True(t, persist.Stake.Equal(decimal.NewFromInt(10)))

	bs := broadcasts(effects)
	require.Len(t, bs, 1)
	assert.Equal(t, EventPhaseChange, bs[0].Type)
	assert.Equal(t, PhaseSelection, bs[0].Payload["phase"])
	assert.Equal(t, 3, bs[0].Payload["timeLeft"])

	assert.Nil(t, m.Apply(Start{}), "a second start is ignored")
}

func TestSelectionTimerBroadcasts(t *testing.T) {
	m := setupMachine(t, testRules())

	effects := m.Apply(Tick{})
	bs := broadcasts(effects)
	require.Len(t, bs, 1)
	assert.Equal(t, EventTimerUpdate, bs[0].Type)
	assert.Equal(t, 2, bs[0].Payload["timeLeft"])
	assert.Equal(t, PhaseSelection, bs[0].Payload["phase"])
}

func TestEmptySelectionStartsNewRound(t *testing.T) {
	m := setupMachine(t, testRules())
	first := m.round.ID

	effects := tickOut(t, m)

	assert.Equal(t, PhaseSelection, m.Phase())
	assert.Equal(t, first+1, m.round.ID, "a fresh round identifier")
	assert.Empty(t, m.caller.Called())
	assert.Equal(t, 3, m.timeLeft)
	_, started := findEffect[StartDrawing](effects)
	assert.False(t, started)
	persist, ok := findEffect[PersistRound](effects)
	require.True(t, ok)
	assert.Equal(t, first+1, persist.RoundID)
}

func TestMinPlayersThreshold(t *testing.T) {
	rules := testRules()
	rules.MinPlayers = 2
	m := setupMachine(t, rules)

	a := connectPlayer(t, m, "alice")
	confirm(t, m, a, 1)
	tickOut(t, m)
	assert.Equal(t, PhaseSelection, m.Phase(), "one player is not enough")

	confirm(t, m, a, 1)
	b := connectPlayer(t, m, "bob")
	confirm(t, m, b, 2)
	tickOut(t, m)
	assert.Equal(t, PhaseActive, m.Phase())
}

func TestConfirmRequiresAuthentication(t *testing.T) {
	m := setupMachine(t, testRules())
	id := uuid.New()
	m.Apply(Connect{SessionID: id})

	effects := confirm(t, m, id, 5)
	replies := unicasts(effects, id)
	require.Len(t, replies, 1)
	assert.Equal(t, EventError, replies[0].Type)
	assert.Empty(t, broadcasts(effects))
	_, recorded := findEffect[RecordParticipant](effects)
	assert.False(t, recorded)

	s, _ := m.sessions.Get(id)
	assert.False(t, s.Confirmed)
}

func TestConfirmCard(t *testing.T) {
	m := setupMachine(t, testRules())
	id := connectPlayer(t, m, "alice")

	effects := confirm(t, m, id, 5)
	replies := unicasts(effects, id)
	require.Len(t, replies, 1)
	assert.Equal(t, EventCardConfirmed, replies[0].Type)
	assert.Equal(t, 5, replies[0].Payload["cardId"])

	rec, ok := findEffect[RecordParticipant](effects)
	require.True(t, ok)
	assert.Equal(t, m.round.ID, rec.RoundID)
	assert.Equal(t, 5, rec.CardID)

	effects = m.Apply(ParticipantRecorded{SessionID: id, RoundID: m.round.ID, Balance: decimal.NewFromInt(90)})
	update := unicasts(effects, id)
	require.Len(t, update, 1)
	assert.Equal(t, EventBalanceUpdate, update[0].Type)
	assert.True(t, decimal.NewFromInt(90).Equal(update[0].Payload["balance"].(decimal.Decimal)))

	effects = confirm(t, m, id, 6)
	replies = unicasts(effects, id)
	require.Len(t, replies, 1)
	assert.Equal(t, EventError, replies[0].Type, "one card per session per round")
}

func TestSameCardConfirmedTwice(t *testing.T) {
	m := setupMachine(t, testRules())
	a := connectPlayer(t, m, "alice")
	b := connectPlayer(t, m, "bob")

	first := confirm(t, m, a, 42)
	second := confirm(t, m, b, 42)

	require.Len(t, unicasts(first, a), 1)
	assert.Equal(t, EventCardConfirmed, unicasts(first, a)[0].Type)
	require.Len(t, unicasts(second, b), 1)
	assert.Equal(t, EventError, unicasts(second, b)[0].Type)
	assert.Equal(t, "card already taken", unicasts(second, b)[0].Payload["message"])
	assert.Equal(t, 1, m.sessions.ConfirmedCount())
}

func TestSelectCard(t *testing.T) {
	m := setupMachine(t, testRules())
	a := connectPlayer(t, m, "alice")
	b := connectPlayer(t, m, "bob")

	effects := m.Apply(Message{SessionID: b, Msg: ClientMessage{Type: MsgSelectCard, CardID: 9}})
	bs := broadcasts(effects)
	require.Len(t, bs, 1)
	assert.Equal(t, EventCardTaken, bs[0].Type)

	confirm(t, m, a, 9)
	effects = m.Apply(Message{SessionID: b, Msg: ClientMessage{Type: MsgSelectCard, CardID: 9}})
	assert.Empty(t, broadcasts(effects))
	assert.Equal(t, EventError, unicasts(effects, b)[0].Type)

	effects = m.Apply(Message{SessionID: b, Msg: ClientMessage{Type: MsgSelectCard, CardID: 1000}})
	assert.Equal(t, "unknown card", unicasts(effects, b)[0].Payload["message"])
}

func TestClaimDuringSelectionIsProtocolError(t *testing.T) {
	m := setupMachine(t, testRules())
	id := connectPlayer(t, m, "alice")
	confirm(t, m, id, 3)

	effects := m.Apply(Message{SessionID: id, Msg: ClientMessage{Type: MsgClaimWin, CardID: 3}})
	assert.Empty(t, broadcasts(effects))
	replies := unicasts(effects, id)
	require.Len(t, replies, 1)
	assert.Equal(t, EventError, replies[0].Type)
	assert.Equal(t, PhaseSelection, m.Phase())
}

func TestFullRound(t *testing.T) {
	m := setupMachine(t, testRules())
	players := make([]uuid.UUID, 4)
	for i := range players {
		players[i] = connectPlayer(t, m, string(rune('a'+i)))
		confirm(t, m, players[i], i+1)
	}
	round := m.round.ID

	// selection -> active
	effects := tickOut(t, m)
	require.Equal(t, PhaseActive, m.Phase())
	draw, ok := findEffect[StartDrawing](effects)
	require.True(t, ok)
	assert.Equal(t, m.rules.DrawInterval, draw.Interval)

	var change *GameEvent
	for _, ev := range broadcasts(effects) {
		if ev.Type == EventPhaseChange {
			ev := ev
			change = &ev
		}
	}
	require.NotNil(t, change)
	assert.Equal(t, 4, change.Payload["playerCount"])
	assert.True(t, decimal.NewFromInt(40).Equal(change.Payload["totalPot"].(decimal.Decimal)))
	assert.True(t, decimal.NewFromInt(32).Equal(change.Payload["prizeAmount"].(decimal.Decimal)))
	assert.Empty(t, m.caller.Called(), "caller reset on entering active")

	// A losing claim is answered privately.
	effects = m.Apply(Message{SessionID: players[0], Msg: ClientMessage{Type: MsgClaimWin, CardID: 1}})
	assert.Empty(t, broadcasts(effects))
	rejected := unicasts(effects, players[0])
	require.Len(t, rejected, 1)
	assert.Equal(t, EventClaimRejected, rejected[0].Type)
	assert.Equal(t, PhaseActive, m.Phase())

	// Claiming someone else's card is rejected too.
	effects = m.Apply(Message{SessionID: players[0], Msg: ClientMessage{Type: MsgClaimWin, CardID: 2}})
	assert.Equal(t, EventClaimRejected, unicasts(effects, players[0])[0].Type)

	drawUntilWin(t, m, 3)
	called := m.caller.Called()

	effects = m.Apply(Message{SessionID: players[2], Msg: ClientMessage{Type: MsgClaimWin, CardID: 3}})
	require.Equal(t, PhaseWinner, m.Phase())
	_, stopped := findEffect[StopDrawing](effects)
	assert.True(t, stopped)
	settle, ok := findEffect[Settle](effects)
	require.True(t, ok)
	assert.Equal(t, round, settle.Credit.RoundID)
	assert.Equal(t, 3, settle.Credit.CardID)
	assert.Equal(t, "round:1:win", settle.Credit.IdempotencyKey)
	assert.True(t, settle.Credit.Prize.Equal(decimal.NewFromInt(32)))
	assert.True(t, settle.Credit.Pot.Equal(decimal.NewFromInt(40)))
	assert.True(t, settle.Credit.HouseCut.Equal(decimal.NewFromInt(8)))
	assert.Equal(t, called, settle.Credit.CalledNumbers)

	bs := broadcasts(effects)
	require.Len(t, bs, 1)
	w, ok := bs[0].Payload["winner"].(*Winner)
	require.True(t, ok)
	assert.Equal(t, 3, w.CardID)
	assert.Equal(t, "c", w.Username)

	// Duplicate and late claims never settle again.
	for _, id := range players {
		effects = m.Apply(Message{SessionID: id, Msg: ClientMessage{Type: MsgClaimWin, CardID: 0}})
		assert.Zero(t, countEffects[Settle](effects))
		assert.Empty(t, broadcasts(effects))
	}

	// Draw ticks that were already queued are ignored.
	assert.Empty(t, m.Apply(Draw{}))
	assert.Equal(t, called, m.caller.Called())

	effects = m.Apply(Settled{SessionID: players[2], RoundID: round, UserID: settle.Credit.UserID, Balance: decimal.NewFromInt(122)})
	update := unicasts(effects, players[2])
	require.Len(t, update, 1)
	assert.Equal(t, EventBalanceUpdate, update[0].Type)
	assert.Empty(t, broadcasts(effects), "balance updates are private")

	// winner -> selection
	tickOut(t, m)
	assert.Equal(t, PhaseSelection, m.Phase())
	assert.Equal(t, round+1, m.round.ID)
	assert.Nil(t, m.round.Winner)
	assert.Equal(t, 0, m.sessions.ConfirmedCount())
	for _, id := range players {
		s, ok := m.sessions.Get(id)
		require.True(t, ok)
		assert.Zero(t, s.CardID)
		assert.False(t, s.Confirmed)
	}
}

func TestSettlementFailureStillAnnouncesWinner(t *testing.T) {
	m := setupMachine(t, testRules())
	id := connectPlayer(t, m, "alice")
	confirm(t, m, id, 1)
	tickOut(t, m)
	drawUntilWin(t, m, 1)

	effects := m.Apply(Message{SessionID: id, Msg: ClientMessage{Type: MsgClaimWin, CardID: 1}})
	require.Equal(t, PhaseWinner, m.Phase())
	require.Len(t, broadcasts(effects), 1)

	effects = m.Apply(Settled{SessionID: id, RoundID: m.round.ID, Err: errors.New("ledger down")})
	assert.Empty(t, effects)
	assert.Equal(t, PhaseWinner, m.Phase())

	tickOut(t, m)
	assert.Equal(t, PhaseSelection, m.Phase())
}

func TestConnectDuringPlayIsRejected(t *testing.T) {
	m := setupMachine(t, testRules())
	id := connectPlayer(t, m, "alice")
	confirm(t, m, id, 1)
	tickOut(t, m)
	require.Equal(t, PhaseActive, m.Phase())

	late := uuid.New()
	effects := m.Apply(Connect{SessionID: late})
	replies := unicasts(effects, late)
	require.Len(t, replies, 1)
	assert.Equal(t, EventError, replies[0].Type)
	assert.Equal(t, RoundInProgressMessage, replies[0].Payload["message"])
	closeEffect, ok := findEffect[CloseSession](effects)
	require.True(t, ok)
	assert.Equal(t, late, closeEffect.SessionID)
	_, registered := m.sessions.Get(late)
	assert.False(t, registered)

	// Messages from the refused session are dropped.
	assert.Empty(t, m.Apply(Message{SessionID: late, Msg: ClientMessage{Type: MsgPing}}))
}

func TestAllNumbersCalled(t *testing.T) {
	m := setupMachine(t, testRules())
	id := connectPlayer(t, m, "alice")
	confirm(t, m, id, 1)
	tickOut(t, m)
	round := m.round.ID

	var last []Effect
	for i := 0; i < bingo.MaxNumber; i++ {
		last = m.Apply(Draw{})
		require.Equal(t, PhaseActive, m.Phase())
	}
	called := m.caller.Called()
	require.Len(t, called, bingo.MaxNumber)
	seen := map[int]bool{}
	for _, n := range called {
		require.False(t, seen[n], "duplicate call %d", n)
		seen[n] = true
	}

	_, stopped := findEffect[StopDrawing](last)
	assert.True(t, stopped)
	sched, ok := findEffect[Schedule](last)
	require.True(t, ok)
	assert.Equal(t, m.rules.AllCalledDelay, sched.After)
	assert.Equal(t, AllCalledTimeout{RoundID: round}, sched.Event)
	var types []GameEventType
	for _, ev := range broadcasts(last) {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []GameEventType{EventNumberCalled, EventAllNumbersCalled}, types)

	assert.Empty(t, m.Apply(Draw{}), "an exhausted pool draws nothing")
	assert.Empty(t, m.Apply(AllCalledTimeout{RoundID: round - 1}), "stale timeouts are ignored")
	assert.Equal(t, PhaseActive, m.Phase())

	effects := m.Apply(sched.Event)
	assert.Equal(t, PhaseSelection, m.Phase())
	assert.Equal(t, round+1, m.round.ID)
	assert.Empty(t, m.caller.Called())

	closing, ok := findEffect[Publish](effects)
	require.True(t, ok)
	assert.Equal(t, "round_exhausted", closing.Record.EventType)
	assert.Equal(t, round, closing.Record.RoundID)
	assert.Equal(t, bingo.MaxNumber, closing.Record.Payload["calls"])
}

func TestPhaseSequence(t *testing.T) {
	m := setupMachine(t, testRules())
	allowed := map[Phase]Phase{
		PhaseSelection: PhaseActive,
		PhaseActive:    PhaseWinner,
		PhaseWinner:    PhaseSelection,
	}
	id := connectPlayer(t, m, "alice")

	prev := m.Phase()
	observe := func() {
		cur := m.Phase()
		if cur != prev {
			assert.Equal(t, allowed[prev], cur, "%s -> %s", prev, cur)
			if cur == PhaseActive {
				assert.GreaterOrEqual(t, len(m.round.Players), 1)
			}
			prev = cur
		}
	}

	for round := 0; round < 6; round++ {
		if round%2 == 0 {
			confirm(t, m, id, round+1)
		}
		for m.Phase() == PhaseSelection && m.round.Players == nil {
			start := m.round.ID
			m.Apply(Tick{})
			observe()
			if m.round.ID != start {
				break
			}
		}
		if m.Phase() != PhaseActive {
			continue
		}
		card := m.round.Players[0].CardID
		drawUntilWin(t, m, card)
		m.Apply(Message{SessionID: id, Msg: ClientMessage{Type: MsgClaimWin, CardID: card}})
		observe()
		for m.Phase() == PhaseWinner {
			m.Apply(Tick{})
			observe()
		}
	}
}

func TestDisconnectReleasesConfirmedCard(t *testing.T) {
	m := setupMachine(t, testRules())
	a := connectPlayer(t, m, "alice")
	b := connectPlayer(t, m, "bob")
	confirm(t, m, a, 11)

	m.Apply(Disconnect{SessionID: a})
	_, ok := m.sessions.Get(a)
	assert.False(t, ok)
	assert.Equal(t, 0, m.sessions.ConfirmedCount())

	effects := confirm(t, m, b, 11)
	assert.Equal(t, EventCardConfirmed, unicasts(effects, b)[0].Type)

	// Results for a vanished session are dropped.
	assert.Empty(t, m.Apply(BalanceFetched{SessionID: a, Balance: decimal.NewFromInt(1)}))
}

func TestAuthentication(t *testing.T) {
	m := setupMachine(t, testRules())
	id := uuid.New()
	m.Apply(Connect{SessionID: id})

	tests := []struct {
		name string
		msg  ClientMessage
	}{
		{name: "telegram identity", msg: ClientMessage{Type: MsgAuthenticate, Identity: "12345", DisplayName: "al"}},
		{name: "token", msg: ClientMessage{Type: MsgAuthToken, Token: "abc"}},
		{name: "register", msg: ClientMessage{Type: MsgRegister, Username: "al", Password: "pw"}},
		{name: "login", msg: ClientMessage{Type: MsgLogin, Username: "al", Password: "pw"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			effects := m.Apply(Message{SessionID: id, Msg: tt.msg})
			resolve, ok := findEffect[ResolveAccount](effects)
			require.True(t, ok)
			assert.Equal(t, tt.msg, resolve.Msg)
		})
	}

	effects := m.Apply(Message{SessionID: id, Msg: ClientMessage{Type: MsgLogin, Username: "al"}})
	assert.Equal(t, EventAuthError, unicasts(effects, id)[0].Type)

	effects = m.Apply(AccountResolved{SessionID: id, Err: errors.New("invalid username or password")})
	replies := unicasts(effects, id)
	require.Len(t, replies, 1)
	assert.Equal(t, EventAuthError, replies[0].Type)
	assert.Equal(t, "invalid username or password", replies[0].Payload["error"])
	s, _ := m.sessions.Get(id)
	assert.False(t, s.Authenticated())
}

func TestBalanceAndHistoryRequests(t *testing.T) {
	m := setupMachine(t, testRules())
	anon := uuid.New()
	m.Apply(Connect{SessionID: anon})
	effects := m.Apply(Message{SessionID: anon, Msg: ClientMessage{Type: MsgGetBalance}})
	assert.Equal(t, EventError, unicasts(effects, anon)[0].Type)

	id := connectPlayer(t, m, "alice")
	effects = m.Apply(Message{SessionID: id, Msg: ClientMessage{Type: MsgGetBalance}})
	_, ok := findEffect[FetchBalance](effects)
	assert.True(t, ok)

	effects = m.Apply(Message{SessionID: id, Msg: ClientMessage{Type: MsgGetGameHistory}})
	fetch, ok := findEffect[FetchHistory](effects)
	require.True(t, ok)
	s, _ := m.sessions.Get(id)
	assert.Equal(t, s.UserID, fetch.UserID)

	effects = m.Apply(HistoryFetched{SessionID: id, Stats: models.GameStats{Played: 3}})
	replies := unicasts(effects, id)
	require.Len(t, replies, 1)
	assert.Equal(t, EventGameHistory, replies[0].Type)
	assert.Equal(t, []models.GameRecord{}, replies[0].Payload["history"])

	effects = m.Apply(Message{SessionID: id, Msg: ClientMessage{Type: MsgPing}})
	assert.Equal(t, EventPong, unicasts(effects, id)[0].Type)

	effects = m.Apply(Message{SessionID: id, Msg: ClientMessage{Type: "dance"}})
	assert.Equal(t, EventError, unicasts(effects, id)[0].Type)
}

func TestTransactionsRequest(t *testing.T) {
	m := setupMachine(t, testRules())
	anon := uuid.New()
	m.Apply(Connect{SessionID: anon})
	effects := m.Apply(Message{SessionID: anon, Msg: ClientMessage{Type: MsgGetTransactions}})
	replies := unicasts(effects, anon)
	require.Len(t, replies, 1)
	assert.Equal(t, EventError, replies[0].Type)
	assert.Equal(t, 0, countEffects[FetchTransactions](effects))

	id := connectPlayer(t, m, "alice")
	effects = m.Apply(Message{SessionID: id, Msg: ClientMessage{Type: MsgGetTransactions}})
	fetch, ok := findEffect[FetchTransactions](effects)
	require.True(t, ok)
	s, _ := m.sessions.Get(id)
	assert.Equal(t, s.UserID, fetch.UserID)
	assert.Equal(t, id, fetch.SessionID)

	txs := []models.Transaction{
		{ID: 2, UserID: s.UserID, Type: models.TxBet, Amount: decimal.NewFromInt(-10)},
		{ID: 1, UserID: s.UserID, Type: models.TxWelcomeBonus, Amount: decimal.NewFromInt(10)},
	}
	effects = m.Apply(TransactionsFetched{SessionID: id, Transactions: txs})
	replies = unicasts(effects, id)
	require.Len(t, replies, 1)
	assert.Equal(t, EventTransactions, replies[0].Type)
	assert.Equal(t, txs, replies[0].Payload["transactions"])

	effects = m.Apply(TransactionsFetched{SessionID: id})
	assert.Equal(t, []models.Transaction{}, unicasts(effects, id)[0].Payload["transactions"])

	effects = m.Apply(TransactionsFetched{SessionID: id, Err: errors.New("db down")})
	assert.Equal(t, EventError, unicasts(effects, id)[0].Type)
}

func TestRulesChangeAppliesNextRound(t *testing.T) {
	m := setupMachine(t, testRules())
	next := testRules()
	next.StakeAmount = decimal.NewFromInt(25)

	m.Apply(RulesChanged{Rules: next})
	assert.True(t, m.round.Stake.Equal(decimal.NewFromInt(10)), "current round keeps its stake")
	assert.True(t, m.Rules().StakeAmount.Equal(decimal.NewFromInt(25)))

	tickOut(t, m)
	assert.True(t, m.round.Stake.Equal(decimal.NewFromInt(25)))
}

func TestSnapshot(t *testing.T) {
	m := setupMachine(t, testRules())
	a := connectPlayer(t, m, "alice")
	connectPlayer(t, m, "bob")
	confirm(t, m, a, 4)

	snap := m.Snapshot()
	assert.Equal(t, PhaseSelection, snap.Phase)
	assert.Equal(t, 2, snap.Sessions)
	assert.Equal(t, 1, snap.Confirmed)
	assert.True(t, snap.Pot.Equal(decimal.NewFromInt(10)))
	assert.Empty(t, snap.CalledNumbers)

	tickOut(t, m)
	m.Apply(Draw{})
	snap = m.Snapshot()
	assert.Equal(t, PhaseActive, snap.Phase)
	assert.Equal(t, []int{1}, snap.CalledNumbers)
}

func TestPublishIndexesAreSequential(t *testing.T) {
	m := setupMachine(t, testRules())
	id := connectPlayer(t, m, "alice")

	var records []models.RoundEvent
	collect := func(effects []Effect) {
		for _, e := range effects {
			if p, ok := e.(Publish); ok {
				records = append(records, p.Record)
			}
		}
	}
	collect(confirm(t, m, id, 1))
	collect(tickOut(t, m))
	collect(m.Apply(Draw{}))

	require.NotEmpty(t, records)
	for i, rec := range records {
		assert.Equal(t, m.round.ID, rec.RoundID)
		assert.Equal(t, i+2, rec.EventIndex, "round_started is index 1")
	}
}
