// internal/game/runner.go
package game

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/database"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// historyLimit caps the rounds returned for get_game_history.
	historyLimit = 20
	// transactionLimit caps the ledger entries returned for get_transactions.
	transactionLimit = 20
	// publishBuffer is how many round events may wait for the publisher before new ones are dropped.
	publishBuffer = 256
)

// AccountStore is the account and ledger collaborator the engine calls into.
type AccountStore interface {
	FindOrCreateByTelegram(ctx context.Context, telegramID, displayName string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateUserWithPassword(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.User, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	CreateRound(ctx context.Context, roundID int64, stake decimal.Decimal) error
	AddParticipant(ctx context.Context, roundID int64, userID uuid.UUID, cardID int) error
	CreditWinnings(ctx context.Context, credit models.WinnerCredit) (decimal.Decimal, error)
	UserGameHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.GameRecord, models.GameStats, error)
	RecentTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error)
}

// TokenIssuer signs and verifies session tokens.
type TokenIssuer interface {
	CreateJWT(userID string) (string, error)
	AuthenticateJWT(token string) (string, error)
}

// EventPublisher receives the round audit trail and payouts that need manual reconciliation.
type EventPublisher interface {
	PublishRoundEvent(ctx context.Context, ev models.RoundEvent) error
	PushUnsettled(ctx context.Context, credit models.WinnerCredit) error
}

// Outlet is the write side of one connection. Send must not block; it reports false when the
// message was dropped.
type Outlet interface {
	Send(data []byte) bool
	Close(reason string)
}

// runner-internal requests, never seen by the Machine.
type (
	attach struct {
		id  uuid.UUID
		out Outlet
	}
	snapshotRequest struct {
		reply chan Snapshot
	}
	rulesRequest struct {
		changes map[string]interface{}
		reply   chan rulesResult
	}
	rulesResult struct {
		rules Rules
		err   error
	}
)

func (attach) isEvent()          {}
func (snapshotRequest) isEvent() {}
func (rulesRequest) isEvent()    {}

// Runner is the single event loop around a Machine. It owns the phase and draw clocks and the
// connection outlets, and carries out effects. Store calls run on their own goroutines and come
// back into the loop as events.
type Runner struct {
	machine   *Machine
	store     AccountStore
	tokens    TokenIssuer
	publisher EventPublisher
	logger    *logrus.Logger

	// StoreTimeout bounds every call into the store.
	StoreTimeout time.Duration

	tickInterval time.Duration
	inbox        chan Event
	done         chan struct{}
	outlets      map[uuid.UUID]Outlet
	draw         *time.Ticker
	wg           sync.WaitGroup

	// round events leave through one goroutine so the queue sees them in emit order
	publishQ    chan models.RoundEvent
	publishDone chan struct{}
}

// NewRunner wires a machine to its collaborators. publisher may be nil.
func NewRunner(machine *Machine, store AccountStore, tokens TokenIssuer, publisher EventPublisher, logger *logrus.Logger) *Runner {
	tick := machine.Rules().TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	return &Runner{
		machine:      machine,
		store:        store,
		tokens:       tokens,
		publisher:    publisher,
		logger:       logger,
		StoreTimeout: 5 * time.Second,
		tickInterval: tick,
		inbox:        make(chan Event, 256),
		done:         make(chan struct{}),
		outlets:      make(map[uuid.UUID]Outlet),
		publishQ:     make(chan models.RoundEvent, publishBuffer),
		publishDone:  make(chan struct{}),
	}
}

// Connect registers an outlet and returns its session identifier. The session receives either
// an init snapshot or, during play, an error followed by Close.
func (r *Runner) Connect(out Outlet) uuid.UUID {
	id := uuid.New()
	r.submit(attach{id: id, out: out})
	return id
}

// Disconnect discards a session.
func (r *Runner) Disconnect(id uuid.UUID) {
	r.submit(Disconnect{SessionID: id})
}

// Dispatch hands a client message to the engine.
func (r *Runner) Dispatch(id uuid.UUID, msg ClientMessage) {
	r.submit(Message{SessionID: id, Msg: msg})
}

// Snapshot returns the current engine state.
func (r *Runner) Snapshot(ctx context.Context) (Snapshot, error) {
	req := snapshotRequest{reply: make(chan Snapshot, 1)}
	if !r.submit(req) {
		return Snapshot{}, errors.New("engine stopped")
	}
	select {
	case snap := <-req.reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// UpdateRules validates changes against the current rules and queues them for the next round.
func (r *Runner) UpdateRules(ctx context.Context, changes map[string]interface{}) (Rules, error) {
	req := rulesRequest{changes: changes, reply: make(chan rulesResult, 1)}
	if !r.submit(req) {
		return Rules{}, errors.New("engine stopped")
	}
	select {
	case res := <-req.reply:
		return res.rules, res.err
	case <-ctx.Done():
		return Rules{}, ctx.Err()
	}
}

func (r *Runner) submit(ev Event) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- ev:
		return true
	case <-r.done:
		return false
	}
}

// Run drives the engine until ctx is cancelled. In-flight store calls are awaited before it returns.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	go r.publishLoop()
	r.apply(Start{})
	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return nil
		case <-ticker.C:
			r.apply(Tick{})
		case <-r.drawC():
			r.apply(Draw{})
		case ev := <-r.inbox:
			r.handle(ev)
		}
	}
}

func (r *Runner) shutdown() {
	r.stopDrawing()
	for id, out := range r.outlets {
		out.Close("server shutting down")
		delete(r.outlets, id)
	}
	close(r.done)
	r.wg.Wait()
	close(r.publishQ)
	<-r.publishDone
	r.logger.Info("round engine stopped")
}

// publishLoop forwards round events to the publisher one at a time.
func (r *Runner) publishLoop() {
	defer close(r.publishDone)
	for rec := range r.publishQ {
		if r.publisher == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.StoreTimeout)
		if err := r.publisher.PublishRoundEvent(ctx, rec); err != nil {
			r.logger.WithError(err).WithField("round", rec.RoundID).Warn("failed to publish round event")
		}
		cancel()
	}
}

func (r *Runner) drawC() <-chan time.Time {
	if r.draw == nil {
		return nil
	}
	return r.draw.C
}

func (r *Runner) stopDrawing() {
	if r.draw != nil {
		r.draw.Stop()
		r.draw = nil
	}
}

func (r *Runner) handle(ev Event) {
	switch e := ev.(type) {
	case attach:
		r.outlets[e.id] = e.out
		r.apply(Connect{SessionID: e.id})
	case Disconnect:
		delete(r.outlets, e.SessionID)
		r.apply(e)
	case snapshotRequest:
		e.reply <- r.machine.Snapshot()
	case rulesRequest:
		rules, err := ParseRules(e.changes, r.machine.Rules())
		if err == nil {
			r.apply(RulesChanged{Rules: rules})
			r.logger.WithField("rules", rules).Info("rules queued for next round")
		}
		e.reply <- rulesResult{rules: rules, err: err}
	default:
		r.apply(ev)
	}
}

func (r *Runner) apply(ev Event) {
	before, round := r.machine.Phase(), r.machine.round.ID
	effects := r.machine.Apply(ev)
	if after := r.machine.Phase(); after != before || r.machine.round.ID != round {
		snap := r.machine.Snapshot()
		r.logger.WithFields(logrus.Fields{
			"round":     snap.RoundID,
			"phase":     snap.Phase,
			"confirmed": snap.Confirmed,
			"sessions":  snap.Sessions,
		}).Info("phase change")
	}
	r.execute(effects)
}

func (r *Runner) execute(effects []Effect) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case Broadcast:
			data, ok := r.marshal(e.Event)
			if !ok {
				continue
			}
			for id, out := range r.outlets {
				if !out.Send(data) {
					r.logger.Debugf("dropped %s for session %s", e.Event.Type, id)
				}
			}
		case Unicast:
			out, found := r.outlets[e.SessionID]
			if !found {
				continue
			}
			if data, ok := r.marshal(e.Event); ok && !out.Send(data) {
				r.logger.Debugf("dropped %s for session %s", e.Event.Type, e.SessionID)
			}
		case CloseSession:
			if out, found := r.outlets[e.SessionID]; found {
				out.Close(e.Reason)
				delete(r.outlets, e.SessionID)
			}
		case StartDrawing:
			r.stopDrawing()
			r.draw = time.NewTicker(e.Interval)
		case StopDrawing:
			r.stopDrawing()
		case Schedule:
			next := e.Event
			time.AfterFunc(e.After, func() { r.submit(next) })
		case PersistRound:
			r.goStore(func(ctx context.Context) Event {
				if err := r.store.CreateRound(ctx, e.RoundID, e.Stake); err != nil {
					r.logger.WithError(err).WithField("round", e.RoundID).Error("failed to persist round")
				}
				return nil
			})
		case ResolveAccount:
			r.goStore(func(ctx context.Context) Event { return r.resolveAccount(ctx, e) })
		case RecordParticipant:
			r.goStore(func(ctx context.Context) Event { return r.recordParticipant(ctx, e) })
		case Settle:
			r.goStore(func(ctx context.Context) Event { return r.settle(ctx, e) })
		case FetchBalance:
			r.goStore(func(ctx context.Context) Event {
				bal, err := r.store.GetBalance(ctx, e.UserID)
				if err != nil {
					r.logger.WithError(err).WithField("user", e.UserID).Error("failed to read balance")
				}
				return BalanceFetched{SessionID: e.SessionID, Balance: bal, Err: err}
			})
		case FetchHistory:
			r.goStore(func(ctx context.Context) Event {
				history, stats, err := r.store.UserGameHistory(ctx, e.UserID, historyLimit)
				if err != nil {
					r.logger.WithError(err).WithField("user", e.UserID).Error("failed to read game history")
				}
				return HistoryFetched{SessionID: e.SessionID, History: history, Stats: stats, Err: err}
			})
		case FetchTransactions:
			r.goStore(func(ctx context.Context) Event {
				txs, err := r.store.RecentTransactions(ctx, e.UserID, transactionLimit)
				if err != nil {
					r.logger.WithError(err).WithField("user", e.UserID).Error("failed to read transactions")
				}
				return TransactionsFetched{SessionID: e.SessionID, Transactions: txs, Err: err}
			})
		case Publish:
			if r.publisher == nil {
				continue
			}
			rec := e.Record
			rec.Timestamp = time.Now().UnixMilli()
			select {
			case r.publishQ <- rec:
			default:
				r.logger.WithFields(logrus.Fields{"round": rec.RoundID, "event": rec.EventType}).Warn("round event queue full, dropping event")
			}
		}
	}
}

func (r *Runner) marshal(ev GameEvent) ([]byte, bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.WithError(err).Errorf("failed to marshal %s event", ev.Type)
		return nil, false
	}
	return data, true
}

// goStore runs fn off the loop and feeds its result back in.
func (r *Runner) goStore(fn func(ctx context.Context) Event) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.StoreTimeout)
		defer cancel()
		if ev := fn(ctx); ev != nil {
			r.submit(ev)
		}
	}()
}

func (r *Runner) resolveAccount(ctx context.Context, e ResolveAccount) Event {
	var (
		user *models.User
		err  error
	)
	switch e.Msg.Type {
	case MsgAuthenticate:
		user, err = r.store.FindOrCreateByTelegram(ctx, e.Msg.Identity, e.Msg.DisplayName)
	case MsgAuthToken:
		sub, jwtErr := r.tokens.AuthenticateJWT(e.Msg.Token)
		if jwtErr != nil {
			return AccountResolved{SessionID: e.SessionID, Err: errors.New("invalid or expired token")}
		}
		id, parseErr := uuid.Parse(sub)
		if parseErr != nil {
			return AccountResolved{SessionID: e.SessionID, Err: errors.New("invalid or expired token")}
		}
		user, err = r.store.GetUserByID(ctx, id)
	case MsgRegister:
		user, err = r.store.CreateUserWithPassword(ctx, e.Msg.Username, e.Msg.Password)
	case MsgLogin:
		user, err = r.store.Login(ctx, e.Msg.Username, e.Msg.Password)
	default:
		err = errors.New("unsupported authentication method")
	}
	if err != nil {
		return AccountResolved{SessionID: e.SessionID, Err: r.publicAuthError(err)}
	}

	token, err := r.tokens.CreateJWT(user.ID.String())
	if err != nil {
		r.logger.WithError(err).Error("failed to sign session token")
		return AccountResolved{SessionID: e.SessionID, Err: errors.New("authentication failed")}
	}
	return AccountResolved{SessionID: e.SessionID, User: user, Token: token}
}

// publicAuthError maps store errors to messages safe to show a client.
func (r *Runner) publicAuthError(err error) error {
	switch {
	case errors.Is(err, database.ErrInvalidCredentials):
		return errors.New("invalid username or password")
	case errors.Is(err, database.ErrUsernameTaken):
		return errors.New("username already taken")
	case errors.Is(err, database.ErrNotFound):
		return errors.New("account not found")
	}
	r.logger.WithError(err).Error("account lookup failed")
	return errors.New("authentication failed")
}

func (r *Runner) recordParticipant(ctx context.Context, e RecordParticipant) Event {
	fields := logrus.Fields{"round": e.RoundID, "user": e.UserID, "card": e.CardID}
	if err := r.store.AddParticipant(ctx, e.RoundID, e.UserID, e.CardID); err != nil {
		r.logger.WithError(err).WithFields(fields).Error("failed to record participant")
		return ParticipantRecorded{SessionID: e.SessionID, RoundID: e.RoundID, Err: err}
	}
	bal, err := r.store.GetBalance(ctx, e.UserID)
	if err != nil {
		r.logger.WithError(err).WithFields(fields).Warn("participant recorded but balance unavailable")
	}
	return ParticipantRecorded{SessionID: e.SessionID, RoundID: e.RoundID, Balance: bal, Err: err}
}

func (r *Runner) settle(ctx context.Context, e Settle) Event {
	c := e.Credit
	fields := logrus.Fields{
		"round": c.RoundID,
		"user":  c.UserID,
		"card":  c.CardID,
		"prize": c.Prize.String(),
		"key":   c.IdempotencyKey,
	}
	bal, err := r.store.CreditWinnings(ctx, c)
	if err != nil {
		r.logger.WithError(err).WithFields(fields).WithField("reconcile", true).Error("winner credit failed")
		if r.publisher != nil {
			if pushErr := r.publisher.PushUnsettled(ctx, c); pushErr != nil {
				r.logger.WithError(pushErr).WithFields(fields).Error("failed to queue unsettled payout")
			}
		}
		return Settled{SessionID: e.SessionID, RoundID: c.RoundID, UserID: c.UserID, Err: err}
	}
	r.logger.WithFields(fields).Info("winner credited")
	return Settled{SessionID: e.SessionID, RoundID: c.RoundID, UserID: c.UserID, Balance: bal}
}
