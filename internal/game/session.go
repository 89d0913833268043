// internal/game/session.go
package game

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Session is the engine's view of one live connection.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID // uuid.Nil until authenticated
	Username  string
	CardID    int // 0 when no card is chosen this round
	Confirmed bool
	Balance   decimal.Decimal // advisory; the ledger is authoritative
}

// Authenticated reports whether an account is linked to the session.
func (s *Session) Authenticated() bool {
	return s.UserID != uuid.Nil
}

// Registry holds the live sessions. It is owned by the Machine and not safe for concurrent use.
type Registry struct {
	sessions map[uuid.UUID]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*Session)}
}

// Add creates the session for id, replacing any previous one.
func (r *Registry) Add(id uuid.UUID) *Session {
	s := &Session{ID: id}
	r.sessions[id] = s
	return s
}

// Get looks up a session.
func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes a session and returns what it held.
func (r *Registry) Remove(id uuid.UUID) (*Session, bool) {
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// Len is the number of live sessions.
func (r *Registry) Len() int { return len(r.sessions) }

// Confirmed returns the confirmed sessions ordered by card.
func (r *Registry) Confirmed() []*Session {
	var out []*Session
	for _, s := range r.sessions {
		if s.Confirmed {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CardID < out[j].CardID })
	return out
}

// ConfirmedCount is len(Confirmed()) without the allocation.
func (r *Registry) ConfirmedCount() int {
	n := 0
	for _, s := range r.sessions {
		if s.Confirmed {
			n++
		}
	}
	return n
}

// ResetSelections clears every session's card and confirmation for a new round.
func (r *Registry) ResetSelections() {
	for _, s := range r.sessions {
		s.CardID = 0
		s.Confirmed = false
	}
}
