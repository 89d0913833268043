// internal/handlers/api_server.go
package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/database"
	"github.com/jason-s-yu/bingo/internal/game"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const recentTransactions = 20

// WalletStore is what the REST endpoints need from the ledger.
type WalletStore interface {
	RegisterTelegram(ctx context.Context, telegramID, phoneNumber string) (*models.User, bool, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByTelegram(ctx context.Context, telegramID string) (*models.User, error)
	DebitStake(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, roundID int64) (decimal.Decimal, error)
	RecentTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error)
	Ping(ctx context.Context) error
}

// RoundEngine is the read and admin side of the engine.
type RoundEngine interface {
	Snapshot(ctx context.Context) (game.Snapshot, error)
	UpdateRules(ctx context.Context, changes map[string]interface{}) (game.Rules, error)
}

// APIServer serves the wallet, bet and round REST endpoints.
type APIServer struct {
	store      WalletStore
	engine     RoundEngine
	logger     *logrus.Logger
	adminToken string
}

// NewAPIServer builds the REST handlers. An empty adminToken disables POST /api/rules.
func NewAPIServer(store WalletStore, engine RoundEngine, logger *logrus.Logger, adminToken string) *APIServer {
	return &APIServer{store: store, engine: engine, logger: logger, adminToken: adminToken}
}

// Register mounts the endpoints on mux, each wrapped by wrap.
func (s *APIServer) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("POST /api/register", wrap(http.HandlerFunc(s.RegisterHandler)))
	mux.Handle("POST /api/bet", wrap(http.HandlerFunc(s.BetHandler)))
	mux.Handle("GET /api/wallet/{telegramId}", wrap(http.HandlerFunc(s.WalletHandler)))
	mux.Handle("GET /api/round", wrap(http.HandlerFunc(s.RoundHandler)))
	mux.Handle("POST /api/rules", wrap(http.HandlerFunc(s.RulesHandler)))
	mux.HandleFunc("GET /health", s.HealthHandler)
}

type registerRequest struct {
	UserID      string `json:"userId"` // telegram id
	PhoneNumber string `json:"phoneNumber"`
}

type registerResponse struct {
	User    *models.User `json:"user"`
	Created bool         `json:"created"`
}

// RegisterHandler binds a phone number to a Telegram user, creating the account and its wallet
// with the welcome bonus when needed.
func (s *APIServer) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "invalid request payload")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.UserID == "" || req.PhoneNumber == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "userId and phoneNumber are required")
		return
	}

	user, created, err := s.store.RegisterTelegram(r.Context(), req.UserID, req.PhoneNumber)
	if err != nil {
		s.logger.WithError(err).WithField("telegram_id", req.UserID).Error("failed to register user")
		writeError(w, http.StatusInternalServerError, "internal", "failed to register user")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, registerResponse{User: user, Created: created})
}

type betRequest struct {
	UserID      string          `json:"userId"`
	StakeAmount decimal.Decimal `json:"stakeAmount"`
}

type betResponse struct {
	RoundID int64           `json:"roundId"`
	Balance decimal.Decimal `json:"balance"`
}

// BetHandler debits the stake for the current round. Clients call it before confirm_card.
func (s *APIServer) BetHandler(w http.ResponseWriter, r *http.Request) {
	var req betRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "invalid request payload")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user", "userId must be an account id")
		return
	}

	snap, err := s.engine.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "engine_unavailable", "round engine unavailable")
		return
	}
	if snap.Phase != game.PhaseSelection {
		writeError(w, http.StatusConflict, "round_in_progress", "bets are only accepted during card selection")
		return
	}
	if !req.StakeAmount.Equal(snap.Stake) {
		writeError(w, http.StatusBadRequest, "wrong_stake", "stakeAmount must be "+snap.Stake.String())
		return
	}

	balance, err := s.store.DebitStake(r.Context(), userID, req.StakeAmount, snap.RoundID)
	switch {
	case errors.Is(err, database.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, "insufficient_balance", "insufficient balance")
		return
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "wallet not found")
		return
	case err != nil:
		s.logger.WithError(err).WithField("user", userID).Error("failed to debit stake")
		writeError(w, http.StatusInternalServerError, "internal", "failed to place bet")
		return
	}
	writeJSON(w, http.StatusOK, betResponse{RoundID: snap.RoundID, Balance: balance})
}

type walletResponse struct {
	UserID       uuid.UUID            `json:"userId"`
	Username     string               `json:"username"`
	Balance      decimal.Decimal      `json:"balance"`
	Transactions []models.Transaction `json:"transactions"`
}

// WalletHandler returns the balance and newest transactions of a Telegram user.
func (s *APIServer) WalletHandler(w http.ResponseWriter, r *http.Request) {
	telegramID := r.PathValue("telegramId")
	user, err := s.store.GetUserByTelegram(r.Context(), telegramID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	if err != nil {
		s.logger.WithError(err).WithField("telegram_id", telegramID).Error("failed to load user")
		writeError(w, http.StatusInternalServerError, "internal", "failed to load wallet")
		return
	}

	txs, err := s.store.RecentTransactions(r.Context(), user.ID, recentTransactions)
	if err != nil {
		s.logger.WithError(err).WithField("user", user.ID).Error("failed to load transactions")
		writeError(w, http.StatusInternalServerError, "internal", "failed to load wallet")
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, walletResponse{
		UserID:       user.ID,
		Username:     user.Username,
		Balance:      user.Balance,
		Transactions: txs,
	})
}

// RoundHandler returns the engine snapshot.
func (s *APIServer) RoundHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "engine_unavailable", "round engine unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// RulesHandler queues new round settings. It needs the admin bearer token.
//
// Request payload (any subset):
//
//	{
//	  "stakeAmount": "20",
//	  "houseCut": 0.15,
//	  "minPlayers": 2,
//	  "selectionSeconds": 30,
//	  "winnerSeconds": 5
//	}
func (s *APIServer) RulesHandler(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if s.adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
		writeError(w, http.StatusForbidden, "forbidden", "admin token required")
		return
	}

	var changes map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "invalid request payload")
		return
	}

	rules, err := s.engine.UpdateRules(r.Context(), changes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_rules", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, rules)
}

// HealthHandler reports whether the store answers.
func (s *APIServer) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
