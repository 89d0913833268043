package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/bingo/internal/auth"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/shopspring/decimal"
)

const userColumns = `u.id, COALESCE(u.telegram_id, ''), COALESCE(u.phone_number, ''), u.username, COALESCE(u.password, ''), COALESCE(w.balance, 0), u.created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.TelegramID, &u.PhoneNumber, &u.Username, &u.Password, &u.Balance, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// insertAccountTx creates the user row, its wallet and the welcome bonus entry.
func (s *Store) insertAccountTx(ctx context.Context, tx pgx.Tx, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}

	var telegramID, phone, password *string
	if user.TelegramID != "" {
		telegramID = &user.TelegramID
	}
	if user.PhoneNumber != "" {
		phone = &user.PhoneNumber
	}
	if user.Password != "" {
		password = &user.Password
	}

	err := tx.QueryRow(ctx, `
		INSERT INTO users (id, telegram_id, phone_number, username, password)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		user.ID, telegramID, phone, user.Username, password,
	).Scan(&user.CreatedAt)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO wallets (user_id, balance) VALUES ($1, $2)`, user.ID, s.WelcomeBonus); err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}
	user.Balance = s.WelcomeBonus

	if s.WelcomeBonus.IsPositive() {
		_, err := tx.Exec(ctx, `
			INSERT INTO transactions (user_id, type, amount, balance_after)
			VALUES ($1, $2, $3, $3)`,
			user.ID, models.TxWelcomeBonus, s.WelcomeBonus,
		)
		if err != nil {
			return fmt.Errorf("record welcome bonus: %w", err)
		}
	}
	return nil
}

// GetUserByID returns the account with its current balance.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users u LEFT JOIN wallets w ON w.user_id = u.id WHERE u.id = $1`
	return scanUser(s.pool.QueryRow(ctx, q, id))
}

// GetUserByTelegram looks an account up by its Telegram id.
func (s *Store) GetUserByTelegram(ctx context.Context, telegramID string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users u LEFT JOIN wallets w ON w.user_id = u.id WHERE u.telegram_id = $1`
	return scanUser(s.pool.QueryRow(ctx, q, telegramID))
}

// FindOrCreateByTelegram returns the account bound to telegramID, creating it with the welcome
// bonus on first sight.
func (s *Store) FindOrCreateByTelegram(ctx context.Context, telegramID, displayName string) (*models.User, error) {
	u, err := s.GetUserByTelegram(ctx, telegramID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	name := strings.TrimSpace(displayName)
	if name == "" {
		name = "player" + telegramID
	}
	user := &models.User{TelegramID: telegramID, Username: name}
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return s.insertAccountTx(ctx, tx, user)
	})
	if isUniqueViolation(err) {
		// lost a race with another connection for the same telegram id
		return s.GetUserByTelegram(ctx, telegramID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram user: %w", err)
	}
	return user, nil
}

// RegisterTelegram binds a phone number to a Telegram account, creating the account when it does
// not exist yet. created reports whether a new account was made.
func (s *Store) RegisterTelegram(ctx context.Context, telegramID, phoneNumber string) (user *models.User, created bool, err error) {
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE users SET phone_number = $1 WHERE telegram_id = $2`, phoneNumber, telegramID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
		created = true
		return s.insertAccountTx(ctx, tx, &models.User{
			TelegramID:  telegramID,
			PhoneNumber: phoneNumber,
			Username:    "player" + telegramID,
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to register telegram user: %w", err)
	}
	user, err = s.GetUserByTelegram(ctx, telegramID)
	return user, created, err
}

// CreateUserWithPassword creates a username/password account. The password is stored as an
// argon2id hash.
func (s *Store) CreateUserWithPassword(ctx context.Context, username, password string) (*models.User, error) {
	hash, err := auth.CreateHash(password, auth.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &models.User{Username: username, Password: hash}

	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return s.insertAccountTx(ctx, tx, user)
	})
	if isUniqueViolation(err) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	user.Password = ""
	return user, nil
}

// Login checks a username/password pair.
func (s *Store) Login(ctx context.Context, username, password string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users u LEFT JOIN wallets w ON w.user_id = u.id
	      WHERE u.username = $1 AND u.password IS NOT NULL`
	u, err := scanUser(s.pool.QueryRow(ctx, q, username))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := auth.ComparePasswordAndHash(password, u.Password)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	u.Password = ""
	return u, nil
}

// GetBalance returns the wallet balance of userID.
func (s *Store) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.pool.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrNotFound
	}
	return balance, err
}
