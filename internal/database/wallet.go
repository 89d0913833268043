// internal/database/wallet.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/shopspring/decimal"
)

// lockWalletTx reads the balance of userID and holds its row lock until tx ends.
func lockWalletTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrNotFound
	}
	return balance, err
}

// DebitStake takes amount from the wallet for roundID. It fails with ErrInsufficientBalance and
// leaves the wallet untouched when the balance does not cover the stake.
func (s *Store) DebitStake(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, roundID int64) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, errors.New("stake must be positive")
	}

	var balance decimal.Decimal
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		current, err := lockWalletTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if current.LessThan(amount) {
			return ErrInsufficientBalance
		}
		balance = current.Sub(amount)

		if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE user_id = $2`, balance, userID); err != nil {
			return err
		}
		var round *int64
		if roundID > 0 {
			round = &roundID
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO transactions (user_id, type, amount, balance_after, round_id)
			VALUES ($1, $2, $3, $4, $5)`,
			userID, models.TxBet, amount.Neg(), balance, round,
		)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrNotFound) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("failed to debit stake: %w", err)
	}
	return balance, nil
}

// CreditWinnings pays the round winner exactly once per idempotency key and closes the games row.
// A repeated call for the same payout returns the current balance without crediting again. A key
// already spent on another user or amount fails with ErrSettlementConflict.
func (s *Store) CreditWinnings(ctx context.Context, credit models.WinnerCredit) (decimal.Decimal, error) {
	if credit.IdempotencyKey == "" {
		return decimal.Zero, errors.New("credit has no idempotency key")
	}

	called := make([]int32, len(credit.CalledNumbers))
	for i, n := range credit.CalledNumbers {
		called[i] = int32(n)
	}

	var balance decimal.Decimal
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		current, err := lockWalletTx(ctx, tx, credit.UserID)
		if err != nil {
			return err
		}

		var (
			paidTo     uuid.UUID
			paidAmount decimal.Decimal
		)
		err = tx.QueryRow(ctx, `SELECT user_id, amount FROM transactions WHERE idempotency_key = $1`,
			credit.IdempotencyKey).Scan(&paidTo, &paidAmount)
		switch {
		case err == nil:
			if err := matchSettled(credit, paidTo, paidAmount); err != nil {
				return err
			}
			balance = current
			return nil
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		balance = current.Add(credit.Prize)
		if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE user_id = $2`, balance, credit.UserID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO transactions (user_id, type, amount, balance_after, round_id, idempotency_key)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			credit.UserID, models.TxWin, credit.Prize, balance, credit.RoundID, credit.IdempotencyKey,
		)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE games
			SET status = $8, winner_id = $2, winner_card = $3, called_numbers = $4,
			    pot = $5, prize = $6, house_cut = $7, ended_at = NOW()
			WHERE id = $1`,
			credit.RoundID, credit.UserID, credit.CardID, called,
			credit.Pot, credit.Prize, credit.HouseCut, RoundCompleted,
		)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("failed to credit winnings: %w", err)
	}
	return balance, nil
}

// matchSettled checks that the ledger row already stored under credit's key is this same payout.
func matchSettled(credit models.WinnerCredit, paidTo uuid.UUID, paidAmount decimal.Decimal) error {
	if paidTo != credit.UserID || !paidAmount.Equal(credit.Prize) {
		return fmt.Errorf("%w: %s paid %s to %s", ErrSettlementConflict, credit.IdempotencyKey, paidAmount, paidTo)
	}
	return nil
}

// RecentTransactions lists the newest ledger entries of userID.
func (s *Store) RecentTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, type, amount, balance_after, round_id, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.BalanceAfter, &t.RoundID, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
