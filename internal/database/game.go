// internal/database/game.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/shopspring/decimal"
)

// Round statuses stored in games.status.
const (
	RoundSelection = "selection"
	RoundActive    = "active"
	RoundCompleted = "completed"
	RoundSkipped   = "skipped"
	RoundAbandoned = "abandoned"
	RoundExhausted = "exhausted" // every number called, nobody claimed
)

// latestRoundIDQuery also looks at the ledger: a round whose games row was never written can
// still own bets and a win keyed by its id.
const latestRoundIDQuery = `
	SELECT COALESCE(GREATEST(
		(SELECT MAX(id) FROM games),
		(SELECT MAX(round_id) FROM transactions)
	), 0)`

// LatestRoundID returns the highest round id seen in games or the ledger, or 0 when both are empty.
func (s *Store) LatestRoundID(ctx context.Context) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, latestRoundIDQuery).Scan(&id)
	return id, err
}

// CreateRound inserts the games row for a new round. Re-inserting an existing id is a no-op.
func (s *Store) CreateRound(ctx context.Context, roundID int64, stake decimal.Decimal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO games (id, stake, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`, roundID, stake, RoundSelection)
	if err != nil {
		return fmt.Errorf("failed to create round %d: %w", roundID, err)
	}
	return nil
}

// SetRoundStatus moves a round to status unless it already completed.
func (s *Store) SetRoundStatus(ctx context.Context, roundID int64, status string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE games SET status = $2,
		       ended_at = CASE WHEN $2 IN ('skipped', 'abandoned', 'exhausted') THEN NOW() ELSE ended_at END
		WHERE id = $1 AND status <> $3`, roundID, status, RoundCompleted)
	return err
}

// AddParticipant records a confirmed card. Each card appears at most once per round.
func (s *Store) AddParticipant(ctx context.Context, roundID int64, userID uuid.UUID, cardID int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO game_participants (game_id, user_id, card_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (game_id, card_id) DO NOTHING`, roundID, userID, cardID)
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

// UserGameHistory returns the newest rounds userID played and totals over all of them.
func (s *Store) UserGameHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.GameRecord, models.GameStats, error) {
	var stats models.GameStats

	rows, err := s.pool.Query(ctx, `
		SELECT p.game_id, p.card_id, g.stake,
		       COALESCE(g.winner_id = p.user_id AND g.winner_card = p.card_id, false) AS won,
		       COALESCE(g.prize, 0), p.joined_at
		FROM game_participants p
		JOIN games g ON g.id = p.game_id
		WHERE p.user_id = $1
		ORDER BY p.game_id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, stats, err
	}
	defer rows.Close()

	records := []models.GameRecord{}
	for rows.Next() {
		var rec models.GameRecord
		var prize decimal.Decimal
		if err := rows.Scan(&rec.RoundID, &rec.CardID, &rec.Stake, &rec.Won, &prize, &rec.PlayedAt); err != nil {
			return nil, stats, err
		}
		if rec.Won {
			rec.Prize = prize
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, stats, err
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE g.winner_id = p.user_id AND g.winner_card = p.card_id),
		       COALESCE(SUM(g.prize) FILTER (WHERE g.winner_id = p.user_id AND g.winner_card = p.card_id), 0)
		FROM game_participants p
		JOIN games g ON g.id = p.game_id
		WHERE p.user_id = $1`, userID,
	).Scan(&stats.Played, &stats.Won, &stats.TotalWinnings)
	if err != nil {
		return nil, stats, err
	}
	return records, stats, nil
}

// InsertRoundEvents writes a batch of audit events in one transaction. Events already stored are
// skipped, so a replayed batch is harmless.
func (s *Store) InsertRoundEvents(ctx context.Context, events []models.RoundEvent) error {
	if len(events) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, ev := range events {
			payload, err := json.Marshal(ev.Payload)
			if err != nil {
				return fmt.Errorf("marshal payload of round %d event %d: %w", ev.RoundID, ev.EventIndex, err)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO round_events (round_id, event_index, event_type, payload, created_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (round_id, event_index) DO NOTHING`,
				ev.RoundID, ev.EventIndex, ev.EventType, payload, time.UnixMilli(ev.Timestamp),
			)
			if err != nil {
				return fmt.Errorf("insert round %d event %d: %w", ev.RoundID, ev.EventIndex, err)
			}
		}
		return nil
	})
}
