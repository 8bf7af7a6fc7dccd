package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// UserStats increments lifetime counters in the users table.
type UserStats struct {
	pool *pgxpool.Pool
}

func NewUserStats(pool *pgxpool.Pool) *UserStats {
	return &UserStats{pool: pool}
}

func (s *UserStats) RecordResult(ctx context.Context, userID string, won bool) error {
	wins := 0
	if won {
		wins = 1
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, total_games_played, total_wins) VALUES ($1, 1, $2)
		ON CONFLICT (id) DO UPDATE SET
			total_games_played = users.total_games_played + 1,
			total_wins = users.total_wins + EXCLUDED.total_wins`, userID, wins)
	if err != nil {
		return fmt.Errorf("record result for %s: %w", userID, err)
	}
	return nil
}
