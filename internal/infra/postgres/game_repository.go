package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"live-quiz-service/internal/domain"
)

const uniqueViolation = "23505"

// GameRepository stores games across three tables: games, game_players
// (ordered by join_seq) and game_answers (one row per player and question).
type GameRepository struct {
	pool *pgxpool.Pool
}

func NewGameRepository(pool *pgxpool.Pool) *GameRepository {
	return &GameRepository{pool: pool}
}

func (r *GameRepository) Create(ctx context.Context, game domain.Game) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		questionIDs, err := json.Marshal(game.Questions)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO games (id, code, title, admin_id, status, question_index, question_ids, winner, created_at, started_at, ended_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11)`,
			game.ID, game.Code, game.Title, game.AdminID, string(game.Status), game.QuestionIndex,
			string(questionIDs), game.Winner, game.CreatedAt, game.StartedAt, game.EndedAt)
		if err != nil {
			return err
		}
		return writePlayers(ctx, tx, game)
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("create game: %w", err)
	}
	return nil
}

func (r *GameRepository) FindByID(ctx context.Context, id string) (domain.Game, error) {
	var game domain.Game
	var questionIDs []byte
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, title, admin_id, status, question_index, question_ids, winner, created_at, started_at, ended_at
		FROM games WHERE id=$1`, id).
		Scan(&game.ID, &game.Code, &game.Title, &game.AdminID, &status, &game.QuestionIndex,
			&questionIDs, &game.Winner, &game.CreatedAt, &game.StartedAt, &game.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Game{}, fmt.Errorf("game %s: %w", id, domain.ErrGameNotFound)
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("load game: %w", err)
	}
	game.Status = domain.GameStatus(status)
	if err := json.Unmarshal(questionIDs, &game.Questions); err != nil {
		return domain.Game{}, fmt.Errorf("unmarshal question ids: %w", err)
	}

	players, err := r.loadPlayers(ctx, id)
	if err != nil {
		return domain.Game{}, err
	}
	game.Players = players
	return game, nil
}

func (r *GameRepository) FindByCode(ctx context.Context, code string) (domain.Game, error) {
	var id string
	err := r.pool.QueryRow(ctx, `SELECT id FROM games WHERE code=$1 ORDER BY created_at DESC LIMIT 1`, code).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Game{}, fmt.Errorf("code %s: %w", code, domain.ErrGameNotFound)
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("find game by code: %w", err)
	}
	return r.FindByID(ctx, id)
}

func (r *GameRepository) Save(ctx context.Context, game domain.Game) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE games SET title=$2, status=$3, question_index=$4, winner=$5, started_at=$6, ended_at=$7
			WHERE id=$1`,
			game.ID, game.Title, string(game.Status), game.QuestionIndex, game.Winner, game.StartedAt, game.EndedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("game %s: %w", game.ID, domain.ErrGameNotFound)
		}

		userIDs := make([]string, 0, len(game.Players))
		for _, p := range game.Players {
			userIDs = append(userIDs, p.UserID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM game_players WHERE game_id=$1 AND NOT (user_id = ANY($2))`, game.ID, userIDs); err != nil {
			return err
		}
		return writePlayers(ctx, tx, game)
	})
	if err != nil {
		return fmt.Errorf("save game: %w", err)
	}
	return nil
}

// AppendAnswer relies on the game_answers primary key: the insert is a no-op
// when the player already answered, and the score only moves when a row landed.
func (r *GameRepository) AppendAnswer(ctx context.Context, gameID, userID string, answer domain.Answer) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM games WHERE id=$1)`, gameID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("game %s: %w", gameID, domain.ErrGameNotFound)
		}
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM game_players WHERE game_id=$1 AND user_id=$2)`, gameID, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrUnknownPlayer
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO game_answers (game_id, user_id, question_id, answer, is_correct, points_earned, time_to_answer, answered_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (game_id, user_id, question_id) DO NOTHING`,
			gameID, userID, answer.QuestionID, answer.Answer, answer.IsCorrect, answer.PointsEarned, answer.TimeToAnswer, answer.AnsweredAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrDuplicateAnswer
		}
		_, err = tx.Exec(ctx, `UPDATE game_players SET score = score + $3 WHERE game_id=$1 AND user_id=$2`,
			gameID, userID, answer.PointsEarned)
		return err
	})
}

func (r *GameRepository) CodeInUse(ctx context.Context, code string) (bool, error) {
	var inUse bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM games WHERE code=$1 AND status <> 'completed')`, code).Scan(&inUse)
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return inUse, nil
}

func (r *GameRepository) loadPlayers(ctx context.Context, gameID string) ([]domain.Player, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, username, score, connection_ref
		FROM game_players WHERE game_id=$1 ORDER BY join_seq`, gameID)
	if err != nil {
		return nil, fmt.Errorf("load players: %w", err)
	}
	var players []domain.Player
	index := make(map[string]int)
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.UserID, &p.Username, &p.Score, &p.ConnectionRef); err != nil {
			rows.Close()
			return nil, err
		}
		index[p.UserID] = len(players)
		players = append(players, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT user_id, question_id, answer, is_correct, points_earned, time_to_answer, answered_at
		FROM game_answers WHERE game_id=$1 ORDER BY answered_at`, gameID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var userID string
		var a domain.Answer
		if err := rows.Scan(&userID, &a.QuestionID, &a.Answer, &a.IsCorrect, &a.PointsEarned, &a.TimeToAnswer, &a.AnsweredAt); err != nil {
			return nil, err
		}
		if i, ok := index[userID]; ok {
			players[i].Answers = append(players[i].Answers, a)
		}
	}
	return players, rows.Err()
}

// writePlayers upserts the roster. Answers are written only through AppendAnswer.
func writePlayers(ctx context.Context, tx pgx.Tx, game domain.Game) error {
	for seq, p := range game.Players {
		_, err := tx.Exec(ctx, `
			INSERT INTO game_players (game_id, user_id, username, score, connection_ref, join_seq)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (game_id, user_id) DO UPDATE SET
				username=EXCLUDED.username, score=EXCLUDED.score,
				connection_ref=EXCLUDED.connection_ref, join_seq=EXCLUDED.join_seq`,
			game.ID, p.UserID, p.Username, p.Score, p.ConnectionRef, seq)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *GameRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
