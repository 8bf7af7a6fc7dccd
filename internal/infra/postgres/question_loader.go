package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"live-quiz-service/internal/domain"
)

// QuestionLoader loads question rows from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	var (
		q       domain.Question
		options []byte
	)
	err := l.pool.QueryRow(ctx, `
		SELECT id, question_text, options, correct_answer, category, difficulty, points, time_limit
		FROM questions WHERE id=$1`, questionID).
		Scan(&q.ID, &q.Text, &options, &q.CorrectAnswer, &q.Category, &q.Difficulty, &q.Points, &q.TimeLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, fmt.Errorf("question %s: %w", questionID, domain.ErrQuestionNotFound)
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	if err := json.Unmarshal(options, &q.Options); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal options: %w", err)
	}
	return q, nil
}

// SaveQuestion upserts a question row. Used by seeding and tests.
func (l *QuestionLoader) SaveQuestion(ctx context.Context, q domain.Question) error {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO questions (id, question_text, options, correct_answer, category, difficulty, points, time_limit)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			question_text=EXCLUDED.question_text, options=EXCLUDED.options,
			correct_answer=EXCLUDED.correct_answer, category=EXCLUDED.category,
			difficulty=EXCLUDED.difficulty, points=EXCLUDED.points, time_limit=EXCLUDED.time_limit`,
		q.ID, q.Text, string(options), q.CorrectAnswer, q.Category, q.Difficulty, q.Points, q.TimeLimit)
	if err != nil {
		return fmt.Errorf("save question: %w", err)
	}
	return nil
}
