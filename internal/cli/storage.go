package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/mongodb"
	"live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
)

// questionStore loads and persists question content.
type questionStore interface {
	memory.QuestionLoader
	SaveQuestion(ctx context.Context, q domain.Question) error
}

// stores is everything the controller persists through, built for the
// configured storage driver.
type stores struct {
	games     app.GameRepository
	stats     app.StatsRecorder
	loader    questionStore
	questions app.QuestionRepository
	presence  app.PresenceStore
	closers   []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (*stores, error) {
	s := &stores{}
	var err error
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		err = s.openPostgres(ctx, cfg, logger)
	case config.DriverMongo:
		err = s.openMongo(ctx, cfg)
	default:
		s.games = memory.NewGameStore()
		s.stats = memory.NewUserStats()
		s.loader = memory.NewStaticQuestionLoader(sampleQuestions()...)
	}
	if err != nil {
		s.close()
		return nil, err
	}

	questionTTL := config.Duration(cfg.Questions.TTL, 10*time.Minute)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			s.close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		s.questions = redisstore.NewQuestionRepository(client, s.loader, questionTTL)
		s.presence = redisstore.NewPresenceStore(client, config.Duration(cfg.Redis.TTL, 30*time.Minute))
		logger.Info("using redis cache", zap.String("addr", cfg.Redis.Addr))
	} else {
		s.questions = memory.NewQuestionRepository(s.loader, questionTTL)
		s.presence = memory.NewPresenceStore()
	}
	logger.Info("storage ready", zap.String("driver", cfg.Storage.Driver))
	return s, nil
}

func (s *stores) openPostgres(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	s.closers = append(s.closers, pool.Close)
	s.games = postgres.NewGameRepository(pool)
	s.stats = postgres.NewUserStats(pool)
	s.loader = postgres.NewQuestionLoader(pool)
	return nil
}

func (s *stores) openMongo(ctx context.Context, cfg config.Config) error {
	client, err := mongodb.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	})
	db := client.Database(cfg.Mongo.Database)
	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		return err
	}
	s.games = mongodb.NewGameRepository(db)
	s.stats = mongodb.NewUserStats(db)
	s.loader = mongodb.NewQuestionLoader(db)
	return nil
}

// sampleQuestions backs the memory driver and the seed command.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5", "22"}, CorrectAnswer: "4", Points: 100, TimeLimit: 15},
		{ID: "q2", Text: "What is the capital of France?", Options: []string{"Paris", "Rome", "Berlin", "Madrid"}, CorrectAnswer: "Paris", Points: 100, TimeLimit: 15},
		{ID: "q3", Text: "Which planet is known as the red planet?", Options: []string{"Venus", "Mars", "Jupiter", "Saturn"}, CorrectAnswer: "Mars", Points: 150, TimeLimit: 20},
		{ID: "q4", Text: "How many continents are there?", Options: []string{"5", "6", "7", "8"}, CorrectAnswer: "7", Points: 100, TimeLimit: 15},
	}
}
