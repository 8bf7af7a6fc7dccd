package app

import (
	"context"
	"time"

	"live-quiz-service/internal/domain"
)

// GameRepository abstracts where game records live (in-memory, Postgres, Mongo).
// Implementations wrap domain.ErrGameNotFound when a lookup misses.
type GameRepository interface {
	Create(ctx context.Context, game domain.Game) error
	FindByID(ctx context.Context, id string) (domain.Game, error)
	// FindByCode returns the most recently created game using code.
	FindByCode(ctx context.Context, code string) (domain.Game, error)
	// Save replaces the stored record with game.
	Save(ctx context.Context, game domain.Game) error
	// AppendAnswer appends answer to the player's history and adds its points
	// to the player's score in one atomic step, guarded by "the player has no
	// answer for answer.QuestionID yet". A failed guard returns
	// domain.ErrDuplicateAnswer.
	AppendAnswer(ctx context.Context, gameID, userID string, answer domain.Answer) error
	// CodeInUse reports whether a game that has not completed holds code.
	CodeInUse(ctx context.Context, code string) (bool, error)
}

// QuestionRepository loads question content (from cache/backing store).
type QuestionRepository interface {
	GetQuestion(ctx context.Context, questionID string) (domain.Question, error)
}

// StatsRecorder updates lifetime user statistics when a game ends.
type StatsRecorder interface {
	RecordResult(ctx context.Context, userID string, won bool) error
}

// Binding ties a live connection to the game and user it joined as.
type Binding struct {
	GameID   string `json:"gameId"`
	GameCode string `json:"gameCode"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// PresenceStore remembers which game/user each connection belongs to.
type PresenceStore interface {
	Bind(ctx context.Context, connID string, binding Binding) error
	Lookup(ctx context.Context, connID string) (Binding, bool, error)
	Release(ctx context.Context, connID string) error
}

// Broadcaster reaches connections by channel (game code) or individually.
type Broadcaster interface {
	Subscribe(channel, connID string)
	Unsubscribe(channel, connID string)
	Broadcast(channel, event string, payload any)
	Send(connID, event string, payload any)
	// Close removes every connection from channel.
	Close(channel string)
}

// Scheduler owns at most one pending timer per key. Scheduling a key that
// already has a timer cancels the old one.
type Scheduler interface {
	// Countdown calls onTick once per tick with the seconds remaining, then
	// waits tail and calls onDone.
	Countdown(key string, seconds int, tail time.Duration, onTick func(remaining int), onDone func())
	// After calls fn once d has elapsed.
	After(key string, d time.Duration, fn func())
	Cancel(key string)
	Keys() []string
}

// Notifier tells reporting systems outside this process about lifecycle changes.
type Notifier interface {
	GameUpdated(ctx context.Context, update domain.GameUpdate) error
}

type noopNotifier struct{}

func (noopNotifier) GameUpdated(context.Context, domain.GameUpdate) error { return nil }
