package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"live-quiz-service/internal/domain"
)

// DefaultQuestionTimeLimit is used when neither the deployment nor the
// question sets a time limit.
const DefaultQuestionTimeLimit = 15

// Settings tunes the question/timer state machine.
type Settings struct {
	// QuestionTimeLimit overrides every question's own limit when > 0 (seconds).
	QuestionTimeLimit int
	// StartGrace separates game-started from the first question.
	StartGrace time.Duration
	// AnswerBuffer keeps a question open after the countdown reaches zero so
	// late in-flight answers still count.
	AnswerBuffer time.Duration
}

// DefaultSettings mirrors the production timings.
func DefaultSettings() Settings {
	return Settings{
		QuestionTimeLimit: DefaultQuestionTimeLimit,
		StartGrace:        2 * time.Second,
		AnswerBuffer:      3 * time.Second,
	}
}

// Dependencies are the collaborators a GameController drives.
type Dependencies struct {
	Games     GameRepository
	Questions QuestionRepository
	Stats     StatsRecorder
	Presence  PresenceStore
	Rooms     Broadcaster
	Timers    Scheduler
	Notifier  Notifier
	Logger    *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// GameController is the only writer of in-play game state. Every operation
// for one game runs under that game's lock; different games never contend.
type GameController struct {
	games     GameRepository
	questions QuestionRepository
	stats     StatsRecorder
	presence  PresenceStore
	rooms     Broadcaster
	timers    Scheduler
	notifier  Notifier
	logger    *zap.Logger
	settings  Settings
	now       func() time.Time

	locks *keyedLocker
	codes *codeGenerator

	mu sync.Mutex
	// shown maps game code to the question currently on screen.
	shown map[string]shownQuestion
}

type shownQuestion struct {
	questionID string
	at         time.Time
}

func NewGameController(deps Dependencies, settings Settings) *GameController {
	c := &GameController{
		games:     deps.Games,
		questions: deps.Questions,
		stats:     deps.Stats,
		presence:  deps.Presence,
		rooms:     deps.Rooms,
		timers:    deps.Timers,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
		settings:  settings,
		now:       deps.Clock,
		locks:     newKeyedLocker(),
		codes:     newCodeGenerator(),
		shown:     make(map[string]shownQuestion),
	}
	if c.notifier == nil {
		c.notifier = noopNotifier{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// JoinRequest carries a player's join-game event.
type JoinRequest struct {
	Code     string
	UserID   string
	Username string
	ConnID   string
}

// SubmitRequest carries a player's submit-answer event.
type SubmitRequest struct {
	GameID     string
	QuestionID string
	Answer     string
	UserID     string
	ConnID     string
}

// CreateGameRequest bundles questions into a new waiting game.
type CreateGameRequest struct {
	Title       string
	AdminID     string
	QuestionIDs []string
}

// CreateGame validates the questions and stores a new waiting game under a
// fresh join code.
func (c *GameController) CreateGame(ctx context.Context, req CreateGameRequest) (domain.Game, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || len(req.QuestionIDs) == 0 {
		return domain.Game{}, domain.ErrInvalidGame
	}
	for _, id := range req.QuestionIDs {
		if _, err := c.questions.GetQuestion(ctx, id); err != nil {
			return domain.Game{}, fmt.Errorf("question %s: %w", id, err)
		}
	}

	for attempt := 0; attempt < 3; attempt++ {
		code, err := c.codes.Next(ctx, c.games.CodeInUse)
		if err != nil {
			return domain.Game{}, fmt.Errorf("generate code: %w", err)
		}
		game := domain.Game{
			ID:            uuid.NewString(),
			Code:          code,
			Title:         title,
			AdminID:       req.AdminID,
			Status:        domain.StatusWaiting,
			QuestionIndex: 0,
			Questions:     append([]string(nil), req.QuestionIDs...),
			Players:       []domain.Player{},
			CreatedAt:     c.now(),
		}
		err = c.games.Create(ctx, game)
		if errors.Is(err, domain.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return domain.Game{}, fmt.Errorf("create game: %w", err)
		}
		c.logger.Info("game created", zap.String("gameId", game.ID), zap.String("code", code), zap.Int("questions", len(game.Questions)))
		return game, nil
	}
	return domain.Game{}, domain.ErrCodeTaken
}

// GameByCode returns the game currently holding code.
func (c *GameController) GameByCode(ctx context.Context, code string) (domain.Game, error) {
	return c.games.FindByCode(ctx, domain.NormalizeCode(code))
}

// GameByID returns a game by id.
func (c *GameController) GameByID(ctx context.Context, id string) (domain.Game, error) {
	return c.games.FindByID(ctx, id)
}

// Join registers or reconnects a player in a waiting game and re-broadcasts
// the roster to the game's channel.
func (c *GameController) Join(ctx context.Context, req JoinRequest) ([]domain.LeaderboardEntry, error) {
	code := domain.NormalizeCode(req.Code)
	found, err := c.games.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(found.ID)
	defer unlock()

	game, err := c.games.FindByID(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	switch game.Status {
	case domain.StatusCompleted:
		return nil, domain.ErrAlreadyEnded
	case domain.StatusActive:
		return nil, domain.ErrInProgress
	}

	if i := game.PlayerIndex(req.UserID); i >= 0 {
		game.Players[i].ConnectionRef = req.ConnID
		c.logger.Debug("player reconnected", zap.String("code", code), zap.String("userId", req.UserID))
	} else {
		game.Players = append(game.Players, domain.Player{
			UserID:        req.UserID,
			Username:      req.Username,
			Score:         0,
			ConnectionRef: req.ConnID,
			Answers:       []domain.Answer{},
		})
		c.logger.Info("player joined", zap.String("code", code), zap.String("userId", req.UserID), zap.Int("players", len(game.Players)))
	}
	if err := c.games.Save(ctx, game); err != nil {
		return nil, fmt.Errorf("save roster: %w", err)
	}

	if req.ConnID != "" {
		binding := Binding{GameID: game.ID, GameCode: game.Code, UserID: req.UserID, Username: req.Username}
		if err := c.presence.Bind(ctx, req.ConnID, binding); err != nil {
			c.logger.Warn("bind presence", zap.String("connId", req.ConnID), zap.Error(err))
		}
		c.rooms.Subscribe(game.Code, req.ConnID)
	}

	roster := game.Roster()
	c.rooms.Broadcast(game.Code, domain.EventPlayerJoined, domain.RosterPayload{
		Username:     req.Username,
		TotalPlayers: len(roster),
		Players:      roster,
	})
	return roster, nil
}

// WatchGame adds an admin connection to a game's channel. Presence only.
func (c *GameController) WatchGame(code, connID string) {
	c.rooms.Subscribe(domain.NormalizeCode(code), connID)
}

// UnwatchGame removes an admin connection from a game's channel.
func (c *GameController) UnwatchGame(code, connID string) {
	c.rooms.Unsubscribe(domain.NormalizeCode(code), connID)
}

// Start moves a waiting game to active and schedules the first question.
// Starting a game that already left the waiting room is a no-op.
func (c *GameController) Start(ctx context.Context, gameID string, role domain.Role) error {
	if role != domain.RoleAdmin {
		return domain.ErrUnauthorized
	}

	unlock := c.locks.Lock(gameID)
	defer unlock()

	game, err := c.games.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game.Status != domain.StatusWaiting {
		c.logger.Info("ignoring duplicate start", zap.String("code", game.Code), zap.String("status", string(game.Status)))
		return nil
	}
	if len(game.Players) == 0 {
		return domain.ErrEmptyRoster
	}

	startedAt := c.now()
	game.Status = domain.StatusActive
	game.StartedAt = &startedAt
	game.QuestionIndex = 0
	if err := c.games.Save(ctx, game); err != nil {
		return fmt.Errorf("save started game: %w", err)
	}

	c.rooms.Broadcast(game.Code, domain.EventGameStarted, domain.GameStartedPayload{})
	c.timers.After(game.Code, c.settings.StartGrace, func() {
		c.showQuestion(game.ID, 0)
	})
	c.logger.Info("game started", zap.String("code", game.Code), zap.Int("players", len(game.Players)))
	return nil
}

// SubmitAnswer scores one answer to the question on screen.
func (c *GameController) SubmitAnswer(ctx context.Context, req SubmitRequest) (domain.AnswerResult, error) {
	unlock := c.locks.Lock(req.GameID)
	defer unlock()

	game, err := c.games.FindByID(ctx, req.GameID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	switch game.Status {
	case domain.StatusCompleted:
		// no question is current once the game is over
		return domain.AnswerResult{}, fmt.Errorf("%w: %w", domain.ErrAlreadyEnded, domain.ErrStaleQuestion)
	case domain.StatusWaiting:
		return domain.AnswerResult{}, domain.ErrStaleQuestion
	}
	current, ok := game.CurrentQuestionID()
	if !ok || current != req.QuestionID {
		return domain.AnswerResult{}, domain.ErrStaleQuestion
	}
	player, ok := game.Player(req.UserID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrUnknownPlayer
	}
	if player.HasAnswered(req.QuestionID) {
		return domain.AnswerResult{}, domain.ErrDuplicateAnswer
	}
	shownAt, ok := c.shownAt(game.Code, req.QuestionID)
	if !ok {
		// between game-started and the first question-display
		return domain.AnswerResult{}, domain.ErrStaleQuestion
	}

	question, err := c.questions.GetQuestion(ctx, req.QuestionID)
	if err != nil {
		return domain.AnswerResult{}, fmt.Errorf("load question: %w", err)
	}

	now := c.now()
	elapsed := now.Sub(shownAt)
	if elapsed < 0 {
		elapsed = 0
	}
	correct := question.IsCorrect(req.Answer)
	points := Score(correct, elapsed.Seconds(), question.Points, c.timeLimit(question))
	answer := domain.Answer{
		QuestionID:   req.QuestionID,
		Answer:       strings.TrimSpace(req.Answer),
		IsCorrect:    correct,
		PointsEarned: points,
		TimeToAnswer: int(elapsed / time.Second),
		AnsweredAt:   now,
	}
	if err := c.games.AppendAnswer(ctx, game.ID, req.UserID, answer); err != nil {
		return domain.AnswerResult{}, fmt.Errorf("append answer: %w", err)
	}

	result := domain.AnswerResult{
		IsCorrect:     correct,
		PointsEarned:  points,
		CorrectAnswer: question.CorrectAnswer,
	}
	if req.ConnID != "" {
		c.rooms.Send(req.ConnID, domain.EventAnswerResult, result)
	}

	fresh, err := c.games.FindByID(ctx, game.ID)
	if err != nil {
		c.logger.Warn("reload game for leaderboard", zap.String("gameId", game.ID), zap.Error(err))
		return result, nil
	}
	c.rooms.Broadcast(fresh.Code, domain.EventLeaderboardUpdate, domain.LeaderboardPayload{
		Leaderboard: Leaderboard(fresh.Players),
	})
	c.logger.Debug("answer scored",
		zap.String("code", fresh.Code),
		zap.String("userId", req.UserID),
		zap.Bool("correct", correct),
		zap.Int("points", points))
	return result, nil
}

// HandleDisconnect forgets a closed connection. Players leaving a waiting
// room are removed from the roster; once the game is running a disconnect
// changes nothing but presence.
func (c *GameController) HandleDisconnect(ctx context.Context, connID string) {
	binding, ok, err := c.presence.Lookup(ctx, connID)
	if err != nil {
		c.logger.Warn("lookup presence", zap.String("connId", connID), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	if err := c.presence.Release(ctx, connID); err != nil {
		c.logger.Warn("release presence", zap.String("connId", connID), zap.Error(err))
	}
	c.rooms.Unsubscribe(binding.GameCode, connID)

	unlock := c.locks.Lock(binding.GameID)
	defer unlock()

	game, err := c.games.FindByID(ctx, binding.GameID)
	if err != nil {
		return
	}
	if game.Status != domain.StatusWaiting {
		return
	}
	i := game.PlayerIndex(binding.UserID)
	// a reconnect on another connection already took over this player
	if i < 0 || game.Players[i].ConnectionRef != connID {
		return
	}
	leaving := game.Players[i]
	game.Players = append(game.Players[:i], game.Players[i+1:]...)
	if err := c.games.Save(ctx, game); err != nil {
		c.logger.Error("remove disconnected player", zap.String("code", game.Code), zap.Error(err))
		return
	}

	roster := game.Roster()
	c.rooms.Broadcast(game.Code, domain.EventPlayerLeft, domain.RosterPayload{
		Username:     leaving.Username,
		TotalPlayers: len(roster),
		Players:      roster,
	})
	c.logger.Info("player left waiting room", zap.String("code", game.Code), zap.String("userId", leaving.UserID))
}

// SweepTimers cancels timers whose game is gone or already completed and
// returns how many were released.
func (c *GameController) SweepTimers(ctx context.Context) int {
	released := 0
	for _, code := range c.timers.Keys() {
		game, err := c.games.FindByCode(ctx, code)
		if err != nil && !errors.Is(err, domain.ErrGameNotFound) {
			c.logger.Warn("sweep lookup", zap.String("code", code), zap.Error(err))
			continue
		}
		if err == nil && game.Status != domain.StatusCompleted {
			continue
		}
		c.release(code)
		released++
	}
	if released > 0 {
		c.logger.Info("released orphaned timers", zap.Int("count", released))
	}
	return released
}

// showQuestion is the timer entry point for displaying question index.
func (c *GameController) showQuestion(gameID string, index int) {
	ctx := context.Background()
	unlock := c.locks.Lock(gameID)
	defer unlock()

	game, err := c.games.FindByID(ctx, gameID)
	if err != nil || game.Status != domain.StatusActive || game.QuestionIndex != index {
		return
	}
	c.showCurrentLocked(ctx, game)
}

// advance is the timer entry point fired once question index has closed.
func (c *GameController) advance(gameID string, index int) {
	ctx := context.Background()
	unlock := c.locks.Lock(gameID)
	defer unlock()

	game, err := c.games.FindByID(ctx, gameID)
	if err != nil || game.Status != domain.StatusActive || game.QuestionIndex != index {
		return
	}
	game.QuestionIndex++
	if err := c.games.Save(ctx, game); err != nil {
		c.logger.Error("advance question", zap.String("code", game.Code), zap.Error(err))
		return
	}
	c.showCurrentLocked(ctx, game)
}

// showCurrentLocked broadcasts the question at game.QuestionIndex and starts
// its countdown, or ends the game once questions run out. Caller holds the
// game lock.
func (c *GameController) showCurrentLocked(ctx context.Context, game domain.Game) {
	var question domain.Question
	for {
		questionID, ok := game.CurrentQuestionID()
		if !ok {
			c.endLocked(ctx, game)
			return
		}
		q, err := c.questions.GetQuestion(ctx, questionID)
		if err == nil {
			question = q
			break
		}
		c.logger.Error("load question, skipping", zap.String("code", game.Code), zap.String("questionId", questionID), zap.Error(err))
		game.QuestionIndex++
		if err := c.games.Save(ctx, game); err != nil {
			c.logger.Error("skip question", zap.String("code", game.Code), zap.Error(err))
			return
		}
	}

	limit := c.timeLimit(question)
	index := game.QuestionIndex
	code := game.Code

	c.rooms.Broadcast(code, domain.EventQuestionDisplay, domain.QuestionDisplayPayload{
		Question: domain.PublicQuestion{
			ID:        question.ID,
			Text:      question.Text,
			Options:   append([]string(nil), question.Options...),
			TimeLimit: limit,
			Points:    question.Points,
		},
		QuestionNumber: index + 1,
		TotalQuestions: len(game.Questions),
	})
	c.markShown(code, question.ID)

	c.timers.Countdown(code, limit, c.settings.AnswerBuffer,
		func(remaining int) {
			c.rooms.Broadcast(code, domain.EventTimerUpdate, domain.TimerUpdatePayload{TimeRemaining: remaining})
		},
		func() {
			c.advance(game.ID, index)
		},
	)
	c.logger.Info("question displayed", zap.String("code", code), zap.Int("number", index+1), zap.Int("total", len(game.Questions)))
}

// endLocked settles a finished game. Caller holds the game lock. Nothing is
// announced until the completed record is stored; a failed save retries the
// end after AnswerBuffer.
func (c *GameController) endLocked(ctx context.Context, game domain.Game) {
	if game.Status == domain.StatusCompleted {
		return
	}

	endedAt := c.now()
	completed := game.Clone()
	completed.Status = domain.StatusCompleted
	completed.EndedAt = &endedAt
	standings := FinalStandings(completed.Players)
	if len(standings) > 0 {
		completed.Winner = standings[0].UserID
	}
	if err := c.games.Save(ctx, completed); err != nil {
		c.logger.Error("save completed game, retrying", zap.String("code", game.Code), zap.Error(err))
		c.timers.After(game.Code, c.settings.AnswerBuffer, func() {
			c.retryEnd(game.ID)
		})
		return
	}
	c.release(completed.Code)
	if len(standings) > 0 {
		c.recordStats(ctx, completed)
	}

	c.rooms.Broadcast(completed.Code, domain.EventGameEnded, domain.GameEndedPayload{
		FinalLeaderboard: standings,
		GameID:           completed.ID,
	})
	// the code is free for reuse, so nobody may keep listening on it
	c.rooms.Close(completed.Code)

	update := domain.GameUpdate{
		GameID:  completed.ID,
		Code:    completed.Code,
		Status:  completed.Status,
		Winner:  completed.Winner,
		EndedAt: completed.EndedAt,
	}
	c.rooms.Broadcast(domain.AdminChannel, domain.EventAdminGameUpdated, update)
	if err := c.notifier.GameUpdated(ctx, update); err != nil {
		c.logger.Warn("notify game completed", zap.String("code", completed.Code), zap.Error(err))
	}
	c.logger.Info("game ended", zap.String("code", completed.Code), zap.String("winner", completed.Winner))
}

// retryEnd is the timer entry point for an end whose save failed.
func (c *GameController) retryEnd(gameID string) {
	ctx := context.Background()
	unlock := c.locks.Lock(gameID)
	defer unlock()

	game, err := c.games.FindByID(ctx, gameID)
	if err != nil || game.Status != domain.StatusActive {
		return
	}
	if _, ok := game.CurrentQuestionID(); ok {
		return
	}
	c.endLocked(ctx, game)
}

func (c *GameController) recordStats(ctx context.Context, game domain.Game) {
	var g errgroup.Group
	g.SetLimit(8)
	for _, p := range game.Players {
		userID := p.UserID
		won := userID == game.Winner
		g.Go(func() error {
			if err := c.stats.RecordResult(ctx, userID, won); err != nil {
				return fmt.Errorf("user %s: %w", userID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Error("record user stats", zap.String("code", game.Code), zap.Error(err))
	}
}

func (c *GameController) timeLimit(q domain.Question) int {
	if c.settings.QuestionTimeLimit > 0 {
		return c.settings.QuestionTimeLimit
	}
	if q.TimeLimit > 0 {
		return q.TimeLimit
	}
	return DefaultQuestionTimeLimit
}

func (c *GameController) markShown(code, questionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shown[code] = shownQuestion{questionID: questionID, at: c.now()}
}

func (c *GameController) shownAt(code, questionID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.shown[code]
	if !ok || s.questionID != questionID {
		return time.Time{}, false
	}
	return s.at, true
}

// release drops every timer and timing entry held for code.
func (c *GameController) release(code string) {
	c.timers.Cancel(code)
	c.mu.Lock()
	delete(c.shown, code)
	c.mu.Unlock()
}
