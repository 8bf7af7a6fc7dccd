package app_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

// manualScheduler records timers and runs them only when a test fires them.
type manualScheduler struct {
	mu      sync.Mutex
	entries map[string]scheduled
	history []string
}

type scheduled struct {
	countdown bool
	seconds   int
	tail      time.Duration
	onTick    func(int)
	onDone    func()
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{entries: make(map[string]scheduled)}
}

func (s *manualScheduler) Countdown(key string, seconds int, tail time.Duration, onTick func(int), onDone func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = scheduled{countdown: true, seconds: seconds, tail: tail, onTick: onTick, onDone: onDone}
	s.history = append(s.history, "countdown:"+key)
}

func (s *manualScheduler) After(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = scheduled{tail: d, onDone: fn}
	s.history = append(s.history, "after:"+key)
}

func (s *manualScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *manualScheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *manualScheduler) pending(key string) (scheduled, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok
}

// fire runs the pending timer for key to completion: every tick, then the
// final callback.
func (s *manualScheduler) fire(t *testing.T, key string) {
	t.Helper()
	s.mu.Lock()
	e, ok := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()
	if !ok {
		t.Fatalf("no timer pending for %s", key)
	}
	if e.countdown {
		for remaining := e.seconds - 1; remaining >= 0; remaining-- {
			e.onTick(remaining)
		}
	}
	e.onDone()
}

type sentEvent struct {
	channel string
	connID  string
	event   string
	payload any
}

// recordingRooms is an in-memory Broadcaster that keeps every event.
type recordingRooms struct {
	mu      sync.Mutex
	members map[string]map[string]bool
	events  []sentEvent
}

func newRecordingRooms() *recordingRooms {
	return &recordingRooms{members: make(map[string]map[string]bool)}
}

func (r *recordingRooms) Subscribe(channel, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[channel] == nil {
		r.members[channel] = make(map[string]bool)
	}
	r.members[channel][connID] = true
}

func (r *recordingRooms) Unsubscribe(channel, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members[channel], connID)
}

func (r *recordingRooms) Close(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, channel)
}

func (r *recordingRooms) Broadcast(channel, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{channel: channel, event: event, payload: payload})
}

func (r *recordingRooms) Send(connID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{connID: connID, event: event, payload: payload})
}

func (r *recordingRooms) broadcasts(channel, event string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.events {
		if e.channel == channel && e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

func (r *recordingRooms) private(connID, event string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.events {
		if e.connID == connID && e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

func (r *recordingRooms) isMember(channel, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[channel][connID]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates []domain.GameUpdate
}

func (n *recordingNotifier) GameUpdated(_ context.Context, u domain.GameUpdate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, u)
	return nil
}

// failingSaves rejects saves of completed games while fail is set.
type failingSaves struct {
	*memory.GameStore
	mu   sync.Mutex
	fail bool
}

func (s *failingSaves) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *failingSaves) Save(ctx context.Context, game domain.Game) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail && game.Status == domain.StatusCompleted {
		return errors.New("storage unavailable")
	}
	return s.GameStore.Save(ctx, game)
}

type harness struct {
	controller *app.GameController
	games      *memory.GameStore
	stats      *memory.UserStats
	presence   *memory.PresenceStore
	rooms      *recordingRooms
	timers     *manualScheduler
	clock      *fakeClock
	notifier   *recordingNotifier
}

func newHarness(t *testing.T, questions ...domain.Question) *harness {
	t.Helper()
	return newHarnessWithStore(t, nil, questions...)
}

// newHarnessWithStore lets wrap decorate the game store the controller sees.
// h.games stays the undecorated store.
func newHarnessWithStore(t *testing.T, wrap func(*memory.GameStore) app.GameRepository, questions ...domain.Question) *harness {
	t.Helper()
	if len(questions) == 0 {
		questions = defaultQuestions()
	}
	h := &harness{
		games:    memory.NewGameStore(),
		stats:    memory.NewUserStats(),
		presence: memory.NewPresenceStore(),
		rooms:    newRecordingRooms(),
		timers:   newManualScheduler(),
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		notifier: &recordingNotifier{},
	}
	var games app.GameRepository = h.games
	if wrap != nil {
		games = wrap(h.games)
	}
	h.controller = app.NewGameController(app.Dependencies{
		Games:     games,
		Questions: memory.NewQuestionRepository(memory.NewStaticQuestionLoader(questions...), time.Minute),
		Stats:     h.stats,
		Presence:  h.presence,
		Rooms:     h.rooms,
		Timers:    h.timers,
		Notifier:  h.notifier,
		Logger:    zap.NewNop(),
		Clock:     h.clock.Now,
	}, app.DefaultSettings())
	return h
}

func defaultQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5", "22"}, CorrectAnswer: "4", Points: 100, TimeLimit: 15},
		{ID: "q2", Text: "Capital of France?", Options: []string{"Paris", "Rome", "Berlin", "Madrid"}, CorrectAnswer: "Paris", Points: 100, TimeLimit: 15},
	}
}

func (h *harness) createGame(t *testing.T, questionIDs ...string) domain.Game {
	t.Helper()
	if len(questionIDs) == 0 {
		questionIDs = []string{"q1", "q2"}
	}
	game, err := h.controller.CreateGame(context.Background(), app.CreateGameRequest{
		Title:       "Friday quiz",
		AdminID:     "admin-1",
		QuestionIDs: questionIDs,
	})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	return game
}

func (h *harness) join(t *testing.T, game domain.Game, userID, username string) {
	t.Helper()
	_, err := h.controller.Join(context.Background(), app.JoinRequest{
		Code:     game.Code,
		UserID:   userID,
		Username: username,
		ConnID:   "conn-" + userID,
	})
	if err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
}

// startAndShow starts the game and fires the grace delay so the first
// question is on screen.
func (h *harness) startAndShow(t *testing.T, game domain.Game) {
	t.Helper()
	if err := h.controller.Start(context.Background(), game.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.timers.fire(t, game.Code)
}

func (h *harness) submit(userID, gameID, questionID, answer string) (domain.AnswerResult, error) {
	return h.controller.SubmitAnswer(context.Background(), app.SubmitRequest{
		GameID:     gameID,
		QuestionID: questionID,
		Answer:     answer,
		UserID:     userID,
		ConnID:     "conn-" + userID,
	})
}

func (h *harness) game(t *testing.T, id string) domain.Game {
	t.Helper()
	g, err := h.games.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load game: %v", err)
	}
	return g
}
