package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func TestJoinKeepsFirstJoinOrderAndReconnects(t *testing.T) {
	h := newHarness(t)
	game := h.createGame(t)

	h.join(t, game, "u1", "alice")
	h.join(t, game, "u2", "bob")
	h.join(t, game, "u3", "cat")

	roster, err := h.controller.Join(context.Background(), app.JoinRequest{
		Code: game.Code, UserID: "u1", Username: "alice", ConnID: "conn-new",
	})
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if len(roster) != 3 {
		t.Fatalf("expected 3 players after reconnect, got %d", len(roster))
	}
	for i, name := range []string{"alice", "bob", "cat"} {
		if roster[i].Username != name {
			t.Fatalf("roster[%d] = %s, want %s", i, roster[i].Username, name)
		}
	}

	stored := h.game(t, game.ID)
	if p, _ := stored.Player("u1"); p.ConnectionRef != "conn-new" {
		t.Fatalf("expected connection ref updated, got %q", p.ConnectionRef)
	}
	if !h.rooms.isMember(game.Code, "conn-new") {
		t.Fatalf("reconnected connection should be in the game channel")
	}

	joined := h.rooms.broadcasts(game.Code, domain.EventPlayerJoined)
	if len(joined) != 4 {
		t.Fatalf("expected player-joined on every join, got %d", len(joined))
	}
	last := joined[3].(domain.RosterPayload)
	if last.TotalPlayers != 3 || last.Username != "alice" {
		t.Fatalf("unexpected roster payload %+v", last)
	}
}

func TestJoinNormalizesCode(t *testing.T) {
	h := newHarness(t)
	game := h.createGame(t)
	_, err := h.controller.Join(context.Background(), app.JoinRequest{
		Code: "  " + strings.ToLower(game.Code) + " ", UserID: "u1", Username: "alice",
	})
	if err != nil {
		t.Fatalf("join with lower-case code: %v", err)
	}
}

func TestJoinRejectsByStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.controller.Join(ctx, app.JoinRequest{Code: "NOPE", UserID: "u1"}); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	game := h.createGame(t, "q1")
	h.join(t, game, "u1", "alice")
	h.startAndShow(t, game)

	if _, err := h.controller.Join(ctx, app.JoinRequest{Code: game.Code, UserID: "u2"}); !errors.Is(err, domain.ErrInProgress) {
		t.Fatalf("expected in progress, got %v", err)
	}

	h.timers.fire(t, game.Code)
	if _, err := h.controller.Join(ctx, app.JoinRequest{Code: game.Code, UserID: "u2"}); !errors.Is(err, domain.ErrAlreadyEnded) {
		t.Fatalf("expected already ended, got %v", err)
	}
}

func TestStartGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	game := h.createGame(t)

	if err := h.controller.Start(ctx, game.ID, domain.RoleUser); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := h.controller.Start(ctx, "missing", domain.RoleAdmin); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := h.controller.Start(ctx, game.ID, domain.RoleAdmin); !errors.Is(err, domain.ErrEmptyRoster) {
		t.Fatalf("expected empty roster, got %v", err)
	}
	if got := h.game(t, game.ID).Status; got != domain.StatusWaiting {
		t.Fatalf("failed start changed status to %s", got)
	}
}

func TestStartTwiceIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	game := h.createGame(t)
	h.join(t, game, "u1", "alice")

	if err := h.controller.Start(ctx, game.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := h.game(t, game.ID)
	h.clock.Advance(time.Second)
	if err := h.controller.Start(ctx, game.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("second start should be a no-op, got %v", err)
	}
	second := h.game(t, game.ID)

	if !first.StartedAt.Equal(*second.StartedAt) {
		t.Fatalf("second start re-stamped startedAt")
	}
	if n := len(h.rooms.broadcasts(game.Code, domain.EventGameStarted)); n != 1 {
		t.Fatalf("expected one game-started, got %d", n)
	}
	if n := len(h.timers.history); n != 1 {
		t.Fatalf("expected a single scheduled grace delay, got %v", h.timers.history)
	}
	if e, ok := h.timers.pending(game.Code); !ok || e.tail != 2*time.Second {
		t.Fatalf("expected 2s grace delay pending, got %+v ok=%v", e, ok)
	}
}

func TestQuestionDisplayAndTicks(t *testing.T) {
	h := newHarness(t)
	game := h.createGame(t)
	h.join(t, game, "u1", "alice")
	h.startAndShow(t, game)

	shown := h.rooms.broadcasts(game.Code, domain.EventQuestionDisplay)
	if len(shown) != 1 {
		t.Fatalf("expected first question displayed, got %d", len(shown))
	}
	display := shown[0].(domain.QuestionDisplayPayload)
	if display.QuestionNumber != 1 || display.TotalQuestions != 2 || display.Question.ID != "q1" || display.Question.TimeLimit != 15 {
		t.Fatalf("unexpected display %+v", display)
	}

	e, ok := h.timers.pending(game.Code)
	if !ok || !e.countdown || e.seconds != 15 || e.tail != 3*time.Second {
		t.Fatalf("expected 15s countdown with 3s buffer, got %+v", e)
	}

	h.timers.fire(t, game.Code)
	ticks := h.rooms.broadcasts(game.Code, domain.EventTimerUpdate)
	if len(ticks) != 15 {
		t.Fatalf("expected 15 timer updates, got %d", len(ticks))
	}
	if first := ticks[0].(domain.TimerUpdatePayload); first.TimeRemaining != 14 {
		t.Fatalf("first tick = %d", first.TimeRemaining)
	}
	if last := ticks[14].(domain.TimerUpdatePayload); last.TimeRemaining != 0 {
		t.Fatalf("last tick = %d", last.TimeRemaining)
	}

	if got := h.game(t, game.ID).QuestionIndex; got != 1 {
		t.Fatalf("expected advance to question 2, index=%d", got)
	}
	shown = h.rooms.broadcasts(game.Code, domain.EventQuestionDisplay)
	if len(shown) != 2 || shown[1].(domain.QuestionDisplayPayload).QuestionNumber != 2 {
		t.Fatalf("expected second question displayed, got %+v", shown)
	}
}

func TestSubmitAnswerValidation(t *testing.T) {
	h := newHarness(t)
	game := h.createGame(t)
	h.join(t, game, "u1", "alice")

	if _, err := h.submit("u1", game.ID, "q1", "4"); !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("waiting game: expected stale question, got %v", err)
	}
	if _, err := h.submit("u1", "missing", "q1", "4"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := h.controller.Start(context.Background(), game.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.submit("u1", game.ID, "q1", "4"); !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("before first display: expected stale question, got %v", err)
	}

	h.timers.fire(t, game.Code)
	if _, err := h.submit("u1", game.ID, "q2", "Paris"); !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("future question: expected stale question, got %v", err)
	}
	if _, err := h.submit("ghost", game.ID, "q1", "4"); !errors.Is(err, domain.ErrUnknownPlayer) {
		t.Fatalf("expected unknown player, got %v", err)
	}
	if score := h.game(t, game.ID).Players[0].Score; score != 0 {
		t.Fatalf("rejected answers changed score to %d", score)
	}
}

func TestSubmitAnswerScoresAndBroadcasts(t *testing.T) {
	h := newHarness(t)
	game := h.createGame(t)
	h.join(t, game, "u1", "alice")
	h.join(t, game, "u2", "bob")
	h.startAndShow(t, game)

	h.clock.Advance(3 * time.Second)
	result, err := h.submit("u2", game.ID, "q1", "  4 ")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.IsCorrect || result.PointsEarned != 90 || result.CorrectAnswer != "4" {
		t.Fatalf("unexpected result %+v", result)
	}

	private := h.rooms.private("conn-u2", domain.EventAnswerResult)
	if len(private) != 1 {
		t.Fatalf("expected answer-result sent privately once, got %d", len(private))
	}
	if n := len(h.rooms.broadcasts(game.Code, domain.EventAnswerResult)); n != 0 {
		t.Fatalf("answer-result must not be broadcast, got %d", n)
	}

	boards := h.rooms.broadcasts(game.Code, domain.EventLeaderboardUpdate)
	if len(boards) != 1 {
		t.Fatalf("expected one leaderboard-update, got %d", len(boards))
	}
	board := boards[0].(domain.LeaderboardPayload).Leaderboard
	if board[0].Username != "bob" || board[0].Score != 90 || board[1].Username != "alice" {
		t.Fatalf("unexpected leaderboard %+v", board)
	}

	p, _ := h.game(t, game.ID).Player("u2")
	if len(p.Answers) != 1 || p.Answers[0].TimeToAnswer != 3 || p.Answers[0].Answer != "4" {
		t.Fatalf("unexpected stored answer %+v", p.Answers)
	}

	wrong, err := h.submit("u1", game.ID, "q1", "5")
	if err != nil {
		t.Fatalf("submit wrong: %v", err)
	}
	if wrong.IsCorrect || wrong.PointsEarned != 0 {
		t.Fatalf("wrong answer scored %+v", wrong)
	}
}

func TestConcurrentSubmitAcceptsExactlyOne(t *testing.T) {
	h := newHarness(t)
	game := h.createGame(t)
	h.join(t, game, "u1", "alice")
	h.startAndShow(t, game)

	const attempts = 12
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.submit("u1", game.ID, "q1", "4")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	accepted := 0
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domain.ErrDuplicateAnswer):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted answer, got %d", accepted)
	}
	p, _ := h.game(t, game.ID).Player("u1")
	if len(p.Answers) != 1 || p.Score != 100 {
		t.Fatalf("expected one scoring event, got answers=%d score=%d", len(p.Answers), p.Score)
	}
}

func TestEndToEndScenario(t *testing.T) {
	h := newHarness(t)
	game := h.createGame(t)
	h.join(t, game, "a", "A")
	h.join(t, game, "b", "B")
	h.startAndShow(t, game)

	h.clock.Advance(3 * time.Second)
	ra, err := h.submit("a", game.ID, "q1", "4")
	if err != nil {
		t.Fatalf("A q1: %v", err)
	}
	if ra.PointsEarned != 90 {
		t.Fatalf("A q1 points = %d, want 90", ra.PointsEarned)
	}
	rb, err := h.submit("b", game.ID, "q1", "5")
	if err != nil {
		t.Fatalf("B q1: %v", err)
	}
	if rb.PointsEarned != 0 {
		t.Fatalf("B q1 wrong answer earned %d", rb.PointsEarned)
	}

	h.timers.fire(t, game.Code)
	h.clock.Advance(2 * time.Second)
	if _, err := h.submit("a", game.ID, "q2", "paris"); err != nil {
		t.Fatalf("A q2: %v", err)
	}

	// q2 runs out before B answers
	h.timers.fire(t, game.Code)
	if _, err := h.submit("b", game.ID, "q2", "Paris"); !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("late answer: expected stale question, got %v", err)
	}

	final := h.game(t, game.ID)
	if final.Status != domain.StatusCompleted || final.EndedAt == nil {
		t.Fatalf("expected completed game, got %+v", final)
	}
	if final.Winner != "a" {
		t.Fatalf("expected A to win, winner=%q", final.Winner)
	}
	if final.QuestionIndex != len(final.Questions) {
		t.Fatalf("question index %d, want %d", final.QuestionIndex, len(final.Questions))
	}

	ended := h.rooms.broadcasts(game.Code, domain.EventGameEnded)
	if len(ended) != 1 {
		t.Fatalf("expected one game-ended, got %d", len(ended))
	}
	payload := ended[0].(domain.GameEndedPayload)
	if payload.GameID != game.ID || payload.FinalLeaderboard[0].Username != "A" || payload.FinalLeaderboard[0].Rank != 1 || payload.FinalLeaderboard[1].Rank != 2 {
		t.Fatalf("unexpected final leaderboard %+v", payload)
	}

	if a := h.stats.User("a"); a.TotalWins != 1 || a.TotalGamesPlayed != 1 {
		t.Fatalf("A stats %+v", a)
	}
	if b := h.stats.User("b"); b.TotalWins != 0 || b.TotalGamesPlayed != 1 {
		t.Fatalf("B stats %+v", b)
	}

	admin := h.rooms.broadcasts(domain.AdminChannel, domain.EventAdminGameUpdated)
	if len(admin) != 1 || admin[0].(domain.GameUpdate).Status != domain.StatusCompleted {
		t.Fatalf("expected admin notification, got %+v", admin)
	}
	if len(h.notifier.updates) != 1 || h.notifier.updates[0].Winner != "a" {
		t.Fatalf("expected external notification, got %+v", h.notifier.updates)
	}
	if keys := h.timers.Keys(); len(keys) != 0 {
		t.Fatalf("completed game left timers behind: %v", keys)
	}
}

func TestCompletedGameIsFrozen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	game := h.createGame(t, "q1")
	h.join(t, game, "u1", "alice")
	h.startAndShow(t, game)
	h.timers.fire(t, game.Code)

	before := h.game(t, game.ID)
	if before.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", before.Status)
	}

	if _, err := h.controller.Join(ctx, app.JoinRequest{Code: game.Code, UserID: "u2"}); !errors.Is(err, domain.ErrAlreadyEnded) {
		t.Fatalf("join: %v", err)
	}
	if err := h.controller.Start(ctx, game.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("start on completed should be a no-op, got %v", err)
	}
	if _, err := h.submit("u1", game.ID, "q1", "4"); !errors.Is(err, domain.ErrAlreadyEnded) {
		t.Fatalf("submit: %v", err)
	}

	after := h.game(t, game.ID)
	if after.Status != before.Status || after.QuestionIndex != before.QuestionIndex || after.Players[0].Score != before.Players[0].Score {
		t.Fatalf("completed game mutated: before=%+v after=%+v", before, after)
	}
	if n := len(h.rooms.broadcasts(game.Code, domain.EventGameStarted)); n != 1 {
		t.Fatalf("restart broadcast game-started again: %d", n)
	}
}

func TestStaleTimerCallbackIsIgnored(t *testing.T) {
	h := newHarness(t)
	game := h.createGame(t)
	h.join(t, game, "u1", "alice")
	h.startAndShow(t, game)

	stale, ok := h.timers.pending(game.Code)
	if !ok {
		t.Fatalf("expected countdown pending")
	}
	h.timers.fire(t, game.Code)
	h.timers.fire(t, game.Code)

	displays := len(h.rooms.broadcasts(game.Code, domain.EventQuestionDisplay))
	// the first question's expiry fires again after the game ended
	stale.onDone()
	if got := len(h.rooms.broadcasts(game.Code, domain.EventQuestionDisplay)); got != displays {
		t.Fatalf("stale callback displayed a question")
	}
	if n := len(h.rooms.broadcasts(game.Code, domain.EventGameEnded)); n != 1 {
		t.Fatalf("expected game-ended exactly once, got %d", n)
	}
}

func TestMissingQuestionIsSkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	game := domain.Game{
		ID:        "g-skip",
		Code:      "SKIP",
		Title:     "skips",
		Status:    domain.StatusWaiting,
		Questions: []string{"q1", "ghost", "q2"},
		CreatedAt: h.clock.Now(),
	}
	if err := h.games.Create(ctx, game); err != nil {
		t.Fatalf("create: %v", err)
	}
	h.join(t, game, "u1", "alice")
	h.startAndShow(t, game)
	h.timers.fire(t, game.Code)

	shown := h.rooms.broadcasts(game.Code, domain.EventQuestionDisplay)
	if len(shown) != 2 || shown[1].(domain.QuestionDisplayPayload).Question.ID != "q2" {
		t.Fatalf("expected ghost question skipped, got %+v", shown)
	}
	if got := h.game(t, game.ID).QuestionIndex; got != 2 {
		t.Fatalf("index after skip = %d", got)
	}
}

func TestQuestionIndexNeverDecreases(t *testing.T) {
	h := newHarness(t)
	game := h.createGame(t)
	h.join(t, game, "u1", "alice")
	h.startAndShow(t, game)

	last := h.game(t, game.ID).QuestionIndex
	for len(h.timers.Keys()) > 0 {
		h.timers.fire(t, game.Code)
		idx := h.game(t, game.ID).QuestionIndex
		if idx < last || idx > len(game.Questions) {
			t.Fatalf("question index moved from %d to %d", last, idx)
		}
		last = idx
	}
	if last != len(game.Questions) {
		t.Fatalf("final index %d", last)
	}
}

func TestDisconnectInWaitingRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	game := h.createGame(t)
	h.join(t, game, "u1", "alice")
	h.join(t, game, "u2", "bob")

	h.controller.HandleDisconnect(ctx, "conn-u2")
	stored := h.game(t, game.ID)
	if len(stored.Players) != 1 || stored.Players[0].UserID != "u1" {
		t.Fatalf("expected bob removed, got %+v", stored.Players)
	}
	left := h.rooms.broadcasts(game.Code, domain.EventPlayerLeft)
	if len(left) != 1 || left[0].(domain.RosterPayload).Username != "bob" {
		t.Fatalf("unexpected player-left %+v", left)
	}
	if h.rooms.isMember(game.Code, "conn-u2") {
		t.Fatalf("disconnected connection still subscribed")
	}

	// alice reconnects on a new connection before the old one closes
	if _, err := h.controller.Join(ctx, app.JoinRequest{Code: game.Code, UserID: "u1", Username: "alice", ConnID: "conn-u1-b"}); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	h.controller.HandleDisconnect(ctx, "conn-u1")
	if got := len(h.game(t, game.ID).Players); got != 1 {
		t.Fatalf("stale connection close removed the player")
	}

	h.controller.HandleDisconnect(ctx, "unknown-conn")
}

func TestDisconnectDuringGameKeepsPlayer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	game := h.createGame(t)
	h.join(t, game, "u1", "alice")
	h.startAndShow(t, game)

	h.controller.HandleDisconnect(ctx, "conn-u1")
	stored := h.game(t, game.ID)
	if len(stored.Players) != 1 || stored.Status != domain.StatusActive {
		t.Fatalf("disconnect changed a running game: %+v", stored)
	}
	if _, ok, _ := h.presence.Lookup(ctx, "conn-u1"); ok {
		t.Fatalf("presence not released")
	}
	if len(h.timers.Keys()) != 1 {
		t.Fatalf("disconnect must not stop the game timer")
	}
}

func TestSweepReleasesOrphanedTimers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	game := h.createGame(t)
	h.join(t, game, "u1", "alice")
	if err := h.controller.Start(ctx, game.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("start: %v", err)
	}

	if n := h.controller.SweepTimers(ctx); n != 0 {
		t.Fatalf("sweep released a live timer")
	}

	stored := h.game(t, game.ID)
	stored.Status = domain.StatusCompleted
	if err := h.games.Save(ctx, stored); err != nil {
		t.Fatalf("save: %v", err)
	}
	h.timers.After("GHOST", time.Minute, func() {})

	if n := h.controller.SweepTimers(ctx); n != 2 {
		t.Fatalf("expected 2 released timers, got %d", n)
	}
	if keys := h.timers.Keys(); len(keys) != 0 {
		t.Fatalf("timers left after sweep: %v", keys)
	}
}

func TestCreateGame(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.controller.CreateGame(ctx, app.CreateGameRequest{Title: " ", QuestionIDs: []string{"q1"}}); !errors.Is(err, domain.ErrInvalidGame) {
		t.Fatalf("expected invalid game, got %v", err)
	}
	if _, err := h.controller.CreateGame(ctx, app.CreateGameRequest{Title: "x", QuestionIDs: []string{"nope"}}); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}

	game := h.createGame(t)
	if game.Status != domain.StatusWaiting || game.Code == "" || game.ID == "" || len(game.Questions) != 2 {
		t.Fatalf("unexpected game %+v", game)
	}
	found, err := h.controller.GameByCode(ctx, strings.ToLower(game.Code))
	if err != nil || found.ID != game.ID {
		t.Fatalf("lookup by code: %+v err=%v", found, err)
	}
}

func TestQuestionTimeLimitOverride(t *testing.T) {
	h := newHarness(t, domain.Question{ID: "slow", Text: "Slow one", Options: []string{"a", "b"}, CorrectAnswer: "a", Points: 200, TimeLimit: 40})
	game := h.createGame(t, "slow")
	h.join(t, game, "u1", "alice")
	h.startAndShow(t, game)

	shown := h.rooms.broadcasts(game.Code, domain.EventQuestionDisplay)
	if got := shown[0].(domain.QuestionDisplayPayload).Question.TimeLimit; got != app.DefaultQuestionTimeLimit {
		t.Fatalf("displayed time limit %d, want configured %d", got, app.DefaultQuestionTimeLimit)
	}
	if e, _ := h.timers.pending(game.Code); e.seconds != app.DefaultQuestionTimeLimit {
		t.Fatalf("countdown runs %d seconds", e.seconds)
	}

	// scoring follows the displayed limit, not the stored one
	h.clock.Advance(15 * time.Second)
	result, err := h.submit("u1", game.ID, "slow", "A")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.PointsEarned != 100 {
		t.Fatalf("points at the limit = %d, want half of 200", result.PointsEarned)
	}
}

func TestEndedGameReleasesItsChannel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	game := h.createGame(t, "q1")
	h.join(t, game, "u1", "alice")
	h.startAndShow(t, game)
	h.timers.fire(t, game.Code)

	if h.rooms.isMember(game.Code, "conn-u1") {
		t.Fatalf("ended game's connection still listens on %s", game.Code)
	}

	// a new game picks up the freed code
	next := domain.Game{ID: "g-next", Code: game.Code, Title: "next", Status: domain.StatusWaiting, Questions: []string{"q1"}, CreatedAt: h.clock.Now()}
	if err := h.games.Create(ctx, next); err != nil {
		t.Fatalf("reuse code: %v", err)
	}
	h.join(t, next, "u2", "bob")
	if h.rooms.isMember(game.Code, "conn-u1") || !h.rooms.isMember(game.Code, "conn-u2") {
		t.Fatalf("unexpected members after code reuse")
	}
}

func TestEndRetriesWhenSaveFails(t *testing.T) {
	var store *failingSaves
	h := newHarnessWithStore(t, func(gs *memory.GameStore) app.GameRepository {
		store = &failingSaves{GameStore: gs, fail: true}
		return store
	})
	game := h.createGame(t, "q1")
	h.join(t, game, "u1", "alice")
	h.startAndShow(t, game)
	h.timers.fire(t, game.Code)

	stored := h.game(t, game.ID)
	if stored.Status != domain.StatusActive {
		t.Fatalf("failed save must leave the game active, got %s", stored.Status)
	}
	if u := h.stats.User("u1"); u.TotalGamesPlayed != 0 {
		t.Fatalf("stats recorded for an unsaved end: %+v", u)
	}
	if n := len(h.rooms.broadcasts(game.Code, domain.EventGameEnded)); n != 0 {
		t.Fatalf("game-ended announced before the save, %d times", n)
	}
	e, ok := h.timers.pending(game.Code)
	if !ok || e.countdown || e.tail != 3*time.Second {
		t.Fatalf("expected end retry after the answer buffer, got %+v ok=%v", e, ok)
	}

	// still failing: the retry schedules itself again
	h.timers.fire(t, game.Code)
	if _, ok := h.timers.pending(game.Code); !ok {
		t.Fatalf("retry not rescheduled")
	}

	store.setFail(false)
	h.timers.fire(t, game.Code)

	final := h.game(t, game.ID)
	if final.Status != domain.StatusCompleted || final.Winner != "u1" {
		t.Fatalf("retry did not complete the game: %+v", final)
	}
	if u := h.stats.User("u1"); u.TotalGamesPlayed != 1 || u.TotalWins != 1 {
		t.Fatalf("stats after retry %+v", u)
	}
	if n := len(h.rooms.broadcasts(game.Code, domain.EventGameEnded)); n != 1 {
		t.Fatalf("expected one game-ended, got %d", n)
	}
	if keys := h.timers.Keys(); len(keys) != 0 {
		t.Fatalf("timers left after completion: %v", keys)
	}
}
