package domain

import "time"

// Realtime event names. Inbound events are sent by clients, outbound by the server.
const (
	EventJoinGame       = "join-game"
	EventAdminJoinGame  = "admin-join-game"
	EventAdminLeaveGame = "admin-leave-game"
	EventStartGame      = "start-game"
	EventSubmitAnswer   = "submit-answer"
	EventPing           = "ping"

	EventPlayerJoined      = "player-joined"
	EventPlayerLeft        = "player-left"
	EventGameStarted       = "game-started"
	EventQuestionDisplay   = "question-display"
	EventTimerUpdate       = "timer-update"
	EventAnswerResult      = "answer-result"
	EventLeaderboardUpdate = "leaderboard-update"
	EventGameEnded         = "game-ended"
	EventAdminGameUpdated  = "admin-game-updated"
	EventError             = "error"
	EventPong              = "pong"
)

// AdminChannel is the channel every admin connection listens on for
// game lifecycle notifications.
const AdminChannel = "admin-room"

type RosterPayload struct {
	Username     string             `json:"username"`
	TotalPlayers int                `json:"totalPlayers"`
	Players      []LeaderboardEntry `json:"players"`
}

type GameStartedPayload struct{}

// PublicQuestion is a question as shown to players: never carries the answer.
type PublicQuestion struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"timeLimit"`
	Points    int      `json:"points"`
}

type QuestionDisplayPayload struct {
	Question       PublicQuestion `json:"question"`
	QuestionNumber int            `json:"questionNumber"`
	TotalQuestions int            `json:"totalQuestions"`
}

type TimerUpdatePayload struct {
	TimeRemaining int `json:"timeRemaining"`
}

// AnswerResult is sent privately to the player who submitted.
type AnswerResult struct {
	IsCorrect     bool   `json:"isCorrect"`
	PointsEarned  int    `json:"pointsEarned"`
	CorrectAnswer string `json:"correctAnswer"`
}

type LeaderboardPayload struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

type GameEndedPayload struct {
	FinalLeaderboard []RankedEntry `json:"finalLeaderboard"`
	GameID           string        `json:"gameId"`
}

// GameUpdate notifies admin and reporting listeners about a lifecycle change.
type GameUpdate struct {
	GameID  string     `json:"gameId"`
	Code    string     `json:"code"`
	Status  GameStatus `json:"status"`
	Winner  string     `json:"winner,omitempty"`
	EndedAt *time.Time `json:"endedAt,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
