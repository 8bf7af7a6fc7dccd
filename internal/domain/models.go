package domain

import (
	"strings"
	"time"
)

// GameStatus is the lifecycle phase of a game. It only moves forward:
// waiting -> active -> completed.
type GameStatus string

const (
	StatusWaiting   GameStatus = "waiting"
	StatusActive    GameStatus = "active"
	StatusCompleted GameStatus = "completed"
)

// Role is the validated role of the caller, issued by the auth collaborator.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Answer is one scored submission. Immutable once written.
type Answer struct {
	QuestionID   string    `json:"questionId" bson:"questionId"`
	Answer       string    `json:"answer" bson:"answer"`
	IsCorrect    bool      `json:"isCorrect" bson:"isCorrect"`
	PointsEarned int       `json:"pointsEarned" bson:"pointsEarned"`
	TimeToAnswer int       `json:"timeToAnswer" bson:"timeToAnswer"` // whole seconds
	AnsweredAt   time.Time `json:"answeredAt" bson:"answeredAt"`
}

// Player is the per-game state of one user.
type Player struct {
	UserID string `json:"userId" bson:"userId"`
	// Username is copied at join time and never re-synced.
	Username      string   `json:"username" bson:"username"`
	Score         int      `json:"score" bson:"score"`
	ConnectionRef string   `json:"connectionRef,omitempty" bson:"socketId,omitempty"`
	Answers       []Answer `json:"answers" bson:"answers"`
}

// HasAnswered reports whether the player already answered questionID.
func (p Player) HasAnswered(questionID string) bool {
	for _, a := range p.Answers {
		if a.QuestionID == questionID {
			return true
		}
	}
	return false
}

// Game is the authoritative record of one match.
type Game struct {
	ID            string     `json:"id" bson:"_id"`
	Code          string     `json:"code" bson:"gameCode"`
	Title         string     `json:"title" bson:"title"`
	AdminID       string     `json:"adminId" bson:"adminId"`
	Status        GameStatus `json:"status" bson:"status"`
	QuestionIndex int        `json:"questionIndex" bson:"currentQuestionIndex"`
	Questions     []string   `json:"questions" bson:"questions"`
	Players       []Player   `json:"players" bson:"players"`
	Winner        string     `json:"winner,omitempty" bson:"winner,omitempty"`
	CreatedAt     time.Time  `json:"createdAt" bson:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
	EndedAt       *time.Time `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
}

// Player returns the roster entry for userID.
func (g Game) Player(userID string) (Player, bool) {
	if i := g.PlayerIndex(userID); i >= 0 {
		return g.Players[i], true
	}
	return Player{}, false
}

// PlayerIndex returns the roster position of userID, or -1.
func (g Game) PlayerIndex(userID string) int {
	for i := range g.Players {
		if g.Players[i].UserID == userID {
			return i
		}
	}
	return -1
}

// CurrentQuestionID returns the question at QuestionIndex, if any.
func (g Game) CurrentQuestionID() (string, bool) {
	if g.QuestionIndex < 0 || g.QuestionIndex >= len(g.Questions) {
		return "", false
	}
	return g.Questions[g.QuestionIndex], true
}

// Roster returns the players in join order as public entries.
func (g Game) Roster() []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(g.Players))
	for _, p := range g.Players {
		entries = append(entries, LeaderboardEntry{Username: p.Username, Score: p.Score})
	}
	return entries
}

// Clone deep-copies the game so callers may mutate it freely.
func (g Game) Clone() Game {
	out := g
	out.Questions = append([]string(nil), g.Questions...)
	out.Players = make([]Player, len(g.Players))
	for i, p := range g.Players {
		p.Answers = append([]Answer(nil), p.Answers...)
		out.Players[i] = p
	}
	if g.StartedAt != nil {
		t := *g.StartedAt
		out.StartedAt = &t
	}
	if g.EndedAt != nil {
		t := *g.EndedAt
		out.EndedAt = &t
	}
	return out
}

// Question is authored content; immutable during a game.
type Question struct {
	ID            string   `json:"id" bson:"_id"`
	Text          string   `json:"text" bson:"questionText"`
	Options       []string `json:"options" bson:"options"`
	CorrectAnswer string   `json:"correctAnswer" bson:"correctAnswer"`
	Category      string   `json:"category,omitempty" bson:"category,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty" bson:"difficulty,omitempty"`
	Points        int      `json:"points" bson:"points"`
	TimeLimit     int      `json:"timeLimit" bson:"timeLimit"` // seconds
}

// IsCorrect compares a submitted answer ignoring case and surrounding whitespace.
func (q Question) IsCorrect(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.CorrectAnswer))
}

// User carries the cross-game statistics updated when a game ends.
type User struct {
	ID               string `json:"id" bson:"_id"`
	Username         string `json:"username" bson:"username"`
	TotalGamesPlayed int    `json:"totalGamesPlayed" bson:"totalGamesPlayed"`
	TotalWins        int    `json:"totalWins" bson:"totalWins"`
}

// LeaderboardEntry is the public {username, score} view of a player.
type LeaderboardEntry struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// RankedEntry is a final standing.
type RankedEntry struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// NormalizeCode upper-cases and trims a join code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
