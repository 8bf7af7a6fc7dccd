package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// UserStats counts lifetime games and wins per user.
type UserStats struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func NewUserStats() *UserStats {
	return &UserStats{users: make(map[string]domain.User)}
}

func (s *UserStats) RecordResult(_ context.Context, userID string, won bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	u.ID = userID
	u.TotalGamesPlayed++
	if won {
		u.TotalWins++
	}
	s.users[userID] = u
	return nil
}

// User returns the counters for userID (zero value when never recorded).
func (s *UserStats) User(userID string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	u.ID = userID
	return u
}
