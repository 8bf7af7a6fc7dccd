package memory

import (
	"context"
	"fmt"
	"sync"

	"live-quiz-service/internal/domain"
)

// GameStore keeps games in a map. Every method copies on the way in and out
// so callers never share slices with the store.
type GameStore struct {
	mu     sync.RWMutex
	games  map[string]domain.Game
	byCode map[string][]string // code -> game ids, oldest first
}

func NewGameStore() *GameStore {
	return &GameStore{
		games:  make(map[string]domain.Game),
		byCode: make(map[string][]string),
	}
}

func (s *GameStore) Create(_ context.Context, game domain.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[game.ID]; ok {
		return fmt.Errorf("game %s already exists", game.ID)
	}
	if s.codeInUseLocked(game.Code) {
		return domain.ErrCodeTaken
	}
	s.games[game.ID] = game.Clone()
	s.byCode[game.Code] = append(s.byCode[game.Code], game.ID)
	return nil
}

func (s *GameStore) FindByID(_ context.Context, id string) (domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[id]
	if !ok {
		return domain.Game{}, fmt.Errorf("game %s: %w", id, domain.ErrGameNotFound)
	}
	return game.Clone(), nil
}

func (s *GameStore) FindByCode(_ context.Context, code string) (domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byCode[code]
	if len(ids) == 0 {
		return domain.Game{}, fmt.Errorf("code %s: %w", code, domain.ErrGameNotFound)
	}
	return s.games[ids[len(ids)-1]].Clone(), nil
}

func (s *GameStore) Save(_ context.Context, game domain.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[game.ID]; !ok {
		return fmt.Errorf("game %s: %w", game.ID, domain.ErrGameNotFound)
	}
	s.games[game.ID] = game.Clone()
	return nil
}

func (s *GameStore) AppendAnswer(_ context.Context, gameID, userID string, answer domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return fmt.Errorf("game %s: %w", gameID, domain.ErrGameNotFound)
	}
	i := game.PlayerIndex(userID)
	if i < 0 {
		return domain.ErrUnknownPlayer
	}
	if game.Players[i].HasAnswered(answer.QuestionID) {
		return domain.ErrDuplicateAnswer
	}
	game = game.Clone()
	game.Players[i].Answers = append(game.Players[i].Answers, answer)
	game.Players[i].Score += answer.PointsEarned
	s.games[gameID] = game
	return nil
}

func (s *GameStore) CodeInUse(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.codeInUseLocked(code), nil
}

func (s *GameStore) codeInUseLocked(code string) bool {
	for _, id := range s.byCode[code] {
		if s.games[id].Status != domain.StatusCompleted {
			return true
		}
	}
	return false
}
