package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/app"
)

// PresenceStore is an in-memory implementation of app.PresenceStore.
type PresenceStore struct {
	mu       sync.RWMutex
	bindings map[string]app.Binding
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{
		bindings: make(map[string]app.Binding),
	}
}

func (s *PresenceStore) Bind(_ context.Context, connID string, binding app.Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[connID] = binding
	return nil
}

func (s *PresenceStore) Lookup(_ context.Context, connID string) (app.Binding, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	binding, ok := s.bindings[connID]
	return binding, ok, nil
}

func (s *PresenceStore) Release(_ context.Context, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bindings, connID)
	return nil
}
