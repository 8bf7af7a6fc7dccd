package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"live-quiz-service/internal/app"
)

// PresenceStore keeps connection bindings in Redis so a restarted or sibling
// instance can still resolve who a connection belonged to. Keys expire after
// ttl; Bind refreshes the expiry.
type PresenceStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresenceStore(client *redis.Client, ttl time.Duration) *PresenceStore {
	return &PresenceStore{client: client, ttl: ttl}
}

func (s *PresenceStore) Bind(ctx context.Context, connID string, binding app.Binding) error {
	raw, err := json.Marshal(binding)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(connID), raw, s.ttl).Err()
}

func (s *PresenceStore) Lookup(ctx context.Context, connID string) (app.Binding, bool, error) {
	raw, err := s.client.Get(ctx, s.key(connID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return app.Binding{}, false, nil
	}
	if err != nil {
		return app.Binding{}, false, err
	}
	var b app.Binding
	if err := json.Unmarshal(raw, &b); err != nil {
		return app.Binding{}, false, err
	}
	return b, true, nil
}

func (s *PresenceStore) Release(ctx context.Context, connID string) error {
	return s.client.Del(ctx, s.key(connID)).Err()
}

func (s *PresenceStore) key(connID string) string {
	return "presence:" + connID
}
