package safety

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps kill-switch state in a shared redis key so every engine
// instance and operator tool sees the same switch.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a redis-backed store on the given key.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Read fetches the state. A missing key is ErrNoRecord, not an outage.
func (s *RedisStore) Read(ctx context.Context) (State, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return State{}, ErrNoRecord
	}
	if err != nil {
		return State{}, fmt.Errorf("reading kill switch key: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return State{}, fmt.Errorf("decoding kill switch state: %w", err)
	}
	return state, nil
}

// Write persists the state with no expiry; the switch stays tripped until
// an operator clears it.
func (s *RedisStore) Write(ctx context.Context, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding kill switch state: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("writing kill switch key: %w", err)
	}
	return nil
}
