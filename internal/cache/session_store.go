package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"askdoc/internal/model"
)

// Sessions older than the TTL expire wholesale; within a live session the
// transcript is trimmed so a single chatty session cannot grow unbounded.
const maxStoredTurns = 50

// SessionStore keeps per-session conversation history in redis. A nil client
// disables it: reads return empty history and writes are no-ops, so the
// pipeline works identically with redis switched off.
type SessionStore struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewSessionStore(client *redisv9.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionStore{client: client, ttl: ttl}
}

// History returns the stored turns for the session, oldest first.
func (s *SessionStore) History(ctx context.Context, sessionID string) ([]model.Turn, error) {
	if s.client == nil {
		return nil, nil
	}
	raw, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redisv9.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session history failed: %w", err)
	}
	var turns []model.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, fmt.Errorf("unmarshal session history failed: %w", err)
	}
	return turns, nil
}

// Append adds turns to the session transcript and refreshes its TTL.
func (s *SessionStore) Append(ctx context.Context, sessionID string, turns ...model.Turn) error {
	if s.client == nil || len(turns) == 0 {
		return nil
	}
	history, err := s.History(ctx, sessionID)
	if err != nil {
		return err
	}
	history = append(history, turns...)
	if len(history) > maxStoredTurns {
		history = history[len(history)-maxStoredTurns:]
	}
	payload, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal session history failed: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session history failed: %w", err)
	}
	return nil
}

// Clear drops the session transcript.
func (s *SessionStore) Clear(ctx context.Context, sessionID string) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete session history failed: %w", err)
	}
	return nil
}

func (s *SessionStore) key(sessionID string) string {
	return fmt.Sprintf("qa:session:%s", sessionID)
}
