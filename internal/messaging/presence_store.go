// internal/messaging/presence_store.go

package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const lastSeenTTL = 30 * 24 * time.Hour

// LastSeenStore keeps the time a user was last seen online after they go
// offline. Presence itself never leaves process memory.
type LastSeenStore interface {
	SetLastSeen(ctx context.Context, userID int64, at time.Time) error
	// GetLastSeen reports false when nothing is recorded
	GetLastSeen(ctx context.Context, userID int64) (time.Time, bool, error)
}

type RedisLastSeenStore struct {
	client *redis.Client
	prefix string
}

func NewRedisLastSeenStore(client *redis.Client, prefix string) *RedisLastSeenStore {
	return &RedisLastSeenStore{client: client, prefix: prefix}
}

func (s *RedisLastSeenStore) key(userID int64) string {
	return fmt.Sprintf("%s:last_seen:%d", s.prefix, userID)
}

func (s *RedisLastSeenStore) SetLastSeen(ctx context.Context, userID int64, at time.Time) error {
	return s.client.Set(ctx, s.key(userID), at.UTC().Format(time.RFC3339Nano), lastSeenTTL).Err()
}

func (s *RedisLastSeenStore) GetLastSeen(ctx context.Context, userID int64) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last seen for user %d: %w", userID, err)
	}
	return at, true, nil
}

// MemoryLastSeenStore is used when no Redis is configured
type MemoryLastSeenStore struct {
	mu   sync.RWMutex
	seen map[int64]time.Time
}

func NewMemoryLastSeenStore() *MemoryLastSeenStore {
	return &MemoryLastSeenStore{seen: make(map[int64]time.Time)}
}

func (s *MemoryLastSeenStore) SetLastSeen(_ context.Context, userID int64, at time.Time) error {
	s.mu.Lock()
	s.seen[userID] = at
	s.mu.Unlock()
	return nil
}

func (s *MemoryLastSeenStore) GetLastSeen(_ context.Context, userID int64) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.seen[userID]
	return at, ok, nil
}
