package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ThreadStore maps user identifiers to provider-side thread ids so an
// ongoing conversation survives across requests (and, with Redis, across
// processes).
type ThreadStore interface {
	GetThread(ctx context.Context, userID string) (string, bool, error)
	PutThread(ctx context.Context, userID, threadID string) error
}

// RedisThreadStore keeps the user -> thread mapping in Redis with TTL.
type RedisThreadStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisThreadStore builds a Redis-backed thread store.
func NewRedisThreadStore(addr, password, prefix string, ttl time.Duration) *RedisThreadStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "maatje:threads"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisThreadStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// GetThread resolves the stored thread id for a user.
func (s *RedisThreadStore) GetThread(ctx context.Context, userID string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(userID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// PutThread stores the thread id for a user, refreshing the TTL.
func (s *RedisThreadStore) PutThread(ctx context.Context, userID, threadID string) error {
	return s.client.Set(ctx, s.key(userID), threadID, s.ttl).Err()
}

func (s *RedisThreadStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// MemoryThreadStore is a process-local ThreadStore for tests and
// single-instance deployments without Redis.
type MemoryThreadStore struct {
	mu      sync.RWMutex
	threads map[string]string
}

// NewMemoryThreadStore builds an empty in-memory thread store.
func NewMemoryThreadStore() *MemoryThreadStore {
	return &MemoryThreadStore{threads: make(map[string]string)}
}

// GetThread resolves the stored thread id for a user.
func (s *MemoryThreadStore) GetThread(_ context.Context, userID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.threads[userID]
	return id, ok, nil
}

// PutThread stores the thread id for a user.
func (s *MemoryThreadStore) PutThread(_ context.Context, userID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[userID] = threadID
	return nil
}

// SessionManager hands out one thread per user, creating it lazily on first
// use. Concurrent first requests for the same user are collapsed to a single
// thread creation.
type SessionManager struct {
	client *Client
	store  ThreadStore
	group  singleflight.Group
}

// NewSessionManager builds a session manager over the given thread store.
func NewSessionManager(client *Client, store ThreadStore) *SessionManager {
	if store == nil {
		store = NewMemoryThreadStore()
	}
	return &SessionManager{client: client, store: store}
}

// ThreadFor returns the user's thread id, creating a thread when none exists.
func (m *SessionManager) ThreadFor(ctx context.Context, userID string) (string, error) {
	if id, ok, err := m.store.GetThread(ctx, userID); err != nil {
		return "", fmt.Errorf("load thread for %s: %w", userID, err)
	} else if ok {
		return id, nil
	}

	val, err, _ := m.group.Do(userID, func() (any, error) {
		// Re-check inside the flight: another caller may have just created it.
		if id, ok, err := m.store.GetThread(ctx, userID); err == nil && ok {
			return id, nil
		}
		id, err := m.client.CreateThread(ctx)
		if err != nil {
			return "", fmt.Errorf("create thread: %w", err)
		}
		if err := m.store.PutThread(ctx, userID, id); err != nil {
			return "", fmt.Errorf("store thread for %s: %w", userID, err)
		}
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}
