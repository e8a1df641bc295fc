package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"maatje/pkg/domain"
)

// MemoryStore is an in-process Store used by tests and by the relay when no
// remote store is reachable.
type MemoryStore struct {
	mu       sync.RWMutex
	turns    []domain.ChatTurn
	alerts   []domain.AlertRecord
	profiles map[string]domain.Profile
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]domain.Profile)}
}

// AppendTurn records one chat exchange.
func (s *MemoryStore) AppendTurn(_ context.Context, turn domain.ChatTurn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	return nil
}

// ListTurns returns a user's turns ordered by timestamp.
func (s *MemoryStore) ListTurns(_ context.Context, userID string, limit int, asc bool) ([]domain.ChatTurn, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	s.mu.RLock()
	out := make([]domain.ChatTurn, 0, limit)
	for _, t := range s.turns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if asc {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateAlert records one silent alert.
func (s *MemoryStore) CreateAlert(_ context.Context, alert domain.AlertRecord) error {
	if alert.Status == "" {
		alert.Status = domain.AlertOpen
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

// GetProfile fetches a profile by user id.
func (s *MemoryStore) GetProfile(_ context.Context, userID string) (domain.Profile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	return p, ok, nil
}

// PutProfile seeds a profile. Test helper; the real table is provider-owned.
func (s *MemoryStore) PutProfile(p domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

// Turns returns a copy of every recorded turn across users. Test helper.
func (s *MemoryStore) Turns() []domain.ChatTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ChatTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Alerts returns a copy of recorded alerts. Test helper.
func (s *MemoryStore) Alerts() []domain.AlertRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AlertRecord, len(s.alerts))
	copy(out, s.alerts)
	return out
}
