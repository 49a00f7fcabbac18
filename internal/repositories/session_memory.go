package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/arcadia/internal/models"
)

type memorySession struct {
	session   models.Session
	expiresAt time.Time
}

// MemorySessionStore keeps sessions in a map; expired entries are dropped on lookup
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Save(ctx context.Context, token string, session models.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = memorySession{session: session, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemorySessionStore) Lookup(ctx context.Context, token string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[token]
	if !ok {
		return nil, models.ErrNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.sessions, token)
		return nil, models.ErrNotFound
	}
	session := entry.session
	return &session, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}
