package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and local development.
// It honors the same semantics as the durable backends, including the
// RevokeUser consistency point, via a single mutex.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.TokenHash] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, tokenHash string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Revoke(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[tokenHash]; ok {
		s.Revoked = true
	}
	return nil
}

func (m *MemoryStore) RevokeUser(ctx context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var swept int64
	for _, s := range m.sessions {
		if s.UserID == userID && !s.Revoked {
			s.Revoked = true
			swept++
		}
	}
	return swept, nil
}

func (m *MemoryStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for hash, s := range m.sessions {
		if s.ExpiresAt.Before(cutoff) {
			delete(m.sessions, hash)
			purged++
		}
	}
	return purged, nil
}
