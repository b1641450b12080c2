package session

import (
	"context"
	"sync"
	"time"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
)

const defaultTTL = 24 * time.Hour

type memoryEntry struct {
	session   domain.Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process. Entries expire TTL after their last
// read or write.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	now := s.now()
	if !ok || now.After(entry.expiresAt) {
		delete(s.sessions, id)
		return nil, domain.WrapError(domain.ErrNotFound, "get session", unknownSession(id))
	}
	entry.expiresAt = now.Add(s.ttl)
	s.sessions[id] = entry

	out := cloneSession(entry.session)
	return &out, nil
}

func (s *MemoryStore) Save(_ context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save session", errEmptyID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = memoryEntry{
		session:   cloneSession(*session),
		expiresAt: s.now().Add(s.ttl),
	}
	s.evictExpiredLocked()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) evictExpiredLocked() {
	now := s.now()
	for id, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			delete(s.sessions, id)
		}
	}
}

func cloneSession(in domain.Session) domain.Session {
	out := in
	out.History = append([]domain.ConversationTurn(nil), in.History...)
	return out
}
