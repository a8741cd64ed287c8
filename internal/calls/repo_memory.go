package calls

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory session store for tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions []Session
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Create(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, sess)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, userID, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ID == id && sess.UserID == userID {
			return sess, nil
		}
	}
	return Session{}, ErrNotFound
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	return out, nil
}
