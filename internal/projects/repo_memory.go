package projects

import (
	"context"
	"sync"
)

// MemoryStore is a simple in-memory store for tests and early development.
// It enforces user isolation on reads.
type MemoryStore struct {
	mu       sync.Mutex
	projects map[string]CallingProject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{projects: map[string]CallingProject{}}
}

func (s *MemoryStore) Put(p CallingProject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
}

func (s *MemoryStore) Get(ctx context.Context, userID, projectID string) (CallingProject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok || p.UserID != userID {
		return CallingProject{}, ErrNotFound
	}
	return p, nil
}
