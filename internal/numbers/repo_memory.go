package numbers

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a simple in-memory store for tests and early development.
// It enforces user isolation on every operation, matching the Postgres store.
type MemoryStore struct {
	mu      sync.Mutex
	numbers map[string]PhoneNumber
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{numbers: map[string]PhoneNumber{}}
}

func (s *MemoryStore) Get(ctx context.Context, userID, id string) (PhoneNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.numbers[id]
	if !ok || n.UserID != userID {
		return PhoneNumber{}, ErrNotFound
	}
	return n, nil
}

func (s *MemoryStore) Create(ctx context.Context, n PhoneNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.numbers[n.ID] = n
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, userID, id string, upd Update) (PhoneNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.numbers[id]
	if !ok || n.UserID != userID {
		return PhoneNumber{}, ErrNotFound
	}

	if upd.ProjectID != nil {
		n.ProjectID = *upd.ProjectID
	}
	if upd.Status != nil {
		n.Status = *upd.Status
	}
	if upd.InboundEnabled != nil {
		n.InboundEnabled = *upd.InboundEnabled
	}
	if upd.OutboundEnabled != nil {
		n.OutboundEnabled = *upd.OutboundEnabled
	}
	if upd.RecordingEnabled != nil {
		n.RecordingEnabled = *upd.RecordingEnabled
	}
	if upd.VoiceAgentEnabled != nil {
		n.VoiceAgentEnabled = *upd.VoiceAgentEnabled
	}
	if upd.SIPConnectionID != nil {
		n.SIPConnectionID = *upd.SIPConnectionID
	}
	if upd.MessagingProfileID != nil {
		n.MessagingProfileID = *upd.MessagingProfileID
	}
	if upd.InboundTrunkID != nil {
		n.InboundTrunkID = *upd.InboundTrunkID
	}
	if upd.OutboundTrunkID != nil {
		n.OutboundTrunkID = *upd.OutboundTrunkID
	}
	if upd.DispatchRuleID != nil {
		n.DispatchRuleID = *upd.DispatchRuleID
	}
	n.UpdatedAt = time.Now().UTC()

	s.numbers[id] = n
	return n, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]PhoneNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PhoneNumber
	for _, n := range s.numbers {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByProject(ctx context.Context, userID, projectID string) ([]PhoneNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PhoneNumber
	for _, n := range s.numbers {
		if n.UserID == userID && n.ProjectID == projectID {
			out = append(out, n)
		}
	}
	return out, nil
}
