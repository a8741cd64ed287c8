package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// There are no Update/Delete methods.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information for provisioning operations.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.UserID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogNumberEvent records a lifecycle event against a phone number.
func (s *Service) LogNumberEvent(ctx context.Context, typ EventType, userID, numberID, projectID, message, metadata string) error {
	return s.Append(ctx, Event{
		UserID:    userID,
		Type:      typ,
		NumberID:  numberID,
		ProjectID: projectID,
		Message:   message,
		Metadata:  metadata,
	})
}

// LogCleanupFailure records a best-effort teardown step that did not complete.
// Operators use these records to reconcile orphaned remote resources.
func (s *Service) LogCleanupFailure(ctx context.Context, userID, numberID, step, detail string) error {
	return s.Append(ctx, Event{
		UserID:   userID,
		Type:     EventTypeCleanupFailure,
		NumberID: numberID,
		Message:  "cleanup step failed: " + step,
		Metadata: detail,
	})
}

// LogOutboundCall records a placed outbound call.
func (s *Service) LogOutboundCall(ctx context.Context, userID, numberID, projectID, callID, roomName string) error {
	return s.Append(ctx, Event{
		UserID:    userID,
		Type:      EventTypeOutboundCallPlaced,
		NumberID:  numberID,
		ProjectID: projectID,
		CallID:    callID,
		RoomName:  roomName,
		Message:   "outbound call placed",
	})
}
