package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - user_id is required for ownership isolation.
// - Audit capture is best-effort; never block provisioning flows on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorRole may include hidden roles.
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`

	// Target identifiers (optional, depending on the event type).
	NumberID  string `json:"number_id,omitempty" db:"number_id"`
	ProjectID string `json:"project_id,omitempty" db:"project_id"`
	RoomName  string `json:"room_name,omitempty" db:"room_name"`
	CallID    string `json:"call_id,omitempty" db:"call_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeNumberPurchased    EventType = "number_purchased"
	EventTypeNumberAssigned     EventType = "number_assigned"
	EventTypeNumberUnassigned   EventType = "number_unassigned"
	EventTypeDispatchRuleResync EventType = "dispatch_rule_resynced"
	EventTypeCleanupFailure     EventType = "cleanup_failure"
	EventTypeOutboundCallPlaced EventType = "outbound_call_placed"
)
