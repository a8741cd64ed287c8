package calls

import "time"

// Session records one outbound call placed through the media platform.
//
// Ownership invariant: UserID is required on every row.
//
// The session is written after both remote steps succeed: the agent dispatch
// first, then the SIP participant. A session row therefore always carries both
// remote IDs.
type Session struct {
	ID            string `json:"id" db:"id"`
	UserID        string `json:"user_id" db:"user_id"`
	ProjectID     string `json:"project_id" db:"project_id"`
	PhoneNumberID string `json:"phone_number_id" db:"phone_number_id"`

	From string `json:"from" db:"from"`
	To   string `json:"to" db:"to"`

	RoomName        string `json:"room_name" db:"room_name"`
	ParticipantID   string `json:"participant_id" db:"participant_id"`
	AgentDispatchID string `json:"agent_dispatch_id" db:"agent_dispatch_id"`

	Status Status `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusDialing   Status = "dialing"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)
