package numbers

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a phone number.
//
// pending  - order placed, provider has not confirmed yet
// active   - owned, not bound to any calling project
// assigned - bound to a project with live SIP resources
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusAssigned Status = "assigned"
)

// PhoneNumber is the authoritative local record of one PSTN number.
//
// Ownership invariant: UserID is required on every row.
//
// Assignment invariant: Status == assigned exactly when ProjectID and
// DispatchRuleID are both set. The invariant may be violated only inside a
// failed-but-recovering assignment, never after an operation returns success.
//
// Remote linkage IDs mirror objects owned by the external platforms; this row
// owns them by reference only.
type PhoneNumber struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	// ProjectID is set only while Status == assigned.
	ProjectID string `json:"project_id,omitempty" db:"project_id"`

	E164        string `json:"e164" db:"e164"`
	CountryCode string `json:"country_code" db:"country_code"`
	NumberType  string `json:"number_type" db:"number_type"`

	ProviderOrderID  string `json:"provider_order_id" db:"provider_order_id"`
	ProviderNumberID string `json:"provider_number_id" db:"provider_number_id"`

	Status Status `json:"status" db:"status"`
	Active bool   `json:"active" db:"active"`

	InboundEnabled    bool `json:"inbound_enabled" db:"inbound_enabled"`
	OutboundEnabled   bool `json:"outbound_enabled" db:"outbound_enabled"`
	RecordingEnabled  bool `json:"recording_enabled" db:"recording_enabled"`
	VoiceAgentEnabled bool `json:"voice_agent_enabled" db:"voice_agent_enabled"`

	SIPConnectionID    string `json:"sip_connection_id,omitempty" db:"sip_connection_id"`
	MessagingProfileID string `json:"messaging_profile_id,omitempty" db:"messaging_profile_id"`
	InboundTrunkID     string `json:"inbound_trunk_id,omitempty" db:"inbound_trunk_id"`
	OutboundTrunkID    string `json:"outbound_trunk_id,omitempty" db:"outbound_trunk_id"`
	DispatchRuleID     string `json:"dispatch_rule_id,omitempty" db:"dispatch_rule_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CheckAssignmentInvariant verifies the status/project/dispatch-rule linkage.
func (n PhoneNumber) CheckAssignmentInvariant() error {
	assigned := n.Status == StatusAssigned
	if assigned != (n.ProjectID != "") {
		return fmt.Errorf("number %s: status %q inconsistent with project_id %q", n.ID, n.Status, n.ProjectID)
	}
	if assigned != (n.DispatchRuleID != "") {
		return fmt.Errorf("number %s: status %q inconsistent with dispatch_rule_id %q", n.ID, n.Status, n.DispatchRuleID)
	}
	return nil
}

// Update is a partial update; nil fields are left untouched.
// Empty-string pointer values clear the column.
type Update struct {
	ProjectID *string
	Status    *Status

	InboundEnabled    *bool
	OutboundEnabled   *bool
	RecordingEnabled  *bool
	VoiceAgentEnabled *bool

	SIPConnectionID    *string
	MessagingProfileID *string
	InboundTrunkID     *string
	OutboundTrunkID    *string
	DispatchRuleID     *string
}

// StringPtr is a convenience for building Update values.
func StringPtr(s string) *string { return &s }

// BoolPtr is a convenience for building Update values.
func BoolPtr(b bool) *bool { return &b }

// StatusPtr is a convenience for building Update values.
func StatusPtr(s Status) *Status { return &s }
