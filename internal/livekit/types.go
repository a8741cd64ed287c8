package livekit

// Wire types for the media platform's Twirp-style SIP and agent-dispatch APIs.
// Field names follow the platform's JSON (proto3 JSON mapping).

type SIPInboundTrunk struct {
	SIPTrunkID string   `json:"sip_trunk_id,omitempty"`
	Name       string   `json:"name,omitempty"`
	Numbers    []string `json:"numbers,omitempty"`
	Metadata   string   `json:"metadata,omitempty"`

	KrispEnabled bool `json:"krisp_enabled,omitempty"`
}

type SIPOutboundTrunk struct {
	SIPTrunkID string   `json:"sip_trunk_id,omitempty"`
	Name       string   `json:"name,omitempty"`
	Address    string   `json:"address,omitempty"`
	Numbers    []string `json:"numbers,omitempty"`
	Metadata   string   `json:"metadata,omitempty"`

	AuthUsername string `json:"auth_username,omitempty"`
	AuthPassword string `json:"auth_password,omitempty"`
}

// SIPDispatchRule binds inbound trunks to a room-naming policy and an agent
// dispatch spec. Its metadata is immutable post-creation: resync is always
// delete-and-recreate.
type SIPDispatchRule struct {
	SIPDispatchRuleID string           `json:"sip_dispatch_rule_id,omitempty"`
	Name              string           `json:"name,omitempty"`
	TrunkIDs          []string         `json:"trunk_ids,omitempty"`
	Metadata          string           `json:"metadata,omitempty"`
	Rule              DispatchRuleSpec `json:"rule"`
	RoomConfig        *RoomConfig      `json:"room_config,omitempty"`
}

type DispatchRuleSpec struct {
	Individual *DispatchRuleIndividual `json:"dispatch_rule_individual,omitempty"`
}

// DispatchRuleIndividual puts each caller into its own room named
// "<room_prefix>_<caller>_<random>".
type DispatchRuleIndividual struct {
	RoomPrefix string `json:"room_prefix,omitempty"`
}

type RoomConfig struct {
	Agents []RoomAgentDispatch `json:"agents,omitempty"`
}

type RoomAgentDispatch struct {
	AgentName string `json:"agent_name,omitempty"`
	Metadata  string `json:"metadata,omitempty"`
}

type SIPParticipant struct {
	ParticipantID       string `json:"participant_id,omitempty"`
	ParticipantIdentity string `json:"participant_identity,omitempty"`
	RoomName            string `json:"room_name,omitempty"`
	SIPCallID           string `json:"sip_call_id,omitempty"`
}

type AgentDispatch struct {
	ID        string `json:"id,omitempty"`
	AgentName string `json:"agent_name,omitempty"`
	Room      string `json:"room,omitempty"`
	Metadata  string `json:"metadata,omitempty"`
}
