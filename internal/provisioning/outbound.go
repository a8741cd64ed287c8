package provisioning

import (
	"context"
	"fmt"

	"voiceline-platform/internal/calls"
	"voiceline-platform/internal/dispatch"
	"voiceline-platform/internal/livekit"
	"voiceline-platform/internal/numbers"
)

type OutboundCallResult struct {
	SessionID     string `json:"session_id"`
	RoomName      string `json:"room_name"`
	ParticipantID string `json:"participant_id"`
}

// PlaceOutboundCall dials toNumber from an assigned number.
//
// Order matters: the agent is dispatched to the room before the SIP
// participant is created. Dialing first would connect the callee to silence
// until the agent attaches. Rooms get no automatic agent for outbound traffic;
// dispatch rules only fire for inbound trunk calls.
func (s *Service) PlaceOutboundCall(ctx context.Context, userID, numberID, projectID, toNumber string) (OutboundCallResult, error) {
	if err := validateE164(toNumber); err != nil {
		return OutboundCallResult{}, err
	}

	n, err := s.loadNumber(ctx, userID, numberID)
	if err != nil {
		return OutboundCallResult{}, err
	}
	if n.Status != numbers.StatusAssigned || n.ProjectID != projectID {
		return OutboundCallResult{}, fmt.Errorf("%w: number is not assigned to this project", ErrValidation)
	}
	if !n.OutboundEnabled || n.OutboundTrunkID == "" {
		return OutboundCallResult{}, fmt.Errorf("%w: number has no outbound capability", ErrValidation)
	}

	project, err := s.loadProject(ctx, userID, projectID)
	if err != nil {
		return OutboundCallResult{}, err
	}

	meta := dispatch.Build(project, n.E164)
	metaJSON, err := meta.Encode()
	if err != nil {
		return OutboundCallResult{}, err
	}

	roomName := "call-" + s.newID()

	agentDispatch, err := s.deps.Media.DispatchAgent(ctx, roomName, s.deps.AgentName, metaJSON)
	if err != nil {
		return OutboundCallResult{}, remoteErr("dispatch agent", err)
	}

	participant, err := s.deps.Media.CreateSIPParticipant(ctx, livekit.CreateSIPParticipantRequest{
		SIPTrunkID:          n.OutboundTrunkID,
		SIPCallTo:           toNumber,
		RoomName:            roomName,
		ParticipantIdentity: "pstn-" + digits(toNumber),
		ParticipantName:     toNumber,
		ParticipantMetadata: metaJSON,
		KrispEnabled:        true,
		WaitUntilAnswered:   false,
	})
	if err != nil {
		return OutboundCallResult{}, remoteErr("create sip participant", err)
	}

	now := s.clock().UTC()
	session := calls.Session{
		ID:              s.newID(),
		UserID:          userID,
		ProjectID:       projectID,
		PhoneNumberID:   n.ID,
		From:            n.E164,
		To:              toNumber,
		RoomName:        roomName,
		ParticipantID:   participant.ParticipantID,
		AgentDispatchID: agentDispatch.ID,
		Status:          calls.StatusDialing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.deps.Calls.Create(ctx, session); err != nil {
		// The call is already live; surface the session anyway and leave
		// the row for reconciliation.
		s.deps.Logger.Error("persist call session failed",
			"session_id", session.ID, "room", roomName, "error", err)
	}

	if s.deps.Audit != nil {
		_ = s.deps.Audit.LogOutboundCall(ctx, userID, n.ID, projectID, session.ID, roomName)
	}

	return OutboundCallResult{
		SessionID:     session.ID,
		RoomName:      roomName,
		ParticipantID: participant.ParticipantID,
	}, nil
}

type TrialDispatchResult struct {
	DispatchID string `json:"dispatch_id"`
	RoomName   string `json:"room_name"`
}

// DispatchTrialAgent attaches an agent to a room with no phone call involved.
// Browser trial sessions have no inbound trunk, so no dispatch rule fires for
// them; the agent must be dispatched explicitly, same as outbound calls.
func (s *Service) DispatchTrialAgent(ctx context.Context, userID, projectID, roomName string) (TrialDispatchResult, error) {
	project, err := s.loadProject(ctx, userID, projectID)
	if err != nil {
		return TrialDispatchResult{}, err
	}

	if roomName == "" {
		roomName = "trial-" + s.newID()
	}

	meta := dispatch.Build(project, "")
	metaJSON, err := meta.Encode()
	if err != nil {
		return TrialDispatchResult{}, err
	}

	d, err := s.deps.Media.DispatchAgent(ctx, roomName, s.deps.AgentName, metaJSON)
	if err != nil {
		return TrialDispatchResult{}, remoteErr("dispatch trial agent", err)
	}
	return TrialDispatchResult{DispatchID: d.ID, RoomName: roomName}, nil
}
