// Package provisioning sequences phone number lifecycle operations across the
// telephony provider, the media platform, and the local record store.
//
// Design rules:
//   - The local PhoneNumber row is the source of truth; remote object IDs are
//     mirrored into it.
//   - No step is automatically rolled back on a later step's failure. Partial
//     provisioning is tolerated and repaired by re-invoking the operation;
//     find-before-create makes completed steps no-ops on retry. The single
//     exception is the dispatch rule created right before a failed local
//     persist, which is compensated immediately (see Assign).
//   - Every pipeline runs under a per-number advisory lock.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"voiceline-platform/internal/audit"
	"voiceline-platform/internal/calls"
	"voiceline-platform/internal/dispatch"
	"voiceline-platform/internal/livekit"
	"voiceline-platform/internal/numbers"
	"voiceline-platform/internal/projects"
	"voiceline-platform/internal/telnyx"
)

// TelephonyClient is the slice of the provider API the orchestrator uses.
type TelephonyClient interface {
	SearchAvailableNumbers(ctx context.Context, e164 string) ([]telnyx.AvailableNumber, error)
	CreateNumberOrder(ctx context.Context, e164 string) (telnyx.NumberOrder, error)
	CreateFQDNConnection(ctx context.Context, req telnyx.CreateFQDNConnectionRequest) (telnyx.FQDNConnection, error)
	CreateFQDN(ctx context.Context, connectionID, host string) (telnyx.FQDN, error)
	LookupNumberID(ctx context.Context, e164 string) (string, error)
	AssociateNumberWithConnection(ctx context.Context, providerNumberID, connectionID string) error
	CreateOutboundVoiceProfile(ctx context.Context, name string) (telnyx.OutboundVoiceProfile, error)
}

// MediaClient is the slice of the media platform API the orchestrator uses.
type MediaClient interface {
	FindInboundTrunkByNumber(ctx context.Context, e164 string) (livekit.SIPInboundTrunk, bool, error)
	CreateInboundTrunk(ctx context.Context, trunk livekit.SIPInboundTrunk) (livekit.SIPInboundTrunk, error)
	FindOutboundTrunkByNumber(ctx context.Context, e164 string) (livekit.SIPOutboundTrunk, bool, error)
	CreateOutboundTrunk(ctx context.Context, trunk livekit.SIPOutboundTrunk) (livekit.SIPOutboundTrunk, error)
	FindDispatchRulesByNumber(ctx context.Context, e164 string, trunkIDs []string) ([]livekit.SIPDispatchRule, error)
	CreateDispatchRule(ctx context.Context, rule livekit.SIPDispatchRule) (livekit.SIPDispatchRule, error)
	DeleteDispatchRule(ctx context.Context, ruleID string) error
	DeleteTrunk(ctx context.Context, trunkID string) error
	CreateSIPParticipant(ctx context.Context, req livekit.CreateSIPParticipantRequest) (livekit.SIPParticipant, error)
	DispatchAgent(ctx context.Context, roomName, agentName, metadata string) (livekit.AgentDispatch, error)
}

type Deps struct {
	Numbers   numbers.Store
	Projects  projects.Store
	Calls     calls.Store
	Audit     *audit.Service
	Telephony TelephonyClient
	Media     MediaClient
	Locker    NumberLocker
	Logger    *slog.Logger

	// SIPHost is the well-known provider host FQDN connections bind to.
	SIPHost string
	// AgentName identifies the voice agent worker pool.
	AgentName string
}

type Service struct {
	deps  Deps
	clock func() time.Time
	newID func() string
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		deps:  d,
		clock: time.Now,
		newID: uuid.NewString,
	}
}

var e164Pattern = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

func validateE164(s string) error {
	if !e164Pattern.MatchString(s) {
		return fmt.Errorf("%w: %q is not an E.164 number", ErrValidation, s)
	}
	return nil
}

// digits strips the leading plus for use in resource names and credentials.
func digits(e164 string) string {
	return strings.TrimPrefix(e164, "+")
}

// loadNumber maps store errors to the orchestrator taxonomy. Row-level user
// scoping means a foreign number is indistinguishable from a missing one.
func (s *Service) loadNumber(ctx context.Context, userID, numberID string) (numbers.PhoneNumber, error) {
	n, err := s.deps.Numbers.Get(ctx, userID, numberID)
	if err != nil {
		if errors.Is(err, numbers.ErrNotFound) {
			return numbers.PhoneNumber{}, fmt.Errorf("phone number %s: %w", numberID, ErrNotFound)
		}
		return numbers.PhoneNumber{}, fmt.Errorf("load phone number: %w", err)
	}
	return n, nil
}

func (s *Service) loadProject(ctx context.Context, userID, projectID string) (projects.CallingProject, error) {
	p, err := s.deps.Projects.Get(ctx, userID, projectID)
	if err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			return projects.CallingProject{}, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
		}
		return projects.CallingProject{}, fmt.Errorf("load project: %w", err)
	}
	return p, nil
}

/* ===================== PURCHASE ===================== */

// Purchase buys a number from the provider and records it locally with status
// active. No media platform objects are created here; SIP provisioning is
// deferred to Assign so an unassigned number holds no platform resources.
func (s *Service) Purchase(ctx context.Context, userID, e164 string) (numbers.PhoneNumber, error) {
	if err := validateE164(e164); err != nil {
		return numbers.PhoneNumber{}, err
	}

	candidates, err := s.deps.Telephony.SearchAvailableNumbers(ctx, e164)
	if err != nil {
		return numbers.PhoneNumber{}, remoteErr("search available numbers", err)
	}

	order, err := s.deps.Telephony.CreateNumberOrder(ctx, e164)
	if err != nil {
		return numbers.PhoneNumber{}, remoteErr("create number order", err)
	}

	providerNumberID := ""
	if len(order.PhoneNumbers) > 0 {
		providerNumberID = order.PhoneNumbers[0].ID
	}

	now := s.clock().UTC()
	n := numbers.PhoneNumber{
		ID:               s.newID(),
		UserID:           userID,
		E164:             e164,
		CountryCode:      candidates[0].CountryCode,
		NumberType:       candidates[0].PhoneNumberType,
		ProviderOrderID:  order.ID,
		ProviderNumberID: providerNumberID,
		Status:           numbers.StatusActive,
		Active:           true,
		InboundEnabled:   true,
		OutboundEnabled:  false,
		RecordingEnabled: true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.deps.Numbers.Create(ctx, n); err != nil {
		return numbers.PhoneNumber{}, fmt.Errorf("persist phone number: %w", err)
	}

	s.auditNumber(ctx, audit.EventTypeNumberPurchased, userID, n.ID, "", "number purchased: "+e164)
	return n, nil
}

/* ===================== ASSIGN ===================== */

type Capabilities struct {
	Inbound  bool `json:"inbound"`
	Outbound bool `json:"outbound"`
}

type AssignResult struct {
	Number       numbers.PhoneNumber `json:"phone_number"`
	Capabilities Capabilities        `json:"capabilities"`

	// Degraded lists non-fatal provisioning failures, e.g. the outbound
	// trunk step.
	Degraded []string `json:"degraded,omitempty"`
}

// Assign binds a number to a calling project, provisioning provider-side SIP
// plumbing and platform-side trunks plus a dispatch rule.
//
// The pipeline is safe to re-invoke after a partial failure: trunk and rule
// steps find before they create. Only the outbound voice profile and the SIP
// connection are freshly created each attempt; the provider tolerates
// duplicates of both and the newest connection wins the number association.
func (s *Service) Assign(ctx context.Context, userID, numberID, projectID string) (AssignResult, error) {
	release, err := s.deps.Locker.Acquire(ctx, numberID)
	if err != nil {
		return AssignResult{}, err
	}
	defer release()

	n, err := s.loadNumber(ctx, userID, numberID)
	if err != nil {
		return AssignResult{}, err
	}
	if n.ProjectID != "" && n.ProjectID != projectID {
		return AssignResult{}, fmt.Errorf("%w: number is assigned to a different project", ErrValidation)
	}

	project, err := s.loadProject(ctx, userID, projectID)
	if err != nil {
		return AssignResult{}, err
	}

	log := s.deps.Logger.With("number_id", n.ID, "e164", n.E164, "project_id", projectID)
	var degraded []string

	if _, err := s.deps.Telephony.CreateOutboundVoiceProfile(ctx, "voiceline-"+digits(n.E164)); err != nil {
		return AssignResult{}, remoteErr("create outbound voice profile", err)
	}

	// Fresh per-attempt SIP credentials. The random suffix keeps retried
	// assignments from colliding on the provider's username uniqueness.
	sipUser := "vl" + digits(n.E164) + strings.Split(s.newID(), "-")[0]
	sipPass := s.newID()

	conn, err := s.deps.Telephony.CreateFQDNConnection(ctx, telnyx.CreateFQDNConnectionRequest{
		ConnectionName: "voiceline-" + digits(n.E164),
		UserName:       sipUser,
		Password:       sipPass,
	})
	if err != nil {
		return AssignResult{}, remoteErr("create sip connection", err)
	}
	if _, err := s.deps.Telephony.CreateFQDN(ctx, conn.ID, s.deps.SIPHost); err != nil {
		return AssignResult{}, remoteErr("create fqdn", err)
	}

	providerNumberID, err := s.deps.Telephony.LookupNumberID(ctx, n.E164)
	if err != nil {
		return AssignResult{}, remoteErr("lookup provider number", err)
	}
	if err := s.deps.Telephony.AssociateNumberWithConnection(ctx, providerNumberID, conn.ID); err != nil {
		return AssignResult{}, remoteErr("associate number with connection", err)
	}

	inbound, err := s.findOrCreateInboundTrunk(ctx, n.E164)
	if err != nil {
		return AssignResult{}, remoteErr("provision inbound trunk", err)
	}

	// Outbound trunk failure is non-fatal: the assignment proceeds with
	// inbound-only capability and reports the degraded state.
	outboundTrunkID := ""
	outboundOK := false
	if out, err := s.findOrCreateOutboundTrunk(ctx, n.E164, sipUser, sipPass); err != nil {
		log.Warn("outbound trunk provisioning failed, continuing inbound-only", "error", err)
		degraded = append(degraded, "outbound_trunk: "+err.Error())
	} else {
		outboundTrunkID = out.SIPTrunkID
		outboundOK = true
	}

	meta := dispatch.Build(project, n.E164)
	metaJSON, err := meta.Encode()
	if err != nil {
		return AssignResult{}, err
	}

	rule, createdRule, err := s.findOrCreateDispatchRule(ctx, n.E164, inbound.SIPTrunkID, metaJSON)
	if err != nil {
		return AssignResult{}, remoteErr("provision dispatch rule", err)
	}

	updated, err := s.deps.Numbers.Update(ctx, userID, n.ID, numbers.Update{
		ProjectID:         numbers.StringPtr(projectID),
		Status:            numbers.StatusPtr(numbers.StatusAssigned),
		SIPConnectionID:   numbers.StringPtr(conn.ID),
		InboundTrunkID:    numbers.StringPtr(inbound.SIPTrunkID),
		OutboundTrunkID:   numbers.StringPtr(outboundTrunkID),
		DispatchRuleID:    numbers.StringPtr(rule.SIPDispatchRuleID),
		OutboundEnabled:   numbers.BoolPtr(outboundOK),
		VoiceAgentEnabled: numbers.BoolPtr(true),
	})
	if err != nil {
		// A dispatch rule with no local reference is a live orphaned
		// resource; undo the one we just created before surfacing the
		// persistence failure. Pre-existing rules are left alone.
		if createdRule {
			if delErr := s.deps.Media.DeleteDispatchRule(ctx, rule.SIPDispatchRuleID); delErr != nil && !isRemoteNotFound(delErr) {
				log.Error("compensating dispatch rule delete failed",
					"dispatch_rule_id", rule.SIPDispatchRuleID, "error", delErr)
			}
		}
		return AssignResult{}, fmt.Errorf("persist assignment: %w: %w", ErrInconsistent, err)
	}

	s.auditNumber(ctx, audit.EventTypeNumberAssigned, userID, n.ID, projectID, "number assigned: "+n.E164)

	return AssignResult{
		Number:       updated,
		Capabilities: Capabilities{Inbound: true, Outbound: outboundOK},
		Degraded:     degraded,
	}, nil
}

func (s *Service) findOrCreateInboundTrunk(ctx context.Context, e164 string) (livekit.SIPInboundTrunk, error) {
	if t, ok, err := s.deps.Media.FindInboundTrunkByNumber(ctx, e164); err != nil {
		return livekit.SIPInboundTrunk{}, err
	} else if ok {
		return t, nil
	}
	return s.deps.Media.CreateInboundTrunk(ctx, livekit.SIPInboundTrunk{
		Name:         "inbound-" + digits(e164),
		Numbers:      []string{e164},
		KrispEnabled: true,
	})
}

func (s *Service) findOrCreateOutboundTrunk(ctx context.Context, e164, sipUser, sipPass string) (livekit.SIPOutboundTrunk, error) {
	if t, ok, err := s.deps.Media.FindOutboundTrunkByNumber(ctx, e164); err != nil {
		return livekit.SIPOutboundTrunk{}, err
	} else if ok {
		return t, nil
	}
	return s.deps.Media.CreateOutboundTrunk(ctx, livekit.SIPOutboundTrunk{
		Name:         "outbound-" + digits(e164),
		Numbers:      []string{e164},
		Address:      s.deps.SIPHost,
		AuthUsername: sipUser,
		AuthPassword: sipPass,
	})
}

// findOrCreateDispatchRule returns the rule and whether this call created it.
func (s *Service) findOrCreateDispatchRule(ctx context.Context, e164, inboundTrunkID, metadata string) (livekit.SIPDispatchRule, bool, error) {
	existing, err := s.deps.Media.FindDispatchRulesByNumber(ctx, e164, []string{inboundTrunkID})
	if err != nil {
		return livekit.SIPDispatchRule{}, false, err
	}
	if len(existing) > 0 {
		return existing[0], false, nil
	}

	rule, err := s.deps.Media.CreateDispatchRule(ctx, livekit.SIPDispatchRule{
		Name:     "dispatch-" + digits(e164),
		TrunkIDs: []string{inboundTrunkID},
		Metadata: metadata,
		Rule: livekit.DispatchRuleSpec{
			Individual: &livekit.DispatchRuleIndividual{RoomPrefix: "call"},
		},
		RoomConfig: &livekit.RoomConfig{
			Agents: []livekit.RoomAgentDispatch{{
				AgentName: s.deps.AgentName,
				Metadata:  metadata,
			}},
		},
	})
	if err != nil {
		return livekit.SIPDispatchRule{}, false, err
	}
	return rule, true, nil
}

/* ===================== UNASSIGN ===================== */

// CleanupStep records one best-effort teardown action.
type CleanupStep struct {
	Step   string `json:"step"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// CleanupReport summarizes remote teardown after the local state flip.
type CleanupReport struct {
	Clean bool          `json:"clean"`
	Steps []CleanupStep `json:"steps"`
}

func (r *CleanupReport) add(step string, err error) {
	if err == nil || isRemoteNotFound(err) {
		r.Steps = append(r.Steps, CleanupStep{Step: step, OK: true})
		return
	}
	r.Clean = false
	r.Steps = append(r.Steps, CleanupStep{Step: step, OK: false, Detail: err.Error()})
}

type UnassignResult struct {
	Number  numbers.PhoneNumber `json:"phone_number"`
	Cleanup CleanupReport       `json:"cleanup"`
}

// Unassign releases a number from its project. The local record is flipped to
// active/unassigned before any remote teardown: the user must never see the
// number as still assigned after requesting release. Remote cleanup failures
// are reported, logged, and audited, never re-thrown.
//
// The SIP connection and FQDN are deliberately left in place; they are
// reusable on a future re-assignment of the same number.
func (s *Service) Unassign(ctx context.Context, userID, numberID, projectID string) (UnassignResult, error) {
	release, err := s.deps.Locker.Acquire(ctx, numberID)
	if err != nil {
		return UnassignResult{}, err
	}
	defer release()

	n, err := s.loadNumber(ctx, userID, numberID)
	if err != nil {
		return UnassignResult{}, err
	}

	// Already released: succeed without touching any remote system.
	if n.Status == numbers.StatusActive && n.ProjectID == "" {
		return UnassignResult{Number: n, Cleanup: CleanupReport{Clean: true}}, nil
	}
	if n.ProjectID != projectID {
		return UnassignResult{}, fmt.Errorf("%w: number is assigned to a different project", ErrValidation)
	}

	staleRuleID := n.DispatchRuleID
	staleInboundID := n.InboundTrunkID

	updated, err := s.deps.Numbers.Update(ctx, userID, n.ID, numbers.Update{
		ProjectID:         numbers.StringPtr(""),
		Status:            numbers.StatusPtr(numbers.StatusActive),
		DispatchRuleID:    numbers.StringPtr(""),
		InboundTrunkID:    numbers.StringPtr(""),
		OutboundTrunkID:   numbers.StringPtr(""),
		OutboundEnabled:   numbers.BoolPtr(false),
		VoiceAgentEnabled: numbers.BoolPtr(false),
	})
	if err != nil {
		return UnassignResult{}, fmt.Errorf("persist release: %w", err)
	}

	report := CleanupReport{Clean: true}
	log := s.deps.Logger.With("number_id", n.ID, "e164", n.E164)

	if staleRuleID != "" {
		err := s.deps.Media.DeleteDispatchRule(ctx, staleRuleID)
		report.add("delete dispatch rule "+staleRuleID, err)
		s.noteCleanupFailure(ctx, log, userID, n.ID, "delete dispatch rule", err)
	}

	// Fallback sweep: rules the stored ID does not cover, matched by trunk
	// linkage, name, or metadata.
	rules, err := s.deps.Media.FindDispatchRulesByNumber(ctx, n.E164, []string{staleInboundID})
	if err != nil {
		report.add("find stray dispatch rules", err)
		s.noteCleanupFailure(ctx, log, userID, n.ID, "find stray dispatch rules", err)
	} else {
		for _, r := range rules {
			if r.SIPDispatchRuleID == staleRuleID {
				continue
			}
			err := s.deps.Media.DeleteDispatchRule(ctx, r.SIPDispatchRuleID)
			report.add("delete dispatch rule "+r.SIPDispatchRuleID, err)
			s.noteCleanupFailure(ctx, log, userID, n.ID, "delete stray dispatch rule", err)
		}
	}

	if staleInboundID != "" {
		err := s.deps.Media.DeleteTrunk(ctx, staleInboundID)
		report.add("delete inbound trunk "+staleInboundID, err)
		s.noteCleanupFailure(ctx, log, userID, n.ID, "delete inbound trunk", err)
	}

	s.auditNumber(ctx, audit.EventTypeNumberUnassigned, userID, n.ID, projectID, "number unassigned: "+n.E164)
	return UnassignResult{Number: updated, Cleanup: report}, nil
}

/* ===================== UPDATE (DISPATCH RULE RESYNC) ===================== */

// RefreshDispatchRule resynchronizes a number's dispatch rule after the
// project configuration changed. Rule metadata is immutable on the platform,
// so resync is delete-and-recreate.
//
// If persisting the new rule ID fails, the new rule is intentionally left in
// place: a stale local pointer is detectable and repairable, while a deleted
// rule silently drops inbound calls.
func (s *Service) RefreshDispatchRule(ctx context.Context, userID, numberID, projectID string) (string, error) {
	release, err := s.deps.Locker.Acquire(ctx, numberID)
	if err != nil {
		return "", err
	}
	defer release()

	n, err := s.loadNumber(ctx, userID, numberID)
	if err != nil {
		return "", err
	}
	if n.Status != numbers.StatusAssigned || n.ProjectID != projectID {
		return "", fmt.Errorf("%w: number is not assigned to this project", ErrValidation)
	}

	// Fresh project read; the resync exists to pick up the latest config.
	project, err := s.loadProject(ctx, userID, projectID)
	if err != nil {
		return "", err
	}

	inbound, err := s.findOrCreateInboundTrunk(ctx, n.E164)
	if err != nil {
		return "", remoteErr("resolve inbound trunk", err)
	}

	if n.DispatchRuleID != "" {
		if err := s.deps.Media.DeleteDispatchRule(ctx, n.DispatchRuleID); err != nil && !isRemoteNotFound(err) {
			return "", remoteErr("delete stale dispatch rule", err)
		}
	}

	meta := dispatch.Build(project, n.E164)
	metaJSON, err := meta.Encode()
	if err != nil {
		return "", err
	}

	rule, _, err := s.findOrCreateDispatchRule(ctx, n.E164, inbound.SIPTrunkID, metaJSON)
	if err != nil {
		return "", remoteErr("recreate dispatch rule", err)
	}

	if _, err := s.deps.Numbers.Update(ctx, userID, n.ID, numbers.Update{
		DispatchRuleID: numbers.StringPtr(rule.SIPDispatchRuleID),
		InboundTrunkID: numbers.StringPtr(inbound.SIPTrunkID),
	}); err != nil {
		return "", fmt.Errorf("persist new dispatch rule id: %w: %w", ErrInconsistent, err)
	}

	s.auditNumber(ctx, audit.EventTypeDispatchRuleResync, userID, n.ID, projectID, "dispatch rule resynced: "+n.E164)
	return rule.SIPDispatchRuleID, nil
}

/* ===================== READS ===================== */

func (s *Service) GetNumber(ctx context.Context, userID, numberID string) (numbers.PhoneNumber, error) {
	return s.loadNumber(ctx, userID, numberID)
}

func (s *Service) ListNumbers(ctx context.Context, userID string) ([]numbers.PhoneNumber, error) {
	return s.deps.Numbers.ListByUser(ctx, userID)
}

func (s *Service) ListProjectNumbers(ctx context.Context, userID, projectID string) ([]numbers.PhoneNumber, error) {
	return s.deps.Numbers.ListByProject(ctx, userID, projectID)
}

/* ===================== HELPERS ===================== */

func isRemoteNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *telnyx.APIError
	if errors.As(err, &apiErr) && apiErr.Kind() == telnyx.KindNotFound {
		return true
	}
	return errors.Is(err, livekit.ErrNotFound) || errors.Is(err, telnyx.ErrNotFound)
}

// auditNumber is best-effort; audit failures never block provisioning.
func (s *Service) auditNumber(ctx context.Context, typ audit.EventType, userID, numberID, projectID, message string) {
	if s.deps.Audit == nil {
		return
	}
	if err := s.deps.Audit.LogNumberEvent(ctx, typ, userID, numberID, projectID, message, ""); err != nil {
		s.deps.Logger.Warn("audit append failed", "type", string(typ), "error", err)
	}
}

func (s *Service) noteCleanupFailure(ctx context.Context, log *slog.Logger, userID, numberID, step string, err error) {
	if err == nil || isRemoteNotFound(err) {
		return
	}
	log.Warn("cleanup step failed", "step", step, "error", err)
	if s.deps.Audit != nil {
		_ = s.deps.Audit.LogCleanupFailure(ctx, userID, numberID, step, err.Error())
	}
}
