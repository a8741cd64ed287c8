package provisioning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"voiceline-platform/internal/audit"
	"voiceline-platform/internal/calls"
	"voiceline-platform/internal/dispatch"
	"voiceline-platform/internal/livekit"
	"voiceline-platform/internal/numbers"
	"voiceline-platform/internal/projects"
	"voiceline-platform/internal/telnyx"
)

/* ===================== FAKES ===================== */

type fakeTelephony struct {
	searchErr error
	orderErr  error
	lookupErr error

	profileCalls    int
	connectionCalls int
	fqdnCalls       int
	associations    map[string]string
}

func newFakeTelephony() *fakeTelephony {
	return &fakeTelephony{associations: map[string]string{}}
}

func (f *fakeTelephony) SearchAvailableNumbers(ctx context.Context, e164 string) ([]telnyx.AvailableNumber, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return []telnyx.AvailableNumber{{PhoneNumber: e164, CountryCode: "US", PhoneNumberType: "local"}}, nil
}

func (f *fakeTelephony) CreateNumberOrder(ctx context.Context, e164 string) (telnyx.NumberOrder, error) {
	if f.orderErr != nil {
		return telnyx.NumberOrder{}, f.orderErr
	}
	return telnyx.NumberOrder{
		ID:           "order-1",
		Status:       "success",
		PhoneNumbers: []telnyx.OrderedNumber{{ID: "pn-1", PhoneNumber: e164}},
	}, nil
}

func (f *fakeTelephony) CreateFQDNConnection(ctx context.Context, req telnyx.CreateFQDNConnectionRequest) (telnyx.FQDNConnection, error) {
	f.connectionCalls++
	return telnyx.FQDNConnection{ID: fmt.Sprintf("conn-%d", f.connectionCalls), ConnectionName: req.ConnectionName, UserName: req.UserName}, nil
}

func (f *fakeTelephony) CreateFQDN(ctx context.Context, connectionID, host string) (telnyx.FQDN, error) {
	f.fqdnCalls++
	return telnyx.FQDN{ID: "fqdn-1", FQDN: host, ConnectionID: connectionID}, nil
}

func (f *fakeTelephony) LookupNumberID(ctx context.Context, e164 string) (string, error) {
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	return "pn-1", nil
}

func (f *fakeTelephony) AssociateNumberWithConnection(ctx context.Context, providerNumberID, connectionID string) error {
	f.associations[providerNumberID] = connectionID
	return nil
}

func (f *fakeTelephony) CreateOutboundVoiceProfile(ctx context.Context, name string) (telnyx.OutboundVoiceProfile, error) {
	f.profileCalls++
	return telnyx.OutboundVoiceProfile{ID: "ovp-1", Name: name}, nil
}

type fakeMedia struct {
	inbound  []livekit.SIPInboundTrunk
	outbound []livekit.SIPOutboundTrunk
	rules    []livekit.SIPDispatchRule

	createInboundCalls  int
	createOutboundCalls int
	createRuleCalls     int
	deleteRuleCalls     int
	deleteTrunkCalls    int
	remoteCalls         int

	createOutboundErr error
	deleteRuleErr     error
	deleteTrunkErr    error

	// ops records call order for sequencing assertions.
	ops []string

	nextID int
}

func (f *fakeMedia) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeMedia) FindInboundTrunkByNumber(ctx context.Context, e164 string) (livekit.SIPInboundTrunk, bool, error) {
	f.remoteCalls++
	for _, t := range f.inbound {
		for _, n := range t.Numbers {
			if n == e164 {
				return t, true, nil
			}
		}
	}
	return livekit.SIPInboundTrunk{}, false, nil
}

func (f *fakeMedia) CreateInboundTrunk(ctx context.Context, trunk livekit.SIPInboundTrunk) (livekit.SIPInboundTrunk, error) {
	f.remoteCalls++
	f.createInboundCalls++
	trunk.SIPTrunkID = f.id("in")
	f.inbound = append(f.inbound, trunk)
	return trunk, nil
}

func (f *fakeMedia) FindOutboundTrunkByNumber(ctx context.Context, e164 string) (livekit.SIPOutboundTrunk, bool, error) {
	f.remoteCalls++
	if f.createOutboundErr != nil {
		return livekit.SIPOutboundTrunk{}, false, f.createOutboundErr
	}
	for _, t := range f.outbound {
		for _, n := range t.Numbers {
			if n == e164 {
				return t, true, nil
			}
		}
	}
	return livekit.SIPOutboundTrunk{}, false, nil
}

func (f *fakeMedia) CreateOutboundTrunk(ctx context.Context, trunk livekit.SIPOutboundTrunk) (livekit.SIPOutboundTrunk, error) {
	f.remoteCalls++
	f.createOutboundCalls++
	if f.createOutboundErr != nil {
		return livekit.SIPOutboundTrunk{}, f.createOutboundErr
	}
	trunk.SIPTrunkID = f.id("out")
	f.outbound = append(f.outbound, trunk)
	return trunk, nil
}

func (f *fakeMedia) FindDispatchRulesByNumber(ctx context.Context, e164 string, trunkIDs []string) ([]livekit.SIPDispatchRule, error) {
	f.remoteCalls++
	return livekit.MatchDispatchRules(f.rules, e164, trunkIDs), nil
}

func (f *fakeMedia) CreateDispatchRule(ctx context.Context, rule livekit.SIPDispatchRule) (livekit.SIPDispatchRule, error) {
	f.remoteCalls++
	f.createRuleCalls++
	rule.SIPDispatchRuleID = f.id("rule")
	f.rules = append(f.rules, rule)
	return rule, nil
}

func (f *fakeMedia) DeleteDispatchRule(ctx context.Context, ruleID string) error {
	f.remoteCalls++
	f.deleteRuleCalls++
	if f.deleteRuleErr != nil {
		return f.deleteRuleErr
	}
	for i, r := range f.rules {
		if r.SIPDispatchRuleID == ruleID {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: rule %s", livekit.ErrNotFound, ruleID)
}

func (f *fakeMedia) DeleteTrunk(ctx context.Context, trunkID string) error {
	f.remoteCalls++
	f.deleteTrunkCalls++
	if f.deleteTrunkErr != nil {
		return f.deleteTrunkErr
	}
	for i, t := range f.inbound {
		if t.SIPTrunkID == trunkID {
			f.inbound = append(f.inbound[:i], f.inbound[i+1:]...)
			return nil
		}
	}
	for i, t := range f.outbound {
		if t.SIPTrunkID == trunkID {
			f.outbound = append(f.outbound[:i], f.outbound[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: trunk %s", livekit.ErrNotFound, trunkID)
}

func (f *fakeMedia) CreateSIPParticipant(ctx context.Context, req livekit.CreateSIPParticipantRequest) (livekit.SIPParticipant, error) {
	f.remoteCalls++
	f.ops = append(f.ops, "create_participant")
	return livekit.SIPParticipant{ParticipantID: "part-1", RoomName: req.RoomName}, nil
}

func (f *fakeMedia) DispatchAgent(ctx context.Context, roomName, agentName, metadata string) (livekit.AgentDispatch, error) {
	f.remoteCalls++
	f.ops = append(f.ops, "dispatch_agent")
	return livekit.AgentDispatch{ID: "disp-1", AgentName: agentName, Room: roomName}, nil
}

// failingNumberStore makes the persist step of a pipeline fail on demand.
type failingNumberStore struct {
	*numbers.MemoryStore
	failUpdate bool
}

func (s *failingNumberStore) Update(ctx context.Context, userID, id string, upd numbers.Update) (numbers.PhoneNumber, error) {
	if s.failUpdate {
		return numbers.PhoneNumber{}, errors.New("db write failed")
	}
	return s.MemoryStore.Update(ctx, userID, id, upd)
}

/* ===================== HARNESS ===================== */

type harness struct {
	svc       *Service
	numbers   *failingNumberStore
	projects  *projects.MemoryStore
	calls     *calls.MemoryStore
	auditRepo *audit.MemoryRepo
	telephony *fakeTelephony
	media     *fakeMedia
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		numbers:   &failingNumberStore{MemoryStore: numbers.NewMemoryStore()},
		projects:  projects.NewMemoryStore(),
		calls:     calls.NewMemoryStore(),
		auditRepo: audit.NewMemoryRepo(),
		telephony: newFakeTelephony(),
		media:     &fakeMedia{},
	}
	h.svc = NewService(Deps{
		Numbers:   h.numbers,
		Projects:  h.projects,
		Calls:     h.calls,
		Audit:     audit.NewService(h.auditRepo),
		Telephony: h.telephony,
		Media:     h.media,
		Locker:    NewMemoryLocker(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		SIPHost:   "sip.telnyx.com",
		AgentName: "voiceline-agent",
	})
	h.projects.Put(projects.CallingProject{ID: "p1", UserID: "u1", Name: "support", SystemPrompt: "You help callers."})
	h.projects.Put(projects.CallingProject{ID: "p2", UserID: "u1", Name: "sales"})
	return h
}

func (h *harness) purchased(t *testing.T) numbers.PhoneNumber {
	t.Helper()
	n, err := h.svc.Purchase(context.Background(), "u1", "+15551234567")
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	return n
}

func (h *harness) assigned(t *testing.T) numbers.PhoneNumber {
	t.Helper()
	n := h.purchased(t)
	res, err := h.svc.Assign(context.Background(), "u1", n.ID, "p1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	return res.Number
}

/* ===================== PURCHASE ===================== */

func TestPurchase_CreatesLocalRecordOnly(t *testing.T) {
	h := newHarness(t)

	n := h.purchased(t)

	if n.Status != numbers.StatusActive || n.ProjectID != "" {
		t.Fatalf("expected active unassigned, got %+v", n)
	}
	if !n.InboundEnabled || n.OutboundEnabled || !n.RecordingEnabled {
		t.Fatalf("unexpected capability defaults: %+v", n)
	}
	if n.ProviderOrderID != "order-1" || n.ProviderNumberID != "pn-1" {
		t.Fatalf("provider ids not captured: %+v", n)
	}
	// SIP provisioning is deferred to assignment.
	if h.media.remoteCalls != 0 {
		t.Fatalf("expected no media platform calls on purchase, got %d", h.media.remoteCalls)
	}
	if err := n.CheckAssignmentInvariant(); err != nil {
		t.Fatalf("invariant: %v", err)
	}
}

func TestPurchase_ProviderRejectionPreservesCode(t *testing.T) {
	h := newHarness(t)
	h.telephony.orderErr = &telnyx.APIError{StatusCode: 422, Code: "10015", Title: "Insufficient funds"}

	_, err := h.svc.Purchase(context.Background(), "u1", "+15551234567")

	var apiErr *telnyx.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "10015" || apiErr.Kind() != telnyx.KindInsufficientFunds {
		t.Fatalf("provider code not preserved: %+v", apiErr)
	}
}

func TestPurchase_NoAvailableNumbers(t *testing.T) {
	h := newHarness(t)
	h.telephony.searchErr = fmt.Errorf("no available numbers matching +15551234567: %w", telnyx.ErrNotFound)

	_, err := h.svc.Purchase(context.Background(), "u1", "+15551234567")
	if !errors.Is(err, ErrNumberUnavailable) {
		t.Fatalf("expected ErrNumberUnavailable, got %v", err)
	}
}

func TestPurchase_RejectsMalformedNumber(t *testing.T) {
	h := newHarness(t)
	for _, bad := range []string{"", "15551234567", "+1555", "+0123456789", "not-a-number"} {
		if _, err := h.svc.Purchase(context.Background(), "u1", bad); !errors.Is(err, ErrValidation) {
			t.Errorf("%q: expected ErrValidation, got %v", bad, err)
		}
	}
}

/* ===================== ASSIGN ===================== */

func TestAssign_FullPipeline(t *testing.T) {
	h := newHarness(t)
	n := h.purchased(t)

	res, err := h.svc.Assign(context.Background(), "u1", n.ID, "p1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	got := res.Number
	if got.Status != numbers.StatusAssigned || got.ProjectID != "p1" {
		t.Fatalf("expected assigned to p1, got %+v", got)
	}
	if got.InboundTrunkID == "" || got.OutboundTrunkID == "" || got.DispatchRuleID == "" || got.SIPConnectionID == "" {
		t.Fatalf("remote linkage ids missing: %+v", got)
	}
	if !res.Capabilities.Inbound || !res.Capabilities.Outbound {
		t.Fatalf("unexpected capabilities: %+v", res.Capabilities)
	}
	if !got.VoiceAgentEnabled || !got.OutboundEnabled {
		t.Fatalf("capability flags not set: %+v", got)
	}
	if err := got.CheckAssignmentInvariant(); err != nil {
		t.Fatalf("invariant: %v", err)
	}

	// The dispatch rule carries the project configuration.
	if len(h.media.rules) != 1 {
		t.Fatalf("expected 1 dispatch rule, got %d", len(h.media.rules))
	}
	meta, err := dispatch.Decode(h.media.rules[0].Metadata)
	if err != nil {
		t.Fatalf("decode rule metadata: %v", err)
	}
	if meta.ProjectID != "p1" || meta.Prompt != "You help callers." {
		t.Fatalf("unexpected rule metadata: %+v", meta)
	}
	if meta.LLMProvider != dispatch.DefaultLLMProvider || meta.STTLanguage != dispatch.DefaultSTTLanguage {
		t.Fatalf("metadata defaults missing: %+v", meta)
	}

	// Provider-side linkage happened.
	if h.telephony.associations["pn-1"] == "" {
		t.Fatalf("number was not associated with a connection")
	}
}

func TestAssign_RetryReusesExistingResources(t *testing.T) {
	h := newHarness(t)
	n := h.purchased(t)

	first, err := h.svc.Assign(context.Background(), "u1", n.ID, "p1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	second, err := h.svc.Assign(context.Background(), "u1", n.ID, "p1")
	if err != nil {
		t.Fatalf("re-assign: %v", err)
	}

	if h.media.createInboundCalls != 1 || h.media.createOutboundCalls != 1 || h.media.createRuleCalls != 1 {
		t.Fatalf("retry created duplicates: inbound=%d outbound=%d rules=%d",
			h.media.createInboundCalls, h.media.createOutboundCalls, h.media.createRuleCalls)
	}
	if first.Number.InboundTrunkID != second.Number.InboundTrunkID ||
		first.Number.DispatchRuleID != second.Number.DispatchRuleID {
		t.Fatalf("retry changed remote linkage: %+v vs %+v", first.Number, second.Number)
	}
}

func TestAssign_OutboundTrunkFailureIsNonFatal(t *testing.T) {
	h := newHarness(t)
	n := h.purchased(t)
	h.media.createOutboundErr = fmt.Errorf("%w: timeout", livekit.ErrUnavailable)

	res, err := h.svc.Assign(context.Background(), "u1", n.ID, "p1")
	if err != nil {
		t.Fatalf("assign should succeed inbound-only: %v", err)
	}

	if !res.Capabilities.Inbound || res.Capabilities.Outbound {
		t.Fatalf("expected inbound-only capabilities: %+v", res.Capabilities)
	}
	if len(res.Degraded) == 0 {
		t.Fatalf("expected degraded state reported")
	}
	if res.Number.OutboundEnabled || res.Number.OutboundTrunkID != "" {
		t.Fatalf("outbound capability should be off: %+v", res.Number)
	}
	if res.Number.Status != numbers.StatusAssigned {
		t.Fatalf("expected assigned, got %s", res.Number.Status)
	}
}

func TestAssign_PersistFailureDeletesFreshRule(t *testing.T) {
	h := newHarness(t)
	n := h.purchased(t)
	h.numbers.failUpdate = true

	_, err := h.svc.Assign(context.Background(), "u1", n.ID, "p1")
	if !errors.Is(err, ErrInconsistent) {
		t.Fatalf("expected ErrInconsistent, got %v", err)
	}

	// The just-created rule is a billable orphan; it must be compensated.
	if len(h.media.rules) != 0 {
		t.Fatalf("expected compensating delete of dispatch rule, %d left", len(h.media.rules))
	}
	if h.media.deleteRuleCalls != 1 {
		t.Fatalf("expected 1 delete call, got %d", h.media.deleteRuleCalls)
	}

	// Local record still unassigned.
	stored, _ := h.numbers.Get(context.Background(), "u1", n.ID)
	if stored.Status != numbers.StatusActive || stored.ProjectID != "" {
		t.Fatalf("local record should be unchanged: %+v", stored)
	}
}

func TestAssign_PersistFailureKeepsPreexistingRule(t *testing.T) {
	h := newHarness(t)
	n := h.assigned(t)

	// Second run with a failing store finds the existing rule; the
	// compensation must not delete a rule it did not create.
	h.numbers.failUpdate = true
	if _, err := h.svc.Assign(context.Background(), "u1", n.ID, "p1"); err == nil {
		t.Fatalf("expected persistence error")
	}
	if len(h.media.rules) != 1 {
		t.Fatalf("pre-existing rule was deleted")
	}
}

func TestAssign_LostProviderOwnershipMapsToUnavailable(t *testing.T) {
	h := newHarness(t)
	n := h.purchased(t)
	h.telephony.lookupErr = fmt.Errorf("owned number %s: %w", n.E164, telnyx.ErrNotFound)

	_, err := h.svc.Assign(context.Background(), "u1", n.ID, "p1")
	if !errors.Is(err, ErrNumberUnavailable) {
		t.Fatalf("expected ErrNumberUnavailable, got %v", err)
	}
}

func TestAssign_RejectsCrossProjectAndForeignUser(t *testing.T) {
	h := newHarness(t)
	n := h.assigned(t)

	if _, err := h.svc.Assign(context.Background(), "u1", n.ID, "p2"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for cross-project assign, got %v", err)
	}
	if _, err := h.svc.Assign(context.Background(), "u2", n.ID, "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign user, got %v", err)
	}
}

func TestAssign_NumberBusy(t *testing.T) {
	h := newHarness(t)
	n := h.purchased(t)

	locker := NewMemoryLocker()
	h.svc.deps.Locker = locker
	release, err := locker.Acquire(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	if _, err := h.svc.Assign(context.Background(), "u1", n.ID, "p1"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

/* ===================== UNASSIGN ===================== */

func TestUnassign_AlreadyReleasedShortCircuits(t *testing.T) {
	h := newHarness(t)
	n := h.purchased(t)
	before := h.media.remoteCalls

	res, err := h.svc.Unassign(context.Background(), "u1", n.ID, "p1")
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if !res.Cleanup.Clean || len(res.Cleanup.Steps) != 0 {
		t.Fatalf("expected empty clean report: %+v", res.Cleanup)
	}
	if h.media.remoteCalls != before {
		t.Fatalf("expected zero remote calls, got %d", h.media.remoteCalls-before)
	}
}

func TestUnassign_ReleasesAndTearsDown(t *testing.T) {
	h := newHarness(t)
	n := h.assigned(t)

	res, err := h.svc.Unassign(context.Background(), "u1", n.ID, "p1")
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}

	got := res.Number
	if got.Status != numbers.StatusActive || got.ProjectID != "" || got.VoiceAgentEnabled {
		t.Fatalf("expected released record, got %+v", got)
	}
	if err := got.CheckAssignmentInvariant(); err != nil {
		t.Fatalf("invariant: %v", err)
	}
	if !res.Cleanup.Clean {
		t.Fatalf("expected clean report: %+v", res.Cleanup)
	}

	// Trunk and rule no longer resolve by number.
	if _, ok, _ := h.media.FindInboundTrunkByNumber(context.Background(), n.E164); ok {
		t.Fatalf("inbound trunk still resolves")
	}
	if rules, _ := h.media.FindDispatchRulesByNumber(context.Background(), n.E164, nil); len(rules) != 0 {
		t.Fatalf("dispatch rules still resolve: %+v", rules)
	}
}

func TestUnassign_LocalStateWinsWhenCleanupFails(t *testing.T) {
	h := newHarness(t)
	n := h.assigned(t)
	h.media.deleteRuleErr = fmt.Errorf("%w: timeout", livekit.ErrUnavailable)
	h.media.deleteTrunkErr = fmt.Errorf("%w: timeout", livekit.ErrUnavailable)

	res, err := h.svc.Unassign(context.Background(), "u1", n.ID, "p1")
	if err != nil {
		t.Fatalf("unassign must not fail on remote cleanup: %v", err)
	}

	if res.Number.Status != numbers.StatusActive || res.Number.ProjectID != "" {
		t.Fatalf("local state must flip regardless of cleanup: %+v", res.Number)
	}
	if res.Cleanup.Clean {
		t.Fatalf("report should record the failures: %+v", res.Cleanup)
	}
	var failed int
	for _, step := range res.Cleanup.Steps {
		if !step.OK {
			failed++
		}
	}
	if failed == 0 {
		t.Fatalf("expected failed steps in report: %+v", res.Cleanup.Steps)
	}

	// Failures are audited for reconciliation.
	var cleanupEvents int
	for _, e := range h.auditRepo.Events() {
		if e.Type == audit.EventTypeCleanupFailure {
			cleanupEvents++
		}
	}
	if cleanupEvents == 0 {
		t.Fatalf("expected cleanup_failure audit events")
	}
}

func TestUnassign_RejectsStaleProject(t *testing.T) {
	h := newHarness(t)
	n := h.assigned(t)

	if _, err := h.svc.Unassign(context.Background(), "u1", n.ID, "p2"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	stored, _ := h.numbers.Get(context.Background(), "u1", n.ID)
	if stored.Status != numbers.StatusAssigned || stored.ProjectID != "p1" {
		t.Fatalf("state changed on rejected unassign: %+v", stored)
	}
}

func TestUnassign_SweepsStrayRules(t *testing.T) {
	h := newHarness(t)
	n := h.assigned(t)

	// A second rule for the same number that the stored ID does not cover.
	h.media.rules = append(h.media.rules, livekit.SIPDispatchRule{
		SIPDispatchRuleID: "stray-1",
		Name:              "dispatch-15551234567",
	})

	res, err := h.svc.Unassign(context.Background(), "u1", n.ID, "p1")
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if !res.Cleanup.Clean {
		t.Fatalf("expected clean report: %+v", res.Cleanup)
	}
	if len(h.media.rules) != 0 {
		t.Fatalf("stray rule survived: %+v", h.media.rules)
	}
}

/* ===================== UPDATE ===================== */

func TestRefreshDispatchRule_DeleteAndRecreate(t *testing.T) {
	h := newHarness(t)
	n := h.assigned(t)
	oldRuleID := n.DispatchRuleID

	// Configuration change the resync should pick up.
	h.projects.Put(projects.CallingProject{
		ID: "p1", UserID: "u1", Name: "support",
		SystemPrompt: "New instructions.", TTSVoice: "nova",
	})

	newRuleID, err := h.svc.RefreshDispatchRule(context.Background(), "u1", n.ID, "p1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if newRuleID == oldRuleID {
		t.Fatalf("expected a fresh rule id")
	}
	if len(h.media.rules) != 1 {
		t.Fatalf("expected exactly one rule, got %d", len(h.media.rules))
	}

	meta, err := dispatch.Decode(h.media.rules[0].Metadata)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if meta.Prompt != "New instructions." || meta.TTSVoice != "nova" {
		t.Fatalf("fresh config not in metadata: %+v", meta)
	}

	stored, _ := h.numbers.Get(context.Background(), "u1", n.ID)
	if stored.DispatchRuleID != newRuleID {
		t.Fatalf("new rule id not persisted: %+v", stored)
	}
}

func TestRefreshDispatchRule_ToleratesMissingOldRule(t *testing.T) {
	h := newHarness(t)
	n := h.assigned(t)

	// Old rule already gone on the platform.
	h.media.rules = nil

	if _, err := h.svc.RefreshDispatchRule(context.Background(), "u1", n.ID, "p1"); err != nil {
		t.Fatalf("refresh should tolerate missing rule: %v", err)
	}
	if len(h.media.rules) != 1 {
		t.Fatalf("expected recreated rule")
	}
}

func TestRefreshDispatchRule_RequiresAssignment(t *testing.T) {
	h := newHarness(t)
	n := h.purchased(t)

	if _, err := h.svc.RefreshDispatchRule(context.Background(), "u1", n.ID, "p1"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

/* ===================== OUTBOUND CALLS ===================== */

func TestPlaceOutboundCall_AgentBeforeParticipant(t *testing.T) {
	h := newHarness(t)
	n := h.assigned(t)

	res, err := h.svc.PlaceOutboundCall(context.Background(), "u1", n.ID, "p1", "+15559876543")
	if err != nil {
		t.Fatalf("call: %v", err)
	}

	if len(h.media.ops) != 2 || h.media.ops[0] != "dispatch_agent" || h.media.ops[1] != "create_participant" {
		t.Fatalf("agent must be dispatched before dialing: %v", h.media.ops)
	}
	if !strings.HasPrefix(res.RoomName, "call-") || res.ParticipantID == "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	sessions, _ := h.calls.ListByUser(context.Background(), "u1")
	if len(sessions) != 1 {
		t.Fatalf("expected persisted session, got %d", len(sessions))
	}
	s := sessions[0]
	if s.From != n.E164 || s.To != "+15559876543" || s.AgentDispatchID != "disp-1" {
		t.Fatalf("unexpected session: %+v", s)
	}
	if s.Status != calls.StatusDialing {
		t.Fatalf("expected dialing status, got %s", s.Status)
	}
}

func TestPlaceOutboundCall_RequiresOutboundCapability(t *testing.T) {
	h := newHarness(t)
	h.media.createOutboundErr = fmt.Errorf("%w: timeout", livekit.ErrUnavailable)
	n := h.assigned(t)

	_, err := h.svc.PlaceOutboundCall(context.Background(), "u1", n.ID, "p1", "+15559876543")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for inbound-only number, got %v", err)
	}
}

func TestPlaceOutboundCall_RequiresAssignment(t *testing.T) {
	h := newHarness(t)
	n := h.purchased(t)

	if _, err := h.svc.PlaceOutboundCall(context.Background(), "u1", n.ID, "p1", "+15559876543"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDispatchTrialAgent(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.DispatchTrialAgent(context.Background(), "u1", "p1", "")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.HasPrefix(res.RoomName, "trial-") || res.DispatchID != "disp-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(h.media.ops) != 1 || h.media.ops[0] != "dispatch_agent" {
		t.Fatalf("expected a single agent dispatch: %v", h.media.ops)
	}

	// Caller-chosen room names are honored.
	res, err = h.svc.DispatchTrialAgent(context.Background(), "u1", "p1", "my-room")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.RoomName != "my-room" {
		t.Fatalf("room name not honored: %+v", res)
	}
}

func TestDispatchTrialAgent_UnknownProject(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.DispatchTrialAgent(context.Background(), "u1", "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

/* ===================== FULL SCENARIO ===================== */

func TestLifecycle_PurchaseAssignUnassign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	n := h.purchased(t)

	res, err := h.svc.Assign(ctx, "u1", n.ID, "p1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	rules, _ := h.media.FindDispatchRulesByNumber(ctx, "+15551234567", []string{res.Number.InboundTrunkID})
	if len(rules) != 1 {
		t.Fatalf("dispatch rule does not resolve by number")
	}
	meta, _ := dispatch.Decode(rules[0].Metadata)
	if meta.ProjectID != "p1" {
		t.Fatalf("rule metadata missing project: %+v", meta)
	}

	un, err := h.svc.Unassign(ctx, "u1", n.ID, "p1")
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if un.Number.Status != numbers.StatusActive || un.Number.ProjectID != "" {
		t.Fatalf("expected released row: %+v", un.Number)
	}

	if rules, _ := h.media.FindDispatchRulesByNumber(ctx, "+15551234567", nil); len(rules) != 0 {
		t.Fatalf("rule still resolves after unassign")
	}
	if _, ok, _ := h.media.FindInboundTrunkByNumber(ctx, "+15551234567"); ok {
		t.Fatalf("trunk still resolves after unassign")
	}

	// Re-assignment works on the released number.
	if _, err := h.svc.Assign(ctx, "u1", n.ID, "p2"); err != nil {
		t.Fatalf("re-assign to new project: %v", err)
	}
}
