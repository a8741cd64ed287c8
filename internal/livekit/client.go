package livekit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voiceline-platform/internal/config"
)

var (
	// ErrNotFound indicates a trunk/rule that does not exist on the platform.
	ErrNotFound = errors.New("livekit: not found")

	// ErrConflict indicates a duplicate resource rejection.
	ErrConflict = errors.New("livekit: conflict")

	// ErrUnavailable covers network failures and platform 5xx responses.
	ErrUnavailable = errors.New("livekit: platform unavailable")
)

const (
	sipServicePath      = "/twirp/livekit.SIP/"
	dispatchServicePath = "/twirp/livekit.AgentDispatchService/"
)

// Client is a typed wrapper over the media platform's Twirp-style API.
// No retries here; retryability is an orchestrator decision.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
	clock     func() time.Time
}

func NewClient(cfg config.LiveKitConfig) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		http:      &http.Client{Timeout: cfg.RequestTimeout},
		clock:     time.Now,
	}
}

/* ===================== TRUNKS ===================== */

func (c *Client) ListSIPInboundTrunks(ctx context.Context, numbers []string) ([]SIPInboundTrunk, error) {
	var out struct {
		Items []SIPInboundTrunk `json:"items"`
	}
	req := map[string]any{}
	if len(numbers) > 0 {
		req["numbers"] = numbers
	}
	if err := c.post(ctx, sipServicePath+"ListSIPInboundTrunk", "", req, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// FindInboundTrunkByNumber implements the find half of find-before-create.
// The platform has no unique constraint on number per trunk, so callers must
// always search first to stay idempotent.
func (c *Client) FindInboundTrunkByNumber(ctx context.Context, e164 string) (SIPInboundTrunk, bool, error) {
	items, err := c.ListSIPInboundTrunks(ctx, []string{e164})
	if err != nil {
		return SIPInboundTrunk{}, false, err
	}
	for _, t := range items {
		for _, n := range t.Numbers {
			if n == e164 {
				return t, true, nil
			}
		}
	}
	return SIPInboundTrunk{}, false, nil
}

func (c *Client) CreateInboundTrunk(ctx context.Context, trunk SIPInboundTrunk) (SIPInboundTrunk, error) {
	var out SIPInboundTrunk
	req := map[string]any{"trunk": trunk}
	if err := c.post(ctx, sipServicePath+"CreateSIPInboundTrunk", "", req, &out); err != nil {
		return SIPInboundTrunk{}, err
	}
	return out, nil
}

func (c *Client) ListSIPOutboundTrunks(ctx context.Context, numbers []string) ([]SIPOutboundTrunk, error) {
	var out struct {
		Items []SIPOutboundTrunk `json:"items"`
	}
	req := map[string]any{}
	if len(numbers) > 0 {
		req["numbers"] = numbers
	}
	if err := c.post(ctx, sipServicePath+"ListSIPOutboundTrunk", "", req, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) FindOutboundTrunkByNumber(ctx context.Context, e164 string) (SIPOutboundTrunk, bool, error) {
	items, err := c.ListSIPOutboundTrunks(ctx, []string{e164})
	if err != nil {
		return SIPOutboundTrunk{}, false, err
	}
	for _, t := range items {
		for _, n := range t.Numbers {
			if n == e164 {
				return t, true, nil
			}
		}
	}
	return SIPOutboundTrunk{}, false, nil
}

func (c *Client) CreateOutboundTrunk(ctx context.Context, trunk SIPOutboundTrunk) (SIPOutboundTrunk, error) {
	var out SIPOutboundTrunk
	req := map[string]any{"trunk": trunk}
	if err := c.post(ctx, sipServicePath+"CreateSIPOutboundTrunk", "", req, &out); err != nil {
		return SIPOutboundTrunk{}, err
	}
	return out, nil
}

/* ===================== DISPATCH RULES ===================== */

func (c *Client) ListSIPDispatchRules(ctx context.Context, trunkIDs []string) ([]SIPDispatchRule, error) {
	var out struct {
		Items []SIPDispatchRule `json:"items"`
	}
	req := map[string]any{}
	if len(trunkIDs) > 0 {
		req["trunk_ids"] = trunkIDs
	}
	if err := c.post(ctx, sipServicePath+"ListSIPDispatchRule", "", req, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// FindDispatchRulesByNumber locates rules belonging to a phone number. The
// platform has no first-class foreign key from number to rule; matching is
// delegated to MatchDispatchRules (see match.go) so the strategy can be
// hardened in one place.
func (c *Client) FindDispatchRulesByNumber(ctx context.Context, e164 string, trunkIDs []string) ([]SIPDispatchRule, error) {
	rules, err := c.ListSIPDispatchRules(ctx, nil)
	if err != nil {
		return nil, err
	}
	return MatchDispatchRules(rules, e164, trunkIDs), nil
}

func (c *Client) CreateDispatchRule(ctx context.Context, rule SIPDispatchRule) (SIPDispatchRule, error) {
	var out SIPDispatchRule
	req := map[string]any{
		"rule":      rule.Rule,
		"name":      rule.Name,
		"trunk_ids": rule.TrunkIDs,
		"metadata":  rule.Metadata,
	}
	if rule.RoomConfig != nil {
		req["room_config"] = rule.RoomConfig
	}
	if err := c.post(ctx, sipServicePath+"CreateSIPDispatchRule", "", req, &out); err != nil {
		return SIPDispatchRule{}, err
	}
	return out, nil
}

func (c *Client) DeleteDispatchRule(ctx context.Context, ruleID string) error {
	req := map[string]any{"sip_dispatch_rule_id": ruleID}
	return c.post(ctx, sipServicePath+"DeleteSIPDispatchRule", "", req, nil)
}

// DeleteTrunk removes an inbound or outbound trunk by ID.
func (c *Client) DeleteTrunk(ctx context.Context, trunkID string) error {
	req := map[string]any{"sip_trunk_id": trunkID}
	return c.post(ctx, sipServicePath+"DeleteSIPTrunk", "", req, nil)
}

/* ===================== CALL SESSIONS / AGENTS ===================== */

type CreateSIPParticipantRequest struct {
	SIPTrunkID          string `json:"sip_trunk_id"`
	SIPCallTo           string `json:"sip_call_to"`
	RoomName            string `json:"room_name"`
	ParticipantIdentity string `json:"participant_identity,omitempty"`
	ParticipantName     string `json:"participant_name,omitempty"`
	ParticipantMetadata string `json:"participant_metadata,omitempty"`
	KrispEnabled        bool   `json:"krisp_enabled,omitempty"`
	WaitUntilAnswered   bool   `json:"wait_until_answered,omitempty"`
}

// CreateSIPParticipant dials out on an outbound trunk into a room.
func (c *Client) CreateSIPParticipant(ctx context.Context, req CreateSIPParticipantRequest) (SIPParticipant, error) {
	var out SIPParticipant
	if err := c.post(ctx, sipServicePath+"CreateSIPParticipant", req.RoomName, req, &out); err != nil {
		return SIPParticipant{}, err
	}
	if out.RoomName == "" {
		out.RoomName = req.RoomName
	}
	return out, nil
}

// DispatchAgent explicitly attaches an agent worker to a room. Outbound calls
// and trial sessions need this; only inbound trunk traffic is auto-dispatched
// via dispatch rules.
func (c *Client) DispatchAgent(ctx context.Context, roomName, agentName, metadata string) (AgentDispatch, error) {
	var out AgentDispatch
	req := map[string]any{
		"agent_name": agentName,
		"room":       roomName,
		"metadata":   metadata,
	}
	if err := c.post(ctx, dispatchServicePath+"CreateDispatch", roomName, req, &out); err != nil {
		return AgentDispatch{}, err
	}
	return out, nil
}

/* ===================== TRANSPORT ===================== */

type twirpError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (c *Client) post(ctx context.Context, path, room string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("livekit: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("livekit: build request: %w", err)
	}

	tok, err := serviceToken(c.apiKey, c.apiSecret, room, c.clock())
	if err != nil {
		return fmt.Errorf("livekit: mint service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return decodeTwirpError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("livekit: decode response: %w", err)
		}
	}
	return nil
}

func decodeTwirpError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var te twirpError
	_ = json.Unmarshal(raw, &te)

	msg := te.Msg
	if msg == "" {
		msg = string(raw)
	}

	// The platform signals missing resources through the error message; the
	// substring check is the documented (if fragile) contract.
	switch {
	case te.Code == "not_found" || strings.Contains(strings.ToLower(msg), "not found"):
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case te.Code == "already_exists" || resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	default:
		return fmt.Errorf("livekit: %s (code=%s, status=%d)", msg, te.Code, resp.StatusCode)
	}
}
