package telnyx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"voiceline-platform/internal/config"
)

// Client is a typed wrapper over the Telnyx REST API.
//
// Rules:
// - No business logic and no retries here. Whether a call is safe to retry
//   depends on which side effects already happened, and only the provisioning
//   orchestrator knows that.
// - Every call is a single HTTP round trip with the configured timeout.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewClient(cfg config.TelnyxConfig) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type AvailableNumber struct {
	PhoneNumber     string `json:"phone_number"`
	CountryCode     string `json:"country_code"`
	PhoneNumberType string `json:"phone_number_type"`
}

type OrderedNumber struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
	Status      string `json:"status"`
}

type NumberOrder struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	PhoneNumbers []OrderedNumber `json:"phone_numbers"`
}

type PhoneNumberRecord struct {
	ID           string `json:"id"`
	PhoneNumber  string `json:"phone_number"`
	Status       string `json:"status"`
	ConnectionID string `json:"connection_id"`
}

type FQDNConnection struct {
	ID             string `json:"id"`
	ConnectionName string `json:"connection_name"`
	UserName       string `json:"user_name"`
	Password       string `json:"password"`
}

type FQDN struct {
	ID           string `json:"id"`
	FQDN         string `json:"fqdn"`
	ConnectionID string `json:"connection_id"`
}

type OutboundVoiceProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SearchAvailableNumbers looks up purchasable numbers matching the given E.164
// string. Zero results map to ErrNotFound so callers can tell "nothing to buy"
// apart from transport failures.
func (c *Client) SearchAvailableNumbers(ctx context.Context, e164 string) ([]AvailableNumber, error) {
	q := url.Values{}
	q.Set("filter[phone_number]", e164)

	var out struct {
		Data []AvailableNumber `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/available_numbers?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("no available numbers matching %s: %w", e164, ErrNotFound)
	}
	return out.Data, nil
}

// CreateNumberOrder purchases a number. Account-level rejections (insufficient
// funds, verification required, limits, availability) surface as *APIError
// with the provider code preserved.
func (c *Client) CreateNumberOrder(ctx context.Context, e164 string) (NumberOrder, error) {
	body := map[string]any{
		"phone_numbers": []map[string]string{{"phone_number": e164}},
	}
	var out struct {
		Data NumberOrder `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/number_orders", body, &out); err != nil {
		return NumberOrder{}, err
	}
	return out.Data, nil
}

type CreateFQDNConnectionRequest struct {
	ConnectionName string `json:"connection_name"`
	UserName       string `json:"user_name"`
	Password       string `json:"password"`
}

func (c *Client) CreateFQDNConnection(ctx context.Context, req CreateFQDNConnectionRequest) (FQDNConnection, error) {
	var out struct {
		Data FQDNConnection `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/fqdn_connections", req, &out); err != nil {
		return FQDNConnection{}, err
	}
	return out.Data, nil
}

func (c *Client) CreateFQDN(ctx context.Context, connectionID, host string) (FQDN, error) {
	body := map[string]any{
		"connection_id":   connectionID,
		"fqdn":            host,
		"dns_record_type": "a",
	}
	var out struct {
		Data FQDN `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/fqdns", body, &out); err != nil {
		return FQDN{}, err
	}
	return out.Data, nil
}

// LookupNumberID resolves the provider-side ID for an owned number by search.
func (c *Client) LookupNumberID(ctx context.Context, e164 string) (string, error) {
	q := url.Values{}
	q.Set("filter[phone_number]", e164)

	var out struct {
		Data []PhoneNumberRecord `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/phone_numbers?"+q.Encode(), nil, &out); err != nil {
		return "", err
	}
	if len(out.Data) == 0 {
		return "", fmt.Errorf("owned number %s: %w", e164, ErrNotFound)
	}
	return out.Data[0].ID, nil
}

// AssociateNumberWithConnection points an owned number at an FQDN connection.
func (c *Client) AssociateNumberWithConnection(ctx context.Context, providerNumberID, connectionID string) error {
	body := map[string]string{"connection_id": connectionID}
	var out struct {
		Data PhoneNumberRecord `json:"data"`
	}
	return c.do(ctx, http.MethodPatch, "/phone_numbers/"+providerNumberID, body, &out)
}

func (c *Client) CreateOutboundVoiceProfile(ctx context.Context, name string) (OutboundVoiceProfile, error) {
	body := map[string]any{
		"name":                  name,
		"traffic_type":          "conversational",
		"service_plan":          "global",
		"enabled":               true,
		"concurrent_call_limit": 10,
	}
	var out struct {
		Data OutboundVoiceProfile `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/outbound_voice_profiles", body, &out); err != nil {
		return OutboundVoiceProfile{}, err
	}
	return out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("telnyx: encode request: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("telnyx: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("telnyx: decode response: %w", err)
		}
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var eb errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(raw, &eb)

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if len(eb.Errors) > 0 {
		apiErr.Code = eb.Errors[0].Code
		apiErr.Title = eb.Errors[0].Title
		apiErr.Detail = eb.Errors[0].Detail
	} else {
		apiErr.Title = http.StatusText(resp.StatusCode)
		apiErr.Detail = string(raw)
	}
	return apiErr
}
