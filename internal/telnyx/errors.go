package telnyx

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a search yields zero results or the
	// provider reports a missing resource.
	ErrNotFound = errors.New("telnyx: not found")

	// ErrUnavailable covers network failures and provider 5xx responses.
	ErrUnavailable = errors.New("telnyx: provider unavailable")
)

// RejectionKind classifies provider business-rule rejections into categories
// with distinct user remediation. The raw provider code is always preserved on
// the APIError for operator debugging.
type RejectionKind string

const (
	KindInsufficientFunds    RejectionKind = "insufficient_funds"
	KindVerificationRequired RejectionKind = "verification_required"
	KindLimitReached         RejectionKind = "limit_reached"
	KindNumberUnavailable    RejectionKind = "number_unavailable"
	KindNotFound             RejectionKind = "not_found"
	KindOther                RejectionKind = "rejected"
)

// Provider error codes that require distinct caller remediation.
const (
	codeInsufficientFunds    = "10015"
	codeVerificationRequired = "10039"
	codeLimitReached         = "85002"
	codeNumberUnavailable    = "85006"
)

// APIError is a provider business-rule rejection (4xx with an error body).
type APIError struct {
	StatusCode int
	Code       string
	Title      string
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telnyx: %s (code=%s, status=%d): %s", e.Title, e.Code, e.StatusCode, e.Detail)
}

func (e *APIError) Kind() RejectionKind {
	switch e.Code {
	case codeInsufficientFunds:
		return KindInsufficientFunds
	case codeVerificationRequired:
		return KindVerificationRequired
	case codeLimitReached:
		return KindLimitReached
	case codeNumberUnavailable:
		return KindNumberUnavailable
	}
	if e.StatusCode == 404 {
		return KindNotFound
	}
	return KindOther
}

type errorBody struct {
	Errors []struct {
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}
