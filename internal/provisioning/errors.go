package provisioning

import (
	"errors"
	"fmt"

	"voiceline-platform/internal/livekit"
	"voiceline-platform/internal/telnyx"
)

var (
	// ErrValidation covers malformed input and stale-state mismatches
	// (e.g. unassign with the wrong project ID).
	ErrValidation = errors.New("provisioning: validation failed")

	// ErrNotFound means the number or project does not exist for this user.
	ErrNotFound = errors.New("provisioning: not found")

	// ErrForbidden means the resource exists but belongs to another user.
	ErrForbidden = errors.New("provisioning: forbidden")

	// ErrBusy means another provisioning operation holds the per-number lock.
	ErrBusy = errors.New("provisioning: number is busy")

	// ErrNumberUnavailable means the provider has no matching number to sell,
	// or no longer holds a number we believed we owned. The caller should
	// pick a different number.
	ErrNumberUnavailable = errors.New("provisioning: number not available from provider")

	// ErrRemoteUnavailable means an external platform could not be reached.
	// Callers should retry later; no account action is needed.
	ErrRemoteUnavailable = errors.New("provisioning: remote platform unavailable")

	// ErrInconsistent means local persistence failed after remote resources
	// were created. Compensating deletes have already been attempted where
	// defined; the operation is safe to retry.
	ErrInconsistent = errors.New("provisioning: local state inconsistent with remote resources")
)

// remoteErr folds client-level sentinels from either external platform into
// the orchestrator taxonomy while keeping the original chain for operator
// logs. Transport failures become ErrRemoteUnavailable; a provider-side
// not-found (search miss, lost ownership) becomes ErrNumberUnavailable; a
// platform-side not-found becomes ErrNotFound. Business-rule rejections
// (telnyx.APIError) pass through untouched so the provider code survives to
// the API layer verbatim.
func remoteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, telnyx.ErrUnavailable) || errors.Is(err, livekit.ErrUnavailable):
		return fmt.Errorf("%s: %w: %w", op, ErrRemoteUnavailable, err)
	case errors.Is(err, telnyx.ErrNotFound):
		return fmt.Errorf("%s: %w: %w", op, ErrNumberUnavailable, err)
	case errors.Is(err, livekit.ErrNotFound):
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
