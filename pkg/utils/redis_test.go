package utils

import (
	"context"
	"testing"
)

func TestLockReleaseScriptCompiles(t *testing.T) {
	// Compile-time smoke test: script should be initialized.
	if lockReleaseScript == nil {
		t.Fatalf("expected script to be initialized")
	}
}

func TestAdvisoryLockInputValidation(t *testing.T) {
	if _, err := AcquireAdvisoryLock(context.Background(), nil, "k", "t", 1); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := ReleaseAdvisoryLock(context.Background(), nil, "k", "t"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
