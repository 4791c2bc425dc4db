package apperr

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, 400},
		{KindAuthMissing, 401},
		{KindAuthInvalid, 401},
		{KindForbidden, 403},
		{KindNotFound, 404},
		{KindConflict, 409},
		{KindQuota, 402},
		{KindRateLimited, 429},
		{KindStorage, 503},
		{KindInternal, 500},
		{Kind("unrecognized"), 500},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := StatusFor(tt.kind); got != tt.want {
				t.Errorf("StatusFor(%q) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := Validation("bad input")
	if !Is(err, KindValidation) {
		t.Error("Is(validation error, KindValidation) = false, want true")
	}
	if Is(err, KindNotFound) {
		t.Error("Is(validation error, KindNotFound) = true, want false")
	}

	wrapped := fmt.Errorf("handling request: %w", err)
	if !Is(wrapped, KindValidation) {
		t.Error("Is() did not see through fmt.Errorf wrapping")
	}

	if Is(errors.New("plain error"), KindValidation) {
		t.Error("Is() matched a non-apperr error")
	}
}

func TestAs(t *testing.T) {
	err := NotFound("project not found")
	got, ok := As(err)
	if !ok {
		t.Fatal("As() ok = false, want true")
	}
	if got.Kind != KindNotFound {
		t.Errorf("Kind = %q, want %q", got.Kind, KindNotFound)
	}

	if _, ok := As(errors.New("plain error")); ok {
		t.Error("As() ok = true for a non-apperr error")
	}
}

func TestError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false; Unwrap not wired correctly")
	}
	if err.Error() == "" {
		t.Error("Error() returned empty string")
	}

	noWrap := Validation("name is required")
	if noWrap.Error() != "name is required" {
		t.Errorf("Error() = %q, want %q", noWrap.Error(), "name is required")
	}
}

func TestQuotaExceededSetsResourceAndRetryAfter(t *testing.T) {
	err := QuotaExceeded("memory_created", 5*time.Hour)
	if err.Resource != "memory_created" {
		t.Errorf("Resource = %q, want %q", err.Resource, "memory_created")
	}
	if err.RetryAfter != 5*time.Hour {
		t.Errorf("RetryAfter = %v, want %v", err.RetryAfter, 5*time.Hour)
	}
	if err.Kind != KindQuota {
		t.Errorf("Kind = %q, want %q", err.Kind, KindQuota)
	}
}

func TestRateLimitedSetsRetryAfter(t *testing.T) {
	err := RateLimited("slow down", 30*time.Second)
	if err.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want %v", err.RetryAfter, 30*time.Second)
	}
	if err.Message != "slow down" {
		t.Errorf("Message = %q, want %q", err.Message, "slow down")
	}
}
