package httpserver

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
)

func TestRespondAppErrorSetsRetryAfterHeader(t *testing.T) {
	w := httptest.NewRecorder()
	RespondAppError(w, apperr.RateLimited("slow down", 42*time.Second))

	if got := w.Header().Get("Retry-After"); got != "42" {
		t.Errorf("Retry-After header = %q, want %q", got, "42")
	}
	if w.Code != 429 {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestRespondAppErrorRoundsRetryAfterUp(t *testing.T) {
	w := httptest.NewRecorder()
	RespondAppError(w, apperr.RateLimited("slow down", 1500*time.Millisecond))

	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After header = %q, want %q", got, "2")
	}
}

func TestRespondAppErrorOmitsRetryAfterWhenZero(t *testing.T) {
	w := httptest.NewRecorder()
	RespondAppError(w, apperr.Validation("bad input"))

	if got := w.Header().Get("Retry-After"); got != "" {
		t.Errorf("Retry-After header = %q, want empty", got)
	}
}

func TestRespondAppErrorIncludesQuotaResource(t *testing.T) {
	w := httptest.NewRecorder()
	RespondAppError(w, apperr.QuotaExceeded("memory_created", time.Hour))

	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error != "quota_exceeded" {
		t.Errorf("Error = %q, want %q", body.Error, "quota_exceeded")
	}
	if body.Resource != "memory_created" {
		t.Errorf("Resource = %q, want %q", body.Resource, "memory_created")
	}
	if got := w.Header().Get("Retry-After"); got != "3600" {
		t.Errorf("Retry-After header = %q, want %q", got, "3600")
	}
}
