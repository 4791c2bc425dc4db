package user

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thecontextcache/contextcache-sub001/pkg/quota"
)

func TestToUsageResponse(t *testing.T) {
	caps := quota.Caps{MemoryCreatedPerDay: 100, RecallQueryPerDay: 200, ProjectCreatedPerDay: 5}
	u := quota.Usage{MemoriesCreated: 3, RecallQueries: 7, ProjectsCreated: 1, Caps: caps}

	got := ToUsageResponse(u)
	if got.MemoriesCreated != 3 || got.RecallQueries != 7 || got.ProjectsCreated != 1 {
		t.Errorf("ToUsageResponse() counters = %+v, want 3/7/1", got)
	}
	if got.Limits != caps {
		t.Errorf("ToUsageResponse().Limits = %+v, want %+v", got.Limits, caps)
	}
}

func TestClientIP_PrefersForwardedHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/auth/request-link", nil)
	r.RemoteAddr = "10.0.0.1:54321"
	r.Header.Set("X-Forwarded-For", "203.0.113.7")

	if got := clientIP(r); got != "203.0.113.7" {
		t.Errorf("clientIP() = %q, want forwarded address %q", got, "203.0.113.7")
	}
}

func TestClientIP_FallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/auth/request-link", nil)
	r.RemoteAddr = "10.0.0.1:54321"

	if got := clientIP(r); got != "10.0.0.1:54321" {
		t.Errorf("clientIP() = %q, want RemoteAddr %q", got, "10.0.0.1:54321")
	}
}
