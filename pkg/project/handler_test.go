package project

import (
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
)

func TestResolveOrgID_APIKeyCallerUsesItsOwnOrg(t *testing.T) {
	orgID := uuid.New()
	caller := &auth.Caller{AuthKind: auth.AuthKindAPIKey, OrgID: &orgID}
	r := httptest.NewRequest("POST", "/projects", nil)

	got, err := resolveOrgID(r, nil, caller, "")
	if err != nil {
		t.Fatalf("resolveOrgID() error = %v", err)
	}
	if got != orgID {
		t.Errorf("resolveOrgID() = %v, want the API key's own org %v", got, orgID)
	}
}

func TestResolveOrgID_APIKeyWithoutOrgIsForbidden(t *testing.T) {
	caller := &auth.Caller{AuthKind: auth.AuthKindAPIKey, OrgID: nil}
	r := httptest.NewRequest("POST", "/projects", nil)

	_, err := resolveOrgID(r, nil, caller, "")
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("resolveOrgID() error = %v, want Forbidden", err)
	}
}

func TestResolveOrgID_InvalidRequestedUUID(t *testing.T) {
	caller := &auth.Caller{AuthKind: auth.AuthKindSession, UserID: uuid.New()}
	r := httptest.NewRequest("POST", "/projects", nil)

	_, err := resolveOrgID(r, nil, caller, "not-a-uuid")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("resolveOrgID() error = %v, want Validation", err)
	}
}
