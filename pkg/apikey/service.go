package apikey

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/internal/db"
	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
	"github.com/thecontextcache/contextcache-sub001/pkg/org"
)

// Service encapsulates API key business logic: generation, listing, and
// admin-gated revocation, scoped to a single org.
type Service struct {
	dbtx db.DBTX
}

// NewService creates an API key Service backed by the given database
// connection.
func NewService(dbtx db.DBTX) *Service {
	return &Service{dbtx: dbtx}
}

// Create generates a new API key for orgID after verifying caller has
// admin-role membership, and returns the raw key once.
func (s *Service) Create(ctx context.Context, caller *auth.Caller, orgID uuid.UUID, req CreateRequest) (CreateResponse, error) {
	if err := s.requireAdmin(ctx, caller, orgID); err != nil {
		return CreateResponse{}, err
	}

	raw, hash, prefix := generate()

	row, err := db.New(s.dbtx).CreateAPIKey(ctx, orgID, req.Name, prefix, hash, req.ExpiresAt)
	if err != nil {
		return CreateResponse{}, fmt.Errorf("creating api key: %w", err)
	}

	return CreateResponse{Response: ToResponse(row), RawKey: raw}, nil
}

// List returns all API keys for orgID, after verifying caller has admin-role
// membership.
func (s *Service) List(ctx context.Context, caller *auth.Caller, orgID uuid.UUID) ([]Response, error) {
	if err := s.requireAdmin(ctx, caller, orgID); err != nil {
		return nil, err
	}

	rows, err := db.New(s.dbtx).ListAPIKeysByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}

	out := make([]Response, len(rows))
	for i, row := range rows {
		out[i] = ToResponse(row)
	}
	return out, nil
}

// Revoke marks keyID as revoked within orgID, after verifying caller has
// admin-role membership. Idempotent: revoking an already-revoked key simply
// affects zero rows and returns apperr.NotFound, matching the store's report
// of "not found or already revoked".
func (s *Service) Revoke(ctx context.Context, caller *auth.Caller, orgID, keyID uuid.UUID) error {
	if err := s.requireAdmin(ctx, caller, orgID); err != nil {
		return err
	}

	revoked, err := db.New(s.dbtx).RevokeAPIKey(ctx, keyID, orgID)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if !revoked {
		return apperr.NotFound("api key not found or already revoked")
	}
	return nil
}

// requireAdmin gates key management to org-admin-role members (§4.3
// supplement "Org member roles"); API-key callers can never manage keys.
func (s *Service) requireAdmin(ctx context.Context, caller *auth.Caller, orgID uuid.UUID) error {
	if caller == nil {
		return apperr.AuthMissing("authentication required")
	}
	if caller.AuthKind == auth.AuthKindAPIKey {
		return apperr.Forbidden("API keys cannot manage other API keys")
	}
	if caller.IsAdmin {
		return nil
	}
	isAdmin, err := org.RequireAdminRole(ctx, s.dbtx, caller.UserID, orgID)
	if err != nil {
		return fmt.Errorf("checking org admin role: %w", err)
	}
	if !isAdmin {
		return apperr.Forbidden("admin role required for this org")
	}
	return nil
}

// generate creates a random API key with the "cck_" prefix, its SHA-256
// hash, and a short display prefix, the same crypto/rand + SHA-256 pattern
// sessions use (internal/auth.HashSecret).
func generate() (raw, hash, prefix string) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	raw = fmt.Sprintf("cck_%x", b)
	hash = auth.HashSecret(raw)
	prefix = raw[:10]
	return
}
