// Package auth implements the identity perimeter (§4.2): session-cookie and
// API-key authentication, and the RBAC gates built on top of the resolved
// Caller.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// AuthKind distinguishes how the current Caller was authenticated.
type AuthKind string

const (
	AuthKindSession AuthKind = "session"
	AuthKindAPIKey  AuthKind = "api_key"
)

// Caller is the resolved identity for the current request (§4.2's Output).
type Caller struct {
	UserID      uuid.UUID
	Email       string
	OrgID       *uuid.UUID // nil for cross-org endpoints (e.g. /me/orgs)
	IsAdmin     bool
	IsUnlimited bool
	AuthKind    AuthKind
	APIKeyID    *uuid.UUID // set when AuthKind == AuthKindAPIKey
	SessionID   *uuid.UUID // set when AuthKind == AuthKindSession
}

// PrincipalID returns the identity a per-day usage counter should accrue
// against: the API key's own id for key-authenticated callers (API keys
// aren't tied to a user per spec.md's ApiKey entity), or the user id for
// session-authenticated callers. Using the zero-value UserID directly for
// API-key callers would pool every org's key traffic into one counter row.
func (c *Caller) PrincipalID() uuid.UUID {
	if c.AuthKind == AuthKindAPIKey && c.APIKeyID != nil {
		return *c.APIKeyID
	}
	return c.UserID
}

type ctxKey string

const callerKey ctxKey = "cc_caller"

// NewContext stores the caller in the context.
func NewContext(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// FromContext extracts the caller from the context, or nil if unauthenticated.
func FromContext(ctx context.Context) *Caller {
	v, _ := ctx.Value(callerKey).(*Caller)
	return v
}

// HashSecret returns the SHA-256 hex digest of a raw secret (API key or
// session token). Only this digest is ever persisted.
func HashSecret(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
