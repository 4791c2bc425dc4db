// Package invite implements magic-link invite issuance, acceptance, and
// revocation, plus the waitlist that feeds it (§4.7).
package invite

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is an Invite's lifecycle state, computed from its timestamps
// rather than stored directly (§4.7: expiry is passive, on read).
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusExpired  Status = "expired"
	StatusRevoked  Status = "revoked"
)

// CreateRequest is the JSON body for POST /admin/invites.
type CreateRequest struct {
	Email string `json:"email" validate:"required,email"`
	Notes string `json:"notes"`
}

// Row is the persisted shape of an invite.
type Row struct {
	ID         uuid.UUID
	Email      string
	TokenHash  string
	CreatedBy  uuid.UUID
	Notes      string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	RevokedAt  *time.Time
}

// Status derives the invite's current lifecycle state from its timestamps.
func (r Row) Status() Status {
	switch {
	case r.RevokedAt != nil:
		return StatusRevoked
	case r.AcceptedAt != nil:
		return StatusAccepted
	case time.Now().After(r.ExpiresAt):
		return StatusExpired
	default:
		return StatusPending
	}
}

// Response is the JSON representation of an invite.
type Response struct {
	ID         uuid.UUID  `json:"id"`
	Email      string     `json:"email"`
	Notes      string     `json:"notes,omitempty"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// ToResponse converts a Row to its API Response.
func (r Row) ToResponse() Response {
	return Response{
		ID:         r.ID,
		Email:      r.Email,
		Notes:      r.Notes,
		Status:     r.Status(),
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
		AcceptedAt: r.AcceptedAt,
		RevokedAt:  r.RevokedAt,
	}
}

// CreateResponse additionally carries the dev-mode magic link when no
// mailer is configured (§4.7).
type CreateResponse struct {
	Response
	DebugLink string `json:"debug_link,omitempty"`
}

// NormalizeEmail lowercases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
