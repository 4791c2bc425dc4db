// Package apikey implements org-scoped API key issuance, listing, and
// revocation (§4.8).
package apikey

import (
	"time"

	"github.com/google/uuid"

	"github.com/thecontextcache/contextcache-sub001/internal/db"
)

// CreateRequest is the JSON body for POST /orgs/{id}/api-keys.
type CreateRequest struct {
	Name      string     `json:"name" validate:"required,min=1,max=100"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Response is the JSON representation of an API key, without its secret.
type Response struct {
	ID         uuid.UUID  `json:"id"`
	OrgID      uuid.UUID  `json:"org_id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// CreateResponse additionally carries the raw key, shown only once.
type CreateResponse struct {
	Response
	RawKey string `json:"raw_key"`
}

// ToResponse converts a db.APIKey row into its API Response, never
// exposing the hash.
func ToResponse(k db.APIKey) Response {
	return Response{
		ID:         k.ID,
		OrgID:      k.OrgID,
		Name:       k.Name,
		Prefix:     k.Prefix,
		CreatedAt:  k.CreatedAt,
		ExpiresAt:  k.ExpiresAt,
		RevokedAt:  k.RevokedAt,
		LastUsedAt: k.LastUsedAt,
	}
}
