// Package user implements the caller-facing identity and usage endpoints:
// /auth/me, /auth/request-link, /auth/logout, /me/usage.
package user

import (
	"github.com/google/uuid"

	"github.com/thecontextcache/contextcache-sub001/pkg/quota"
)

// MeResponse is the JSON shape for GET /auth/me.
type MeResponse struct {
	User struct {
		ID    uuid.UUID `json:"id"`
		Email string    `json:"email"`
	} `json:"user"`
	IsAdmin     bool `json:"is_admin"`
	IsUnlimited bool `json:"is_unlimited"`
}

// RequestLinkRequest is the JSON body for POST /auth/request-link.
type RequestLinkRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RequestLinkResponse is the JSON response for POST /auth/request-link.
type RequestLinkResponse struct {
	Sent      bool   `json:"sent"`
	DebugLink string `json:"debug_link,omitempty"`
}

// UsageResponse is the JSON shape for GET /me/usage.
type UsageResponse struct {
	MemoriesCreated int        `json:"memories_created"`
	RecallQueries   int        `json:"recall_queries"`
	ProjectsCreated int        `json:"projects_created"`
	Limits          quota.Caps `json:"limits"`
}

// ToUsageResponse converts a quota.Usage snapshot into its API response.
func ToUsageResponse(u quota.Usage) UsageResponse {
	return UsageResponse{
		MemoriesCreated: u.MemoriesCreated,
		RecallQueries:   u.RecallQueries,
		ProjectsCreated: u.ProjectsCreated,
		Limits:          u.Caps,
	}
}
