// Package project implements the project entity: org-scoped containers for
// memories, with membership-based access control (§3, §4.2).
package project

import (
	"time"

	"github.com/google/uuid"
)

// CreateRequest is the JSON body for POST /projects.
type CreateRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
	// OrgID is required for session-authenticated callers who belong to
	// more than one org; a caller with exactly one org defaults to it.
	// API-key callers are already org-scoped and this field is ignored for
	// them.
	OrgID string `json:"org_id" validate:"omitempty,uuid"`
}

// Row is the persisted shape of a project.
type Row struct {
	ID        uuid.UUID
	OrgID     uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Response is the JSON representation of a project, optionally carrying its
// memory count for GET /projects.
type Response struct {
	ID          uuid.UUID `json:"id"`
	OrgID       uuid.UUID `json:"org_id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	MemoryCount int       `json:"memory_count,omitempty"`
}

// ToResponse converts a Row to its API Response.
func (r Row) ToResponse() Response {
	return Response{ID: r.ID, OrgID: r.OrgID, Name: r.Name, CreatedAt: r.CreatedAt}
}
