package project

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/internal/httpserver"
	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
)

// Handler provides HTTP handlers for the projects API.
type Handler struct {
	newService func(r *http.Request) *Service
	memCounter func(r *http.Request, projectID uuid.UUID) int
}

// NewHandler creates a project Handler. newService builds a per-request
// Service from the request's database connection; memCounter optionally
// annotates list responses with a memory_count (wired by internal/app to
// avoid an import cycle with pkg/memory).
func NewHandler(newService func(r *http.Request) *Service, memCounter func(r *http.Request, projectID uuid.UUID) int) *Handler {
	return &Handler{newService: newService, memCounter: memCounter}
}

// Routes returns a chi.Router with all project routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireAuth)
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())
	svc := h.newService(r)

	rows, err := svc.ListVisible(r.Context(), caller)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	resp := make([]Response, len(rows))
	for i, row := range rows {
		resp[i] = row.ToResponse()
		if h.memCounter != nil {
			resp[i].MemoryCount = h.memCounter(r, row.ID)
		}
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	caller := auth.FromContext(r.Context())
	svc := h.newService(r)

	orgID, err := resolveOrgID(r, svc, caller, req.OrgID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	row, err := svc.Create(r.Context(), caller, orgID, req.Name)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, row.ToResponse())
}

// resolveOrgID picks the target org for project creation: the API key's
// org, the request's explicit org_id (validated against membership), or —
// if the caller belongs to exactly one org — that org. Ambiguous session
// callers must supply org_id explicitly.
func resolveOrgID(r *http.Request, svc *Service, caller *auth.Caller, requested string) (uuid.UUID, error) {
	if caller != nil && caller.AuthKind == auth.AuthKindAPIKey {
		if caller.OrgID == nil {
			return uuid.Nil, apperr.Forbidden("API key is not scoped to an org")
		}
		return *caller.OrgID, nil
	}
	if requested != "" {
		id, err := uuid.Parse(requested)
		if err != nil {
			return uuid.Nil, apperr.Validation("org_id must be a valid UUID")
		}
		if err := svc.requireOrgMember(r.Context(), caller, id); err != nil {
			return uuid.Nil, err
		}
		return id, nil
	}
	orgIDs, err := svc.callerOrgs(r.Context(), caller)
	if err != nil {
		return uuid.Nil, err
	}
	if len(orgIDs) != 1 {
		return uuid.Nil, apperr.Validation("org_id is required when the caller belongs to more than one org")
	}
	return orgIDs[0], nil
}
