package apikey

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/internal/httpserver"
	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
)

// Handler provides HTTP handlers for the org-scoped API keys API, mounted
// under /orgs/{id}/api-keys by internal/app.
type Handler struct {
	newService func(r *http.Request) *Service
}

// NewHandler creates an API key Handler.
func NewHandler(newService func(r *http.Request) *Service) *Handler {
	return &Handler{newService: newService}
}

// Routes returns a chi.Router with all API key routes mounted; it expects
// an "orgID" URL param from its parent router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireAuth)
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Post("/{keyID}/revoke", h.handleRevoke)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	orgID, err := orgIDFromPath(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	caller := auth.FromContext(r.Context())
	svc := h.newService(r)

	resp, err := svc.Create(r.Context(), caller, orgID, req)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	orgID, err := orgIDFromPath(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	caller := auth.FromContext(r.Context())
	svc := h.newService(r)

	items, err := svc.List(r.Context(), caller, orgID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, items)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	orgID, err := orgIDFromPath(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
	if err != nil {
		httpserver.RespondAppError(w, apperr.Validation("api key id must be a valid UUID"))
		return
	}

	caller := auth.FromContext(r.Context())
	svc := h.newService(r)

	if err := svc.Revoke(r.Context(), caller, orgID, keyID); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func orgIDFromPath(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		return uuid.Nil, apperr.Validation("org id must be a valid UUID")
	}
	return id, nil
}
