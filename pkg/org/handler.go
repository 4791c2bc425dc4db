package org

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/internal/httpserver"
	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
)

// Handler provides HTTP handlers for the orgs API.
type Handler struct {
	newService func(r *http.Request) *Service
}

// NewHandler creates an org Handler.
func NewHandler(newService func(r *http.Request) *Service) *Handler {
	return &Handler{newService: newService}
}

// Routes returns a chi.Router with all org routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireAuth)
	r.Post("/", h.handleCreate)
	return r
}

// MeRoutes returns the /me/orgs route, mounted separately by internal/app
// since it lives under the /me prefix rather than /orgs.
func (h *Handler) MeRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireAuth)
	r.Get("/", h.handleListMine)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	caller := auth.FromContext(r.Context())
	if caller.AuthKind == auth.AuthKindAPIKey {
		httpserver.RespondAppError(w, apperr.Forbidden("API keys cannot create organizations"))
		return
	}

	svc := h.newService(r)
	row, err := svc.Create(r.Context(), caller.UserID, req.Name)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, Response{ID: row.ID, Name: row.Name, CreatedAt: row.CreatedAt})
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())
	svc := h.newService(r)
	memberships, err := svc.ListForUser(r.Context(), caller.UserID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, memberships)
}
