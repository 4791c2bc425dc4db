package memory

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/internal/httpserver"
	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
)

// Handler provides HTTP handlers for the project memories API. It is
// mounted under /projects/{id}/memories by internal/app.
type Handler struct {
	newService func(r *http.Request) *Service
}

// NewHandler creates a memory Handler.
func NewHandler(newService func(r *http.Request) *Service) *Handler {
	return &Handler{newService: newService}
}

// Routes returns a chi.Router with the memory routes mounted; it expects
// a "projectID" URL param from its parent router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireAuth)
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectIDFromPath(r)
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

	resp, err := svc.Create(r.Context(), caller, projectID, req)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	status := http.StatusCreated
	if resp.Idempotent {
		status = http.StatusOK
	}
	httpserver.Respond(w, status, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectIDFromPath(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	caller := auth.FromContext(r.Context())
	svc := h.newService(r)

	rows, err := svc.List(r.Context(), caller, projectID, params.Limit, params.Offset)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	total, err := svc.Count(r.Context(), projectID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	resp := make([]Response, len(rows))
	for i, row := range rows {
		resp[i] = row.ToResponse()
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(resp, params, total))
}

func projectIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "projectID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("project id must be a valid UUID")
	}
	return id, nil
}
