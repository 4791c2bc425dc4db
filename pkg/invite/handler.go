package invite

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/internal/httpserver"
	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
)

// Handler provides HTTP handlers for invites and the waitlist.
type Handler struct {
	svc *Service
}

// NewHandler creates an invite Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// AdminInviteRoutes returns the admin-gated invite management routes,
// mounted at /admin/invites.
func (h *Handler) AdminInviteRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireAuth, auth.RequireAdmin)
	r.Post("/", h.handleCreateInvite)
	r.Get("/", h.handleListInvites)
	r.Post("/{id}/revoke", h.handleRevokeInvite)
	return r
}

// AdminWaitlistRoutes returns the admin-gated waitlist review routes,
// mounted at /admin/waitlist.
func (h *Handler) AdminWaitlistRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireAuth, auth.RequireAdmin)
	r.Get("/", h.handleListWaitlist)
	r.Post("/{id}/approve", h.handleApproveWaitlist)
	r.Post("/{id}/reject", h.handleRejectWaitlist)
	return r
}

// PublicRoutes returns the unauthenticated /waitlist/join route.
func (h *Handler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/join", h.handleJoinWaitlist)
	return r
}

// VerifyAccept handles GET /auth/verify?token=...: consumes the invite,
// issues a session, and redirects to the app. It is not mounted as a route
// of its own: pkg/user's /auth/verify handler falls back to it.
func (h *Handler) VerifyAccept(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httpserver.RespondAppError(w, apperr.Validation("token is required"))
		return
	}

	if _, err := h.svc.Accept(r.Context(), w, token); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	http.Redirect(w, r, "/app", http.StatusFound)
}

func (h *Handler) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	caller := auth.FromContext(r.Context())
	resp, err := h.svc.Create(r.Context(), caller.UserID, req)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, resp)
}

func (h *Handler) handleListInvites(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	emailQ := r.URL.Query().Get("email_q")

	rows, err := h.svc.List(r.Context(), emailQ, params.Limit, params.Offset)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	resp := make([]Response, len(rows))
	for i, row := range rows {
		resp[i] = row.ToResponse()
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleRevokeInvite(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppError(w, apperr.Validation("invite id must be a valid UUID"))
		return
	}
	if err := h.svc.Revoke(r.Context(), id); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleJoinWaitlist(w http.ResponseWriter, r *http.Request) {
	var req WaitlistJoinRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if err := h.svc.Join(r.Context(), req); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleListWaitlist(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	status := WaitlistStatus(r.URL.Query().Get("status"))

	rows, err := h.svc.ListWaitlist(r.Context(), status, params.Limit, params.Offset)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	resp := make([]WaitlistResponse, len(rows))
	for i, row := range rows {
		resp[i] = row.ToResponse()
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleApproveWaitlist(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppError(w, apperr.Validation("waitlist entry id must be a valid UUID"))
		return
	}
	caller := auth.FromContext(r.Context())
	resp, err := h.svc.ApproveWaitlist(r.Context(), caller.UserID, id)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleRejectWaitlist(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppError(w, apperr.Validation("waitlist entry id must be a valid UUID"))
		return
	}
	if err := h.svc.RejectWaitlist(r.Context(), id); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]bool{"ok": true})
}
