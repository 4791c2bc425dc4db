package user

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/internal/httpserver"
	"github.com/thecontextcache/contextcache-sub001/pkg/apperr"
)

// InviteAcceptor is the subset of pkg/invite.Handler needed to fall back to
// invite acceptance when a /auth/verify token isn't a login link. Accepting
// an interface here instead of importing pkg/invite directly keeps the two
// packages from depending on each other.
type InviteAcceptor interface {
	VerifyAccept(w http.ResponseWriter, r *http.Request)
}

// Handler provides the identity and usage HTTP handlers.
type Handler struct {
	svc     *Service
	invites InviteAcceptor
}

// NewHandler creates a user Handler. invites may be nil if invite-based
// signup is disabled, in which case /auth/verify only ever resolves login
// links.
func NewHandler(svc *Service, invites InviteAcceptor) *Handler {
	return &Handler{svc: svc, invites: invites}
}

// Routes returns the authenticated identity routes, mounted under /auth by
// internal/app; UsageRoutes is the one mounted under /me.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireAuth)
	r.Get("/me", h.handleMe)
	r.Post("/logout", h.handleLogout)
	return r
}

// UsageRoutes returns the GET /me/usage route.
func (h *Handler) UsageRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireAuth)
	r.Get("/usage", h.handleUsage)
	return r
}

// PublicRoutes returns the unauthenticated /auth/request-link and
// /auth/verify routes.
func (h *Handler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/request-link", h.handleRequestLink)
	r.Get("/verify", h.handleVerify)
	return r
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())
	httpserver.Respond(w, http.StatusOK, h.svc.Me(caller))
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())
	resp, err := h.svc.Usage(r.Context(), caller)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())
	if err := h.svc.Logout(r.Context(), w, caller); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleRequestLink(w http.ResponseWriter, r *http.Request) {
	var req RequestLinkRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	resp, err := h.svc.RequestLink(r.Context(), clientIP(r), req.Email)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

// handleVerify serves GET /auth/verify?token=... for both passwordless login
// links and invite-acceptance links. A login link is tried first since it is
// the cheaper, more common case; a miss falls back to invite acceptance
// rather than failing outright, since the two token namespaces don't overlap.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httpserver.RespondAppError(w, apperr.Validation("token is required"))
		return
	}

	_, err := h.svc.VerifyLink(r.Context(), w, token)
	if err == nil {
		http.Redirect(w, r, "/app", http.StatusFound)
		return
	}
	if !apperr.Is(err, apperr.KindAuthInvalid) || h.invites == nil {
		httpserver.RespondAppError(w, err)
		return
	}

	h.invites.VerifyAccept(w, r)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
