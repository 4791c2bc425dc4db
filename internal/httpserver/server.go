package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/internal/config"
	"github.com/thecontextcache/contextcache-sub001/pkg/mailer"
)

// healthChecker is satisfied by a Mailer that can report its own readiness
// without sending anything. Both LogMailer and SMTPMailer implement it.
type healthChecker interface {
	Healthy() bool
}

// Server holds the HTTP server dependencies.
type Server struct {
	Router    *chi.Mux
	APIRouter chi.Router // authenticated group on Router, no path prefix
	Logger    *slog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Mailer    mailer.Mailer
	Metrics   *prometheus.Registry
	startedAt time.Time
}

// NewServer creates an HTTP server with the standard middleware chain and
// health/metrics endpoints mounted, and an authenticated APIRouter ready for
// domain handlers to be mounted onto by the caller (internal/app).
func NewServer(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, m mailer.Mailer, metricsReg *prometheus.Registry, apiKeyAuth *auth.APIKeyAuthenticator, sessionMgr *auth.SessionManager) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		Redis:     rdb,
		Mailer:    m,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(chimiddleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Api-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (unauthenticated).
	s.Router.Get("/health", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)

	// Prometheus metrics (unauthenticated).
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	// API routes. The auth middleware populates the Caller in context and
	// rejects only a request whose API key fails authentication; requests
	// without credentials pass through anonymously. Routes that require an
	// identity use auth.RequireAuth.
	s.Router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(apiKeyAuth, sessionMgr, db, logger))
		s.APIRouter = r
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// healthChecks is the body shape `GET /health` returns: per-dependency
// status alongside the overall status.
type healthChecks struct {
	Store  string `json:"store"`
	Queue  string `json:"queue"`
	Mailer string `json:"mailer"`
}

type healthResponse struct {
	Status string       `json:"status"`
	Checks healthChecks `json:"checks"`
}

// checkHealth pings the store and queue and asks the mailer to self-report,
// returning the response body and whether the store is reachable (the only
// check that downgrades the HTTP status).
func (s *Server) checkHealth(ctx context.Context) (healthResponse, bool) {
	checks := healthChecks{Store: "ok", Queue: "ok", Mailer: "ok"}
	storeOK := true

	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("health check: database ping failed", "error", err)
		checks.Store = "unreachable"
		storeOK = false
	}

	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Logger.Error("health check: redis ping failed", "error", err)
		checks.Queue = "unreachable"
	}

	if hc, ok := s.Mailer.(healthChecker); ok && !hc.Healthy() {
		checks.Mailer = "unreachable"
	}

	status := "ok"
	if !storeOK {
		status = "error"
	}
	return healthResponse{Status: status, Checks: checks}, storeOK
}

// handleHealthz implements `GET /health`: store, queue, and mailer checks,
// 503 only when the store is unreachable — the queue and mailer degrade
// gracefully (dispatcher fallback, logged mail) so their failure alone
// isn't fatal to the API.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp, storeOK := s.checkHealth(r.Context())
	status := http.StatusOK
	if !storeOK {
		status = http.StatusServiceUnavailable
	}
	Respond(w, status, resp)
}

// handleReadyz is the same check under the conventional Kubernetes
// readiness-probe path.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	resp, storeOK := s.checkHealth(r.Context())
	status := http.StatusOK
	if !storeOK {
		status = http.StatusServiceUnavailable
	}
	Respond(w, status, resp)
}
