// Package app wires every package into a running ContextCache process:
// config, storage, the HTTP API, and the background job dispatcher.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thecontextcache/contextcache-sub001/internal/auth"
	"github.com/thecontextcache/contextcache-sub001/internal/config"
	"github.com/thecontextcache/contextcache-sub001/internal/db"
	"github.com/thecontextcache/contextcache-sub001/internal/httpserver"
	"github.com/thecontextcache/contextcache-sub001/internal/platform"
	"github.com/thecontextcache/contextcache-sub001/internal/telemetry"
	"github.com/thecontextcache/contextcache-sub001/pkg/apikey"
	"github.com/thecontextcache/contextcache-sub001/pkg/dispatcher"
	"github.com/thecontextcache/contextcache-sub001/pkg/invite"
	"github.com/thecontextcache/contextcache-sub001/pkg/mailer"
	"github.com/thecontextcache/contextcache-sub001/pkg/memory"
	"github.com/thecontextcache/contextcache-sub001/pkg/org"
	"github.com/thecontextcache/contextcache-sub001/pkg/pack"
	"github.com/thecontextcache/contextcache-sub001/pkg/project"
	"github.com/thecontextcache/contextcache-sub001/pkg/quota"
	"github.com/thecontextcache/contextcache-sub001/pkg/ratelimit"
	"github.com/thecontextcache/contextcache-sub001/pkg/recall"
	"github.com/thecontextcache/contextcache-sub001/pkg/user"
)

const serviceVersion = "dev"

// Run is the application entry point: it reads config, connects to
// infrastructure, and serves the API (or, in worker mode, just the
// dispatcher) until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting contextcache", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "contextcache", serviceVersion)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	// --- Domain services, shared between api and worker modes ---

	ledger := quota.NewLedger(quota.Caps{
		MemoryCreatedPerDay:  cfg.QuotaMemoryWritesPerDay,
		RecallQueryPerDay:    cfg.QuotaRecallsPerDay,
		ProjectCreatedPerDay: cfg.QuotaProjectsPerDay,
	})

	jobFailures := dispatcher.NewStore(pool)
	jobDispatcher := dispatcher.NewRedis(dispatcher.NewRedisJobBackend(rdb), cfg.DispatcherWorkers, cfg.DispatcherQueueCap, jobFailures, logger)
	jobDispatcher.Handle(dispatcher.TaskReindex, newReindexHandler(pool, logger))

	projectSvc := project.NewService(pool, ledger)
	memorySvc := memory.NewService(pool, projectSvc, ledger, jobDispatcher)
	recallSvc := recall.NewService(pool, projectSvc, ledger)
	orgSvc := org.NewService(pool)
	apikeySvc := apikey.NewService(pool)

	if cfg.Mode == "worker" {
		logger.Info("worker started")
		jobDispatcher.Start(ctx)
		<-ctx.Done()
		return nil
	}

	// --- API mode ---

	sessionMgr := auth.NewSessionManager(pool, cfg.SessionMaxAge, cfg.SessionSecureCookie)
	apiKeyAuth := auth.NewAPIKeyAuthenticator(pool)
	loginRateLimiter := auth.NewRateLimiter(rdb, 10, 15*time.Minute)

	var m mailer.Mailer
	if cfg.SMTPHost == "" {
		m = mailer.NewLogMailer(logger)
		logger.Info("mailer: logging instead of sending (SMTP_HOST not set)")
	} else {
		m = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		logger.Info("mailer: SMTP configured", "host", cfg.SMTPHost)
	}

	userSvc := user.NewService(pool, rdb, sessionMgr, loginRateLimiter, m, ledger)
	inviteSvc := invite.NewService(pool, sessionMgr, m, cfg.InviteLinkTTL)

	srv := httpserver.NewServer(cfg, logger, pool, rdb, m, metricsReg, apiKeyAuth, sessionMgr)

	reqLimiter := ratelimit.New(rdb, []ratelimit.Window{
		{Name: "minute", Period: time.Minute, Max: cfg.RateLimitPerMinute},
		{Name: "hour", Period: time.Hour, Max: cfg.RateLimitPerHour},
	})
	srv.APIRouter.Use(ratelimit.Middleware(reqLimiter))

	// Handlers
	inviteHandler := invite.NewHandler(inviteSvc)
	userHandler := user.NewHandler(userSvc, inviteHandler)
	orgHandler := org.NewHandler(func(*http.Request) *org.Service { return orgSvc })
	apikeyHandler := apikey.NewHandler(func(*http.Request) *apikey.Service { return apikeySvc })
	projectHandler := project.NewHandler(
		func(*http.Request) *project.Service { return projectSvc },
		func(r *http.Request, projectID uuid.UUID) int {
			n, err := memorySvc.Count(r.Context(), projectID)
			if err != nil {
				return 0
			}
			return n
		},
	)
	memoryHandler := memory.NewHandler(func(*http.Request) *memory.Service { return memorySvc })
	recallHandler := recall.NewHandler(func(*http.Request) *recall.Service { return recallSvc }, pack.DefaultByteBudget)

	// Unauthenticated routes.
	srv.Router.Mount("/auth", userHandler.PublicRoutes())
	srv.Router.Mount("/waitlist", inviteHandler.PublicRoutes())

	// Authenticated routes — auth.Middleware on srv.APIRouter populates the
	// caller and rejects only an invalid API key (401); each handler's own
	// router applies auth.RequireAuth.
	srv.APIRouter.Mount("/auth", userHandler.Routes())
	srv.APIRouter.Mount("/me", userHandler.UsageRoutes())
	srv.APIRouter.Mount("/me/orgs", orgHandler.MeRoutes())
	srv.APIRouter.Mount("/orgs", orgHandler.Routes())
	srv.APIRouter.Mount("/orgs/{orgID}/api-keys", apikeyHandler.Routes())
	srv.APIRouter.Mount("/projects", projectHandler.Routes())
	srv.APIRouter.Mount("/projects/{projectID}/memories", memoryHandler.Routes())
	srv.APIRouter.Mount("/projects/{projectID}/recall", recallHandler.Routes())
	srv.APIRouter.Mount("/admin/invites", inviteHandler.AdminInviteRoutes())
	srv.APIRouter.Mount("/admin/waitlist", inviteHandler.AdminWaitlistRoutes())

	go jobDispatcher.Start(ctx)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// reindexPayload is the JSON body dispatcher.EnqueueReindex marshals.
type reindexPayload struct {
	ProjectID uuid.UUID `json:"project_id"`
}

// newReindexHandler builds the handler for dispatcher.TaskReindex. memories'
// search column is a Postgres GENERATED ALWAYS AS ... STORED tsvector, so
// there is no index to rebuild at the database level; this handler instead
// confirms the project referenced by the job still exists; a project
// deleted between enqueue and run is a legitimate transient failure that
// exercises the dispatcher's retry-then-record-failure path.
func newReindexHandler(pool *pgxpool.Pool, logger *slog.Logger) dispatcher.Handler {
	return func(ctx context.Context, payload []byte) error {
		var msg reindexPayload
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("decoding reindex payload: %w", err)
		}
		if _, err := db.New(pool).ProjectOwnerOrg(ctx, msg.ProjectID); err != nil {
			return fmt.Errorf("reindex: project %s: %w", msg.ProjectID, err)
		}
		logger.Debug("reindex processed", "project_id", msg.ProjectID)
		return nil
	}
}
