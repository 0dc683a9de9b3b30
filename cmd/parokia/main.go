package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/parokia/parokia/internal/app"
	"github.com/parokia/parokia/internal/auth"
	"github.com/parokia/parokia/internal/gate"
	"github.com/parokia/parokia/internal/observability"
	"github.com/parokia/parokia/internal/platform/cache"
	"github.com/parokia/parokia/internal/platform/db"
	"github.com/parokia/parokia/internal/rbac"
	"github.com/parokia/parokia/internal/roles"
	"github.com/parokia/parokia/internal/shared"
	"github.com/parokia/parokia/internal/users"
	"github.com/parokia/parokia/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, "parokia_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)

	if cfg.SuperAdminBootstrapEmail == "" {
		logger.Warn("SUPERADMIN_BOOTSTRAP_EMAIL not set; nobody is admitted while the role store is unavailable")
	}
	roleStore := rbac.NewBreakerStore(rbac.NewPGStore(dbpool), rbac.BreakerConfig{
		FailureThreshold: cfg.RBACBreakerFailures,
		Timeout:          cfg.RBACBreakerTimeout,
		Logger:           logger,
	})
	resolver := rbac.NewResolver(rbac.ResolverConfig{
		Store:                       roleStore,
		SuperAdminBootstrapIdentity: cfg.SuperAdminBootstrapEmail,
		Logger:                      logger,
		Observer:                    metrics,
	})

	usersRepo := users.NewRepository(dbpool)
	monitor := gate.NewMonitor(gate.IntegrityConfig{
		MaxAge: cfg.SessionMaxAge,
		BindIP: cfg.SessionBindIP,
	}, sessionManager, csrfManager, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	var lastLogin gate.LastLoginToucher = usersRepo
	if cfg.LastLoginAsync {
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		lastLogin = jobClient
	}

	guard := gate.NewGuard(gate.GuardConfig{
		Principals: usersRepo,
		Resolver:   resolver,
		Monitor:    monitor,
		LastLogin:  lastLogin,
		Audit:      auditLogger,
		Observer:   metrics,
		Logger:     logger,
	})

	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, guard, resolver)
	usersHandler := users.NewHandler(logger, users.NewService(usersRepo, auditLogger), guard)
	rolesHandler := roles.NewHandler(logger, roles.NewService(roles.NewRepository(dbpool), auditLogger), guard)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Guard:          guard,
		AuthHandler:    authHandler,
		RolesHandler:   rolesHandler,
		UsersHandler:   usersHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server starting", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
