package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gatekit/gatekit/internal/app"
	"github.com/gatekit/gatekit/internal/audit"
	"github.com/gatekit/gatekit/internal/authz"
	"github.com/gatekit/gatekit/internal/flags"
	"github.com/gatekit/gatekit/internal/groups"
	"github.com/gatekit/gatekit/internal/observability"
	"github.com/gatekit/gatekit/internal/permissions"
	"github.com/gatekit/gatekit/internal/platform/cache"
	"github.com/gatekit/gatekit/internal/platform/db"
	"github.com/gatekit/gatekit/internal/roles"
	"github.com/gatekit/gatekit/internal/shared"
	"github.com/gatekit/gatekit/internal/users"
	"github.com/gatekit/gatekit/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	permissionRepo := permissions.NewRepository(dbpool)
	roleRepo := roles.NewRepository(dbpool)
	groupRepo := groups.NewRepository(dbpool)
	assignmentRepo := users.NewRepository(dbpool)

	warmClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := warmClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	core := authz.NewService(authz.ServiceConfig{
		Permissions: permissionRepo,
		Roles:       roleRepo,
		Groups:      groupRepo,
		Users:       assignmentRepo,
		Cache:       authz.NewEffectiveCache(redisClient, cfg.EffectiveCacheTTL),
		Audit:       auditLogger,
		Warmer:      warmClient,
		Logger:      logger,
		Metrics:     metrics,
	})
	authzMiddleware := authz.Middleware{Service: core, Logger: logger}

	permissionService := permissions.NewService(permissionRepo, core, auditLogger, logger)
	permissionHandler := permissions.NewHandler(logger, permissionService, authzMiddleware)

	roleService := roles.NewService(roleRepo, groupRepo, core, auditLogger, logger)
	roleHandler := roles.NewHandler(logger, roleService, authzMiddleware)

	groupService := groups.NewService(groupRepo, core.Enforcer(), core, auditLogger, logger)
	groupHandler := groups.NewHandler(logger, groupService, authzMiddleware)

	userService := users.NewService(core, assignmentRepo)
	userHandler := users.NewHandler(logger, userService, authzMiddleware)

	flagRepo := flags.NewRepository(dbpool)
	flagService := flags.NewService(flagRepo, redisClient, time.Minute, auditLogger, logger)
	flagHandler := flags.NewHandler(logger, flagService, authzMiddleware)

	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audit.NewHandler(logger, auditService, authzMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		PermissionsHandler: permissionHandler,
		RolesHandler:       roleHandler,
		GroupsHandler:      groupHandler,
		UsersHandler:       userHandler,
		FlagsHandler:       flagHandler,
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
