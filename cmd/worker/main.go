package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/gatekit/gatekit/internal/app"
	"github.com/gatekit/gatekit/internal/authz"
	"github.com/gatekit/gatekit/internal/groups"
	"github.com/gatekit/gatekit/internal/permissions"
	"github.com/gatekit/gatekit/internal/platform/cache"
	"github.com/gatekit/gatekit/internal/platform/db"
	"github.com/gatekit/gatekit/internal/roles"
	"github.com/gatekit/gatekit/internal/users"
	"github.com/gatekit/gatekit/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	assignmentRepo := users.NewRepository(pool)
	core := authz.NewService(authz.ServiceConfig{
		Permissions: permissions.NewRepository(pool),
		Roles:       roles.NewRepository(pool),
		Groups:      groups.NewRepository(pool),
		Users:       assignmentRepo,
		Cache:       authz.NewEffectiveCache(redisClient, cfg.EffectiveCacheTTL),
		Logger:      logger,
	})

	warmJob := jobs.NewWarmCacheJob(assignmentRepo, core, logger, nil, cfg.ResolveConcurrency)
	pruneJob := jobs.NewAuditPruneJob(pool, logger, nil)

	warmTask, err := jobs.NewWarmEffectiveCacheTask(jobs.WarmCachePayload{Reason: "nightly"})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	pruneTask, err := jobs.NewPruneAuditLogsTask(jobs.PruneAuditLogsPayload{})
	if err != nil {
		logger.Error("build prune task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskWarmEffectiveCache, Handler: warmJob.Handle},
			{Type: jobs.TaskPruneAuditLogs, Handler: pruneJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: warmTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
