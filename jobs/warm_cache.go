package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/gatekit/gatekit/internal/authz"
	jobmetrics "github.com/gatekit/gatekit/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// UserLister enumerates users with at least one assignment.
type UserLister interface {
	ListAssignedUserIDs(ctx context.Context) ([]string, error)
}

// Resolver computes a user's effective permissions, populating the shared
// cache as a side effect.
type Resolver interface {
	ResolveEffectivePermissions(ctx context.Context, userID string) ([]authz.EffectivePermission, error)
}

// WarmCacheJob rebuilds the effective-permission cache for every assigned
// user after catalog-wide mutations.
type WarmCacheJob struct {
	Users       UserLister
	Resolver    Resolver
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

// NewWarmCacheJob wires dependencies for the warmup handler.
func NewWarmCacheJob(users UserLister, resolver Resolver, logger *slog.Logger, metrics *jobmetrics.Metrics, concurrency int) *WarmCacheJob {
	return &WarmCacheJob{Users: users, Resolver: resolver, Logger: logger, Metrics: metrics, Concurrency: concurrency}
}

// Handle processes warm-cache tasks.
func (j *WarmCacheJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Users == nil || j.Resolver == nil {
		return errors.New("warm cache: handler not configured")
	}
	var payload WarmCachePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskWarmEffectiveCache)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if payload.Reason != "" {
		logger = logger.With(slog.String("reason", payload.Reason))
	}
	start := time.Now()
	logger.Info("starting effective cache warmup")

	userIDs, err := j.Users.ListAssignedUserIDs(ctx)
	if err != nil {
		resultErr = err
		logger.Error("list assigned users", slog.Any("error", err))
		return resultErr
	}
	if len(userIDs) == 0 {
		logger.Info("no assigned users to warm")
		return resultErr
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(j.concurrency())
	for _, userID := range userIDs {
		group.Go(func() error {
			if _, err := j.Resolver.ResolveEffectivePermissions(groupCtx, userID); err != nil {
				return err
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		resultErr = err
		logger.Error("warm user", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed effective cache warmup", slog.Int("users", len(userIDs)), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *WarmCacheJob) concurrency() int {
	if j.Concurrency > 0 {
		return j.Concurrency
	}
	return 8
}

func (j *WarmCacheJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskWarmEffectiveCache))
	}
	return slog.Default().With(slog.String("job", TaskWarmEffectiveCache))
}

func (j *WarmCacheJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
