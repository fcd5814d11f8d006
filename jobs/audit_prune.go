package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/gatekit/gatekit/internal/jobs"
)

const defaultAuditRetentionDays = 90

// AuditPruneJob trims audit_logs rows past the retention window.
type AuditPruneJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditPruneJob wires dependencies for the prune handler.
func NewAuditPruneJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditPruneJob {
	return &AuditPruneJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle processes audit prune tasks.
func (j *AuditPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("audit prune: handler not configured")
	}
	var payload PruneAuditLogsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retainDays := payload.RetainDays
	if retainDays <= 0 {
		retainDays = defaultAuditRetentionDays
	}

	tracker := j.metrics().Track(TaskPruneAuditLogs)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	tag, err := j.Pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < NOW() - ($1 * INTERVAL '1 day')`, retainDays)
	if err != nil {
		resultErr = err
		j.logger().Error("prune audit logs", slog.Any("error", err))
		return resultErr
	}
	j.logger().Info("pruned audit logs", slog.Int64("rows", tag.RowsAffected()), slog.Int("retain_days", retainDays))
	return resultErr
}

func (j *AuditPruneJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPruneAuditLogs))
	}
	return slog.Default().With(slog.String("job", TaskPruneAuditLogs))
}

func (j *AuditPruneJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
