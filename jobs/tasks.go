package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskWarmEffectiveCache rebuilds cached effective-permission sets for
	// every assigned user.
	TaskWarmEffectiveCache = "authz:warm_cache"
	// TaskPruneAuditLogs trims old audit log rows.
	TaskPruneAuditLogs = "audit:prune"
)

// WarmCachePayload describes a cache warmup request.
type WarmCachePayload struct {
	// Reason records what triggered the warmup, for logs only.
	Reason string `json:"reason,omitempty"`
}

// NewWarmEffectiveCacheTask constructs an Asynq task.
func NewWarmEffectiveCacheTask(payload WarmCachePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWarmEffectiveCache, data), nil
}

// PruneAuditLogsPayload describes an audit prune request.
type PruneAuditLogsPayload struct {
	// RetainDays keeps rows newer than this many days. Zero means the
	// default retention of 90 days.
	RetainDays int `json:"retain_days,omitempty"`
}

// NewPruneAuditLogsTask constructs an Asynq task.
func NewPruneAuditLogsTask(payload PruneAuditLogsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPruneAuditLogs, data), nil
}
