package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/toolroom-mes/toolroom/internal/jobs"
	"github.com/toolroom-mes/toolroom/internal/rbac"
)

// CacheWarmJob resolves effective permissions for active principals so
// the first authorization check of a shift is served from cache.
type CacheWarmJob struct {
	Pool    *pgxpool.Pool
	RBAC    *rbac.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCacheWarmJob wires dependencies for the warmup handler.
func NewCacheWarmJob(pool *pgxpool.Pool, rbacSvc *rbac.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheWarmJob {
	return &CacheWarmJob{Pool: pool, RBAC: rbacSvc, Logger: logger, Metrics: metrics}
}

// Handle executes the cache warmup.
func (j *CacheWarmJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("cache warm: handler not configured")
	}
	var payload CacheWarmPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = 500
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskPermissionCacheWarm)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	ids, err := j.activePrincipals(ctx, payload.Limit)
	if err != nil {
		resultErr = err
		logger.Error("list active principals", slog.Any("error", err))
		return resultErr
	}

	warmed := 0
	for _, id := range ids {
		if _, err := j.RBAC.EffectivePermissions(ctx, id); err != nil {
			logger.Warn("warm principal", slog.Int64("principal_id", id), slog.Any("error", err))
			continue
		}
		warmed++
	}

	logger.Info("completed permission cache warmup",
		slog.Int("principals", len(ids)),
		slog.Int("warmed", warmed),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *CacheWarmJob) activePrincipals(ctx context.Context, limit int) ([]int64, error) {
	if j.Pool == nil {
		return nil, errors.New("cache warm: pool not configured")
	}
	rows, err := j.Pool.Query(ctx,
		`SELECT id FROM principals WHERE is_active ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *CacheWarmJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPermissionCacheWarm))
	}
	return slog.Default().With(slog.String("job", TaskPermissionCacheWarm))
}

func (j *CacheWarmJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
