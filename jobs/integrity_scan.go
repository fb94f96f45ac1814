package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/toolroom-mes/toolroom/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// IntegrityScanJob walks per-entity workflow chains and reports records
// whose origin state does not match the previous record's destination.
// The scan is read only; findings surface through logs and metrics.
type IntegrityScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewIntegrityScanJob initialises the integrity scan handler.
func NewIntegrityScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the integrity scan logic.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("integrity scan: handler not configured")
	}
	var payload IntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskHistoryIntegrityScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if payload.EntityType != "" {
		logger = logger.With(slog.String("entity_type", payload.EntityType))
	}
	logger.Info("starting history integrity scan")

	chains, breaks, err := j.scan(ctx, payload)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}

	perType := make(map[string]int)
	for _, b := range breaks {
		logger.Warn("workflow chain break",
			slog.String("entity_type", b.EntityType),
			slog.Int64("entity_id", b.EntityID),
			slog.Int64("record_id", b.RecordID),
			slog.String("expected_from", b.ExpectedFrom),
			slog.String("actual_from", b.ActualFrom),
		)
		perType[b.EntityType]++
	}
	for entityType, count := range perType {
		j.metrics().AddChainBreaks(entityType, count)
	}

	logger.Info("completed history integrity scan",
		slog.Int("chains", chains),
		slog.Int("breaks", len(breaks)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *IntegrityScanJob) scan(ctx context.Context, payload IntegrityScanPayload) (int, []chainBreak, error) {
	if j.Pool == nil {
		return 0, nil, errors.New("integrity scan: pool not configured")
	}
	query := `SELECT id, entity_type, entity_id, from_state, to_state
		FROM workflow_history`
	var args []any
	if payload.EntityType != "" {
		query += ` WHERE entity_type = $1`
		args = append(args, payload.EntityType)
	}
	query += ` ORDER BY entity_type, entity_id, at, id`

	rows, err := j.Pool.Query(ctx, query, args...)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	var records []chainRecord
	for rows.Next() {
		var rec chainRecord
		var from pgtype.Text
		if err := rows.Scan(&rec.ID, &rec.EntityType, &rec.EntityID, &from, &rec.ToState); err != nil {
			return 0, nil, err
		}
		rec.FromState = from.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}

	chains, breaks := checkChains(records)
	return chains, breaks, nil
}

// checkChains walks records grouped by entity, requiring each record's
// origin to equal the previous destination. Records must arrive sorted
// by entity type, entity id, then time.
func checkChains(records []chainRecord) (int, []chainBreak) {
	var breaks []chainBreak
	chains := 0
	var prev *chainRecord
	for i := range records {
		rec := &records[i]
		sameChain := prev != nil && prev.EntityType == rec.EntityType && prev.EntityID == rec.EntityID
		if !sameChain {
			chains++
			if rec.FromState != "" {
				breaks = append(breaks, chainBreak{
					EntityType:   rec.EntityType,
					EntityID:     rec.EntityID,
					RecordID:     rec.ID,
					ExpectedFrom: "",
					ActualFrom:   rec.FromState,
				})
			}
		} else if rec.FromState != prev.ToState {
			breaks = append(breaks, chainBreak{
				EntityType:   rec.EntityType,
				EntityID:     rec.EntityID,
				RecordID:     rec.ID,
				ExpectedFrom: prev.ToState,
				ActualFrom:   rec.FromState,
			})
		}
		prev = rec
	}
	return chains, breaks
}

func (j *IntegrityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskHistoryIntegrityScan))
	}
	return slog.Default().With(slog.String("job", TaskHistoryIntegrityScan))
}

func (j *IntegrityScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *IntegrityScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

type chainRecord struct {
	ID         int64
	EntityType string
	EntityID   int64
	FromState  string
	ToState    string
}

type chainBreak struct {
	EntityType   string
	EntityID     int64
	RecordID     int64
	ExpectedFrom string
	ActualFrom   string
}
