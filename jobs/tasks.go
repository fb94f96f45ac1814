package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskHistoryIntegrityScan walks workflow history chains looking for gaps.
	TaskHistoryIntegrityScan = "history:integrity_scan"
	// TaskPermissionCacheWarm pre-fills the permission cache for active principals.
	TaskPermissionCacheWarm = "rbac:cache_warm"
)

// IntegrityScanPayload narrows an integrity scan to one entity type when set.
type IntegrityScanPayload struct {
	EntityType string `json:"entity_type,omitempty"`
}

// NewIntegrityScanTask constructs an Asynq task for the history scan.
func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskHistoryIntegrityScan, data), nil
}

// CacheWarmPayload bounds how many principals a warm run touches.
type CacheWarmPayload struct {
	Limit int `json:"limit,omitempty"`
}

// NewCacheWarmTask constructs an Asynq task for the permission cache warmup.
func NewCacheWarmTask(payload CacheWarmPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionCacheWarm, data), nil
}
