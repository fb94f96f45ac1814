package history

import (
	"encoding/json"
	"time"

	"github.com/toolroom-mes/toolroom/internal/shared"
)

// Transition is a single immutable workflow record: an entity moved from
// one named state to another. FromState is empty only for the entry
// representing initial creation.
type Transition struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	FromState  string    `json:"from_state,omitempty"`
	ToState    string    `json:"to_state"`
	ActorID    int64     `json:"actor_id"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// TransitionRequest carries the fields for a new workflow record.
type TransitionRequest struct {
	EntityType string
	EntityID   int64
	FromState  string
	ToState    string
	ActorID    int64
	Reason     string
}

// AuditEntry is a generic before/after change record, independent of formal
// workflow state. Any action tag is accepted.
type AuditEntry struct {
	EntityType string
	EntityID   int64
	Action     string
	Before     any
	After      any
	ActorID    int64
	Reason     string
	ClientInfo shared.ClientInfo
}

// AuditRecord is a persisted audit entry as returned by queries.
type AuditRecord struct {
	ID         int64           `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	Action     string          `json:"action"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	ActorID    int64           `json:"actor_id"`
	Reason     string          `json:"reason,omitempty"`
	Address    string          `json:"address,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	At         time.Time       `json:"at"`
}
