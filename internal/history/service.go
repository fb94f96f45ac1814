package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/toolroom-mes/toolroom/internal/shared"
)

// RepositoryPort abstracts history persistence for the service.
type RepositoryPort interface {
	InsertTransition(ctx context.Context, req TransitionRequest) (Transition, error)
	ListTransitions(ctx context.Context, entityType string, entityID int64) ([]Transition, error)
	InsertAudit(ctx context.Context, entry AuditEntry, before, after []byte) error
	TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
	TimelineAll(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error)
}

// AppendObserver is notified after every successful append. Used for
// metrics; a nil observer disables the hook.
type AppendObserver interface {
	RecordAppend(entityType string)
}

const (
	defaultTimelinePageSize = 20
	maxTimelinePageSize     = 50
)

// Service records workflow transitions and audit entries. State names
// are validated against the registry before anything is written, so a
// rejected transition leaves no trace.
type Service struct {
	repo     RepositoryPort
	registry *StateRegistry
	logger   *slog.Logger
	observer AppendObserver
}

// NewService constructs the history service.
func NewService(repo RepositoryPort, registry *StateRegistry, logger *slog.Logger) *Service {
	return &Service{repo: repo, registry: registry, logger: logger}
}

// WithAppendObserver attaches an append hook and returns the service.
func (s *Service) WithAppendObserver(o AppendObserver) *Service {
	s.observer = o
	return s
}

// RecordTransition validates and appends one workflow record. The
// destination state must be registered for the entity type; the origin
// state may be empty for the creation entry, otherwise it must be
// registered too.
func (s *Service) RecordTransition(ctx context.Context, req TransitionRequest) (Transition, error) {
	req.EntityType = strings.ToLower(strings.TrimSpace(req.EntityType))
	req.FromState = strings.ToLower(strings.TrimSpace(req.FromState))
	req.ToState = strings.ToLower(strings.TrimSpace(req.ToState))

	if req.EntityID <= 0 {
		return Transition{}, fmt.Errorf("history: entity id is required")
	}
	if !s.registry.Known(req.EntityType, req.ToState) {
		return Transition{}, fmt.Errorf("history: %q is not a state of %q: %w",
			req.ToState, req.EntityType, shared.ErrInvalidTransition)
	}
	if req.FromState != "" && !s.registry.Known(req.EntityType, req.FromState) {
		return Transition{}, fmt.Errorf("history: %q is not a state of %q: %w",
			req.FromState, req.EntityType, shared.ErrInvalidTransition)
	}

	t, err := s.repo.InsertTransition(ctx, req)
	if err != nil {
		return Transition{}, fmt.Errorf("history: append transition: %w", err)
	}
	if s.observer != nil {
		s.observer.RecordAppend(req.EntityType)
	}
	s.logger.Info("workflow transition recorded",
		"entity_type", t.EntityType, "entity_id", t.EntityID,
		"from", t.FromState, "to", t.ToState, "actor_id", t.ActorID)
	return t, nil
}

// History returns the full transition trail for one entity, oldest first.
func (s *Service) History(ctx context.Context, entityType string, entityID int64) ([]Transition, error) {
	entityType = strings.ToLower(strings.TrimSpace(entityType))
	transitions, err := s.repo.ListTransitions(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("history: list transitions: %w", err)
	}
	return transitions, nil
}

// CurrentState returns the destination of the newest transition, or the
// empty string when the entity has no history.
func (s *Service) CurrentState(ctx context.Context, entityType string, entityID int64) (string, error) {
	transitions, err := s.History(ctx, entityType, entityID)
	if err != nil {
		return "", err
	}
	if len(transitions) == 0 {
		return "", nil
	}
	return transitions[len(transitions)-1].ToState, nil
}

// RecordAudit appends one generic audit entry. Before and after
// snapshots are serialized as JSON; either may be nil.
func (s *Service) RecordAudit(ctx context.Context, entry AuditEntry) error {
	before, err := marshalSnapshot(entry.Before)
	if err != nil {
		return fmt.Errorf("history: marshal before snapshot: %w", err)
	}
	after, err := marshalSnapshot(entry.After)
	if err != nil {
		return fmt.Errorf("history: marshal after snapshot: %w", err)
	}
	entry.EntityType = strings.ToLower(strings.TrimSpace(entry.EntityType))
	entry.Action = strings.ToLower(strings.TrimSpace(entry.Action))
	if entry.Action == "" {
		return fmt.Errorf("history: audit action is required")
	}
	if err := s.repo.InsertAudit(ctx, entry, before, after); err != nil {
		return fmt.Errorf("history: append audit entry: %w", err)
	}
	if s.observer != nil {
		s.observer.RecordAppend(entry.EntityType)
	}
	return nil
}

// Timeline returns one page of the audit timeline, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (TimelineResult, error) {
	page := filters.Page
	if page < 1 {
		page = 1
	}
	size := filters.PageSize
	if size < 1 {
		size = defaultTimelinePageSize
	}
	if size > maxTimelinePageSize {
		size = maxTimelinePageSize
	}
	offset := (page - 1) * size

	rows, err := s.repo.TimelineWindow(ctx, filters, offset, size+1)
	if err != nil {
		return TimelineResult{}, fmt.Errorf("history: timeline window: %w", err)
	}
	hasNext := len(rows) > size
	if hasNext {
		rows = rows[:size]
	}
	paging := PagingInfo{Page: page, PageSize: size, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return TimelineResult{Rows: rows, Paging: paging}, nil
}

// TimelineExport returns the full filtered timeline for CSV export.
func (s *Service) TimelineExport(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	rows, err := s.repo.TimelineAll(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("history: timeline export: %w", err)
	}
	return rows, nil
}

func marshalSnapshot(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
