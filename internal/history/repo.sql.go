package history

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for workflow history
// and the generic audit log. Both tables are append-only: no update or
// delete statement exists in this module.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertTransition appends one workflow record and returns it.
func (r *Repository) InsertTransition(ctx context.Context, req TransitionRequest) (Transition, error) {
	var t Transition
	var from, reason pgtype.Text
	err := r.pool.QueryRow(ctx, `
		INSERT INTO workflow_history (entity_type, entity_id, from_state, to_state, actor_id, reason, at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, entity_type, entity_id, from_state, to_state, actor_id, reason, at`,
		req.EntityType, req.EntityID, optionalText(req.FromState), req.ToState, req.ActorID, optionalText(req.Reason)).
		Scan(&t.ID, &t.EntityType, &t.EntityID, &from, &t.ToState, &t.ActorID, &reason, &t.At)
	if err != nil {
		return Transition{}, err
	}
	t.FromState = from.String
	t.Reason = reason.String
	return t, nil
}

// ListTransitions returns the workflow records for one entity, oldest first.
func (r *Repository) ListTransitions(ctx context.Context, entityType string, entityID int64) ([]Transition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, from_state, to_state, actor_id, reason, at
		FROM workflow_history
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY at ASC, id ASC`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var transitions []Transition
	for rows.Next() {
		var t Transition
		var from, reason pgtype.Text
		if err := rows.Scan(&t.ID, &t.EntityType, &t.EntityID, &from, &t.ToState, &t.ActorID, &reason, &t.At); err != nil {
			return nil, err
		}
		t.FromState = from.String
		t.Reason = reason.String
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transitions, nil
}

// InsertAudit appends one generic audit record.
func (r *Repository) InsertAudit(ctx context.Context, entry AuditEntry, before, after []byte) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, action, before, after, actor_id, reason, address, user_agent, request_id, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`,
		entry.EntityType, entry.EntityID, entry.Action, before, after, entry.ActorID,
		optionalText(entry.Reason), optionalText(entry.ClientInfo.Address),
		optionalText(entry.ClientInfo.UserAgent), optionalText(entry.ClientInfo.RequestID))
	return err
}

// TimelineWindow returns one page of the audit timeline, newest first.
func (r *Repository) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	query, args := timelineQuery(filters)
	query += ` ORDER BY at DESC, id DESC OFFSET $` + itoa(len(args)+1) + ` LIMIT $` + itoa(len(args)+2)
	args = append(args, offset, limit)
	return r.queryTimeline(ctx, query, args)
}

// TimelineAll returns the full filtered timeline, newest first.
func (r *Repository) TimelineAll(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	query, args := timelineQuery(filters)
	query += ` ORDER BY at DESC, id DESC`
	return r.queryTimeline(ctx, query, args)
}

func (r *Repository) queryTimeline(ctx context.Context, query string, args []any) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var reason pgtype.Text
		if err := rows.Scan(&row.At, &row.ActorID, &row.Action, &row.EntityType, &row.EntityID, &reason); err != nil {
			return nil, err
		}
		row.Reason = reason.String
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func timelineQuery(filters TimelineFilters) (string, []any) {
	var conditions []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, cond+"$"+itoa(len(args)))
	}
	if !filters.From.IsZero() {
		add("at >= ", filters.From)
	}
	if !filters.To.IsZero() {
		add("at <= ", filters.To)
	}
	if filters.ActorID > 0 {
		add("actor_id = ", filters.ActorID)
	}
	if filters.EntityType != "" {
		add("entity_type = ", filters.EntityType)
	}
	if filters.Action != "" {
		add("action = ", filters.Action)
	}
	query := `SELECT at, actor_id, action, entity_type, entity_id, reason FROM audit_log`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	return query, args
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
