package history

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/toolroom-mes/toolroom/internal/platform/httpx"
	"github.com/toolroom-mes/toolroom/internal/shared"
)

// Authorizer resolves permissions for the current actor. Satisfied by
// the RBAC service.
type Authorizer interface {
	RequirePermission(ctx context.Context, principalID int64, permission string) error
}

// Handler exposes the workflow history and audit timeline API. Reads and
// writes on a given entity type require the matching view or edit scope,
// derived from the entity type itself.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	registry  *StateRegistry
	validator *validator.Validate
	authz     Authorizer
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, registry *StateRegistry, authz Authorizer) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		registry:  registry,
		validator: validator.New(),
		authz:     authz,
	}
}

// MountRoutes registers history routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/workflow/states", h.listStates)
	r.Get("/entities/{entityType}/{entityID}/history", h.entityHistory)
	r.Get("/entities/{entityType}/{entityID}/state", h.entityState)
	r.Post("/entities/{entityType}/{entityID}/transitions", h.recordTransition)
	r.Get("/audit", h.timeline)
	r.Get("/audit/export", h.exportTimeline)
}

type transitionPayload struct {
	FromState string `json:"from_state" validate:"max=60"`
	ToState   string `json:"to_state" validate:"required,min=1,max=60"`
	Reason    string `json:"reason" validate:"max=500"`
}

func (h *Handler) listStates(w http.ResponseWriter, r *http.Request) {
	if _, ok := shared.ActorFromContext(r.Context()); !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	out := make(map[string][]string)
	for _, entityType := range h.registry.EntityTypes() {
		out[entityType] = h.registry.States(entityType)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) entityHistory(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, ok := h.entityPath(w, r)
	if !ok {
		return
	}
	if !h.authorize(w, r, entityType+".view") {
		return
	}
	transitions, err := h.service.History(r.Context(), entityType, entityID)
	if err != nil {
		h.fail(w, "entity history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, transitions)
}

func (h *Handler) entityState(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, ok := h.entityPath(w, r)
	if !ok {
		return
	}
	if !h.authorize(w, r, entityType+".view") {
		return
	}
	state, err := h.service.CurrentState(r.Context(), entityType, entityID)
	if err != nil {
		h.fail(w, "entity state", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"state": state})
}

func (h *Handler) recordTransition(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, ok := h.entityPath(w, r)
	if !ok {
		return
	}
	if !h.authorize(w, r, entityType+".edit") {
		return
	}
	var payload transitionPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	transition, err := h.service.RecordTransition(r.Context(), TransitionRequest{
		EntityType: entityType,
		EntityID:   entityID,
		FromState:  payload.FromState,
		ToState:    payload.ToState,
		ActorID:    actor.ID,
		Reason:     payload.Reason,
	})
	if err != nil {
		h.fail(w, "record transition", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transition)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, shared.PermAuditView) {
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.fail(w, "audit timeline", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) exportTimeline(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, shared.PermAuditView) {
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	rows, err := h.service.TimelineExport(r.Context(), filters)
	if err != nil {
		h.fail(w, "export audit timeline", err)
		return
	}
	csvBytes, err := WriteTimelineCSV(rows)
	if err != nil {
		h.fail(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-timeline.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func errInvalidFilter(field string) error {
	return fmt.Errorf("invalid filter: %s", field)
}

func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	var filters TimelineFilters
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return TimelineFilters{}, errInvalidFilter("from")
		}
		filters.From = parsed
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return TimelineFilters{}, errInvalidFilter("to")
		}
		filters.To = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.From.After(filters.To) {
		return TimelineFilters{}, errInvalidFilter("range")
	}
	if v := strings.TrimSpace(q.Get("actor_id")); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			return TimelineFilters{}, errInvalidFilter("actor_id")
		}
		filters.ActorID = parsed
	}
	filters.EntityType = strings.ToLower(strings.TrimSpace(q.Get("entity_type")))
	filters.Action = strings.ToLower(strings.TrimSpace(q.Get("action")))
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return TimelineFilters{}, errInvalidFilter("page")
		}
		filters.Page = parsed
	}
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return TimelineFilters{}, errInvalidFilter("page_size")
		}
		filters.PageSize = parsed
	}
	return filters, nil
}

func (h *Handler) entityPath(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	entityType := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "entityType")))
	if entityType == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entity type")
		return "", 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "entityID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entity id")
		return "", 0, false
	}
	return entityType, id, true
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, permission string) bool {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return false
	}
	if err := h.authz.RequirePermission(r.Context(), actor.ID, permission); err != nil {
		h.logger.Warn("authorize", slog.String("permission", permission), slog.Any("error", err))
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
