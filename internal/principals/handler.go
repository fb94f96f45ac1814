package principals

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/toolroom-mes/toolroom/internal/history"
	"github.com/toolroom-mes/toolroom/internal/platform/httpx"
	"github.com/toolroom-mes/toolroom/internal/rbac"
	"github.com/toolroom-mes/toolroom/internal/shared"
)

// Handler manages principal endpoints: login/logout plus lifecycle
// management. Lifecycle changes are reported to the audit log.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	tokens    *shared.TokenStore
	auditor   *history.Service
	validator *validator.Validate
	mw        rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, tokens *shared.TokenStore, auditor *history.Service, mw rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		tokens:    tokens,
		auditor:   auditor,
		validator: validator.New(),
		mw:        mw,
	}
}

// MountRoutes registers principal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermUsersView))
		r.Get("/", h.list)
		r.Get("/{principalID}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAll(shared.PermUsersEdit))
		r.Post("/", h.create)
		r.Post("/{principalID}/deactivate", h.deactivate)
		r.Post("/{principalID}/activate", h.activate)
		r.Put("/{principalID}/skill", h.setSkill)
		r.Delete("/{principalID}", h.remove)
	})
}

type loginPayload struct {
	Handle   string `json:"handle" validate:"required,min=2,max=60"`
	Password string `json:"password" validate:"required,min=6"`
}

type createPayload struct {
	Handle     string `json:"handle" validate:"required,min=2,max=60"`
	Name       string `json:"name" validate:"max=120"`
	Password   string `json:"password" validate:"required,min=8"`
	SkillLevel string `json:"skill_level" validate:"omitempty,oneof=helper operator technician specialist"`
}

type principalView struct {
	ID         int64  `json:"id"`
	Handle     string `json:"handle"`
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
	SkillLevel string `json:"skill_level"`
}

func toView(p Principal) principalView {
	return principalView{
		ID:         p.ID,
		Handle:     p.Handle,
		Name:       p.Name,
		IsActive:   p.IsActive,
		SkillLevel: p.SkillLevel.String(),
	}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.Authenticate(r.Context(), payload.Handle, payload.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	token, err := h.tokens.Issue(r.Context(), p.ID, p.Handle)
	if err != nil {
		h.fail(w, "issue token", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(h.tokens.TTL().Seconds()),
		"principal":  toView(p),
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.tokens.Revoke(r.Context(), token); err != nil {
		h.fail(w, "revoke token", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principals, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list principals", err)
		return
	}
	views := make([]principalView, 0, len(principals))
	for _, p := range principals {
		views = append(views, toView(p))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get principal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(p))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.Create(r.Context(), payload.Handle, payload.Name, payload.Password, ParseSkillLevel(payload.SkillLevel))
	if err != nil {
		h.fail(w, "create principal", err)
		return
	}
	if err := h.audit(r, "CREATE", p.ID, nil, toView(p)); err != nil {
		h.fail(w, "audit principal create", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toView(p))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	before, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get principal", err)
		return
	}
	if active {
		err = h.service.Activate(r.Context(), id)
	} else {
		err = h.service.Deactivate(r.Context(), id)
	}
	if err != nil {
		h.fail(w, "set active", err)
		return
	}
	after := before
	after.IsActive = active
	if err := h.audit(r, "UPDATE", id, toView(before), toView(after)); err != nil {
		h.fail(w, "audit principal update", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setSkill(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var payload struct {
		SkillLevel string `json:"skill_level" validate:"required,oneof=helper operator technician specialist"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	before, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get principal", err)
		return
	}
	if err := h.service.SetSkillLevel(r.Context(), id, ParseSkillLevel(payload.SkillLevel)); err != nil {
		h.fail(w, "set skill", err)
		return
	}
	after := before
	after.SkillLevel = ParseSkillLevel(payload.SkillLevel)
	if err := h.audit(r, "UPDATE", id, toView(before), toView(after)); err != nil {
		h.fail(w, "audit principal update", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	before, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get principal", err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete principal", err)
		return
	}
	if err := h.audit(r, "DELETE", id, toView(before), nil); err != nil {
		h.fail(w, "audit principal delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// audit appends a change record. A failed append fails the whole request:
// a change whose audit entry did not persist is not reported as applied.
func (h *Handler) audit(r *http.Request, action string, entityID int64, before, after any) error {
	if h.auditor == nil {
		return nil
	}
	actor, _ := shared.ActorFromContext(r.Context())
	info, _ := shared.ClientInfoFromContext(r.Context())
	return h.auditor.RecordAudit(r.Context(), history.AuditEntry{
		EntityType: "principal",
		EntityID:   entityID,
		Action:     action,
		Before:     before,
		After:      after,
		ActorID:    actor.ID,
		ClientInfo: info,
	})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "principalID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid principal id")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
