package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/toolroom-mes/toolroom/internal/platform/httpx"
	"github.com/toolroom-mes/toolroom/internal/shared"
)

// Handler exposes the RBAC management API. The handler gates its own routes
// through the RBAC middleware.
type Handler struct {
	logger    *slog.Logger
	catalog   *Catalog
	service   *Service
	validator *validator.Validate
	mw        Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, catalog *Catalog, service *Service, mw Middleware) *Handler {
	return &Handler{
		logger:    logger,
		catalog:   catalog,
		service:   service,
		validator: validator.New(),
		mw:        mw,
	}
}

// MountRoutes registers RBAC routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermPermissionsView, shared.PermRolesView))
		r.Get("/permissions", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAll(shared.PermRolesEdit))
		r.Post("/permissions", h.registerPermission)
		r.Patch("/permissions/{name}", h.describePermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermRolesView))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{roleID}", h.getRole)
		r.Get("/roles/{roleID}/permissions", h.rolePermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAll(shared.PermRolesEdit))
		r.Post("/roles", h.createRole)
		r.Put("/roles/{roleID}", h.updateRole)
		r.Delete("/roles/{roleID}", h.deleteRole)
		r.Put("/roles/{roleID}/permissions/{permissionID}", h.grantPermission)
		r.Delete("/roles/{roleID}/permissions/{permissionID}", h.revokePermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermUsersView))
		r.Get("/principals/{principalID}/roles", h.rolesOf)
		r.Get("/principals/{principalID}/permissions", h.effectivePermissions)
		r.Get("/principals/{principalID}/permissions/{name}", h.checkPermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAll(shared.PermUsersEdit))
		r.Put("/principals/{principalID}/roles/{roleID}", h.assignRole)
		r.Delete("/principals/{principalID}/roles/{roleID}", h.unassignRole)
	})
}

type permissionPayload struct {
	Name        string `json:"name" validate:"required,min=3,max=120"`
	Description string `json:"description" validate:"max=500"`
	Category    string `json:"category" validate:"max=60"`
}

type rolePayload struct {
	Name        string `json:"name" validate:"required,min=2,max=60"`
	Description string `json:"description" validate:"max=500"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.catalog.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) registerPermission(w http.ResponseWriter, r *http.Request) {
	var payload permissionPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm, err := h.catalog.Register(r.Context(), payload.Name, payload.Description, payload.Category)
	if err != nil {
		h.fail(w, "register permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) describePermission(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Description string `json:"description" validate:"max=500"`
		Category    string `json:"category" validate:"max=60"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm, err := h.catalog.Describe(r.Context(), chi.URLParam(r, "name"), payload.Description, payload.Category)
	if err != nil {
		h.fail(w, "describe permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var payload rolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), payload.Name, payload.Description)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	var payload rolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, payload.Name, payload.Description)
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	perms, err := h.service.RolePermissions(r.Context(), id)
	if err != nil {
		h.fail(w, "role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	permissionID, ok := h.pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.GrantPermission(r.Context(), roleID, permissionID); err != nil {
		h.fail(w, "grant permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	permissionID, ok := h.pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.RevokePermission(r.Context(), roleID, permissionID); err != nil {
		h.fail(w, "revoke permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rolesOf(w http.ResponseWriter, r *http.Request) {
	principalID, ok := h.pathID(w, r, "principalID")
	if !ok {
		return
	}
	roles, err := h.service.RolesOf(r.Context(), principalID)
	if err != nil {
		h.fail(w, "roles of principal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	principalID, ok := h.pathID(w, r, "principalID")
	if !ok {
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), principalID)
	if err != nil {
		h.fail(w, "effective permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	principalID, ok := h.pathID(w, r, "principalID")
	if !ok {
		return
	}
	allowed, err := h.service.HasPermission(r.Context(), principalID, chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, "check permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	principalID, ok := h.pathID(w, r, "principalID")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.AssignRole(r.Context(), principalID, roleID); err != nil {
		h.fail(w, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unassignRole(w http.ResponseWriter, r *http.Request) {
	principalID, ok := h.pathID(w, r, "principalID")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.UnassignRole(r.Context(), principalID, roleID); err != nil {
		h.fail(w, "unassign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+name)
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
