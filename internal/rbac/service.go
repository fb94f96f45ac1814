package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/toolroom-mes/toolroom/internal/shared"
)

// DecisionRecorder observes authorization outcomes. Implemented by
// observability.Metrics; a nil recorder disables instrumentation.
type DecisionRecorder interface {
	RecordDecision(permission string, allowed bool)
}

// Service orchestrates the role registry, principal-role bindings and the
// authorization evaluator.
type Service struct {
	repo       RepositoryPort
	principals PrincipalDirectory
	cache      *Cache
	logger     *slog.Logger
	decisions  DecisionRecorder
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, principals PrincipalDirectory, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, principals: principals, cache: cache, logger: logger}
}

// WithDecisionRecorder attaches authorization metrics.
func (s *Service) WithDecisionRecorder(rec DecisionRecorder) *Service {
	s.decisions = rec
	return s
}

// CreateRole inserts a new role. A name collision fails with
// shared.ErrDuplicateName.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	return s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// UpdateRole updates name and description of an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	role, err := s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.invalidate(ctx)
	return role, nil
}

// DeleteRole removes the role and, atomically with it, every grant and
// binding referencing it.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// GrantPermission grants a permission to a role. Granting an already-held
// permission is a no-op, not an error.
func (s *Service) GrantPermission(ctx context.Context, roleID, permissionID int64) error {
	if err := s.repo.AttachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// RevokePermission removes a grant if present, else no-op.
func (s *Service) RevokePermission(ctx context.Context, roleID, permissionID int64) error {
	if err := s.repo.DetachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// RolePermissions lists the permissions granted to a role.
func (s *Service) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	return s.repo.RolePermissions(ctx, roleID)
}

// AssignRole binds a role to a principal. Duplicate assignment is a no-op.
func (s *Service) AssignRole(ctx context.Context, principalID, roleID int64) error {
	if err := s.repo.AssignRole(ctx, principalID, roleID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// UnassignRole removes a binding if present, else no-op.
func (s *Service) UnassignRole(ctx context.Context, principalID, roleID int64) error {
	if err := s.repo.UnassignRole(ctx, principalID, roleID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// RolesOf returns the roles currently bound to a principal.
func (s *Service) RolesOf(ctx context.Context, principalID int64) ([]Role, error) {
	return s.repo.RolesOf(ctx, principalID)
}

// EffectivePermissions returns the union of permission names over every role
// bound to the principal. Served from cache when one is configured.
func (s *Service) EffectivePermissions(ctx context.Context, principalID int64) ([]string, error) {
	if s.cache == nil {
		return s.repo.EffectivePermissions(ctx, principalID)
	}
	return s.cache.EffectivePermissions(ctx, principalID, func(ctx context.Context) ([]string, error) {
		return s.repo.EffectivePermissions(ctx, principalID)
	})
}

// HasPermission reports whether the principal holds the named permission.
// An inactive or unknown principal is denied before any resolution. An
// unregistered permission name is simply never held, so it evaluates to
// deny rather than an error.
func (s *Service) HasPermission(ctx context.Context, principalID int64, permission string) (bool, error) {
	permission = strings.TrimSpace(strings.ToLower(permission))
	if permission == "" {
		return false, errors.New("rbac: permission name required")
	}
	active, err := s.principals.IsActive(ctx, principalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.record(permission, false)
			return false, nil
		}
		return false, err
	}
	if !active {
		s.record(permission, false)
		return false, nil
	}
	granted, err := s.EffectivePermissions(ctx, principalID)
	if err != nil {
		return false, err
	}
	for _, name := range granted {
		if strings.ToLower(name) == permission {
			s.record(permission, true)
			return true, nil
		}
	}
	s.record(permission, false)
	return false, nil
}

// RequirePermission is the same check as HasPermission but fails with
// shared.ErrPermissionDenied, for boundaries that must reject outright.
func (s *Service) RequirePermission(ctx context.Context, principalID int64, permission string) error {
	ok, err := s.HasPermission(ctx, principalID, permission)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("rbac: principal %d lacks %q: %w", principalID, permission, shared.ErrPermissionDenied)
	}
	return nil
}

func (s *Service) record(permission string, allowed bool) {
	if s.decisions != nil {
		s.decisions.RecordDecision(permission, allowed)
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("rbac cache bump", slog.Any("error", err))
	}
}
