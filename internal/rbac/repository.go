package rbac

import "context"

// RepositoryPort defines persistence operations for the RBAC module.
type RepositoryPort interface {
	// Permission catalog.
	CreatePermission(ctx context.Context, name, description, category string) (Permission, error)
	UpdatePermission(ctx context.Context, name, description, category string) (Permission, error)
	ListPermissions(ctx context.Context, category string) ([]Permission, error)
	GetPermissionByName(ctx context.Context, name string) (Permission, error)

	// Role registry.
	CreateRole(ctx context.Context, name, description string) (Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	// Role-permission links.
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error
	RolePermissions(ctx context.Context, roleID int64) ([]Permission, error)

	// Principal-role bindings.
	AssignRole(ctx context.Context, principalID, roleID int64) error
	UnassignRole(ctx context.Context, principalID, roleID int64) error
	RolesOf(ctx context.Context, principalID int64) ([]Role, error)
	EffectivePermissions(ctx context.Context, principalID int64) ([]string, error)
}

// PrincipalDirectory resolves principal liveness for the evaluator. The
// principals module implements it; rbac never reads principal rows directly.
type PrincipalDirectory interface {
	IsActive(ctx context.Context, principalID int64) (bool, error)
}
