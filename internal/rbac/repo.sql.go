package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toolroom-mes/toolroom/internal/platform/db"
	"github.com/toolroom-mes/toolroom/internal/shared"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Repository provides PostgreSQL backed persistence for the RBAC module.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreatePermission inserts a catalog entry. A name collision maps to
// shared.ErrDuplicateName.
func (r *Repository) CreatePermission(ctx context.Context, name, description, category string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (name, description, category, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, name, description, category, created_at`,
		name, description, category).
		Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Permission{}, fmt.Errorf("rbac: permission %q: %w", name, shared.ErrDuplicateName)
		}
		return Permission{}, err
	}
	return p, nil
}

// UpdatePermission edits description and category. The name is a stable
// identifier referenced by grants and is never rewritten.
func (r *Repository) UpdatePermission(ctx context.Context, name, description, category string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `
		UPDATE permissions SET description = $2, category = $3
		WHERE name = $1
		RETURNING id, name, description, category, created_at`,
		name, description, category).
		Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

// ListPermissions returns catalog entries in insertion order, optionally
// filtered by category.
func (r *Repository) ListPermissions(ctx context.Context, category string) ([]Permission, error) {
	query := `SELECT id, name, description, category, created_at FROM permissions ORDER BY id`
	args := []any{}
	if category != "" {
		query = `SELECT id, name, description, category, created_at FROM permissions WHERE category = $1 ORDER BY id`
		args = append(args, category)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// GetPermissionByName fetches a single catalog entry.
func (r *Repository) GetPermissionByName(ctx context.Context, name string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, description, category, created_at FROM permissions WHERE name = $1`,
		name).
		Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

// CreateRole inserts a new role. A name collision maps to shared.ErrDuplicateName.
func (r *Repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, name, description, created_at, updated_at`,
		name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("rbac: role %q: %w", name, shared.ErrDuplicateName)
		}
		return Role{}, err
	}
	return role, nil
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, description, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// UpdateRole updates name and description.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, description, created_at, updated_at`,
		id, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("rbac: role %q: %w", name, shared.ErrDuplicateName)
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role together with every grant and binding that
// references it, in a single transaction.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM principal_roles WHERE role_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// AttachPermission grants a permission to a role. Re-granting is a no-op.
func (r *Repository) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (role_id, permission_id) DO NOTHING`,
		roleID, permissionID)
	return mapReferenceError(err)
}

// DetachPermission revokes a permission from a role. Revoking an absent
// grant is a no-op.
func (r *Repository) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID)
	return err
}

// RolePermissions lists the permissions granted to a role in catalog order.
func (r *Repository) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.description, p.category, p.created_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// AssignRole binds a role to a principal. Re-assigning is a no-op.
func (r *Repository) AssignRole(ctx context.Context, principalID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO principal_roles (principal_id, role_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (principal_id, role_id) DO NOTHING`,
		principalID, roleID)
	return mapReferenceError(err)
}

// UnassignRole removes a binding. Removing an absent binding is a no-op.
func (r *Repository) UnassignRole(ctx context.Context, principalID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM principal_roles WHERE principal_id = $1 AND role_id = $2`,
		principalID, roleID)
	return err
}

// RolesOf lists the roles currently bound to a principal.
func (r *Repository) RolesOf(ctx context.Context, principalID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at
		FROM roles r
		JOIN principal_roles pr ON pr.role_id = r.id
		WHERE pr.principal_id = $1
		ORDER BY r.name`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// EffectivePermissions returns the deduplicated union of permission names
// over every role bound to the principal.
func (r *Repository) EffectivePermissions(ctx context.Context, principalID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT p.name
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN principal_roles pr ON pr.role_id = rp.role_id
		WHERE pr.principal_id = $1
		ORDER BY p.name`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// mapReferenceError turns a foreign key violation into ErrNotFound so a
// grant or binding against an unknown row answers 404 instead of 500.
func mapReferenceError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf("rbac: unknown reference: %w", shared.ErrNotFound)
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)
