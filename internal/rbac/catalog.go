package rbac

import (
	"context"
	"errors"
	"strings"
)

// Catalog manages the permission catalog. Permissions are registered at
// bootstrap or by an administrator; names are stable identifiers and are
// never rewritten once grants reference them.
type Catalog struct {
	repo RepositoryPort
}

// NewCatalog constructs a Catalog backed by the given repository.
func NewCatalog(repo RepositoryPort) *Catalog {
	return &Catalog{repo: repo}
}

// Register adds a permission to the catalog. Registering an existing name
// fails with shared.ErrDuplicateName.
func (c *Catalog) Register(ctx context.Context, name, description, category string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, errors.New("rbac: permission name required")
	}
	return c.repo.CreatePermission(ctx, name, strings.TrimSpace(description), strings.TrimSpace(category))
}

// Describe edits description and category of an existing permission without
// touching grants that reference it.
func (c *Catalog) Describe(ctx context.Context, name, description, category string) (Permission, error) {
	return c.repo.UpdatePermission(ctx, strings.TrimSpace(name), strings.TrimSpace(description), strings.TrimSpace(category))
}

// List returns permissions in insertion order, optionally filtered by category.
func (c *Catalog) List(ctx context.Context, category string) ([]Permission, error) {
	return c.repo.ListPermissions(ctx, strings.TrimSpace(category))
}

// Lookup fetches a permission by name.
func (c *Catalog) Lookup(ctx context.Context, name string) (Permission, error) {
	return c.repo.GetPermissionByName(ctx, strings.TrimSpace(name))
}
