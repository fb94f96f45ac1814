package rbac

import "time"

// Permission represents an atomic capability, named by the dotted
// resource.action convention (e.g. "program.release").
type Permission struct {
	ID          int64
	Name        string
	Description string
	Category    string
	CreatedAt   time.Time
}

// Role represents a named bundle of permissions.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Grant ties a permission to a role. Link rows have no identity of their
// own; they are removed together with either parent.
type Grant struct {
	RoleID       int64
	PermissionID int64
	CreatedAt    time.Time
}

// Binding links a principal to a role.
type Binding struct {
	PrincipalID int64
	RoleID      int64
	CreatedAt   time.Time
}
