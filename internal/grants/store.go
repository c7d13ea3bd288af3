package grants

import (
	"context"

	"skillforge.org/internal/directory"
	"skillforge.org/internal/subject"
)

// Store persists the delegation objects and the authorization graph. Delete
// operations cascade: removing a role or permission removes every
// authorization edge referencing it and every pivot row linking it, in one
// transaction.
type Store interface {
	CreatePermission(ctx context.Context, p *Permission) error
	FindPermission(ctx context.Context, id string) (*Permission, error)
	UpdatePermission(ctx context.Context, p *Permission) error
	DeletePermission(ctx context.Context, id string) error

	CreateRole(ctx context.Context, r *Role) error
	FindRole(ctx context.Context, id string) (*Role, error)
	UpdateRole(ctx context.Context, r *Role) error
	DeleteRole(ctx context.Context, id string) error

	// SyncRolePermissions atomically replaces the role's permission set.
	SyncRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error
	RolePermissions(ctx context.Context, roleID string) ([]Permission, error)

	CreateAuthorization(ctx context.Context, a *Authorization) error
	FindAuthorization(ctx context.Context, id string) (*Authorization, error)
	DeleteAuthorization(ctx context.Context, id string) error

	// AuthorizationsFor lists edges delegating to the actor over the subject.
	AuthorizationsFor(ctx context.Context, authorizable subject.Ref, authorized directory.Ref) ([]Authorization, error)
}
