package grants

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"skillforge.org/internal/directory"
	"skillforge.org/internal/fault"
	"skillforge.org/internal/ids"
	"skillforge.org/internal/obs"
	"skillforge.org/internal/subject"
)

// Registry manages the reusable delegation objects: permissions, roles and
// the pivot between them. Permissions are platform-wide and gated behind
// super-admins; roles belong to whoever created them.
type Registry struct {
	store     Store
	directory *directory.Directory
}

func NewRegistry(store Store, dir *directory.Directory) (*Registry, error) {
	if store == nil {
		return nil, errors.New("grants store is required")
	}
	if dir == nil {
		return nil, errors.New("directory is required")
	}
	return &Registry{store: store, directory: dir}, nil
}

// parseClass validates the optional class restriction. Only subject-bearing
// classes are accepted; actor classes such as "user" are rejected.
func parseClass(raw string) (*subject.Kind, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return nil, nil
	}
	kind := subject.Kind(raw)
	switch kind {
	case subject.KindProject, subject.KindOrganization:
		return &kind, nil
	}
	return nil, fmt.Errorf("%w: %s is not a subject-bearing class", fault.ErrInvalid, raw)
}

type CreatePermissionInput struct {
	Name    string
	Class   string
	Creator directory.Ref
}

// CreatePermission registers a new atomic capability.
func (r *Registry) CreatePermission(ctx context.Context, in CreatePermissionInput) (*Permission, error) {
	p, err := r.createPermission(ctx, in)
	if err != nil {
		obs.IncFailure("create_permission", err)
		return nil, err
	}
	obs.IncRegistryMutation("permission", "create")
	return p, nil
}

func (r *Registry) createPermission(ctx context.Context, in CreatePermissionInput) (*Permission, error) {
	if err := r.requireSuperAdmin(ctx, in.Creator); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: permission name is required", fault.ErrInvalid)
	}
	class, err := parseClass(in.Class)
	if err != nil {
		return nil, err
	}
	p := &Permission{ID: ids.New(), Owner: in.Creator, Name: name, Class: class}
	if err := r.store.CreatePermission(ctx, p); err != nil {
		if errors.Is(err, fault.ErrConflict) {
			return nil, fmt.Errorf("%w: permission %s already exists", fault.ErrConflict, name)
		}
		return nil, err
	}
	return p, nil
}

type PermissionUpdate struct {
	Name  *string
	Class *string
}

// UpdatePermission renames or reclassifies a permission.
func (r *Registry) UpdatePermission(ctx context.Context, id string, upd PermissionUpdate, actor directory.Ref) (*Permission, error) {
	p, err := r.updatePermission(ctx, id, upd, actor)
	if err != nil {
		obs.IncFailure("update_permission", err)
		return nil, err
	}
	obs.IncRegistryMutation("permission", "update")
	return p, nil
}

func (r *Registry) updatePermission(ctx context.Context, id string, upd PermissionUpdate, actor directory.Ref) (*Permission, error) {
	if err := r.requireSuperAdmin(ctx, actor); err != nil {
		return nil, err
	}
	p, err := r.store.FindPermission(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: permission name is required", fault.ErrInvalid)
		}
		p.Name = name
	}
	if upd.Class != nil {
		class, err := parseClass(*upd.Class)
		if err != nil {
			return nil, err
		}
		p.Class = class
	}
	if err := r.store.UpdatePermission(ctx, p); err != nil {
		if errors.Is(err, fault.ErrConflict) {
			return nil, fmt.Errorf("%w: permission %s already exists", fault.ErrConflict, p.Name)
		}
		return nil, err
	}
	return p, nil
}

// DeletePermission removes a permission. Every authorization edge
// referencing it and every role link is removed in the same transaction.
func (r *Registry) DeletePermission(ctx context.Context, id string, actor directory.Ref) error {
	if err := r.deletePermission(ctx, id, actor); err != nil {
		obs.IncFailure("delete_permission", err)
		return err
	}
	obs.IncRegistryMutation("permission", "delete")
	return nil
}

func (r *Registry) deletePermission(ctx context.Context, id string, actor directory.Ref) error {
	if err := r.requireSuperAdmin(ctx, actor); err != nil {
		return err
	}
	return r.store.DeletePermission(ctx, id)
}

type CreateRoleInput struct {
	Name   string
	Class  string
	Public bool
	Owner  directory.Ref
}

// CreateRole creates a role owned by the calling actor. Role names are not
// unique; two actors may both own a "reviewer" role.
func (r *Registry) CreateRole(ctx context.Context, in CreateRoleInput) (*Role, error) {
	role, err := r.createRole(ctx, in)
	if err != nil {
		obs.IncFailure("create_role", err)
		return nil, err
	}
	obs.IncRegistryMutation("role", "create")
	return role, nil
}

func (r *Registry) createRole(ctx context.Context, in CreateRoleInput) (*Role, error) {
	if in.Owner.IsZero() {
		return nil, fmt.Errorf("%w: role owner is required", fault.ErrInvalid)
	}
	if err := r.directory.Resolve(ctx, in.Owner); err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return nil, fmt.Errorf("%w: owner %s not found", fault.ErrInvalid, in.Owner)
		}
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", fault.ErrInvalid)
	}
	class, err := parseClass(in.Class)
	if err != nil {
		return nil, err
	}
	role := &Role{ID: ids.New(), Owner: in.Owner, Name: name, Class: class, Public: in.Public}
	if err := r.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

type RoleUpdate struct {
	Name   *string
	Class  *string
	Public *bool
}

// UpdateRole mutates a role. Changing the class is refused while attached
// permissions would become incompatible.
func (r *Registry) UpdateRole(ctx context.Context, id string, upd RoleUpdate, actor directory.Ref) (*Role, error) {
	role, err := r.updateRole(ctx, id, upd, actor)
	if err != nil {
		obs.IncFailure("update_role", err)
		return nil, err
	}
	obs.IncRegistryMutation("role", "update")
	return role, nil
}

func (r *Registry) updateRole(ctx context.Context, id string, upd RoleUpdate, actor directory.Ref) (*Role, error) {
	role, err := r.store.FindRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.requireRoleAuthority(ctx, role, actor); err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", fault.ErrInvalid)
		}
		role.Name = name
	}
	if upd.Public != nil {
		role.Public = *upd.Public
	}
	if upd.Class != nil {
		class, err := parseClass(*upd.Class)
		if err != nil {
			return nil, err
		}
		candidate := *role
		candidate.Class = class
		attached, err := r.store.RolePermissions(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		var incompatible []string
		for i := range attached {
			if !classCompatible(&candidate, &attached[i]) {
				incompatible = append(incompatible, attached[i].ID)
			}
		}
		if len(incompatible) > 0 {
			return nil, fmt.Errorf("%w: class change leaves incompatible permissions: %s", fault.ErrInvalid, strings.Join(incompatible, ", "))
		}
		role.Class = class
	}
	if err := r.store.UpdateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole removes a role with the same cascade as DeletePermission.
func (r *Registry) DeleteRole(ctx context.Context, id string, actor directory.Ref) error {
	if err := r.deleteRole(ctx, id, actor); err != nil {
		obs.IncFailure("delete_role", err)
		return err
	}
	obs.IncRegistryMutation("role", "delete")
	return nil
}

func (r *Registry) deleteRole(ctx context.Context, id string, actor directory.Ref) error {
	role, err := r.store.FindRole(ctx, id)
	if err != nil {
		return err
	}
	if err := r.requireRoleAuthority(ctx, role, actor); err != nil {
		return err
	}
	return r.store.DeleteRole(ctx, role.ID)
}

// SyncPermissions makes the role's permission set exactly permissionIDs.
// Unknown and class-incompatible ids are reported individually; nothing is
// applied unless every id passes.
func (r *Registry) SyncPermissions(ctx context.Context, roleID string, permissionIDs []string, actor directory.Ref) error {
	if err := r.syncPermissions(ctx, roleID, permissionIDs, actor); err != nil {
		obs.IncFailure("sync_permissions", err)
		return err
	}
	obs.IncRegistryMutation("role", "sync_permissions")
	return nil
}

func (r *Registry) syncPermissions(ctx context.Context, roleID string, permissionIDs []string, actor directory.Ref) error {
	role, err := r.store.FindRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := r.requireRoleAuthority(ctx, role, actor); err != nil {
		return err
	}
	if len(permissionIDs) == 0 {
		return fmt.Errorf("%w: permission ids are required", fault.ErrInvalid)
	}

	var unknown, incompatible []string
	resolved := make([]string, 0, len(permissionIDs))
	seen := make(map[string]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		p, err := r.store.FindPermission(ctx, id)
		if errors.Is(err, fault.ErrNotFound) {
			unknown = append(unknown, id)
			continue
		}
		if err != nil {
			return err
		}
		if !classCompatible(role, p) {
			incompatible = append(incompatible, id)
			continue
		}
		resolved = append(resolved, id)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: unknown permissions: %s", fault.ErrInvalid, strings.Join(unknown, ", "))
	}
	if len(incompatible) > 0 {
		return fmt.Errorf("%w: incompatible permissions: %s", fault.ErrInvalid, strings.Join(incompatible, ", "))
	}
	if len(resolved) == 0 {
		return fmt.Errorf("%w: permission ids are required", fault.ErrInvalid)
	}
	return r.store.SyncRolePermissions(ctx, role.ID, resolved)
}

// RolePermissions lists the permissions attached to a role.
func (r *Registry) RolePermissions(ctx context.Context, roleID string) ([]Permission, error) {
	return r.store.RolePermissions(ctx, roleID)
}

func (r *Registry) requireSuperAdmin(ctx context.Context, actor directory.Ref) error {
	if actor.IsZero() {
		return fmt.Errorf("%w: actor is required", fault.ErrInvalid)
	}
	super, err := r.directory.IsSuperAdmin(ctx, actor)
	if err != nil && !errors.Is(err, fault.ErrNotFound) {
		return err
	}
	if !super {
		return fmt.Errorf("%w: %s is not a super-admin", fault.ErrUnauthorized, actor)
	}
	return nil
}

func (r *Registry) requireRoleAuthority(ctx context.Context, role *Role, actor directory.Ref) error {
	if actor.IsZero() {
		return fmt.Errorf("%w: actor is required", fault.ErrInvalid)
	}
	if actor == role.Owner {
		return nil
	}
	admin, err := r.directory.IsAdmin(ctx, actor)
	if err != nil && !errors.Is(err, fault.ErrNotFound) {
		return err
	}
	if admin {
		return nil
	}
	return fmt.Errorf("%w: %s may not manage role %s", fault.ErrUnauthorized, actor, role.ID)
}
