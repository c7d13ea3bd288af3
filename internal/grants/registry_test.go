package grants

import (
	"errors"
	"strings"
	"testing"

	"skillforge.org/internal/directory"
	"skillforge.org/internal/fault"
)

func TestCreatePermissionGate(t *testing.T) {
	f := newFixture(t)
	super := f.user(directory.TypeSuperAdmin)
	regular := f.user()

	if _, err := f.registry.CreatePermission(f.ctx, CreatePermissionInput{Name: "PUBLISH", Creator: regular}); !errors.Is(err, fault.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for regular user, got %v", err)
	}
	// Platform admins without the super tag are not enough.
	admin := f.user(directory.TypeAdmin)
	if _, err := f.registry.CreatePermission(f.ctx, CreatePermissionInput{Name: "PUBLISH", Creator: admin}); !errors.Is(err, fault.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for plain admin, got %v", err)
	}

	p, err := f.registry.CreatePermission(f.ctx, CreatePermissionInput{Name: "PUBLISH", Class: "project", Creator: super})
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	if p.ID == "" || p.Class == nil || string(*p.Class) != "project" {
		t.Fatalf("unexpected permission %+v", p)
	}

	if _, err := f.registry.CreatePermission(f.ctx, CreatePermissionInput{Name: "PUBLISH", Creator: super}); !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate name, got %v", err)
	}
}

func TestCreatePermissionValidation(t *testing.T) {
	f := newFixture(t)
	super := f.user(directory.TypeSuperAdmin)

	if _, err := f.registry.CreatePermission(f.ctx, CreatePermissionInput{Name: "  ", Creator: super}); !errors.Is(err, fault.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for blank name, got %v", err)
	}
	_, err := f.registry.CreatePermission(f.ctx, CreatePermissionInput{Name: "MODERATE", Class: "user", Creator: super})
	if !errors.Is(err, fault.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for user class, got %v", err)
	}
	if !strings.Contains(err.Error(), "user") {
		t.Fatalf("error should name the rejected class: %v", err)
	}
}

func TestUpdatePermission(t *testing.T) {
	f := newFixture(t)
	super := f.user(directory.TypeSuperAdmin)
	p := f.permission(super, "PUBLISH", "project")

	name := "RELEASE"
	clearClass := ""
	updated, err := f.registry.UpdatePermission(f.ctx, p.ID, PermissionUpdate{Name: &name, Class: &clearClass}, super)
	if err != nil {
		t.Fatalf("UpdatePermission: %v", err)
	}
	if updated.Name != "RELEASE" || updated.Class != nil {
		t.Fatalf("unexpected update result %+v", updated)
	}

	other := f.permission(super, "ARCHIVE", "")
	taken := "RELEASE"
	if _, err := f.registry.UpdatePermission(f.ctx, other.ID, PermissionUpdate{Name: &taken}, super); !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("expected ErrConflict renaming onto existing name, got %v", err)
	}

	regular := f.user()
	if _, err := f.registry.UpdatePermission(f.ctx, p.ID, PermissionUpdate{Name: &name}, regular); !errors.Is(err, fault.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for regular user, got %v", err)
	}
}

func TestCreateRole(t *testing.T) {
	f := newFixture(t)
	owner := f.user()

	r := f.role(owner, "reviewer", false, "organization")
	if r.Owner != owner || r.Public || r.Class == nil || string(*r.Class) != "organization" {
		t.Fatalf("unexpected role %+v", r)
	}

	// Role names are not unique across owners or even for one owner.
	if _, err := f.registry.CreateRole(f.ctx, CreateRoleInput{Name: "reviewer", Owner: owner}); err != nil {
		t.Fatalf("duplicate role name should be allowed: %v", err)
	}

	ghost := directory.UserRef("missing")
	if _, err := f.registry.CreateRole(f.ctx, CreateRoleInput{Name: "reviewer", Owner: ghost}); !errors.Is(err, fault.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown owner, got %v", err)
	}
}

func TestUpdateRoleAuthority(t *testing.T) {
	f := newFixture(t)
	owner := f.user()
	admin := f.user(directory.TypeAdmin)
	outsider := f.user()
	r := f.role(owner, "reviewer", false, "")

	public := true
	if _, err := f.registry.UpdateRole(f.ctx, r.ID, RoleUpdate{Public: &public}, outsider); !errors.Is(err, fault.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for outsider, got %v", err)
	}
	updated, err := f.registry.UpdateRole(f.ctx, r.ID, RoleUpdate{Public: &public}, admin)
	if err != nil {
		t.Fatalf("UpdateRole as admin: %v", err)
	}
	if !updated.Public {
		t.Fatalf("expected role to be public after update")
	}
}

func TestUpdateRoleClassChecksAttachedPermissions(t *testing.T) {
	f := newFixture(t)
	super := f.user(directory.TypeSuperAdmin)
	owner := f.user()
	projPerm := f.permission(super, "PUBLISH", "project")
	freePerm := f.permission(super, "COMMENT", "")
	r := f.role(owner, "editor", false, "")
	if err := f.registry.SyncPermissions(f.ctx, r.ID, []string{projPerm.ID, freePerm.ID}, owner); err != nil {
		t.Fatalf("SyncPermissions: %v", err)
	}

	orgClass := "organization"
	_, err := f.registry.UpdateRole(f.ctx, r.ID, RoleUpdate{Class: &orgClass}, owner)
	if !errors.Is(err, fault.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for incompatible class change, got %v", err)
	}
	if !strings.Contains(err.Error(), projPerm.ID) {
		t.Fatalf("error should name the incompatible permission id: %v", err)
	}

	projClass := "project"
	if _, err := f.registry.UpdateRole(f.ctx, r.ID, RoleUpdate{Class: &projClass}, owner); err != nil {
		t.Fatalf("compatible class change should succeed: %v", err)
	}
}

func TestSyncPermissions(t *testing.T) {
	f := newFixture(t)
	super := f.user(directory.TypeSuperAdmin)
	owner := f.user()
	outsider := f.user()
	a := f.permission(super, "PUBLISH", "project")
	b := f.permission(super, "COMMENT", "")
	orgOnly := f.permission(super, "INVOICE", "organization")
	r := f.role(owner, "editor", false, "project")

	if err := f.registry.SyncPermissions(f.ctx, r.ID, []string{a.ID}, outsider); !errors.Is(err, fault.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for outsider, got %v", err)
	}
	if err := f.registry.SyncPermissions(f.ctx, r.ID, nil, owner); !errors.Is(err, fault.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for empty id list, got %v", err)
	}

	err := f.registry.SyncPermissions(f.ctx, r.ID, []string{a.ID, "nope-1", "nope-2"}, owner)
	if !errors.Is(err, fault.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown ids, got %v", err)
	}
	if !strings.Contains(err.Error(), "nope-1") || !strings.Contains(err.Error(), "nope-2") {
		t.Fatalf("error should list each unknown id: %v", err)
	}

	err = f.registry.SyncPermissions(f.ctx, r.ID, []string{a.ID, orgOnly.ID}, owner)
	if !errors.Is(err, fault.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for incompatible ids, got %v", err)
	}
	if !strings.Contains(err.Error(), orgOnly.ID) {
		t.Fatalf("error should list the incompatible id: %v", err)
	}

	if err := f.registry.SyncPermissions(f.ctx, r.ID, []string{a.ID, b.ID}, owner); err != nil {
		t.Fatalf("SyncPermissions: %v", err)
	}
	if err := f.registry.SyncPermissions(f.ctx, r.ID, []string{b.ID}, owner); err != nil {
		t.Fatalf("SyncPermissions replace: %v", err)
	}
	perms, err := f.registry.RolePermissions(f.ctx, r.ID)
	if err != nil {
		t.Fatalf("RolePermissions: %v", err)
	}
	if len(perms) != 1 || perms[0].ID != b.ID {
		t.Fatalf("expected sync to replace the set, got %+v", perms)
	}
}

func TestDeletePermissionCascades(t *testing.T) {
	f := newFixture(t)
	super := f.user(directory.TypeSuperAdmin)
	owner := f.user()
	member := f.user()
	proj := f.project(owner)
	f.participate(proj, member, "learner")

	perm := f.permission(super, "PUBLISH", "")
	role := f.role(owner, "editor", false, "")
	if err := f.registry.SyncPermissions(f.ctx, role.ID, []string{perm.ID}, owner); err != nil {
		t.Fatalf("SyncPermissions: %v", err)
	}
	permEdge := f.grant(owner, proj, member, PermissionTarget(perm.ID))
	roleEdge := f.grant(owner, proj, member, RoleTarget(role.ID))

	if err := f.registry.DeletePermission(f.ctx, perm.ID, super); err != nil {
		t.Fatalf("DeletePermission: %v", err)
	}
	if _, err := f.store.FindAuthorization(f.ctx, permEdge.ID); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("permission edge should be gone, got %v", err)
	}
	if _, err := f.store.FindAuthorization(f.ctx, roleEdge.ID); err != nil {
		t.Fatalf("role edge should survive: %v", err)
	}
	perms, err := f.registry.RolePermissions(f.ctx, role.ID)
	if err != nil {
		t.Fatalf("RolePermissions: %v", err)
	}
	if len(perms) != 0 {
		t.Fatalf("deleted permission should be detached from roles, got %+v", perms)
	}
}

func TestDeleteRoleCascades(t *testing.T) {
	f := newFixture(t)
	owner := f.user()
	member := f.user()
	proj := f.project(owner)
	f.participate(proj, member, "learner")

	role := f.role(owner, "editor", true, "")
	edge := f.grant(owner, proj, member, RoleTarget(role.ID))

	outsider := f.user()
	if err := f.registry.DeleteRole(f.ctx, role.ID, outsider); !errors.Is(err, fault.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for outsider, got %v", err)
	}
	if err := f.registry.DeleteRole(f.ctx, role.ID, owner); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	if _, err := f.store.FindAuthorization(f.ctx, edge.ID); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("role edge should be gone, got %v", err)
	}
	if _, err := f.store.FindRole(f.ctx, role.ID); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("role should be gone, got %v", err)
	}
}
