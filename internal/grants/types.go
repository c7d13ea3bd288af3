package grants

import (
	"fmt"
	"time"

	"skillforge.org/internal/directory"
	"skillforge.org/internal/subject"
)

// PermRemoveAuthorizations is the reserved permission name that lets its
// holder revoke any authorization edge on the subject it was granted for.
const PermRemoveAuthorizations = "REMOVEAUTHORIZATIONS"

// TargetKind discriminates what an authorization delegates.
type TargetKind string

const (
	TargetRole       TargetKind = "role"
	TargetPermission TargetKind = "permission"
)

// TargetRef is a typed reference to a role or permission.
type TargetRef struct {
	Kind TargetKind
	ID   string
}

func (r TargetRef) IsZero() bool { return r.Kind == "" && r.ID == "" }

func (r TargetRef) String() string { return fmt.Sprintf("%s:%s", r.Kind, r.ID) }

func RoleTarget(id string) TargetRef { return TargetRef{Kind: TargetRole, ID: id} }

func PermissionTarget(id string) TargetRef { return TargetRef{Kind: TargetPermission, ID: id} }

// Permission is an atomic capability. Names are globally unique; a non-nil
// Class restricts the permission to one subject kind.
type Permission struct {
	ID        string
	Owner     directory.Ref
	Name      string
	Class     *subject.Kind
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Role is a named bundle of permissions. Names are not unique. Every
// attached permission's class must equal the role's class or be nil; a role
// without a class accepts permissions of any class.
type Role struct {
	ID        string
	Owner     directory.Ref
	Name      string
	Class     *subject.Kind
	Public    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Authorization is a grant edge: grantor delegates a role or permission to
// the authorized actor, scoped to the authorizable subject. Edges are
// created and deleted, never updated; duplicate edges may coexist.
type Authorization struct {
	ID           string
	Grantor      directory.Ref
	Authorizable subject.Ref
	Authorized   directory.Ref
	Target       TargetRef
	CreatedAt    time.Time
}

// classCompatible reports whether a permission may be attached to a role.
func classCompatible(role *Role, perm *Permission) bool {
	if perm.Class == nil || role.Class == nil {
		return true
	}
	return *perm.Class == *role.Class
}
