package grants

import (
	"context"
	"errors"
	"fmt"

	"skillforge.org/internal/activity"
	"skillforge.org/internal/directory"
	"skillforge.org/internal/fault"
	"skillforge.org/internal/ids"
	"skillforge.org/internal/obs"
	"skillforge.org/internal/subject"
)

// Graph creates and removes authorization edges. It owns the delegation
// rules; the Store only persists what the Graph has already decided.
type Graph struct {
	store     Store
	directory *directory.Directory
	subjects  subject.Store
	recorder  activity.Recorder
}

func NewGraph(store Store, dir *directory.Directory, subjects subject.Store, recorder activity.Recorder) (*Graph, error) {
	if store == nil {
		return nil, errors.New("grants store is required")
	}
	if dir == nil {
		return nil, errors.New("directory is required")
	}
	if subjects == nil {
		return nil, errors.New("subject store is required")
	}
	if recorder == nil {
		return nil, errors.New("activity recorder is required")
	}
	return &Graph{store: store, directory: dir, subjects: subjects, recorder: recorder}, nil
}

type GrantInput struct {
	Grantor      directory.Ref
	Authorizable subject.Ref
	Authorized   directory.Ref
	Target       TargetRef
}

// Grant delegates a role or permission to an actor over a subject. Platform
// admins may grant anything; a subject owner may grant to participants of
// that subject, and roles only when public or owned by the grantor.
func (g *Graph) Grant(ctx context.Context, in GrantInput) (*Authorization, error) {
	a, err := g.grant(ctx, in)
	if err != nil {
		obs.IncFailure("grant", err)
		return nil, err
	}
	obs.IncGrant()
	return a, nil
}

func (g *Graph) grant(ctx context.Context, in GrantInput) (*Authorization, error) {
	if in.Grantor.IsZero() {
		return nil, fmt.Errorf("%w: grantor is required", fault.ErrInvalid)
	}
	if err := g.directory.Resolve(ctx, in.Grantor); err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return nil, fmt.Errorf("%w: grantor %s not found", fault.ErrInvalid, in.Grantor)
		}
		return nil, err
	}
	if in.Authorizable.IsZero() {
		return nil, fmt.Errorf("%w: authorizable is required", fault.ErrInvalid)
	}
	sub, err := g.subjects.Find(ctx, in.Authorizable)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return nil, fmt.Errorf("%w: authorizable %s not found", fault.ErrInvalid, in.Authorizable)
		}
		return nil, err
	}
	if in.Authorized.IsZero() {
		return nil, fmt.Errorf("%w: authorized is required", fault.ErrInvalid)
	}
	if err := g.directory.Resolve(ctx, in.Authorized); err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return nil, fmt.Errorf("%w: authorized %s not found", fault.ErrInvalid, in.Authorized)
		}
		return nil, err
	}
	if in.Target.IsZero() {
		return nil, fmt.Errorf("%w: authorization target is required", fault.ErrInvalid)
	}

	var role *Role
	switch in.Target.Kind {
	case TargetRole:
		role, err = g.store.FindRole(ctx, in.Target.ID)
		if err != nil {
			if errors.Is(err, fault.ErrNotFound) {
				return nil, fmt.Errorf("%w: role %s not found", fault.ErrInvalid, in.Target.ID)
			}
			return nil, err
		}
	case TargetPermission:
		if _, err := g.store.FindPermission(ctx, in.Target.ID); err != nil {
			if errors.Is(err, fault.ErrNotFound) {
				return nil, fmt.Errorf("%w: permission %s not found", fault.ErrInvalid, in.Target.ID)
			}
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown target kind %q", fault.ErrInvalid, in.Target.Kind)
	}

	admin, err := g.directory.IsAdmin(ctx, in.Grantor)
	if err != nil && !errors.Is(err, fault.ErrNotFound) {
		return nil, err
	}
	if !admin {
		if in.Grantor != sub.Owner {
			return nil, fmt.Errorf("%w: %s may not grant over %s", fault.ErrUnauthorized, in.Grantor, in.Authorizable)
		}
		participant, err := g.subjects.IsParticipant(ctx, in.Authorizable, in.Authorized)
		if err != nil {
			return nil, err
		}
		if !participant {
			return nil, fmt.Errorf("%w: %s does not participate in %s", fault.ErrUnauthorized, in.Authorized, in.Authorizable)
		}
		if role != nil && !role.Public && role.Owner != in.Grantor {
			return nil, fmt.Errorf("%w: role %s is not visible to %s", fault.ErrUnauthorized, role.Name, in.Grantor)
		}
	}

	a := &Authorization{
		ID:           ids.New(),
		Grantor:      in.Grantor,
		Authorizable: in.Authorizable,
		Authorized:   in.Authorized,
		Target:       in.Target,
	}
	if err := g.store.CreateAuthorization(ctx, a); err != nil {
		return nil, err
	}
	g.record(ctx, in.Grantor, a, "grant")
	return a, nil
}

// Revoke removes an authorization edge. The edge must exist; a missing id is
// a validation failure, not a silent no-op.
func (g *Graph) Revoke(ctx context.Context, actor directory.Ref, authorizationID string) error {
	if err := g.revoke(ctx, actor, authorizationID); err != nil {
		obs.IncFailure("revoke", err)
		return err
	}
	obs.IncRevoke()
	return nil
}

func (g *Graph) revoke(ctx context.Context, actor directory.Ref, authorizationID string) error {
	if actor.IsZero() {
		return fmt.Errorf("%w: actor is required", fault.ErrInvalid)
	}
	if authorizationID == "" {
		return fmt.Errorf("%w: authorization id is required", fault.ErrInvalid)
	}
	edge, err := g.store.FindAuthorization(ctx, authorizationID)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return fmt.Errorf("%w: authorization %s not found", fault.ErrInvalid, authorizationID)
		}
		return err
	}

	allowed := actor == edge.Grantor || actor == edge.Authorized
	if !allowed {
		admin, err := g.directory.IsAdmin(ctx, actor)
		if err != nil && !errors.Is(err, fault.ErrNotFound) {
			return err
		}
		allowed = admin
	}
	if !allowed {
		sub, err := g.subjects.Find(ctx, edge.Authorizable)
		if err != nil && !errors.Is(err, fault.ErrNotFound) {
			return err
		}
		allowed = err == nil && actor == sub.Owner
	}
	if !allowed {
		held, err := g.holdsRemoveAuthorizations(ctx, actor, edge.Authorizable)
		if err != nil {
			return err
		}
		allowed = held
	}
	if !allowed {
		return fmt.Errorf("%w: %s may not revoke authorization %s held by %s", fault.ErrUnauthorized, actor, edge.ID, edge.Authorized)
	}

	if err := g.store.DeleteAuthorization(ctx, edge.ID); err != nil {
		return err
	}
	g.record(ctx, actor, edge, "revoke")
	return nil
}

// holdsRemoveAuthorizations reports whether the actor holds the reserved
// REMOVEAUTHORIZATIONS permission on the subject, either granted directly or
// through any granted role containing it.
func (g *Graph) holdsRemoveAuthorizations(ctx context.Context, actor directory.Ref, authorizable subject.Ref) (bool, error) {
	edges, err := g.store.AuthorizationsFor(ctx, authorizable, actor)
	if err != nil {
		return false, err
	}
	for _, e := range edges {
		switch e.Target.Kind {
		case TargetPermission:
			p, err := g.store.FindPermission(ctx, e.Target.ID)
			if errors.Is(err, fault.ErrNotFound) {
				continue
			}
			if err != nil {
				return false, err
			}
			if p.Name == PermRemoveAuthorizations {
				return true, nil
			}
		case TargetRole:
			perms, err := g.store.RolePermissions(ctx, e.Target.ID)
			if errors.Is(err, fault.ErrNotFound) {
				continue
			}
			if err != nil {
				return false, err
			}
			for i := range perms {
				if perms[i].Name == PermRemoveAuthorizations {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func (g *Graph) record(ctx context.Context, actor directory.Ref, edge *Authorization, action string) {
	entry := activity.New(actor, "authorization", edge.ID, action, map[string]any{
		"authorizable": edge.Authorizable.String(),
		"authorized":   edge.Authorized.String(),
		"target":       edge.Target.String(),
	})
	if err := g.recorder.Record(ctx, entry); err != nil {
		obs.LogOperation(map[string]any{"level": "error", "msg": "activity record failed", "error": err.Error()})
	}
}
