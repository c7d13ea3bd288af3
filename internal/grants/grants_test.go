package grants

import (
	"context"
	"fmt"
	"testing"
	"time"

	"skillforge.org/internal/activity"
	"skillforge.org/internal/directory"
	"skillforge.org/internal/subject"
)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	dir      *directory.Directory
	dirStore *directory.InMemory
	subjects *subject.InMemory
	store    *InMemory
	registry *Registry
	graph    *Graph
	seq      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dirStore := directory.NewInMemory()
	dir, err := directory.New(dirStore)
	if err != nil {
		t.Fatalf("directory.New: %v", err)
	}
	subjects := subject.NewInMemory()
	store := NewInMemory()
	registry, err := NewRegistry(store, dir)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	graph, err := NewGraph(store, dir, subjects, activity.LogRecorder{})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	return &fixture{
		t:        t,
		ctx:      context.Background(),
		dir:      dir,
		dirStore: dirStore,
		subjects: subjects,
		store:    store,
		registry: registry,
		graph:    graph,
	}
}

func (f *fixture) user(types ...string) directory.Ref {
	f.t.Helper()
	f.seq++
	dob := time.Now().AddDate(-30, 0, -1)
	u, err := f.dir.RegisterUser(f.ctx, fmt.Sprintf("grantee%d@example.com", f.seq), "pw", types, &dob)
	if err != nil {
		f.t.Fatalf("RegisterUser: %v", err)
	}
	return directory.UserRef(u.ID)
}

func (f *fixture) project(owner directory.Ref) subject.Ref {
	f.t.Helper()
	p := &subject.Project{Name: "workshop", Owner: owner}
	if err := f.subjects.CreateProject(f.ctx, p); err != nil {
		f.t.Fatalf("CreateProject: %v", err)
	}
	return p.Ref()
}

func (f *fixture) participate(ref subject.Ref, actor directory.Ref, tag subject.RoleTag) {
	f.t.Helper()
	if err := f.subjects.CreateParticipation(f.ctx, subject.Participation{Subject: ref, Actor: actor, Tag: tag}); err != nil {
		f.t.Fatalf("CreateParticipation: %v", err)
	}
}

func (f *fixture) permission(creator directory.Ref, name, class string) *Permission {
	f.t.Helper()
	p, err := f.registry.CreatePermission(f.ctx, CreatePermissionInput{Name: name, Class: class, Creator: creator})
	if err != nil {
		f.t.Fatalf("CreatePermission(%s): %v", name, err)
	}
	return p
}

func (f *fixture) role(owner directory.Ref, name string, public bool, class string) *Role {
	f.t.Helper()
	r, err := f.registry.CreateRole(f.ctx, CreateRoleInput{Name: name, Class: class, Public: public, Owner: owner})
	if err != nil {
		f.t.Fatalf("CreateRole(%s): %v", name, err)
	}
	return r
}

func (f *fixture) grant(grantor directory.Ref, authorizable subject.Ref, authorized directory.Ref, target TargetRef) *Authorization {
	f.t.Helper()
	a, err := f.graph.Grant(f.ctx, GrantInput{Grantor: grantor, Authorizable: authorizable, Authorized: authorized, Target: target})
	if err != nil {
		f.t.Fatalf("Grant: %v", err)
	}
	return a
}
