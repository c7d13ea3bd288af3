package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"skillforge.org/internal/activity"
	"skillforge.org/internal/directory"
	"skillforge.org/internal/grants"
	"skillforge.org/internal/obs"
	"skillforge.org/internal/relationship"
	"skillforge.org/internal/subject"
)

// Exercises the full request/response and delegation flow against the
// in-memory stores. Exits non-zero on the first broken invariant.
func main() {
	obs.Init()
	obs.InitBuildInfo("smoke", "dev")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dirStore := directory.NewInMemory()
	dir, err := directory.New(dirStore)
	if err != nil {
		log.Fatalf("directory: %v", err)
	}
	subjects := subject.NewInMemory()
	requests := relationship.NewInMemory(subjects)
	recorder := activity.LogRecorder{}

	engine, err := relationship.NewEngine(dir, subjects, requests, recorder)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	grantStore := grants.NewInMemory()
	registry, err := grants.NewRegistry(grantStore, dir)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}
	graph, err := grants.NewGraph(grantStore, dir, subjects, recorder)
	if err != nil {
		log.Fatalf("graph: %v", err)
	}

	adult := time.Now().AddDate(-30, 0, 0)
	owner, err := dir.RegisterUser(ctx, "owner@smoke.test", "secret", []string{directory.TypeFacilitator}, &adult)
	if err != nil {
		log.Fatalf("register owner: %v", err)
	}
	learner, err := dir.RegisterUser(ctx, "learner@smoke.test", "secret", []string{directory.TypeStudent}, &adult)
	if err != nil {
		log.Fatalf("register learner: %v", err)
	}
	super, err := dir.RegisterUser(ctx, "root@smoke.test", "secret", []string{directory.TypeSuperAdmin}, &adult)
	if err != nil {
		log.Fatalf("register super-admin: %v", err)
	}
	ownerRef := directory.UserRef(owner.ID)
	learnerRef := directory.UserRef(learner.ID)
	superRef := directory.UserRef(super.ID)

	project := &subject.Project{Name: "smoke-project", Owner: ownerRef}
	if err := subjects.CreateProject(ctx, project); err != nil {
		log.Fatalf("create project: %v", err)
	}
	if err := subjects.CreateParticipation(ctx, subject.Participation{
		Subject: project.Ref(), Actor: ownerRef, Tag: subject.TagFacilitator,
	}); err != nil {
		log.Fatalf("seed facilitator: %v", err)
	}

	// Learner applies; the recipient defaults to the project owner.
	req, err := engine.CreateRequest(ctx, relationship.CreateRequestInput{
		From: learnerRef,
		For:  project.Ref(),
		Type: "student",
	})
	if err != nil {
		log.Fatalf("create request: %v", err)
	}
	if req.To != ownerRef {
		log.Fatalf("expected request to default to the owner, got %s", req.To)
	}
	resolved, err := engine.Respond(ctx, req.ID, relationship.ResponseAccepted, ownerRef)
	if err != nil {
		log.Fatalf("respond: %v", err)
	}
	if resolved.State != relationship.StateAccepted {
		log.Fatalf("expected accepted request, got %s", resolved.State)
	}
	participant, err := subjects.IsParticipant(ctx, project.Ref(), learnerRef)
	if err != nil || !participant {
		log.Fatalf("learner should participate after acceptance (err=%v)", err)
	}

	// Delegation: a reviewer role bundling the reserved revocation permission.
	remove, err := registry.CreatePermission(ctx, grants.CreatePermissionInput{
		Name: grants.PermRemoveAuthorizations, Creator: superRef,
	})
	if err != nil {
		log.Fatalf("create permission: %v", err)
	}
	role, err := registry.CreateRole(ctx, grants.CreateRoleInput{
		Name: "reviewer", Public: true, Owner: ownerRef,
	})
	if err != nil {
		log.Fatalf("create role: %v", err)
	}
	if err := registry.SyncPermissions(ctx, role.ID, []string{remove.ID}, ownerRef); err != nil {
		log.Fatalf("sync permissions: %v", err)
	}

	edge, err := graph.Grant(ctx, grants.GrantInput{
		Grantor:      ownerRef,
		Authorizable: project.Ref(),
		Authorized:   learnerRef,
		Target:       grants.RoleTarget(role.ID),
	})
	if err != nil {
		log.Fatalf("grant: %v", err)
	}
	second, err := graph.Grant(ctx, grants.GrantInput{
		Grantor:      ownerRef,
		Authorizable: project.Ref(),
		Authorized:   ownerRef,
		Target:       grants.RoleTarget(role.ID),
	})
	if err != nil {
		log.Fatalf("grant to owner: %v", err)
	}

	// The learner's role carries REMOVEAUTHORIZATIONS, so they can revoke
	// the owner's edge; then they drop their own.
	if err := graph.Revoke(ctx, learnerRef, second.ID); err != nil {
		log.Fatalf("mediated revoke: %v", err)
	}
	if err := graph.Revoke(ctx, learnerRef, edge.ID); err != nil {
		log.Fatalf("self revoke: %v", err)
	}
	remaining, err := grantStore.AuthorizationsFor(ctx, project.Ref(), learnerRef)
	if err != nil {
		log.Fatalf("authorizations: %v", err)
	}
	if len(remaining) != 0 {
		log.Fatalf("expected no remaining edges, got %d", len(remaining))
	}

	fmt.Printf("✅ core smoke test passed: request=%s role=%s\n", req.ID, role.ID)
}
