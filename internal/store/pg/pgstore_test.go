package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"skillforge.org/internal/activity"
	"skillforge.org/internal/directory"
	"skillforge.org/internal/fault"
	"skillforge.org/internal/grants"
	"skillforge.org/internal/relationship"
	"skillforge.org/internal/subject"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestFindUserNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("select id, email, password_hash, types").WithArgs("u1").WillReturnError(sql.ErrNoRows)

	if _, err := store.FindUser(context.Background(), "u1"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserConflict(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("insert into users").
		WithArgs("u1", "dup@example.com", "hash", sqlmock.AnyArg(), sqlmock.AnyArg(), "active").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	u := &directory.User{ID: "u1", Email: "dup@example.com", PasswordHash: "hash", Status: directory.UserStatusActive}
	if err := store.CreateUser(context.Background(), u); !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResolveAppliesSideEffects(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	proj := subject.ProjectRef("p1")
	actor := directory.UserRef("u2")

	mock.ExpectBegin()
	mock.ExpectExec("update requests set state").
		WithArgs("r1", string(relationship.StateAccepted), string(relationship.StatePending)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select name, owner_kind, owner_id from projects").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "owner_kind", "owner_id"}).AddRow("garden", "user", "u1"))
	mock.ExpectQuery("select tag from participations").
		WithArgs("project", "p1", "user", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"tag"}))
	mock.ExpectExec("insert into participations").
		WithArgs("project", "p1", "user", "u2", "learner", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into activity_entries").
		WithArgs("e1", sqlmock.AnyArg(), "user", "u3", "request", "r1", "respond", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select id, from_kind, from_id").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "from_kind", "from_id", "to_kind", "to_id", "subject_kind", "subject_id",
			"role_tag", "state", "purpose", "created_at", "updated_at",
		}).AddRow("r1", "user", "u2", "user", "u1", "project", "p1", "learner", "accepted", "", now, now))
	mock.ExpectCommit()

	part := &subject.Participation{Subject: proj, Actor: actor, Tag: subject.TagLearner}
	entry := &activity.Entry{ID: "e1", OccurredAt: now, PerformedBy: directory.UserRef("u3"), TargetKind: "request", TargetID: "r1", Action: "respond"}
	req, err := store.Resolve(context.Background(), "r1", relationship.StateAccepted, part, entry)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if req.State != relationship.StateAccepted {
		t.Fatalf("expected accepted state, got %s", req.State)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResolveLosesRace(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("update requests set state").
		WithArgs("r1", string(relationship.StateAccepted), string(relationship.StatePending)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select id, from_kind, from_id").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "from_kind", "from_id", "to_kind", "to_id", "subject_kind", "subject_id",
			"role_tag", "state", "purpose", "created_at", "updated_at",
		}).AddRow("r1", "user", "u2", "user", "u1", "project", "p1", "learner", "accepted", "", now, now))
	mock.ExpectRollback()

	_, err := store.Resolve(context.Background(), "r1", relationship.StateAccepted, nil, nil)
	if !errors.Is(err, fault.ErrState) {
		t.Fatalf("expected ErrState for settled request, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResolveUnknownRequest(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("update requests set state").
		WithArgs("nope", string(relationship.StateRejected), string(relationship.StatePending)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select id, from_kind, from_id").WithArgs("nope").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.Resolve(context.Background(), "nope", relationship.StateRejected, nil, nil)
	if !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateParticipationFamilyConflict(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select name, owner_kind, owner_id from projects").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "owner_kind", "owner_id"}).AddRow("garden", "user", "u1"))
	mock.ExpectQuery("select tag from participations").
		WithArgs("project", "p1", "user", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"tag"}).AddRow("learner"))
	mock.ExpectRollback()

	part := subject.Participation{Subject: subject.ProjectRef("p1"), Actor: directory.UserRef("u2"), Tag: subject.TagSponsor}
	err := store.CreateParticipation(context.Background(), part)
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("expected ErrConflict for second member-family tag, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteRoleCascades(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("delete from role_permissions where role_id").
		WithArgs("role1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("delete from authorizations where target_kind").
		WithArgs(string(grants.TargetRole), "role1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from roles where id").
		WithArgs("role1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.DeleteRole(context.Background(), "role1"); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSyncRolePermissionsUnknownPermission(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from roles where id").
		WithArgs("role1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("delete from role_permissions where role_id").
		WithArgs("role1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into role_permissions").
		WithArgs("role1", "perm1").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	mock.ExpectRollback()

	err := store.SyncRolePermissions(context.Background(), "role1", []string{"perm1"})
	if !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown permission, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
