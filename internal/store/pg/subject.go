package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"skillforge.org/internal/directory"
	"skillforge.org/internal/fault"
	"skillforge.org/internal/ids"
	"skillforge.org/internal/subject"
)

var _ subject.Store = (*Store)(nil)

func (s *Store) CreateProject(ctx context.Context, p *subject.Project) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into projects (id, name, description, owner_kind, owner_id)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, p.ID, p.Name, p.Description, p.Owner.Kind, p.Owner.ID)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fault.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) CreateOrganization(ctx context.Context, o *subject.Organization) error {
	if o.ID == "" {
		o.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into organizations (id, name, owner_kind, owner_id)
		values ($1, $2, $3, $4)
		returning created_at, updated_at
	`, o.ID, o.Name, o.Owner.Kind, o.Owner.ID)
	if err := row.Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fault.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) Find(ctx context.Context, ref subject.Ref) (*subject.Subject, error) {
	return findSubject(ctx, s.db, ref)
}

func findSubject(ctx context.Context, q querier, ref subject.Ref) (*subject.Subject, error) {
	var query string
	switch ref.Kind {
	case subject.KindProject:
		query = `select name, owner_kind, owner_id from projects where id = $1`
	case subject.KindOrganization:
		query = `select name, owner_kind, owner_id from organizations where id = $1`
	default:
		return nil, fmt.Errorf("%w: unknown subject kind %q", fault.ErrInvalid, ref.Kind)
	}
	sub := subject.Subject{Ref: ref}
	err := q.QueryRowContext(ctx, query, ref.ID).Scan(&sub.Name, &sub.Owner.Kind, &sub.Owner.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Store) Officials(ctx context.Context, ref subject.Ref) ([]directory.Ref, error) {
	rows, err := s.db.QueryContext(ctx, `
		select actor_kind, actor_id
		from participations
		where subject_kind = $1 and subject_id = $2 and tag = $3
		order by created_at
	`, ref.Kind, ref.ID, subject.OfficialTag(ref.Kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []directory.Ref
	for rows.Next() {
		var actor directory.Ref
		if err := rows.Scan(&actor.Kind, &actor.ID); err != nil {
			return nil, err
		}
		result = append(result, actor)
	}
	return result, rows.Err()
}

func (s *Store) IsParticipant(ctx context.Context, ref subject.Ref, actor directory.Ref) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		select 1 from participations
		where subject_kind = $1 and subject_id = $2 and actor_kind = $3 and actor_id = $4
		limit 1
	`, ref.Kind, ref.ID, actor.Kind, actor.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ParticipationRoles(ctx context.Context, ref subject.Ref, actor directory.Ref) ([]subject.RoleTag, error) {
	rows, err := s.db.QueryContext(ctx, `
		select tag from participations
		where subject_kind = $1 and subject_id = $2 and actor_kind = $3 and actor_id = $4
		order by created_at
	`, ref.Kind, ref.ID, actor.Kind, actor.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []subject.RoleTag
	for rows.Next() {
		var tag subject.RoleTag
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *Store) CreateParticipation(ctx context.Context, part subject.Participation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertParticipation(ctx, tx, part); err != nil {
		return err
	}
	return tx.Commit()
}

// insertParticipation enforces the role-family invariant: one official-family
// and one member-family tag per (subject, actor). Callers supply the
// transaction so request resolution can reuse it.
func insertParticipation(ctx context.Context, q querier, part subject.Participation) error {
	if _, err := findSubject(ctx, q, part.Subject); err != nil {
		return err
	}
	if !part.Tag.ValidFor(part.Subject.Kind) {
		return fmt.Errorf("%w: tag %s is not valid for %s subjects", fault.ErrInvalid, part.Tag, part.Subject.Kind)
	}
	rows, err := q.QueryContext(ctx, `
		select tag from participations
		where subject_kind = $1 and subject_id = $2 and actor_kind = $3 and actor_id = $4
		for update
	`, part.Subject.Kind, part.Subject.ID, part.Actor.Kind, part.Actor.ID)
	if err != nil {
		return err
	}
	var held []subject.RoleTag
	for rows.Next() {
		var tag subject.RoleTag
		if err := rows.Scan(&tag); err != nil {
			rows.Close()
			return err
		}
		held = append(held, tag)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()
	for _, tag := range held {
		if tag == part.Tag {
			return fmt.Errorf("%w: already a %s", fault.ErrConflict, part.Tag)
		}
		if tag.Family() == part.Tag.Family() {
			return fmt.Errorf("%w: already holds a %s-family role", fault.ErrConflict, part.Tag.Family())
		}
	}

	createdAt := part.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := q.ExecContext(ctx, `
		insert into participations (subject_kind, subject_id, actor_kind, actor_id, tag, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, part.Subject.Kind, part.Subject.ID, part.Actor.Kind, part.Actor.ID, part.Tag, createdAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: already a %s", fault.ErrConflict, part.Tag)
		}
		return err
	}
	return nil
}

func (s *Store) DeleteParticipation(ctx context.Context, ref subject.Ref, actor directory.Ref, tag subject.RoleTag) error {
	res, err := s.db.ExecContext(ctx, `
		delete from participations
		where subject_kind = $1 and subject_id = $2 and actor_kind = $3 and actor_id = $4 and tag = $5
	`, ref.Kind, ref.ID, actor.Kind, actor.ID, tag)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fault.ErrNotFound
	}
	return nil
}
