package pg

import (
	"context"
	"database/sql"
	"errors"

	"skillforge.org/internal/directory"
	"skillforge.org/internal/fault"
	"skillforge.org/internal/grants"
	"skillforge.org/internal/subject"
)

var _ grants.Store = (*Store)(nil)

func classValue(class *subject.Kind) sql.NullString {
	if class == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*class), Valid: true}
}

func scanClass(raw sql.NullString) *subject.Kind {
	if !raw.Valid {
		return nil
	}
	kind := subject.Kind(raw.String)
	return &kind
}

func (s *Store) CreatePermission(ctx context.Context, p *grants.Permission) error {
	row := s.db.QueryRowContext(ctx, `
		insert into permissions (id, owner_kind, owner_id, name, class)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, p.ID, p.Owner.Kind, p.Owner.ID, p.Name, classValue(p.Class))
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fault.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) FindPermission(ctx context.Context, id string) (*grants.Permission, error) {
	var (
		p     grants.Permission
		class sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, owner_kind, owner_id, name, class, created_at, updated_at
		from permissions
		where id = $1
	`, id).Scan(&p.ID, &p.Owner.Kind, &p.Owner.ID, &p.Name, &class, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Class = scanClass(class)
	return &p, nil
}

func (s *Store) UpdatePermission(ctx context.Context, p *grants.Permission) error {
	res, err := s.db.ExecContext(ctx, `
		update permissions set name = $2, class = $3, updated_at = now()
		where id = $1
	`, p.ID, p.Name, classValue(p.Class))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fault.ErrConflict
		}
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

func (s *Store) DeletePermission(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where permission_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		delete from authorizations where target_kind = $1 and target_id = $2
	`, grants.TargetPermission, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from permissions where id = $1`, id)
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
	return tx.Commit()
}

func (s *Store) CreateRole(ctx context.Context, r *grants.Role) error {
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, owner_kind, owner_id, name, class, public)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, r.ID, r.Owner.Kind, r.Owner.ID, r.Name, classValue(r.Class), r.Public)
	return row.Scan(&r.CreatedAt, &r.UpdatedAt)
}

func (s *Store) FindRole(ctx context.Context, id string) (*grants.Role, error) {
	var (
		r     grants.Role
		class sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, owner_kind, owner_id, name, class, public, created_at, updated_at
		from roles
		where id = $1
	`, id).Scan(&r.ID, &r.Owner.Kind, &r.Owner.ID, &r.Name, &class, &r.Public, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Class = scanClass(class)
	return &r, nil
}

func (s *Store) UpdateRole(ctx context.Context, r *grants.Role) error {
	res, err := s.db.ExecContext(ctx, `
		update roles set name = $2, class = $3, public = $4, updated_at = now()
		where id = $1
	`, r.ID, r.Name, classValue(r.Class), r.Public)
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

func (s *Store) DeleteRole(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		delete from authorizations where target_kind = $1 and target_id = $2
	`, grants.TargetRole, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from roles where id = $1`, id)
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
	return tx.Commit()
}

func (s *Store) SyncRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1 for update`, roleID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fault.ErrNotFound
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, permID := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			values ($1, $2)
		`, roleID, permID); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return fault.ErrNotFound
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) RolePermissions(ctx context.Context, roleID string) ([]grants.Permission, error) {
	var one int
	if err := s.db.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.ErrNotFound
		}
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.owner_kind, p.owner_id, p.name, p.class, p.created_at, p.updated_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []grants.Permission
	for rows.Next() {
		var (
			p     grants.Permission
			class sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Owner.Kind, &p.Owner.ID, &p.Name, &class, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Class = scanClass(class)
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) CreateAuthorization(ctx context.Context, a *grants.Authorization) error {
	row := s.db.QueryRowContext(ctx, `
		insert into authorizations (id, grantor_kind, grantor_id, subject_kind, subject_id, authorized_kind, authorized_id, target_kind, target_id)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at
	`, a.ID, a.Grantor.Kind, a.Grantor.ID, a.Authorizable.Kind, a.Authorizable.ID,
		a.Authorized.Kind, a.Authorized.ID, a.Target.Kind, a.Target.ID)
	return row.Scan(&a.CreatedAt)
}

func (s *Store) FindAuthorization(ctx context.Context, id string) (*grants.Authorization, error) {
	var a grants.Authorization
	err := s.db.QueryRowContext(ctx, `
		select id, grantor_kind, grantor_id, subject_kind, subject_id, authorized_kind, authorized_id, target_kind, target_id, created_at
		from authorizations
		where id = $1
	`, id).Scan(&a.ID, &a.Grantor.Kind, &a.Grantor.ID, &a.Authorizable.Kind, &a.Authorizable.ID,
		&a.Authorized.Kind, &a.Authorized.ID, &a.Target.Kind, &a.Target.ID, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) DeleteAuthorization(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from authorizations where id = $1`, id)
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

func (s *Store) AuthorizationsFor(ctx context.Context, authorizable subject.Ref, authorized directory.Ref) ([]grants.Authorization, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, grantor_kind, grantor_id, subject_kind, subject_id, authorized_kind, authorized_id, target_kind, target_id, created_at
		from authorizations
		where subject_kind = $1 and subject_id = $2 and authorized_kind = $3 and authorized_id = $4
		order by created_at
	`, authorizable.Kind, authorizable.ID, authorized.Kind, authorized.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []grants.Authorization
	for rows.Next() {
		var a grants.Authorization
		if err := rows.Scan(&a.ID, &a.Grantor.Kind, &a.Grantor.ID, &a.Authorizable.Kind, &a.Authorizable.ID,
			&a.Authorized.Kind, &a.Authorized.ID, &a.Target.Kind, &a.Target.ID, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
