package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"skillforge.org/internal/directory"
	"skillforge.org/internal/fault"
)

var _ directory.Store = (*Store)(nil)

func (s *Store) CreateUser(ctx context.Context, u *directory.User) error {
	types, err := json.Marshal(u.Types)
	if err != nil {
		return fmt.Errorf("marshal user types: %w", err)
	}
	var birth sql.NullTime
	if u.BirthDate != nil {
		birth = sql.NullTime{Time: *u.BirthDate, Valid: true}
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, types, birth_date, status)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, u.ID, u.Email, u.PasswordHash, types, birth, u.Status)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fault.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) FindUser(ctx context.Context, id string) (*directory.User, error) {
	var (
		u        directory.User
		rawTypes []byte
		birth    sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, types, birth_date, status, created_at, updated_at
		from users
		where id = $1
	`, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &rawTypes, &birth, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(rawTypes) > 0 {
		if err := json.Unmarshal(rawTypes, &u.Types); err != nil {
			return nil, fmt.Errorf("decode user types: %w", err)
		}
	}
	if birth.Valid {
		d := birth.Time.UTC()
		u.BirthDate = &d
	}
	return &u, nil
}

func (s *Store) OrganizationActorExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `select 1 from organizations where id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
