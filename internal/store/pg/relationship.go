package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"skillforge.org/internal/activity"
	"skillforge.org/internal/fault"
	"skillforge.org/internal/relationship"
	"skillforge.org/internal/subject"
)

var _ relationship.Store = (*Store)(nil)

func (s *Store) Create(ctx context.Context, req *relationship.Request) error {
	row := s.db.QueryRowContext(ctx, `
		insert into requests (id, from_kind, from_id, to_kind, to_id, subject_kind, subject_id, role_tag, state, purpose)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		returning created_at, updated_at
	`, req.ID, req.From.Kind, req.From.ID, req.To.Kind, req.To.ID,
		req.For.Kind, req.For.ID, req.Type, req.State, req.Purpose)
	if err := row.Scan(&req.CreatedAt, &req.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fault.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) FindRequest(ctx context.Context, id string) (*relationship.Request, error) {
	return findRequest(ctx, s.db, id)
}

func findRequest(ctx context.Context, q querier, id string) (*relationship.Request, error) {
	var req relationship.Request
	err := q.QueryRowContext(ctx, `
		select id, from_kind, from_id, to_kind, to_id, subject_kind, subject_id, role_tag, state, purpose, created_at, updated_at
		from requests
		where id = $1
	`, id).Scan(&req.ID, &req.From.Kind, &req.From.ID, &req.To.Kind, &req.To.ID,
		&req.For.Kind, &req.For.ID, &req.Type, &req.State, &req.Purpose, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Resolve transitions a pending request and applies its side effects in one
// transaction. The guarded update makes the pending check race-safe: of two
// concurrent responders, exactly one sees a row affected.
func (s *Store) Resolve(ctx context.Context, id string, state relationship.State, part *subject.Participation, entry *activity.Entry) (*relationship.Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update requests set state = $2, updated_at = now()
		where id = $1 and state = $3
	`, id, state, relationship.StatePending)
	if err != nil {
		return nil, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if aff == 0 {
		if _, err := findRequest(ctx, tx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: request %s already responded to", fault.ErrState, id)
	}

	if part != nil {
		if err := insertParticipation(ctx, tx, *part); err != nil {
			return nil, err
		}
	}
	if entry != nil {
		if err := insertActivityEntry(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	req, err := findRequest(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return req, nil
}

func insertActivityEntry(ctx context.Context, q querier, entry *activity.Entry) error {
	data := []byte("{}")
	if len(entry.Data) > 0 {
		raw, err := json.Marshal(entry.Data)
		if err != nil {
			return fmt.Errorf("marshal activity data: %w", err)
		}
		data = raw
	}
	_, err := q.ExecContext(ctx, `
		insert into activity_entries (id, occurred_at, performer_kind, performer_id, target_kind, target_id, action, data, trace_id)
		values ($1, $2, $3, $4, $5, $6, $7, $8, nullif($9, ''))
	`, entry.ID, entry.OccurredAt, entry.PerformedBy.Kind, entry.PerformedBy.ID,
		entry.TargetKind, entry.TargetID, entry.Action, data, entry.TraceID)
	return err
}
