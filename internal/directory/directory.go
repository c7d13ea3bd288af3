package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"skillforge.org/internal/fault"
	"skillforge.org/internal/ids"
)

// Store describes the persistence operations the directory needs.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	FindUser(ctx context.Context, id string) (*User, error)
	OrganizationActorExists(ctx context.Context, id string) (bool, error)
}

// Directory answers capability predicates about actors. It is the single
// authority the engines consult for admin status, user-type tags and
// adulthood; organizations always answer false to user-only predicates.
type Directory struct {
	store Store
	now   func() time.Time
}

func New(store Store) (*Directory, error) {
	if store == nil {
		return nil, errors.New("directory store is required")
	}
	return &Directory{store: store, now: time.Now}, nil
}

// Resolve verifies that the referenced actor exists.
func (d *Directory) Resolve(ctx context.Context, ref Ref) error {
	if ref.IsZero() {
		return fmt.Errorf("%w: actor reference is required", fault.ErrInvalid)
	}
	switch ref.Kind {
	case KindUser:
		_, err := d.store.FindUser(ctx, ref.ID)
		return err
	case KindOrganization:
		ok, err := d.store.OrganizationActorExists(ctx, ref.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fault.ErrNotFound
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown actor kind %q", fault.ErrInvalid, ref.Kind)
	}
}

// IsAdmin reports whether the actor is a platform administrator.
func (d *Directory) IsAdmin(ctx context.Context, ref Ref) (bool, error) {
	u, err := d.user(ctx, ref)
	if err != nil || u == nil {
		return false, err
	}
	return u.HasType(TypeAdmin) || u.HasType(TypeSuperAdmin), nil
}

// IsSuperAdmin reports whether the actor is a platform super-administrator.
func (d *Directory) IsSuperAdmin(ctx context.Context, ref Ref) (bool, error) {
	u, err := d.user(ctx, ref)
	if err != nil || u == nil {
		return false, err
	}
	return u.HasType(TypeSuperAdmin), nil
}

// HasUserTypes reports whether the actor holds every listed user-type tag.
func (d *Directory) HasUserTypes(ctx context.Context, ref Ref, tags []string) (bool, error) {
	u, err := d.user(ctx, ref)
	if err != nil || u == nil {
		return false, err
	}
	for _, tag := range tags {
		if !u.HasType(tag) {
			return false, nil
		}
	}
	return true, nil
}

// IsAdult reports whether the actor is an individual of legal age.
func (d *Directory) IsAdult(ctx context.Context, ref Ref) (bool, error) {
	u, err := d.user(ctx, ref)
	if err != nil || u == nil {
		return false, err
	}
	return u.Adult(d.now()), nil
}

// user loads the user row behind ref, or nil when ref is an organization.
func (d *Directory) user(ctx context.Context, ref Ref) (*User, error) {
	if ref.Kind != KindUser {
		return nil, nil
	}
	return d.store.FindUser(ctx, ref.ID)
}

// RegisterUser creates a user account with a hashed password.
func (d *Directory) RegisterUser(ctx context.Context, email, password string, types []string, birthDate *time.Time) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", fault.ErrInvalid)
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", fault.ErrInvalid)
	}
	normalized := make([]string, 0, len(types))
	for _, t := range types {
		t = strings.TrimSpace(strings.ToLower(t))
		switch t {
		case "":
		case TypeFacilitator, TypeStudent, TypeDonor, TypeAdmin, TypeSuperAdmin:
			normalized = append(normalized, t)
		default:
			return nil, fmt.Errorf("%w: unsupported user type %s", fault.ErrInvalid, t)
		}
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Types:        normalized,
		BirthDate:    birthDate,
		Status:       UserStatusActive,
	}
	if err := d.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
