package directory

import (
	"fmt"
	"strings"
	"time"
)

// Kind discriminates the actor union.
type Kind string

const (
	KindUser         Kind = "user"
	KindOrganization Kind = "organization"
)

// Ref is a typed reference to an actor. The zero value means "absent".
type Ref struct {
	Kind Kind
	ID   string
}

func (r Ref) IsZero() bool { return r.Kind == "" && r.ID == "" }

func (r Ref) String() string { return fmt.Sprintf("%s:%s", r.Kind, r.ID) }

// UserRef and OrganizationRef build well-formed references.
func UserRef(id string) Ref { return Ref{Kind: KindUser, ID: id} }

func OrganizationRef(id string) Ref { return Ref{Kind: KindOrganization, ID: id} }

// User type tags. Administrators are platform-level, not scoped to a subject.
const (
	TypeFacilitator = "facilitator"
	TypeStudent     = "student"
	TypeDonor       = "donor"
	TypeAdmin       = "admin"
	TypeSuperAdmin  = "super-admin"
)

const adultAge = 18

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is an individual account. The engines only read capability data;
// account material (email, password hash, status) is persisted alongside it.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Types        []string
	BirthDate    *time.Time
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasType reports whether the user carries the given user-type tag.
func (u *User) HasType(tag string) bool {
	tag = strings.TrimSpace(strings.ToLower(tag))
	for _, t := range u.Types {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Adult reports whether the user was born at least eighteen years before now.
// Users without a recorded birth date are never considered adult.
func (u *User) Adult(now time.Time) bool {
	if u.BirthDate == nil {
		return false
	}
	return !u.BirthDate.After(now.AddDate(-adultAge, 0, 0))
}
