package subject

import (
	"fmt"
	"time"

	"skillforge.org/internal/directory"
)

// Kind discriminates the subject union.
type Kind string

const (
	KindProject      Kind = "project"
	KindOrganization Kind = "organization"
)

// Ref is a typed reference to a subject. The zero value means "absent".
type Ref struct {
	Kind Kind
	ID   string
}

func (r Ref) IsZero() bool { return r.Kind == "" && r.ID == "" }

func (r Ref) String() string { return fmt.Sprintf("%s:%s", r.Kind, r.ID) }

func ProjectRef(id string) Ref { return Ref{Kind: KindProject, ID: id} }

func OrganizationRef(id string) Ref { return Ref{Kind: KindOrganization, ID: id} }

// Project is a collaborative project subject.
type Project struct {
	ID          string
	Name        string
	Description string
	Owner       directory.Ref
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p *Project) Ref() Ref { return ProjectRef(p.ID) }

// Organization is both a subject roles are held over and an actor; the
// directory resolves the actor side, this package owns the subject row.
type Organization struct {
	ID        string
	Name      string
	Owner     directory.Ref
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o *Organization) Ref() Ref { return OrganizationRef(o.ID) }

// Subject is the resolved view the engines work with.
type Subject struct {
	Ref   Ref
	Name  string
	Owner directory.Ref
}

// Participation records that an actor holds a role tag over a subject.
type Participation struct {
	Subject   Ref
	Actor     directory.Ref
	Tag       RoleTag
	CreatedAt time.Time
}
