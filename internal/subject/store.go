package subject

import (
	"context"

	"skillforge.org/internal/directory"
)

// Store describes subject and participation persistence. It is the narrow
// surface the engines consume: resolution, ownership, participation queries
// and participation mutation.
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	CreateOrganization(ctx context.Context, o *Organization) error

	// Find resolves a reference to its subject view.
	Find(ctx context.Context, ref Ref) (*Subject, error)

	// Officials lists actors holding the official-family tag over ref.
	Officials(ctx context.Context, ref Ref) ([]directory.Ref, error)

	// IsParticipant reports whether any participation edge links actor to ref.
	IsParticipant(ctx context.Context, ref Ref, actor directory.Ref) (bool, error)

	// ParticipationRoles lists the tags actor holds over ref.
	ParticipationRoles(ctx context.Context, ref Ref, actor directory.Ref) ([]RoleTag, error)

	CreateParticipation(ctx context.Context, p Participation) error
	DeleteParticipation(ctx context.Context, ref Ref, actor directory.Ref, tag RoleTag) error
}
