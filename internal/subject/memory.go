package subject

import (
	"context"
	"fmt"
	"sync"
	"time"

	"skillforge.org/internal/directory"
	"skillforge.org/internal/fault"
	"skillforge.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu             sync.RWMutex
	projects       map[string]*Project
	orgs           map[string]*Organization
	participations []Participation
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty subject store.
func NewInMemory() *InMemory {
	return &InMemory{
		projects: make(map[string]*Project),
		orgs:     make(map[string]*Organization),
	}
}

func (s *InMemory) CreateProject(ctx context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = ids.New()
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *InMemory) CreateOrganization(ctx context.Context, o *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = ids.New()
	}
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	s.orgs[o.ID] = &cp
	return nil
}

func (s *InMemory) Find(ctx context.Context, ref Ref) (*Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(ref)
}

func (s *InMemory) findLocked(ref Ref) (*Subject, error) {
	switch ref.Kind {
	case KindProject:
		p, ok := s.projects[ref.ID]
		if !ok {
			return nil, fault.ErrNotFound
		}
		return &Subject{Ref: ref, Name: p.Name, Owner: p.Owner}, nil
	case KindOrganization:
		o, ok := s.orgs[ref.ID]
		if !ok {
			return nil, fault.ErrNotFound
		}
		return &Subject{Ref: ref, Name: o.Name, Owner: o.Owner}, nil
	default:
		return nil, fmt.Errorf("%w: unknown subject kind %q", fault.ErrInvalid, ref.Kind)
	}
}

func (s *InMemory) Officials(ctx context.Context, ref Ref) ([]directory.Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	official := OfficialTag(ref.Kind)
	var result []directory.Ref
	for _, p := range s.participations {
		if p.Subject == ref && p.Tag == official {
			result = append(result, p.Actor)
		}
	}
	return result, nil
}

func (s *InMemory) IsParticipant(ctx context.Context, ref Ref, actor directory.Ref) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.participations {
		if p.Subject == ref && p.Actor == actor {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemory) ParticipationRoles(ctx context.Context, ref Ref, actor directory.Ref) ([]RoleTag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tags []RoleTag
	for _, p := range s.participations {
		if p.Subject == ref && p.Actor == actor {
			tags = append(tags, p.Tag)
		}
	}
	return tags, nil
}

func (s *InMemory) CreateParticipation(ctx context.Context, part Participation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.findLocked(part.Subject); err != nil {
		return err
	}
	if !part.Tag.ValidFor(part.Subject.Kind) {
		return fmt.Errorf("%w: tag %s is not valid for %s subjects", fault.ErrInvalid, part.Tag, part.Subject.Kind)
	}
	// one official-family and one member-family tag per (subject, actor);
	// sponsor occupies the member slot, so an official may sponsor but a
	// learner cannot
	for _, p := range s.participations {
		if p.Subject != part.Subject || p.Actor != part.Actor {
			continue
		}
		if p.Tag == part.Tag {
			return fmt.Errorf("%w: already a %s", fault.ErrConflict, part.Tag)
		}
		if p.Tag.Family() == part.Tag.Family() {
			return fmt.Errorf("%w: already holds a %s-family role", fault.ErrConflict, part.Tag.Family())
		}
	}
	if part.CreatedAt.IsZero() {
		part.CreatedAt = time.Now().UTC()
	}
	s.participations = append(s.participations, part)
	return nil
}

func (s *InMemory) DeleteParticipation(ctx context.Context, ref Ref, actor directory.Ref, tag RoleTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.participations {
		if p.Subject == ref && p.Actor == actor && p.Tag == tag {
			s.participations = append(s.participations[:i], s.participations[i+1:]...)
			return nil
		}
	}
	return fault.ErrNotFound
}
