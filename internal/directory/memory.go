package directory

import (
	"context"
	"sync"

	"skillforge.org/internal/fault"
)

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu    sync.RWMutex
	users map[string]*User
	orgs  map[string]struct{}
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty directory store.
func NewInMemory() *InMemory {
	return &InMemory{
		users: make(map[string]*User),
		orgs:  make(map[string]struct{}),
	}
}

func (s *InMemory) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return fault.ErrConflict
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *InMemory) FindUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fault.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemory) OrganizationActorExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.orgs[id]
	return ok, nil
}

// AddOrganizationActor records an organization id so it resolves as an actor.
// The subject store owns the organization row itself.
func (s *InMemory) AddOrganizationActor(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[id] = struct{}{}
}
