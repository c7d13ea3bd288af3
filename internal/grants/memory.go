package grants

import (
	"context"
	"sync"
	"time"

	"skillforge.org/internal/directory"
	"skillforge.org/internal/fault"
	"skillforge.org/internal/subject"
)

// InMemory implements Store with in-process concurrency safety. Cascades run
// under one lock so a reader never observes a half-deleted role.
type InMemory struct {
	mu             sync.RWMutex
	permissions    map[string]*Permission
	roles          map[string]*Role
	pivot          map[string][]string // roleID -> permissionIDs
	authorizations map[string]*Authorization
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty grants store.
func NewInMemory() *InMemory {
	return &InMemory{
		permissions:    make(map[string]*Permission),
		roles:          make(map[string]*Role),
		pivot:          make(map[string][]string),
		authorizations: make(map[string]*Authorization),
	}
}

func (s *InMemory) CreatePermission(ctx context.Context, p *Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.permissions {
		if existing.Name == p.Name {
			return fault.ErrConflict
		}
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	s.permissions[p.ID] = &cp
	return nil
}

func (s *InMemory) FindPermission(ctx context.Context, id string) (*Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permissions[id]
	if !ok {
		return nil, fault.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemory) UpdatePermission(ctx context.Context, p *Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.permissions[p.ID]
	if !ok {
		return fault.ErrNotFound
	}
	for id, other := range s.permissions {
		if id != p.ID && other.Name == p.Name {
			return fault.ErrConflict
		}
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	s.permissions[p.ID] = &cp
	return nil
}

func (s *InMemory) DeletePermission(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permissions[id]; !ok {
		return fault.ErrNotFound
	}
	delete(s.permissions, id)
	for roleID, permIDs := range s.pivot {
		s.pivot[roleID] = removeString(permIDs, id)
	}
	for edgeID, a := range s.authorizations {
		if a.Target == PermissionTarget(id) {
			delete(s.authorizations, edgeID)
		}
	}
	return nil
}

func (s *InMemory) CreateRole(ctx context.Context, r *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	s.roles[r.ID] = &cp
	return nil
}

func (s *InMemory) FindRole(ctx context.Context, id string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, fault.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *InMemory) UpdateRole(ctx context.Context, r *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.roles[r.ID]
	if !ok {
		return fault.ErrNotFound
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	cp := *r
	s.roles[r.ID] = &cp
	return nil
}

func (s *InMemory) DeleteRole(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return fault.ErrNotFound
	}
	delete(s.roles, id)
	delete(s.pivot, id)
	for edgeID, a := range s.authorizations {
		if a.Target == RoleTarget(id) {
			delete(s.authorizations, edgeID)
		}
	}
	return nil
}

func (s *InMemory) SyncRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return fault.ErrNotFound
	}
	for _, id := range permissionIDs {
		if _, ok := s.permissions[id]; !ok {
			return fault.ErrNotFound
		}
	}
	replacement := make([]string, len(permissionIDs))
	copy(replacement, permissionIDs)
	s.pivot[roleID] = replacement
	return nil
}

func (s *InMemory) RolePermissions(ctx context.Context, roleID string) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.roles[roleID]; !ok {
		return nil, fault.ErrNotFound
	}
	var result []Permission
	for _, id := range s.pivot[roleID] {
		if p, ok := s.permissions[id]; ok {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (s *InMemory) CreateAuthorization(ctx context.Context, a *Authorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.CreatedAt = time.Now().UTC()
	cp := *a
	s.authorizations[a.ID] = &cp
	return nil
}

func (s *InMemory) FindAuthorization(ctx context.Context, id string) (*Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.authorizations[id]
	if !ok {
		return nil, fault.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *InMemory) DeleteAuthorization(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authorizations[id]; !ok {
		return fault.ErrNotFound
	}
	delete(s.authorizations, id)
	return nil
}

func (s *InMemory) AuthorizationsFor(ctx context.Context, authorizable subject.Ref, authorized directory.Ref) ([]Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []Authorization
	for _, a := range s.authorizations {
		if a.Authorizable == authorizable && a.Authorized == authorized {
			result = append(result, *a)
		}
	}
	return result, nil
}

func removeString(values []string, target string) []string {
	result := values[:0]
	for _, v := range values {
		if v != target {
			result = append(result, v)
		}
	}
	return result
}
