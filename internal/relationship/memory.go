package relationship

import (
	"context"
	"fmt"
	"sync"
	"time"

	"skillforge.org/internal/activity"
	"skillforge.org/internal/fault"
	"skillforge.org/internal/subject"
)

// InMemory implements Store with in-process concurrency safety. The
// participation insert rides inside the same critical section as the state
// transition, mirroring the transactional postgres store.
type InMemory struct {
	mu       sync.Mutex
	requests map[string]*Request
	subjects subject.Store
	entries  []activity.Entry
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates a request store writing participations to subjects.
func NewInMemory(subjects subject.Store) *InMemory {
	return &InMemory{
		requests: make(map[string]*Request),
		subjects: subjects,
	}
}

func (s *InMemory) Create(ctx context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ID == "" {
		return fmt.Errorf("%w: request id is required", fault.ErrInvalid)
	}
	if _, exists := s.requests[req.ID]; exists {
		return fault.ErrConflict
	}
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *InMemory) FindRequest(ctx context.Context, id string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, fault.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *InMemory) Resolve(ctx context.Context, id string, state State, part *subject.Participation, entry *activity.Entry) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, fault.ErrNotFound
	}
	if req.State != StatePending {
		return nil, fmt.Errorf("%w: already responded", fault.ErrState)
	}
	if part != nil {
		if err := s.subjects.CreateParticipation(ctx, *part); err != nil {
			return nil, err
		}
	}
	req.State = state
	req.UpdatedAt = time.Now().UTC()
	if entry != nil {
		s.entries = append(s.entries, *entry)
	}
	cp := *req
	return &cp, nil
}

// Entries returns the activity entries persisted alongside resolutions.
func (s *InMemory) Entries() []activity.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]activity.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
