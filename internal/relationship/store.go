package relationship

import (
	"context"

	"skillforge.org/internal/activity"
	"skillforge.org/internal/subject"
)

// Store persists requests. Resolve is the only mutation after creation.
type Store interface {
	Create(ctx context.Context, req *Request) error
	FindRequest(ctx context.Context, id string) (*Request, error)

	// Resolve atomically transitions a pending request to its final state,
	// inserting the participation edge and activity entry (either may be
	// nil) in the same transaction. A request that is no longer pending
	// yields fault.ErrState, so exactly one of two racing responders wins.
	Resolve(ctx context.Context, id string, state State, part *subject.Participation, entry *activity.Entry) (*Request, error)
}
