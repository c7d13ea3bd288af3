package relationship

import (
	"time"

	"skillforge.org/internal/directory"
	"skillforge.org/internal/subject"
)

// State is the request lifecycle state. A request transitions exactly once,
// from pending to accepted or rejected, and is never deleted.
type State string

const (
	StatePending  State = "pending"
	StateAccepted State = "accepted"
	StateRejected State = "rejected"
)

// Responses a pending request accepts.
const (
	ResponseAccepted = "accepted"
	ResponseRejected = "rejected"
)

// Request proposes that an actor occupy a role over a subject.
type Request struct {
	ID        string
	From      directory.Ref
	To        directory.Ref
	For       subject.Ref
	Type      subject.RoleTag
	State     State
	Purpose   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
