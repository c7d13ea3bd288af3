package fault

import "errors"

// Sentinel errors shared by every core engine. Callers classify failures with
// errors.Is; the wrap message names the offending field, value or actor.
var (
	// ErrInvalid marks missing or malformed input, unknown enumeration
	// values and unresolved foreign references.
	ErrInvalid = errors.New("invalid input")

	// ErrUnauthorized marks an actor lacking the required authority.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrState marks an operation that violates a lifecycle invariant,
	// such as responding to an already resolved request.
	ErrState = errors.New("invalid state")

	// ErrConflict marks a uniqueness violation.
	ErrConflict = errors.New("resource conflict")

	// ErrNotFound marks a lookup that matched nothing.
	ErrNotFound = errors.New("not found")
)
