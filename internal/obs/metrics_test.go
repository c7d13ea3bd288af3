package obs

import (
	"errors"
	"fmt"
	"testing"

	"skillforge.org/internal/fault"
)

func TestErrorKind(t *testing.T) {
	cases := map[string]struct {
		err  error
		kind string
	}{
		"validation":     {fmt.Errorf("%w: type is required", fault.ErrInvalid), "validation"},
		"authorization":  {fault.ErrUnauthorized, "authorization"},
		"state":          {fmt.Errorf("%w: already responded", fault.ErrState), "state"},
		"conflict":       {fault.ErrConflict, "conflict"},
		"not_found":      {fault.ErrNotFound, "not_found"},
		"infrastructure": {errors.New("connection refused"), "infrastructure"},
	}
	for name, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.kind {
			t.Fatalf("%s: ErrorKind=%q, want %q", name, got, tc.kind)
		}
	}
}
