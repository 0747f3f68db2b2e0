package profile

import (
	"fmt"
	"strings"
)

// ValidationError reports a malformed or circular profile.
type ValidationError struct {
	Profile string
	Issues  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("profile: %q invalid: %s", e.Profile, strings.Join(e.Issues, "; "))
}

// ConflictError reports an unresolvable merge under the strict strategy.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return fmt.Sprintf("profile: %d conflict(s): %s", len(e.Conflicts), strings.Join(parts, "; "))
}
