// Package rbac provides role-based access control functionality
package rbac

import (
	"github.com/wemcdonald/sqlgate/pkg/types"
)

// Deny reasons reported to the caller.
const (
	ReasonInvalidFormat = "invalid command format"
	ReasonUsersTable    = "no permission to view table 'users'"
)

// Decision is the outcome of an authorisation check.
type Decision struct {
	Allowed bool
	Reason  string // set when Allowed is false
}

// Allow is the decision that lets a statement through.
var Allow = Decision{Allowed: true}

// Deny builds a rejecting decision.
func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Err converts a rejecting decision into a PERMISSION_DENIED error, or nil
// when the decision allows.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return types.Denied(d.Reason)
}

// Policy decides whether a role may run a statement. Implementations must be
// pure: no I/O, no state shared across calls.
type Policy interface {
	Decide(role types.Role, statement string) Decision
}

// PolicyFunc adapts an ordinary function to Policy.
type PolicyFunc func(role types.Role, statement string) Decision

// Decide calls f.
func (f PolicyFunc) Decide(role types.Role, statement string) Decision {
	return f(role, statement)
}
