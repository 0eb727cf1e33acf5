package types

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// Role is the authorisation tier attached to an account.
type Role string

const (
	// RoleUser may only read non-credential tables.
	RoleUser Role = "user"

	// RoleAdmin is trusted; every statement is forwarded to the executor.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles accepted at registration in strict mode.
var ValidRoles = []Role{RoleUser, RoleAdmin}

// IsValid reports whether r is one of ValidRoles.
func (r Role) IsValid() bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// IsRestricted reports whether r is the restricted user role. Any other
// value, including roles stored before strict validation existed, is
// admin-equivalent.
func (r Role) IsRestricted() bool {
	return r == RoleUser
}

// ParseRole normalises s and validates it. With strict set, only ValidRoles
// are accepted; otherwise any non-empty string is returned as-is.
func ParseRole(s string, strict bool) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if r == "" {
		return "", &DBError{Code: CodeInvalidRole, Message: "role is required"}
	}
	if strict && !r.IsValid() {
		return "", &DBError{Code: CodeInvalidRole, Message: "unsupported role: " + string(r)}
	}
	return r, nil
}

// Account is a stored username/password/role triple.
type Account struct {
	Username string `json:"username"`
	Password string `json:"-"` // plaintext or PHC hash, depending on the store's hasher
	Role     Role   `json:"role"`
}

// Session is the authenticated context carried through command dispatch.
type Session struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Executor is the opaque SQL capability the gateway and the credential
// store delegate to. *sql.DB, *sql.Conn and *sql.Tx all satisfy it.
type Executor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
