package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wemcdonald/sqlgate/pkg/types"
)

func TestTextPolicy(t *testing.T) {
	tests := []struct {
		name      string
		role      types.Role
		statement string
		want      Decision
	}{
		{
			name:      "user select star",
			role:      types.RoleUser,
			statement: "SELECT * FROM orders",
			want:      Allow,
		},
		{
			name:      "user lower case with padding",
			role:      types.RoleUser,
			statement: "   select * from orders  ",
			want:      Allow,
		},
		{
			name:      "user users table",
			role:      types.RoleUser,
			statement: "SELECT * FROM users",
			want:      Deny(ReasonUsersTable),
		},
		{
			name:      "user users table mixed case",
			role:      types.RoleUser,
			statement: "SELECT * FROM Users WHERE 1=1",
			want:      Deny(ReasonUsersTable),
		},
		{
			name:      "user users substring anywhere",
			role:      types.RoleUser,
			statement: "SELECT * FROM orders WHERE note = 'superusers'",
			want:      Deny(ReasonUsersTable),
		},
		{
			name:      "user delete",
			role:      types.RoleUser,
			statement: "DELETE FROM orders",
			want:      Deny(ReasonInvalidFormat),
		},
		{
			name:      "user projection is not select star",
			role:      types.RoleUser,
			statement: "SELECT id FROM orders",
			want:      Deny(ReasonInvalidFormat),
		},
		{
			name:      "user format is checked before users table",
			role:      types.RoleUser,
			statement: "DELETE FROM users",
			want:      Deny(ReasonInvalidFormat),
		},
		{
			name:      "user stacked statement passes the text check",
			role:      types.RoleUser,
			statement: "SELECT * FROM accounts; DROP TABLE accounts;",
			want:      Allow,
		},
		{
			name:      "admin drop",
			role:      types.RoleAdmin,
			statement: "DROP TABLE orders",
			want:      Allow,
		},
		{
			name:      "admin users table",
			role:      types.RoleAdmin,
			statement: "SELECT * FROM users",
			want:      Allow,
		},
		{
			name:      "unknown role is admin equivalent",
			role:      types.Role("operator"),
			statement: "DELETE FROM orders",
			want:      Allow,
		},
	}

	policy := NewTextPolicy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Decide(tt.role, tt.statement))
		})
	}
}

func TestClassifiedPolicy(t *testing.T) {
	tests := []struct {
		name      string
		role      types.Role
		statement string
		want      Decision
	}{
		{
			name:      "user select star",
			role:      types.RoleUser,
			statement: "SELECT * FROM orders",
			want:      Allow,
		},
		{
			name:      "user projection",
			role:      types.RoleUser,
			statement: "SELECT id, total FROM orders WHERE total > 10",
			want:      Allow,
		},
		{
			name:      "user audit trail",
			role:      types.RoleUser,
			statement: "SELECT * FROM audit_log",
			want:      Deny("no permission to view table 'audit_log'"),
		},
		{
			name:      "user users table",
			role:      types.RoleUser,
			statement: "SELECT * FROM users",
			want:      Deny(ReasonUsersTable),
		},
		{
			name:      "user users table in join",
			role:      types.RoleUser,
			statement: "SELECT o.id FROM orders o JOIN users u ON o.owner = u.username",
			want:      Deny(ReasonUsersTable),
		},
		{
			name:      "user users table in subquery",
			role:      types.RoleUser,
			statement: "SELECT * FROM orders WHERE owner IN (SELECT username FROM users)",
			want:      Deny(ReasonUsersTable),
		},
		{
			name:      "user column qualifier is not a table",
			role:      types.RoleUser,
			statement: "SELECT orders.superusers FROM orders",
			want:      Allow,
		},
		{
			name:      "user string literal mentioning users",
			role:      types.RoleUser,
			statement: "SELECT * FROM orders WHERE note = 'users'",
			want:      Allow,
		},
		{
			name:      "user delete",
			role:      types.RoleUser,
			statement: "DELETE FROM orders",
			want:      Deny(ReasonInvalidFormat),
		},
		{
			name:      "user stacked statements",
			role:      types.RoleUser,
			statement: "SELECT * FROM accounts; DROP TABLE accounts;",
			want:      Deny(ReasonInvalidFormat),
		},
		{
			name:      "user garbage",
			role:      types.RoleUser,
			statement: "INVALID SQL",
			want:      Deny(ReasonInvalidFormat),
		},
		{
			name:      "admin drop",
			role:      types.RoleAdmin,
			statement: "DROP TABLE orders",
			want:      Allow,
		},
		{
			name:      "admin unparseable text still forwarded",
			role:      types.RoleAdmin,
			statement: "PRAGMA table_info(orders)",
			want:      Allow,
		},
	}

	policy := NewClassifiedPolicy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Decide(tt.role, tt.statement))
		})
	}
}

func TestDecisionErr(t *testing.T) {
	assert.NoError(t, Allow.Err())

	err := Deny(ReasonUsersTable).Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrAuthorizationDenied))

	var dbErr *types.DBError
	require.True(t, errors.As(err, &dbErr))
	assert.Equal(t, ReasonUsersTable, dbErr.Message)
}

func TestNew(t *testing.T) {
	p, err := New("")
	require.NoError(t, err)
	assert.IsType(t, &TextPolicy{}, p)

	p, err = New("Classified")
	require.NoError(t, err)
	assert.IsType(t, &ClassifiedPolicy{}, p)

	_, err = New("acl")
	assert.Error(t, err)
}

func TestPolicyFunc(t *testing.T) {
	var calls int
	p := PolicyFunc(func(role types.Role, statement string) Decision {
		calls++
		return Deny("nope")
	})
	assert.Equal(t, Deny("nope"), p.Decide(types.RoleAdmin, "SELECT 1"))
	assert.Equal(t, 1, calls)
}
