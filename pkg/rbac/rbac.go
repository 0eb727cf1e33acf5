package rbac

import (
	"fmt"
	"strings"

	"github.com/wemcdonald/sqlgate/pkg/permissions"
	"github.com/wemcdonald/sqlgate/pkg/sqlparser"
	"github.com/wemcdonald/sqlgate/pkg/types"
)

// Policy modes accepted by New.
const (
	ModeText       = "text"
	ModeClassified = "classified"
)

// selectStarPrefix is the only statement shape the user role may submit
// under the text policy.
const selectStarPrefix = "SELECT * FROM"

// TextPolicy gates statements on their textual shape: the user role needs a
// "SELECT * FROM" prefix and must not mention the users table anywhere.
// It never parses SQL, so text such as "SELECT * FROM a; DROP TABLE a"
// passes for the user role.
type TextPolicy struct{}

// NewTextPolicy creates the prefix/substring policy.
func NewTextPolicy() *TextPolicy {
	return &TextPolicy{}
}

// Decide implements Policy.
func (TextPolicy) Decide(role types.Role, statement string) Decision {
	if !role.IsRestricted() {
		return Allow
	}
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(statement)), selectStarPrefix) {
		return Deny(ReasonInvalidFormat)
	}
	if strings.Contains(strings.ToLower(statement), permissions.CredentialsTable) {
		return Deny(ReasonUsersTable)
	}
	return Allow
}

// ClassifiedPolicy parses the statement and checks its type and every
// referenced table against the role's capability.
type ClassifiedPolicy struct {
	parser       *sqlparser.SQLParser
	capabilities func(types.Role) permissions.Capability
}

// NewClassifiedPolicy creates a policy backed by permissions.CapabilitiesFor.
func NewClassifiedPolicy() *ClassifiedPolicy {
	return &ClassifiedPolicy{
		parser:       sqlparser.NewSQLParser(),
		capabilities: permissions.CapabilitiesFor,
	}
}

// Decide implements Policy.
func (p *ClassifiedPolicy) Decide(role types.Role, statement string) Decision {
	capability := p.capabilities(role)

	stmt, err := p.parser.Parse(statement)
	if err != nil {
		if capability.RequireParse {
			return Deny(ReasonInvalidFormat)
		}
		return Allow
	}

	if !capability.AllowsAction(stmt.Type.Action()) {
		return Deny(ReasonInvalidFormat)
	}
	for _, table := range stmt.Tables {
		if capability.DeniesTable(table) {
			return Deny(fmt.Sprintf("no permission to view table '%s'", strings.ToLower(table)))
		}
	}
	return Allow
}

// New returns the policy for mode. An empty mode selects the text policy.
func New(mode string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeText:
		return NewTextPolicy(), nil
	case ModeClassified:
		return NewClassifiedPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown policy mode: %s", mode)
	}
}
