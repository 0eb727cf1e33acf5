package permissions

import (
	"strings"

	"github.com/wemcdonald/sqlgate/pkg/types"
)

// Action represents the type of database action
type Action int

const (
	Select Action = iota
	Insert
	Update
	Delete
	Create
	Drop
	Alter
	Other
)

// String implements the Stringer interface for Action
func (a Action) String() string {
	switch a {
	case Select:
		return "SELECT"
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	case Create:
		return "CREATE"
	case Drop:
		return "DROP"
	case Alter:
		return "ALTER"
	default:
		return "OTHER"
	}
}

// WildcardTable matches every table in a capability.
const WildcardTable = "*"

// Capability lists what a role may reach.
type Capability struct {
	// Actions allowed for the role. Nil means every action.
	Actions []Action
	// DeniedTables are never reachable, whatever the action.
	DeniedTables []string
	// RequireParse rejects statements the classifier cannot understand.
	RequireParse bool
}

// AllowsAction reports whether a is among the capability's actions.
func (c Capability) AllowsAction(a Action) bool {
	if c.Actions == nil {
		return true
	}
	for _, allowed := range c.Actions {
		if allowed == a {
			return true
		}
	}
	return false
}

// DeniesTable reports whether table is forbidden. Comparison ignores case
// because SQLite identifiers are case-insensitive.
func (c Capability) DeniesTable(table string) bool {
	for _, denied := range c.DeniedTables {
		if denied == WildcardTable || strings.EqualFold(denied, table) {
			return true
		}
	}
	return false
}

// CredentialsTable is the table holding accounts.
const CredentialsTable = "users"

// AuditTable is the table holding the command audit trail.
const AuditTable = "audit_log"

var (
	userCapability = Capability{
		Actions:      []Action{Select},
		DeniedTables: []string{CredentialsTable, AuditTable},
		RequireParse: true,
	}
	adminCapability = Capability{}
)

// CapabilitiesFor returns the capability of role. Roles other than
// types.RoleUser are admin-equivalent.
func CapabilitiesFor(role types.Role) Capability {
	if role.IsRestricted() {
		return userCapability
	}
	return adminCapability
}
