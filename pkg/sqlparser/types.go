package sqlparser

import (
	"github.com/wemcdonald/sqlgate/pkg/permissions"
	"github.com/xwb1989/sqlparser"
)

// StatementType represents the type of SQL statement
type StatementType int

const (
	StatementUnknown StatementType = iota
	StatementSelect
	StatementInsert
	StatementUpdate
	StatementDelete
	StatementCreate
	StatementAlter
	StatementDrop
	StatementOther
)

// String implements the Stringer interface for StatementType
func (s StatementType) String() string {
	switch s {
	case StatementSelect:
		return "SELECT"
	case StatementInsert:
		return "INSERT"
	case StatementUpdate:
		return "UPDATE"
	case StatementDelete:
		return "DELETE"
	case StatementCreate:
		return "CREATE"
	case StatementAlter:
		return "ALTER"
	case StatementDrop:
		return "DROP"
	case StatementOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// Action returns the permission action required to run a statement of this type.
func (s StatementType) Action() permissions.Action {
	switch s {
	case StatementSelect:
		return permissions.Select
	case StatementInsert:
		return permissions.Insert
	case StatementUpdate:
		return permissions.Update
	case StatementDelete:
		return permissions.Delete
	case StatementCreate:
		return permissions.Create
	case StatementAlter:
		return permissions.Alter
	case StatementDrop:
		return permissions.Drop
	default:
		return permissions.Other
	}
}

// SQLStatement represents a classified SQL statement
type SQLStatement struct {
	Type   StatementType
	Tables []string // every table referenced, in order of first appearance
	AST    sqlparser.Statement
}
