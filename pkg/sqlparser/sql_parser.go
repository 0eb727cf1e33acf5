package sqlparser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// ErrEmptyQuery is returned when an empty query is provided
var ErrEmptyQuery = errors.New("empty query")

// ErrUnsupportedStatement is returned when an unsupported SQL statement is provided
var ErrUnsupportedStatement = errors.New("unsupported SQL statement")

// SQLParser classifies SQL text into a statement type and the tables it touches.
type SQLParser struct{}

// NewSQLParser creates a new SQL parser instance
func NewSQLParser() *SQLParser {
	return &SQLParser{}
}

// Parse parses a single SQL statement. Text holding more than one statement
// is rejected by the underlying grammar.
func (p *SQLParser) Parse(query string) (*SQLStatement, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	ast, err := sqlparser.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQL: %w", err)
	}

	stmtType, err := classify(ast)
	if err != nil {
		return nil, err
	}

	tables, err := referencedTables(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to collect tables: %w", err)
	}

	return &SQLStatement{
		Type:   stmtType,
		Tables: tables,
		AST:    ast,
	}, nil
}

func classify(ast sqlparser.Statement) (StatementType, error) {
	switch stmt := ast.(type) {
	case *sqlparser.Select, *sqlparser.Union, *sqlparser.ParenSelect:
		return StatementSelect, nil
	case *sqlparser.Insert:
		return StatementInsert, nil
	case *sqlparser.Update:
		return StatementUpdate, nil
	case *sqlparser.Delete:
		return StatementDelete, nil
	case *sqlparser.DDL:
		switch stmt.Action {
		case sqlparser.CreateStr:
			return StatementCreate, nil
		case sqlparser.AlterStr, sqlparser.RenameStr:
			return StatementAlter, nil
		case sqlparser.DropStr, sqlparser.TruncateStr:
			return StatementDrop, nil
		default:
			return StatementUnknown, fmt.Errorf("%w: unsupported DDL action %s", ErrUnsupportedStatement, stmt.Action)
		}
	case *sqlparser.Set, *sqlparser.Show, *sqlparser.Use, *sqlparser.OtherRead, *sqlparser.OtherAdmin:
		return StatementOther, nil
	default:
		return StatementUnknown, fmt.Errorf("%w: %T", ErrUnsupportedStatement, ast)
	}
}

// referencedTables walks the whole tree, so tables named in joins and
// subqueries are reported too.
func referencedTables(ast sqlparser.Statement) ([]string, error) {
	seen := make(map[string]bool)
	tables := make([]string, 0)
	add := func(name sqlparser.TableName) {
		if name.IsEmpty() {
			return
		}
		n := name.Name.String()
		key := strings.ToLower(n)
		if seen[key] {
			return
		}
		seen[key] = true
		tables = append(tables, n)
	}

	if ddl, ok := ast.(*sqlparser.DDL); ok {
		add(ddl.Table)
		add(ddl.NewName)
		return tables, nil
	}

	err := sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.ColName:
			// Column qualifiers are not table references.
			return false, nil
		case sqlparser.TableName:
			add(n)
		}
		return true, nil
	}, ast)
	if err != nil {
		return nil, err
	}
	return tables, nil
}
