package sqlparser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wemcdonald/sqlgate/pkg/permissions"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantType   StatementType
		wantTables []string
		wantErr    bool
	}{
		{
			name:       "select star",
			query:      "SELECT * FROM orders",
			wantType:   StatementSelect,
			wantTables: []string{"orders"},
		},
		{
			name:       "select with join",
			query:      "SELECT u.name, o.order_id FROM users u JOIN orders o ON u.id = o.user_id",
			wantType:   StatementSelect,
			wantTables: []string{"users", "orders"},
		},
		{
			name:       "select with subquery",
			query:      "SELECT * FROM orders WHERE owner IN (SELECT username FROM users)",
			wantType:   StatementSelect,
			wantTables: []string{"orders", "users"},
		},
		{
			name:       "union",
			query:      "SELECT id FROM a UNION SELECT id FROM b",
			wantType:   StatementSelect,
			wantTables: []string{"a", "b"},
		},
		{
			name:       "duplicate table reported once",
			query:      "SELECT * FROM orders a JOIN orders b ON a.id = b.parent",
			wantType:   StatementSelect,
			wantTables: []string{"orders"},
		},
		{
			name:       "insert",
			query:      "INSERT INTO orders (id, total) VALUES (1, 2)",
			wantType:   StatementInsert,
			wantTables: []string{"orders"},
		},
		{
			name:       "update",
			query:      "UPDATE orders SET total = 3 WHERE id = 1",
			wantType:   StatementUpdate,
			wantTables: []string{"orders"},
		},
		{
			name:       "delete",
			query:      "DELETE FROM orders WHERE id = 1",
			wantType:   StatementDelete,
			wantTables: []string{"orders"},
		},
		{
			name:       "create",
			query:      "CREATE TABLE orders (id int)",
			wantType:   StatementCreate,
			wantTables: []string{"orders"},
		},
		{
			name:       "drop",
			query:      "DROP TABLE orders",
			wantType:   StatementDrop,
			wantTables: []string{"orders"},
		},
		{
			name:    "invalid query",
			query:   "INVALID SQL",
			wantErr: true,
		},
		{
			name:    "stacked statements",
			query:   "SELECT * FROM a; DROP TABLE a;",
			wantErr: true,
		},
	}

	parser := NewSQLParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := parser.Parse(tt.query)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, stmt.Type)
			assert.Equal(t, tt.wantTables, stmt.Tables)
			assert.NotNil(t, stmt.AST)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := NewSQLParser().Parse("   ")
	assert.True(t, errors.Is(err, ErrEmptyQuery))
}

func TestStatementTypeAction(t *testing.T) {
	assert.Equal(t, permissions.Select, StatementSelect.Action())
	assert.Equal(t, permissions.Drop, StatementDrop.Action())
	assert.Equal(t, permissions.Other, StatementOther.Action())
	assert.Equal(t, permissions.Other, StatementUnknown.Action())
	assert.Equal(t, "DELETE", StatementDelete.String())
}
