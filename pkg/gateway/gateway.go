// Package gateway executes SQL statements against an opaque executor and
// normalizes what comes back into an Outcome.
package gateway

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wemcdonald/sqlgate/pkg/dialect"
	"github.com/wemcdonald/sqlgate/pkg/types"
)

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway's logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithQueryTimeout bounds every statement. Zero disables the bound.
func WithQueryTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// Gateway dispatches statements to an executor.
type Gateway struct {
	dialect dialect.Dialect
	logger  *slog.Logger
	timeout time.Duration
}

// New creates a gateway for the given dialect.
func New(d dialect.Dialect, opts ...Option) *Gateway {
	g := &Gateway{
		dialect: d,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dialect returns the dialect the gateway was created with.
func (g *Gateway) Dialect() dialect.Dialect { return g.dialect }

// isQuery reports whether statement, trimmed and upper-cased, starts with
// SELECT.
func isQuery(statement string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(statement)), "SELECT")
}

// Execute submits statement verbatim to conn. Executor rejections become a
// Failure outcome; only a lost connection is returned as an error.
func (g *Gateway) Execute(ctx context.Context, conn types.Executor, statement string) (*Outcome, error) {
	parent := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	var (
		out *Outcome
		err error
	)
	if isQuery(statement) {
		out, err = g.query(ctx, conn, statement)
	} else {
		out, err = g.exec(ctx, conn, statement)
	}
	elapsed := time.Since(start)

	if err != nil {
		if connectionLost(parent, err) {
			g.logger.Error("connection lost", "error", err)
			return nil, &types.DBError{Code: types.CodeConnectionLost, Message: "database connection lost", Err: err}
		}
		g.logger.Debug("statement failed", "error", err, "duration", elapsed)
		out = Failure(err.Error())
	}

	out.Statement = statement
	out.Duration = elapsed
	g.logger.Debug("statement executed", "kind", out.Kind.String(), "duration", elapsed)
	return out, nil
}

func (g *Gateway) query(ctx context.Context, conn types.Executor, statement string) (*Outcome, error) {
	rows, err := conn.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var result [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result = append(result, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return RowSet(columns, result), nil
}

func (g *Gateway) exec(ctx context.Context, conn types.Executor, statement string) (*Outcome, error) {
	res, err := conn.ExecContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	var affected int64
	if res != nil && isDML(statement) {
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			affected = n
		}
	}
	return Ack(affected), nil
}

// isDML reports whether statement modifies rows. SQLite's change counter
// survives DDL, so only these statements report an affected count.
func isDML(statement string) bool {
	fields := strings.Fields(statement)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "INSERT", "UPDATE", "DELETE", "REPLACE", "WITH":
		return true
	}
	return false
}

// connectionLost reports whether err means the executor can no longer be
// used. A statement hitting its own timeout is not a lost connection.
func connectionLost(parent context.Context, err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return true
	}
	if parent.Err() != nil {
		return true
	}
	return false
}

// ListTables returns the table names in the executor's catalog order. An
// empty database yields an empty slice.
func (g *Gateway) ListTables(ctx context.Context, conn types.Executor) ([]string, error) {
	parent := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	rows, err := conn.QueryContext(ctx, g.dialect.ListTablesQuery())
	if err != nil {
		return nil, g.catalogError(parent, err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, g.catalogError(parent, err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, g.catalogError(parent, err)
	}
	return tables, nil
}

func (g *Gateway) catalogError(parent context.Context, err error) error {
	if connectionLost(parent, err) {
		return &types.DBError{Code: types.CodeConnectionLost, Message: "database connection lost", Err: err}
	}
	return &types.DBError{Code: types.CodeStorage, Message: "failed to list tables", Err: err}
}

var userHelp = []string{
	"SELECT * FROM <table> - view all rows of the given table",
}

var adminHelp = []string{
	"SELECT * FROM <table> - view all rows of the given table",
	"INSERT INTO <table> (...) VALUES (...) - add a new row",
	"UPDATE <table> SET <fields> WHERE <condition> - update rows",
	"DELETE FROM <table> WHERE <condition> - delete rows",
	"CREATE TABLE <name> (...) - create a new table",
	"DROP TABLE <name> - drop a table",
	"HELP - show the available commands",
	"EXIT - leave the SQL prompt",
}

// Help returns the command reference for role.
func Help(role types.Role) []string {
	src := adminHelp
	if role.IsRestricted() {
		src = userHelp
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
