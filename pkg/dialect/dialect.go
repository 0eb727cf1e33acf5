// Package dialect isolates the few places where SQLite and PostgreSQL differ:
// bind variables, schema DDL, the table catalog and constraint errors.
package dialect

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// Driver names as registered with database/sql.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// pgUniqueViolation is SQLSTATE unique_violation.
const pgUniqueViolation = "23505"

// Dialect describes one SQL engine.
type Dialect struct {
	// Name is the database/sql driver name.
	Name string

	numberedBindvars bool
	usersDDL         string
	auditDDL         string
	listTables       string
	uniqueViolation  func(error) bool
}

// SQLite is the default engine.
var SQLite = Dialect{
	Name: DriverSQLite,
	usersDDL: `CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		role TEXT NOT NULL
	)`,
	auditDDL:        auditDDL,
	listTables:      `SELECT name FROM sqlite_master WHERE type='table'`,
	uniqueViolation: sqliteUniqueViolation,
}

// Postgres targets PostgreSQL through pgx's database/sql driver.
var Postgres = Dialect{
	Name:             DriverPostgres,
	numberedBindvars: true,
	usersDDL: `CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		role TEXT NOT NULL
	)`,
	auditDDL: auditDDL,
	listTables: `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`,
	uniqueViolation: pgUniqueViolationErr,
}

const auditDDL = `CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	session_id TEXT,
	username TEXT NOT NULL,
	role TEXT NOT NULL,
	statement TEXT NOT NULL,
	decision TEXT NOT NULL,
	outcome TEXT,
	detail TEXT,
	created_at TEXT NOT NULL
)`

// ForDriver returns the dialect registered under driver. "postgres" and
// "postgresql" are accepted as aliases for pgx, "sqlite" for sqlite3.
func ForDriver(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite, "sqlite":
		return SQLite, nil
	case DriverPostgres, "postgres", "postgresql":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported driver: %s", driver)
	}
}

// Rebind rewrites "?" bind variables into the dialect's form. Queries passed
// here are internal and never contain "?" inside literals.
func (d Dialect) Rebind(query string) string {
	if !d.numberedBindvars {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// UsersDDL creates the credentials table.
func (d Dialect) UsersDDL() string { return d.usersDDL }

// AuditDDL creates the audit trail table.
func (d Dialect) AuditDDL() string { return d.auditDDL }

// ListTablesQuery returns table names from the engine's catalog.
func (d Dialect) ListTablesQuery() string { return d.listTables }

// IsUniqueViolation reports whether err is a UNIQUE constraint failure.
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil || d.uniqueViolation == nil {
		return false
	}
	return d.uniqueViolation(err)
}

func sqliteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func pgUniqueViolationErr(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
