// Package database opens the SQL handles sqlgate works against and finds
// candidate SQLite files on disk.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver, registered as "pgx"
	_ "github.com/mattn/go-sqlite3"    // SQLite driver

	"github.com/wemcdonald/sqlgate/pkg/dialect"
)

const (
	// busyTimeoutMS is how long SQLite waits on a locked database.
	busyTimeoutMS = 5000

	// connectionTimeout bounds the initial ping.
	connectionTimeout = 5 * time.Second

	connMaxIdleTime = 30 * time.Minute
)

// DB wraps a sql.DB together with its dialect.
type DB struct {
	*sql.DB
	Dialect dialect.Dialect
	source  string
}

// Options selects what to open.
type Options struct {
	// Driver is "sqlite3" or "pgx" (aliases accepted).
	Driver string

	// Path is the SQLite file. It is created if missing.
	Path string

	// DSN is the PostgreSQL connection string.
	DSN string
}

// Open connects and verifies the connection with a ping.
func Open(ctx context.Context, opts Options) (*DB, error) {
	d, err := dialect.ForDriver(opts.Driver)
	if err != nil {
		return nil, err
	}

	var connStr, source string
	switch d.Name {
	case dialect.DriverPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("opening database: empty DSN")
		}
		connStr = opts.DSN
		source = "postgres"
	default:
		if opts.Path == "" {
			return nil, fmt.Errorf("opening database: empty path")
		}
		connStr = sqliteDSN(opts.Path)
		source = opts.Path
	}

	sqlDB, err := sql.Open(d.Name, connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	return &DB{DB: sqlDB, Dialect: d, source: source}, nil
}

// sqliteDSN adds the pragmas every sqlgate SQLite handle runs with.
// Shared-cache and other URI forms are passed through with the pragmas appended.
func sqliteDSN(path string) string {
	pragmas := fmt.Sprintf("_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL", busyTimeoutMS)
	if strings.HasPrefix(path, "file:") {
		if strings.Contains(path, "?") {
			return path + "&" + pragmas
		}
		return path + "?" + pragmas
	}
	return "file:" + path + "?" + pragmas
}

// Source returns the file path, or "postgres" for a DSN connection.
func (db *DB) Source() string { return db.source }

// ListDatabases returns the *.db files directly inside dir, sorted by name.
func ListDatabases(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".db") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
