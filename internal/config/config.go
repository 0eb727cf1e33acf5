// Package config loads sqlgate's settings from YAML, environment variables
// and built-in defaults.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/wemcdonald/sqlgate/pkg/auth"
	"github.com/wemcdonald/sqlgate/pkg/dialect"
	"github.com/wemcdonald/sqlgate/pkg/rbac"
)

// Config represents the application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Policy   PolicyConfig   `mapstructure:"policy" yaml:"policy"`
	Audit    AuditConfig    `mapstructure:"audit" yaml:"audit"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	UI       UIConfig       `mapstructure:"ui" yaml:"ui"`
}

// DatabaseConfig selects the target database and the credentials store.
type DatabaseConfig struct {
	// Driver is "sqlite3" or "pgx".
	Driver string `mapstructure:"driver" yaml:"driver"`

	// Dir is scanned for *.db files by the interactive picker (sqlite3 only).
	Dir string `mapstructure:"dir" yaml:"dir"`

	// Path is the target SQLite file.
	Path string `mapstructure:"path" yaml:"path"`

	// UsersPath holds the users table. Empty means the target file.
	UsersPath string `mapstructure:"users_path" yaml:"users_path,omitempty"`

	// DSN is the PostgreSQL connection string (pgx only).
	DSN string `mapstructure:"dsn" yaml:"dsn,omitempty"`

	// KeyringService names the OS keyring entry holding the DSN password.
	KeyringService string `mapstructure:"keyring_service" yaml:"keyring_service,omitempty"`

	// QueryTimeout bounds each statement. Zero disables the bound.
	QueryTimeout time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
}

// AuthConfig controls credential storage.
type AuthConfig struct {
	PasswordHashing string `mapstructure:"password_hashing" yaml:"password_hashing"`
	StrictRoles     bool   `mapstructure:"strict_roles" yaml:"strict_roles"`
}

// PolicyConfig selects the authorization policy.
type PolicyConfig struct {
	Mode string `mapstructure:"mode" yaml:"mode"`
}

// AuditConfig controls the audit trail.
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the SQLite file holding audit_log. Empty means the target
	// path with an ".audit" suffix.
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// UIConfig holds presentation preferences.
type UIConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
}

// Result formats understood by the renderer.
var Formats = []string{"table", "json", "yaml", "csv"}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: dialect.DriverSQLite,
			Dir:    ".",
			Path:   "sqlite.db",
		},
		Auth: AuthConfig{
			PasswordHashing: auth.HashingPlain,
			StrictRoles:     true,
		},
		Policy: PolicyConfig{
			Mode: rbac.ModeText,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		UI: UIConfig{
			Format: "table",
		},
	}
}

// UsersDatabase returns the SQLite file holding the users table.
func (c *Config) UsersDatabase() string {
	if c.Database.UsersPath != "" {
		return c.Database.UsersPath
	}
	return c.Database.Path
}

// AuditDatabase returns the SQLite file holding the audit trail.
func (c *Config) AuditDatabase() string {
	if c.Audit.Path != "" {
		return c.Audit.Path
	}
	return c.Database.Path + ".audit"
}

// auditReachable reports whether the audit trail would sit in the database
// sessions query, where the text policy cannot hide it from the user role.
func (c *Config) auditReachable(d dialect.Dialect) bool {
	if d.Name == dialect.DriverPostgres {
		return true
	}
	return filepath.Clean(c.AuditDatabase()) == filepath.Clean(c.Database.Path)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	d, err := dialect.ForDriver(c.Database.Driver)
	if err != nil {
		errs = append(errs, "database.driver must be sqlite3 or pgx")
	} else {
		switch d.Name {
		case dialect.DriverPostgres:
			if c.Database.DSN == "" {
				errs = append(errs, "database.dsn is required for the pgx driver")
			}
		default:
			if c.Database.Path == "" {
				errs = append(errs, "database.path is required for the sqlite3 driver")
			}
		}
	}

	if c.Database.QueryTimeout < 0 {
		errs = append(errs, "database.query_timeout must not be negative")
	}

	if _, err := auth.NewHasher(c.Auth.PasswordHashing); err != nil {
		errs = append(errs, "auth.password_hashing must be plain or argon2id")
	}

	if _, err := rbac.New(c.Policy.Mode); err != nil {
		errs = append(errs, "policy.mode must be text or classified")
	} else if c.Audit.Enabled && d.Name != "" && isTextMode(c.Policy.Mode) && c.auditReachable(d) {
		errs = append(errs, "audit.enabled with policy.mode text needs audit.path outside the target database")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn or error")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, "logging.format must be json or text")
	}

	if !validFormat(c.UI.Format) {
		errs = append(errs, "ui.format must be one of "+strings.Join(Formats, ", "))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func isTextMode(mode string) bool {
	m := strings.ToLower(strings.TrimSpace(mode))
	return m == "" || m == rbac.ModeText
}

func validFormat(f string) bool {
	for _, v := range Formats {
		if strings.EqualFold(f, v) {
			return true
		}
	}
	return false
}
