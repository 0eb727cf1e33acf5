// Package app wires configuration, storage, policy and gateway into the
// service the CLI and the TUI drive.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/wemcdonald/sqlgate/internal/audit"
	"github.com/wemcdonald/sqlgate/internal/config"
	"github.com/wemcdonald/sqlgate/internal/database"
	"github.com/wemcdonald/sqlgate/pkg/auth"
	"github.com/wemcdonald/sqlgate/pkg/dialect"
	"github.com/wemcdonald/sqlgate/pkg/gateway"
	"github.com/wemcdonald/sqlgate/pkg/rbac"
	"github.com/wemcdonald/sqlgate/pkg/session"
	"github.com/wemcdonald/sqlgate/pkg/types"
)

// Error codes for service setup.
const (
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeDBOpenFailed  = "DB_OPEN_FAILED"
	CodeSchemaInit    = "SCHEMA_INIT_FAILED"
	CodeNotOpen       = "NOT_OPEN"
)

// Service owns the database handles for one target database and hands out
// session controllers bound to it.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	usersDB  *database.DB
	targetDB *database.DB
	auditDB  *database.DB

	store  *auth.SQLStore
	audit  *audit.Repository
	router *session.Router
}

// New creates a service from cfg. Nothing is opened until Open.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, &types.DBError{Code: CodeInvalidConfig, Message: "configuration is required"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &types.DBError{Code: CodeInvalidConfig, Message: "invalid configuration", Err: err}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{cfg: cfg, logger: logger}, nil
}

// Config returns the service's configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// Open connects to the target database and the credentials store and
// prepares their schema. For SQLite, a non-empty path replaces
// database.path; the users table then lives in that file unless
// database.users_path is set. The audit trail never shares the target file
// unless the policy can hide it.
func (s *Service) Open(ctx context.Context, path string) error {
	if s.targetDB != nil {
		return &types.DBError{Code: types.CodeInvalidState, Message: "service already open"}
	}
	if path != "" {
		s.cfg.Database.Path = path
		if err := s.cfg.Validate(); err != nil {
			return &types.DBError{Code: CodeInvalidConfig, Message: "invalid configuration", Err: err}
		}
	}

	d, err := dialect.ForDriver(s.cfg.Database.Driver)
	if err != nil {
		return &types.DBError{Code: CodeInvalidConfig, Message: "unsupported driver", Err: err}
	}

	target, users, err := s.openHandles(ctx, d)
	if err != nil {
		return err
	}
	s.targetDB = target
	s.usersDB = users

	if err := s.wire(ctx, d); err != nil {
		s.Close() //nolint:errcheck // best effort cleanup on error path
		return err
	}

	s.logger.Info("database opened",
		"driver", d.Name,
		"target", target.Source(),
		"users", users.Source(),
		"policy", s.cfg.Policy.Mode,
		"audit", s.cfg.Audit.Enabled,
	)
	return nil
}

func (s *Service) openHandles(ctx context.Context, d dialect.Dialect) (target, users *database.DB, err error) {
	if d.Name == dialect.DriverPostgres {
		dsn, err := s.cfg.Database.ResolveDSN()
		if err != nil {
			return nil, nil, &types.DBError{Code: CodeInvalidConfig, Message: "failed to resolve DSN", Err: err}
		}
		db, err := database.Open(ctx, database.Options{Driver: d.Name, DSN: dsn})
		if err != nil {
			return nil, nil, &types.DBError{Code: CodeDBOpenFailed, Message: "failed to open database", Err: err}
		}
		// credentials live in the same PostgreSQL database
		return db, db, nil
	}

	target, err = database.Open(ctx, database.Options{Driver: d.Name, Path: s.cfg.Database.Path})
	if err != nil {
		return nil, nil, &types.DBError{Code: CodeDBOpenFailed, Message: "failed to open database", Err: err}
	}

	users, err = database.Open(ctx, database.Options{Driver: d.Name, Path: s.cfg.UsersDatabase()})
	if err != nil {
		target.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, nil, &types.DBError{Code: CodeDBOpenFailed, Message: "failed to open users database", Err: err}
	}
	return target, users, nil
}

func (s *Service) wire(ctx context.Context, d dialect.Dialect) error {
	hasher, err := auth.NewHasher(s.cfg.Auth.PasswordHashing)
	if err != nil {
		return &types.DBError{Code: CodeInvalidConfig, Message: "invalid password hashing", Err: err}
	}

	s.store = auth.NewSQLStore(s.usersDB, d,
		auth.WithHasher(hasher),
		auth.WithStrictRoles(s.cfg.Auth.StrictRoles),
		auth.WithLogger(s.logger.With("component", "store")),
	)
	if err := s.store.EnsureSchema(ctx); err != nil {
		return &types.DBError{Code: CodeSchemaInit, Message: "failed to initialize users table", Err: err}
	}

	policy, err := rbac.New(s.cfg.Policy.Mode)
	if err != nil {
		return &types.DBError{Code: CodeInvalidConfig, Message: "invalid policy", Err: err}
	}

	gw := gateway.New(d,
		gateway.WithLogger(s.logger.With("component", "gateway")),
		gateway.WithQueryTimeout(s.cfg.Database.QueryTimeout),
	)

	opts := []session.RouterOption{session.WithRouterLogger(s.logger.With("component", "router"))}
	if s.cfg.Audit.Enabled {
		auditDB, err := s.openAudit(ctx, d)
		if err != nil {
			return err
		}
		s.auditDB = auditDB
		s.audit = audit.NewRepository(auditDB, d)
		if err := s.audit.EnsureSchema(ctx); err != nil {
			return &types.DBError{Code: CodeSchemaInit, Message: "failed to initialize audit table", Err: err}
		}
		opts = append(opts, session.WithAuditor(s.audit))
	}

	s.router = session.NewRouter(policy, gw, opts...)
	return nil
}

// openAudit reuses an already open handle when the audit file is the target
// or the users file.
func (s *Service) openAudit(ctx context.Context, d dialect.Dialect) (*database.DB, error) {
	if d.Name == dialect.DriverPostgres {
		return s.targetDB, nil
	}

	path := filepath.Clean(s.cfg.AuditDatabase())
	switch path {
	case filepath.Clean(s.cfg.Database.Path):
		return s.targetDB, nil
	case filepath.Clean(s.cfg.UsersDatabase()):
		return s.usersDB, nil
	}

	db, err := database.Open(ctx, database.Options{Driver: d.Name, Path: path})
	if err != nil {
		return nil, &types.DBError{Code: CodeDBOpenFailed, Message: "failed to open audit database", Err: err}
	}
	return db, nil
}

// NewController returns a controller in the Anonymous state. Each login
// gets its own controller and its own connection.
func (s *Service) NewController() (*session.Controller, error) {
	if s.targetDB == nil {
		return nil, &types.DBError{Code: CodeNotOpen, Message: "service is not open"}
	}
	return session.NewController(
		s.store,
		s.router,
		session.PoolSource{DB: s.targetDB.DB},
		s.logger.With("component", "session"),
	), nil
}

// Register creates an account without going through a controller.
func (s *Service) Register(ctx context.Context, username, password string, role types.Role) error {
	if s.store == nil {
		return &types.DBError{Code: CodeNotOpen, Message: "service is not open"}
	}
	return s.store.Register(ctx, username, password, role)
}

// AuditLog returns the most recent audit entries.
func (s *Service) AuditLog(ctx context.Context, limit int) ([]audit.Entry, error) {
	if s.audit == nil {
		return nil, &types.DBError{Code: CodeInvalidConfig, Message: "audit trail is disabled"}
	}
	return s.audit.List(ctx, limit)
}

// Close releases every database handle.
func (s *Service) Close() error {
	var errs []error
	if s.targetDB != nil {
		if err := s.targetDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing target database: %w", err))
		}
	}
	if s.usersDB != nil && s.usersDB != s.targetDB {
		if err := s.usersDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing users database: %w", err))
		}
	}
	if s.auditDB != nil && s.auditDB != s.targetDB && s.auditDB != s.usersDB {
		if err := s.auditDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing audit database: %w", err))
		}
	}
	s.targetDB = nil
	s.usersDB = nil
	s.auditDB = nil
	return errors.Join(errs...)
}
