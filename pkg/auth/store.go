package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wemcdonald/sqlgate/pkg/dialect"
	"github.com/wemcdonald/sqlgate/pkg/types"
)

// Option configures a credential store.
type Option func(*options)

type options struct {
	hasher      Hasher
	strictRoles bool
	logger      *slog.Logger
}

func defaultOptions() options {
	return options{
		hasher:      PlainHasher{},
		strictRoles: true,
		logger:      slog.New(slog.DiscardHandler),
	}
}

// WithHasher sets how passwords are stored and compared.
func WithHasher(h Hasher) Option {
	return func(o *options) {
		if h != nil {
			o.hasher = h
		}
	}
}

// WithStrictRoles controls whether Register rejects roles other than user
// and admin.
func WithStrictRoles(strict bool) Option {
	return func(o *options) { o.strictRoles = strict }
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// validateAccount checks the registration input and returns the parsed role.
// Empty passwords are only rejected in strict mode.
func validateAccount(username, password, role string, strict bool) (types.Role, error) {
	if strings.TrimSpace(username) == "" {
		return "", &types.DBError{Code: types.CodeInvalidInput, Message: "username is required"}
	}
	if strict && password == "" {
		return "", &types.DBError{Code: types.CodeInvalidInput, Message: "password is required"}
	}
	return types.ParseRole(role, strict)
}

// SQLStore keeps accounts in the users table of any database/sql executor.
type SQLStore struct {
	exec    types.Executor
	dialect dialect.Dialect
	opts    options
}

// NewSQLStore creates a store over exec. The schema is not created; call
// EnsureSchema first on a fresh database.
func NewSQLStore(exec types.Executor, d dialect.Dialect, opts ...Option) *SQLStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &SQLStore{exec: exec, dialect: d, opts: o}
}

// EnsureSchema creates the users table if it does not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.exec.ExecContext(ctx, s.dialect.UsersDDL()); err != nil {
		return &types.DBError{Code: types.CodeStorage, Message: "failed to create users table", Err: err}
	}
	return nil
}

// Register implements CredentialStore.Register
func (s *SQLStore) Register(ctx context.Context, username, password string, role types.Role) error {
	r, err := validateAccount(username, password, string(role), s.opts.strictRoles)
	if err != nil {
		return err
	}

	stored, err := s.opts.hasher.Hash(password)
	if err != nil {
		return &types.DBError{Code: types.CodeStorage, Message: "failed to hash password", Err: err}
	}

	query := s.dialect.Rebind("INSERT INTO users (username, password, role) VALUES (?, ?, ?)")
	if _, err := s.exec.ExecContext(ctx, query, username, stored, string(r)); err != nil {
		if s.dialect.IsUniqueViolation(err) {
			s.opts.logger.Debug("registration rejected", "username", username, "reason", "duplicate")
			return &types.DBError{Code: types.CodeDuplicateUsername, Message: "username already exists: " + username, Err: err}
		}
		return &types.DBError{Code: types.CodeStorage, Message: "failed to register user", Err: err}
	}

	s.opts.logger.Info("user registered", "username", username, "role", string(r))
	return nil
}

// Find implements CredentialStore.Find
func (s *SQLStore) Find(ctx context.Context, username, password string) (*types.Account, error) {
	if s.opts.hasher.Comparable() {
		query := s.dialect.Rebind("SELECT username, password, role FROM users WHERE username = ? AND password = ?")
		return s.findOne(ctx, query, username, password)
	}

	query := s.dialect.Rebind("SELECT username, password, role FROM users WHERE username = ?")
	acct, err := s.findOne(ctx, query, username)
	if err != nil || acct == nil {
		return nil, err
	}

	ok, err := s.opts.hasher.Verify(password, acct.Password)
	if err != nil {
		s.opts.logger.Warn("stored password hash unreadable", "username", username, "error", err)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	return acct, nil
}

func (s *SQLStore) findOne(ctx context.Context, query string, args ...any) (*types.Account, error) {
	rows, err := s.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &types.DBError{Code: types.CodeStorage, Message: "failed to look up user", Err: err}
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, &types.DBError{Code: types.CodeStorage, Message: "failed to look up user", Err: err}
		}
		return nil, nil
	}

	var acct types.Account
	var role string
	if err := rows.Scan(&acct.Username, &acct.Password, &role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &types.DBError{Code: types.CodeStorage, Message: "failed to read user", Err: fmt.Errorf("scan: %w", err)}
	}
	acct.Role = types.Role(role)
	return &acct, nil
}
