// Package sqlgate provides an authenticated, role-gated SQL command gateway.
package sqlgate

import (
	"context"
	"log/slog"

	"github.com/wemcdonald/sqlgate/internal/app"
	"github.com/wemcdonald/sqlgate/internal/config"
	"github.com/wemcdonald/sqlgate/pkg/gateway"
	"github.com/wemcdonald/sqlgate/pkg/session"
	"github.com/wemcdonald/sqlgate/pkg/types"
)

// Open creates a service from cfg and connects it to the configured
// database. A nil logger discards log output.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*Service, error) {
	svc, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := svc.Open(ctx, ""); err != nil {
		return nil, err
	}
	return svc, nil
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return config.Default()
}

// Re-export types for convenience
type (
	Service    = app.Service
	Config     = config.Config
	Controller = session.Controller
	Session    = types.Session
	Role       = types.Role
	Outcome    = gateway.Outcome
	DBError    = types.DBError
)

// Roles.
const (
	RoleUser  = types.RoleUser
	RoleAdmin = types.RoleAdmin
)
