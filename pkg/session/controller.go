package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wemcdonald/sqlgate/pkg/auth"
	"github.com/wemcdonald/sqlgate/pkg/gateway"
	"github.com/wemcdonald/sqlgate/pkg/types"
)

// State is a controller's position in the login lifecycle.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Conn is a connection owned by one session.
type Conn interface {
	types.Executor
	Close() error
}

// ConnSource hands out a dedicated connection per login.
type ConnSource interface {
	Acquire(ctx context.Context) (Conn, error)
}

// PoolSource checks connections out of a *sql.DB pool.
type PoolSource struct {
	DB *sql.DB
}

// Acquire implements ConnSource
func (p PoolSource) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.DB.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Controller drives one interactive session: Anonymous until a successful
// login, Authenticated until logout, then Terminated for good. A controller
// is not safe for concurrent use.
type Controller struct {
	store  auth.CredentialStore
	authn  *auth.Authenticator
	router *Router
	source ConnSource
	logger *slog.Logger

	state State
	sess  *types.Session
	conn  Conn
}

// NewController creates a controller in the Anonymous state.
func NewController(store auth.CredentialStore, router *Router, source ConnSource, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		store:  store,
		authn:  auth.NewAuthenticator(store, logger),
		router: router,
		source: source,
		logger: logger,
		state:  StateAnonymous,
	}
}

// State returns the controller's current state.
func (c *Controller) State() State { return c.state }

// Register creates a new account. Only allowed while Anonymous.
func (c *Controller) Register(ctx context.Context, username, password string, role types.Role) error {
	if err := c.require(StateAnonymous); err != nil {
		return err
	}
	return c.store.Register(ctx, username, password, role)
}

// Login authenticates and checks out the session's connection. On failure
// the controller stays Anonymous.
func (c *Controller) Login(ctx context.Context, username, password string) (*types.Session, error) {
	if err := c.require(StateAnonymous); err != nil {
		return nil, err
	}

	sess, err := c.authn.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	conn, err := c.source.Acquire(ctx)
	if err != nil {
		c.logger.Error("failed to acquire connection", "username", username, "error", err)
		return nil, &types.DBError{Code: types.CodeConnectionLost, Message: "failed to open database connection", Err: err}
	}

	c.sess = sess
	c.conn = conn
	c.state = StateAuthenticated
	return c.Session()
}

// Submit routes statement through the policy and, when allowed, the
// gateway. A lost connection terminates the session.
func (c *Controller) Submit(ctx context.Context, statement string) (*gateway.Outcome, error) {
	if err := c.require(StateAuthenticated); err != nil {
		return nil, err
	}

	out, err := c.router.Submit(ctx, c.sess, c.conn, statement)
	if errors.Is(err, types.ErrConnectionLost) {
		c.terminate()
	}
	return out, err
}

// ListTables lists the tables of the session's database.
func (c *Controller) ListTables(ctx context.Context) ([]string, error) {
	if err := c.require(StateAuthenticated); err != nil {
		return nil, err
	}

	tables, err := c.router.ListTables(ctx, c.sess, c.conn)
	if errors.Is(err, types.ErrConnectionLost) {
		c.terminate()
	}
	return tables, err
}

// Help returns the command reference for the session's role.
func (c *Controller) Help() ([]string, error) {
	if err := c.require(StateAuthenticated); err != nil {
		return nil, err
	}
	return gateway.Help(c.sess.Role), nil
}

// Session returns a copy of the current session.
func (c *Controller) Session() (*types.Session, error) {
	if err := c.require(StateAuthenticated); err != nil {
		return nil, err
	}
	s := *c.sess
	return &s, nil
}

// Logout ends the session and releases its connection.
func (c *Controller) Logout() error {
	if err := c.require(StateAuthenticated); err != nil {
		return err
	}
	c.logger.Info("user logged out", "username", c.sess.Username, "session_id", c.sess.ID)
	return c.terminate()
}

// Close terminates the controller from any state. It is idempotent.
func (c *Controller) Close() error {
	if c.state == StateTerminated {
		return nil
	}
	return c.terminate()
}

func (c *Controller) terminate() error {
	c.state = StateTerminated
	c.sess = nil
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("releasing connection: %w", err)
	}
	return nil
}

func (c *Controller) require(want State) error {
	if c.state == want {
		return nil
	}
	switch {
	case c.state == StateTerminated:
		return types.ErrSessionTerminated
	case want == StateAuthenticated:
		return types.ErrNotAuthenticated
	default:
		return types.ErrInvalidState
	}
}
