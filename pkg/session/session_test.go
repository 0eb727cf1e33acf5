package session

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wemcdonald/sqlgate/pkg/auth"
	"github.com/wemcdonald/sqlgate/pkg/dialect"
	"github.com/wemcdonald/sqlgate/pkg/gateway"
	"github.com/wemcdonald/sqlgate/pkg/rbac"
	"github.com/wemcdonald/sqlgate/pkg/types"
)

// countingConn records every call and forwards to next when set.
type countingConn struct {
	next    types.Executor
	failErr error
	queries int
	execs   int
	closed  bool
}

func (c *countingConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.queries++
	if c.failErr != nil || c.next == nil {
		return nil, c.failErr
	}
	return c.next.QueryContext(ctx, query, args...)
}

func (c *countingConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.execs++
	if c.failErr != nil || c.next == nil {
		return nil, c.failErr
	}
	return c.next.ExecContext(ctx, query, args...)
}

func (c *countingConn) Close() error {
	c.closed = true
	return nil
}

func (c *countingConn) calls() int { return c.queries + c.execs }

type staticSource struct {
	conn *countingConn
	err  error
}

func (s *staticSource) Acquire(ctx context.Context) (Conn, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.conn, nil
}

type fixture struct {
	db     *sql.DB
	conn   *countingConn
	ctrl   *Controller
	events []Event
}

func newFixture(t *testing.T, policy rbac.Policy) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "target.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE orders (id INTEGER PRIMARY KEY, item TEXT);
		INSERT INTO orders (item) VALUES ('apple'), ('pear');`)
	require.NoError(t, err)

	store := auth.NewMemoryStore()
	require.NoError(t, store.Register(ctx, "alice", "pw1", types.RoleUser))
	require.NoError(t, store.Register(ctx, "root", "toor", types.RoleAdmin))

	f := &fixture{db: db, conn: &countingConn{next: db}}
	auditor := AuditorFunc(func(ctx context.Context, ev Event) error {
		f.events = append(f.events, ev)
		return nil
	})
	router := NewRouter(policy, gateway.New(dialect.SQLite), WithAuditor(auditor))
	f.ctrl = NewController(store, router, &staticSource{conn: f.conn}, nil)
	return f
}

func TestControllerLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, rbac.NewTextPolicy())

	_, err := f.ctrl.Login(ctx, "alice", "wrong")
	assert.True(t, errors.Is(err, types.ErrAuthFailed))
	assert.Equal(t, StateAnonymous, f.ctrl.State())

	sess, err := f.ctrl.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.Username)
	assert.Equal(t, types.RoleUser, sess.Role)
	assert.Equal(t, StateAuthenticated, f.ctrl.State())

	_, err = f.ctrl.Login(ctx, "root", "toor")
	assert.True(t, errors.Is(err, types.ErrInvalidState))

	err = f.ctrl.Register(ctx, "bob", "pw", types.RoleUser)
	assert.True(t, errors.Is(err, types.ErrInvalidState))
}

func TestControllerLoginConnectionFailure(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore()
	require.NoError(t, store.Register(ctx, "alice", "pw1", types.RoleUser))

	router := NewRouter(rbac.NewTextPolicy(), gateway.New(dialect.SQLite))
	ctrl := NewController(store, router, &staticSource{err: errors.New("pool closed")}, nil)

	_, err := ctrl.Login(ctx, "alice", "pw1")
	assert.True(t, errors.Is(err, types.ErrConnectionLost))
	assert.Equal(t, StateAnonymous, ctrl.State())
}

func TestControllerRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, rbac.NewTextPolicy())

	require.NoError(t, f.ctrl.Register(ctx, "bob", "pw", types.RoleUser))
	err := f.ctrl.Register(ctx, "bob", "pw2", types.RoleUser)
	assert.True(t, errors.Is(err, types.ErrDuplicateUsername))

	err = f.ctrl.Register(ctx, "carol", "pw", "superuser")
	assert.True(t, errors.Is(err, types.ErrInvalidRole))
	assert.Equal(t, StateAnonymous, f.ctrl.State())

	sess, err := f.ctrl.Login(ctx, "bob", "pw")
	require.NoError(t, err)
	assert.Equal(t, types.RoleUser, sess.Role)
}

func TestControllerUserSubmit(t *testing.T) {
	ctx := context.Background()

	for _, mode := range []string{rbac.ModeText, rbac.ModeClassified} {
		t.Run(mode, func(t *testing.T) {
			policy, err := rbac.New(mode)
			require.NoError(t, err)
			f := newFixture(t, policy)

			_, err = f.ctrl.Login(ctx, "alice", "pw1")
			require.NoError(t, err)

			out, err := f.ctrl.Submit(ctx, "SELECT * FROM orders")
			require.NoError(t, err)
			assert.True(t, out.IsRowSet())
			assert.Len(t, out.Rows, 2)

			before := f.conn.calls()

			out, err = f.ctrl.Submit(ctx, "SELECT * FROM users")
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, types.ErrAuthorizationDenied))
			assert.Equal(t, rbac.ReasonUsersTable, err.(*types.DBError).Message)

			out, err = f.ctrl.Submit(ctx, "DELETE FROM orders")
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, types.ErrAuthorizationDenied))
			assert.Equal(t, rbac.ReasonInvalidFormat, err.(*types.DBError).Message)

			assert.Equal(t, before, f.conn.calls(), "denied statements must not reach the executor")
			assert.Equal(t, StateAuthenticated, f.ctrl.State())

			var count int
			require.NoError(t, f.db.QueryRow("SELECT COUNT(*) FROM orders").Scan(&count))
			assert.Equal(t, 2, count)
		})
	}
}

func TestControllerAdminSubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, rbac.NewTextPolicy())

	_, err := f.ctrl.Login(ctx, "root", "toor")
	require.NoError(t, err)

	out, err := f.ctrl.Submit(ctx, "DROP TABLE orders")
	require.NoError(t, err)
	assert.True(t, out.IsAck())
	assert.Equal(t, 1, f.conn.execs)

	out, err = f.ctrl.Submit(ctx, "DROP TABLE orders")
	require.NoError(t, err)
	assert.True(t, out.IsFailure())
	assert.Contains(t, out.Message, "no such table")
	assert.Equal(t, StateAuthenticated, f.ctrl.State())
}

func TestControllerIdempotentSelect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, rbac.NewTextPolicy())

	_, err := f.ctrl.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	first, err := f.ctrl.Submit(ctx, "SELECT * FROM orders")
	require.NoError(t, err)
	second, err := f.ctrl.Submit(ctx, "SELECT * FROM orders")
	require.NoError(t, err)
	assert.Equal(t, first.Columns, second.Columns)
	assert.Equal(t, first.Rows, second.Rows)
}

func TestControllerListTablesAndHelp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, rbac.NewTextPolicy())

	_, err := f.ctrl.ListTables(ctx)
	assert.True(t, errors.Is(err, types.ErrNotAuthenticated))
	_, err = f.ctrl.Help()
	assert.True(t, errors.Is(err, types.ErrNotAuthenticated))

	_, err = f.ctrl.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	tables, err := f.ctrl.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, tables)

	help, err := f.ctrl.Help()
	require.NoError(t, err)
	assert.Len(t, help, 1)
}

func TestControllerTerminated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, rbac.NewTextPolicy())

	_, err := f.ctrl.Login(ctx, "root", "toor")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.Logout())
	assert.Equal(t, StateTerminated, f.ctrl.State())
	assert.True(t, f.conn.closed)

	_, err = f.ctrl.Submit(ctx, "SELECT * FROM orders")
	assert.True(t, errors.Is(err, types.ErrSessionTerminated))
	_, err = f.ctrl.Login(ctx, "root", "toor")
	assert.True(t, errors.Is(err, types.ErrSessionTerminated))
	err = f.ctrl.Register(ctx, "x", "y", types.RoleUser)
	assert.True(t, errors.Is(err, types.ErrSessionTerminated))
	_, err = f.ctrl.ListTables(ctx)
	assert.True(t, errors.Is(err, types.ErrSessionTerminated))
	_, err = f.ctrl.Help()
	assert.True(t, errors.Is(err, types.ErrSessionTerminated))
	_, err = f.ctrl.Session()
	assert.True(t, errors.Is(err, types.ErrSessionTerminated))
	assert.True(t, errors.Is(f.ctrl.Logout(), types.ErrSessionTerminated))
	assert.NoError(t, f.ctrl.Close())
}

func TestControllerAnonymous(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, rbac.NewTextPolicy())

	_, err := f.ctrl.Submit(ctx, "SELECT * FROM orders")
	assert.True(t, errors.Is(err, types.ErrNotAuthenticated))
	assert.True(t, errors.Is(f.ctrl.Logout(), types.ErrNotAuthenticated))
	_, err = f.ctrl.Session()
	assert.True(t, errors.Is(err, types.ErrNotAuthenticated))
	assert.Zero(t, f.conn.calls())

	require.NoError(t, f.ctrl.Close())
	assert.Equal(t, StateTerminated, f.ctrl.State())
}

func TestControllerConnectionLostTerminates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, rbac.NewTextPolicy())

	_, err := f.ctrl.Login(ctx, "root", "toor")
	require.NoError(t, err)

	f.conn.failErr = driver.ErrBadConn
	_, err = f.ctrl.Submit(ctx, "SELECT * FROM orders")
	assert.True(t, errors.Is(err, types.ErrConnectionLost))
	assert.Equal(t, StateTerminated, f.ctrl.State())
	assert.True(t, f.conn.closed)
}

func TestControllerSessionIsCopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, rbac.NewTextPolicy())

	_, err := f.ctrl.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	s, err := f.ctrl.Session()
	require.NoError(t, err)
	s.Role = types.RoleAdmin

	_, err = f.ctrl.Submit(ctx, "DROP TABLE orders")
	assert.True(t, errors.Is(err, types.ErrAuthorizationDenied))
}

func TestRouterAuditEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, rbac.NewTextPolicy())

	_, err := f.ctrl.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	_, _ = f.ctrl.Submit(ctx, "SELECT * FROM orders")
	_, _ = f.ctrl.Submit(ctx, "SELECT * FROM users")

	require.Len(t, f.events, 2)

	assert.True(t, f.events[0].Decision.Allowed)
	require.NotNil(t, f.events[0].Outcome)
	assert.True(t, f.events[0].Outcome.IsRowSet())
	assert.Equal(t, "alice", f.events[0].Session.Username)

	assert.False(t, f.events[1].Decision.Allowed)
	assert.Nil(t, f.events[1].Outcome)
	assert.True(t, errors.Is(f.events[1].Err, types.ErrAuthorizationDenied))
}

func TestRouterRequiresSession(t *testing.T) {
	conn := &countingConn{}
	router := NewRouter(rbac.NewTextPolicy(), gateway.New(dialect.SQLite))

	_, err := router.Submit(context.Background(), nil, conn, "SELECT * FROM orders")
	assert.True(t, errors.Is(err, types.ErrNotAuthenticated))
	assert.Zero(t, conn.calls())
}

func TestRouterAuditFailureDoesNotFailCommand(t *testing.T) {
	conn := &countingConn{failErr: errors.New("near \"x\": syntax error")}
	auditor := AuditorFunc(func(ctx context.Context, ev Event) error {
		return errors.New("audit store unavailable")
	})
	router := NewRouter(rbac.NewTextPolicy(), gateway.New(dialect.SQLite), WithAuditor(auditor))
	sess := &types.Session{ID: "s1", Username: "root", Role: types.RoleAdmin}

	out, err := router.Submit(context.Background(), sess, conn, "x")
	require.NoError(t, err)
	assert.True(t, out.IsFailure())
}
