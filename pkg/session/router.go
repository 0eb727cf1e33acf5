// Package session routes commands from an authenticated session through the
// authorization policy to the gateway, and tracks the login state machine.
package session

import (
	"context"
	"log/slog"

	"github.com/wemcdonald/sqlgate/pkg/gateway"
	"github.com/wemcdonald/sqlgate/pkg/rbac"
	"github.com/wemcdonald/sqlgate/pkg/types"
)

// Event describes one routed command for the audit trail.
type Event struct {
	Session   types.Session
	Statement string
	Decision  rbac.Decision
	Outcome   *gateway.Outcome // nil when denied or the connection was lost
	Err       error
}

// Auditor records routed commands.
type Auditor interface {
	Record(ctx context.Context, ev Event) error
}

// AuditorFunc adapts an ordinary function to Auditor.
type AuditorFunc func(ctx context.Context, ev Event) error

// Record calls f.
func (f AuditorFunc) Record(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithAuditor sets where routed commands are recorded.
func WithAuditor(a Auditor) RouterOption {
	return func(r *Router) { r.auditor = a }
}

// WithRouterLogger sets the router's logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// Router dispatches statements on behalf of an explicitly passed session.
// It holds no session state of its own.
type Router struct {
	policy  rbac.Policy
	gateway *gateway.Gateway
	auditor Auditor
	logger  *slog.Logger
}

// NewRouter creates a router that checks policy before calling gw.
func NewRouter(policy rbac.Policy, gw *gateway.Gateway, opts ...RouterOption) *Router {
	r := &Router{
		policy:  policy,
		gateway: gw,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit authorizes statement for sess and, when allowed, executes it on
// conn. A denial is returned as a PERMISSION_DENIED *types.DBError and conn
// is never touched.
func (r *Router) Submit(ctx context.Context, sess *types.Session, conn types.Executor, statement string) (*gateway.Outcome, error) {
	if sess == nil {
		return nil, types.ErrNotAuthenticated
	}

	log := r.logger.With("session_id", sess.ID, "username", sess.Username, "role", string(sess.Role))

	decision := r.policy.Decide(sess.Role, statement)
	if !decision.Allowed {
		log.Warn("statement denied", "reason", decision.Reason)
		err := decision.Err()
		r.record(ctx, Event{Session: *sess, Statement: statement, Decision: decision, Err: err})
		return nil, err
	}

	out, err := r.gateway.Execute(ctx, conn, statement)
	if err != nil {
		log.Error("statement aborted", "error", err)
		r.record(ctx, Event{Session: *sess, Statement: statement, Decision: decision, Err: err})
		return nil, err
	}

	if out.IsFailure() {
		log.Info("statement failed", "message", out.Message, "duration", out.Duration)
	} else {
		log.Info("statement executed", "kind", out.Kind.String(), "duration", out.Duration)
	}
	r.record(ctx, Event{Session: *sess, Statement: statement, Decision: decision, Outcome: out})
	return out, nil
}

// ListTables returns the tables visible through conn.
func (r *Router) ListTables(ctx context.Context, sess *types.Session, conn types.Executor) ([]string, error) {
	if sess == nil {
		return nil, types.ErrNotAuthenticated
	}
	return r.gateway.ListTables(ctx, conn)
}

func (r *Router) record(ctx context.Context, ev Event) {
	if r.auditor == nil {
		return
	}
	// the command has already been decided; a lost audit row is logged, not returned
	if err := r.auditor.Record(context.WithoutCancel(ctx), ev); err != nil {
		r.logger.Warn("failed to record audit event", "session_id", ev.Session.ID, "error", err)
	}
}
