// Package audit persists one row per routed command in the audit_log table.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wemcdonald/sqlgate/pkg/dialect"
	"github.com/wemcdonald/sqlgate/pkg/session"
	"github.com/wemcdonald/sqlgate/pkg/types"
)

// timeFormat is fixed width so created_at sorts as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Decisions recorded in the decision column.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Entry is a single audit trail row.
type Entry struct {
	ID        string    `json:"id" yaml:"id"`
	SessionID string    `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Username  string    `json:"username" yaml:"username"`
	Role      string    `json:"role" yaml:"role"`
	Statement string    `json:"statement" yaml:"statement"`
	Decision  string    `json:"decision" yaml:"decision"`
	Outcome   string    `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Detail    string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Repository writes and reads audit entries. It implements session.Auditor.
type Repository struct {
	exec    types.Executor
	dialect dialect.Dialect
	now     func() time.Time
}

// NewRepository creates a repository over exec.
func NewRepository(exec types.Executor, d dialect.Dialect) *Repository {
	return &Repository{exec: exec, dialect: d, now: time.Now}
}

// EnsureSchema creates the audit_log table if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.exec.ExecContext(ctx, r.dialect.AuditDDL()); err != nil {
		return fmt.Errorf("creating audit_log table: %w", err)
	}
	return nil
}

// Record implements session.Auditor.
func (r *Repository) Record(ctx context.Context, ev session.Event) error {
	return r.Create(ctx, entryFromEvent(ev))
}

func entryFromEvent(ev session.Event) *Entry {
	e := &Entry{
		SessionID: ev.Session.ID,
		Username:  ev.Session.Username,
		Role:      string(ev.Session.Role),
		Statement: ev.Statement,
		Decision:  DecisionAllow,
	}

	if !ev.Decision.Allowed {
		e.Decision = DecisionDeny
		e.Detail = ev.Decision.Reason
		return e
	}

	switch {
	case ev.Err != nil:
		e.Outcome = "error"
		e.Detail = ev.Err.Error()
	case ev.Outcome != nil:
		e.Outcome = ev.Outcome.Kind.String()
		switch {
		case ev.Outcome.IsFailure():
			e.Detail = ev.Outcome.Message
		case ev.Outcome.IsRowSet():
			e.Detail = fmt.Sprintf("%d rows", len(ev.Outcome.Rows))
		case ev.Outcome.IsAck():
			e.Detail = fmt.Sprintf("%d affected", ev.Outcome.Affected)
		}
	}
	return e
}

// Create inserts e. ID and CreatedAt are generated if empty.
func (r *Repository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}

	query := r.dialect.Rebind(`INSERT INTO audit_log
		(id, session_id, username, role, statement, decision, outcome, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.exec.ExecContext(ctx, query,
		e.ID, nullableString(e.SessionID), e.Username, e.Role,
		e.Statement, e.Decision,
		nullableString(e.Outcome), nullableString(e.Detail),
		e.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// nullableString returns nil for empty strings so the column stays NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns the most recent entries first. limit defaults to 50 and is
// capped at 500.
func (r *Repository) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	query := r.dialect.Rebind(`SELECT id, COALESCE(session_id, ''), username, role, statement,
		decision, COALESCE(outcome, ''), COALESCE(detail, ''), created_at
		FROM audit_log ORDER BY created_at DESC, id LIMIT ?`)

	rows, err := r.exec.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Username, &e.Role, &e.Statement,
			&e.Decision, &e.Outcome, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if t, err := time.Parse(timeFormat, created); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log: %w", err)
	}
	return entries, nil
}
