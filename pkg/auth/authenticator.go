package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wemcdonald/sqlgate/pkg/types"
)

// Authenticator verifies credentials against a store and opens sessions.
type Authenticator struct {
	store  CredentialStore
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthenticator creates an authenticator over store. A nil logger discards.
func NewAuthenticator(store CredentialStore, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Authenticator{store: store, logger: logger, now: time.Now}
}

// Authenticate returns a new session for a matching username/password pair.
// Unknown users and wrong passwords both yield types.ErrAuthFailed.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*types.Session, error) {
	acct, err := a.store.Find(ctx, username, password)
	if err != nil {
		a.logger.Error("credential lookup failed", "username", username, "error", err)
		return nil, err
	}
	if acct == nil {
		a.logger.Warn("authentication failed", "username", username)
		return nil, types.ErrAuthFailed
	}

	sess := &types.Session{
		ID:        uuid.NewString(),
		Username:  acct.Username,
		Role:      acct.Role,
		CreatedAt: a.now().UTC(),
	}
	a.logger.Info("user authenticated", "username", sess.Username, "role", string(sess.Role), "session_id", sess.ID)
	return sess, nil
}
