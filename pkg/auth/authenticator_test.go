package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wemcdonald/sqlgate/pkg/types"
)

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Register(ctx, "alice", "pw1", types.RoleUser))
	require.NoError(t, store.Register(ctx, "root", "toor", types.RoleAdmin))

	authn := NewAuthenticator(store, nil)

	tests := []struct {
		name     string
		username string
		password string
		wantRole types.Role
		wantErr  error
	}{
		{name: "user", username: "alice", password: "pw1", wantRole: types.RoleUser},
		{name: "admin", username: "root", password: "toor", wantRole: types.RoleAdmin},
		{name: "wrong password", username: "alice", password: "nope", wantErr: types.ErrAuthFailed},
		{name: "unknown user", username: "mallory", password: "pw1", wantErr: types.ErrAuthFailed},
		{name: "empty", wantErr: types.ErrAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := authn.Authenticate(ctx, tt.username, tt.password)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.Nil(t, sess)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.username, sess.Username)
			assert.Equal(t, tt.wantRole, sess.Role)
			_, perr := uuid.Parse(sess.ID)
			assert.NoError(t, perr)
			assert.False(t, sess.CreatedAt.IsZero())
		})
	}
}

func TestAuthenticateDistinctSessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Register(ctx, "alice", "pw1", types.RoleUser))
	authn := NewAuthenticator(store, nil)

	a, err := authn.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)
	b, err := authn.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestAuthenticateStorageError(t *testing.T) {
	boom := &types.DBError{Code: types.CodeStorage, Message: "disk gone"}
	store := &MockStore{
		FindFunc: func(ctx context.Context, username, password string) (*types.Account, error) {
			return nil, boom
		},
	}

	sess, err := NewAuthenticator(store, nil).Authenticate(context.Background(), "alice", "pw1")
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, types.ErrAuthFailed))
}
