package auth

import (
	"context"

	"github.com/wemcdonald/sqlgate/pkg/types"
)

// CredentialStore defines the interface for account persistence
type CredentialStore interface {
	// Register inserts a new account. It returns types.ErrDuplicateUsername
	// when the username is taken.
	Register(ctx context.Context, username, password string, role types.Role) error

	// Find returns the account matching both username and password exactly,
	// or nil when there is no such account.
	Find(ctx context.Context, username, password string) (*types.Account, error)
}

// MockStore implements CredentialStore for testing
type MockStore struct {
	RegisterFunc func(ctx context.Context, username, password string, role types.Role) error
	FindFunc     func(ctx context.Context, username, password string) (*types.Account, error)
}

func (m *MockStore) Register(ctx context.Context, username, password string, role types.Role) error {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, username, password, role)
	}
	return nil
}

func (m *MockStore) Find(ctx context.Context, username, password string) (*types.Account, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, username, password)
	}
	return nil, nil
}
