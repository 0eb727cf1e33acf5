package auth

import (
	"context"
	"sync"

	"github.com/wemcdonald/sqlgate/pkg/types"
)

// MemoryStore implements CredentialStore in memory, for tests and embedding
type MemoryStore struct {
	accounts map[string]types.Account // username -> account
	opts     options
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		accounts: make(map[string]types.Account),
		opts:     o,
	}
}

// Register implements CredentialStore.Register
func (m *MemoryStore) Register(ctx context.Context, username, password string, role types.Role) error {
	r, err := validateAccount(username, password, string(role), m.opts.strictRoles)
	if err != nil {
		return err
	}

	stored, err := m.opts.hasher.Hash(password)
	if err != nil {
		return &types.DBError{Code: types.CodeStorage, Message: "failed to hash password", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[username]; exists {
		return &types.DBError{Code: types.CodeDuplicateUsername, Message: "username already exists: " + username}
	}
	m.accounts[username] = types.Account{Username: username, Password: stored, Role: r}

	m.opts.logger.Info("user registered", "username", username, "role", string(r))
	return nil
}

// Find implements CredentialStore.Find
func (m *MemoryStore) Find(ctx context.Context, username, password string) (*types.Account, error) {
	m.mu.RLock()
	acct, ok := m.accounts[username]
	m.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	match, err := m.opts.hasher.Verify(password, acct.Password)
	if err != nil || !match {
		return nil, nil
	}
	return &acct, nil
}

// Len returns the number of stored accounts
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}
