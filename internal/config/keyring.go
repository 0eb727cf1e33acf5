package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/zalando/go-keyring"
)

// ResolveDSN returns the PostgreSQL DSN with its password filled in from the
// OS keyring when keyring_service is set and the DSN carries a user but no
// password. The keyring entry is looked up by that user name.
func (c DatabaseConfig) ResolveDSN() (string, error) {
	if c.DSN == "" || c.KeyringService == "" {
		return c.DSN, nil
	}

	u, err := url.Parse(c.DSN)
	if err != nil {
		return "", fmt.Errorf("invalid DSN: %w", err)
	}
	if u.User == nil || u.User.Username() == "" {
		return c.DSN, nil
	}
	if _, ok := u.User.Password(); ok {
		return c.DSN, nil
	}

	secret, err := keyring.Get(c.KeyringService, u.User.Username())
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("no keyring entry for %s in service %s", u.User.Username(), c.KeyringService)
		}
		return "", fmt.Errorf("keyring lookup: %w", err)
	}

	u.User = url.UserPassword(u.User.Username(), secret)
	return u.String(), nil
}

// StorePassword saves the DSN user's password in the OS keyring.
func (c DatabaseConfig) StorePassword(password string) error {
	if c.KeyringService == "" {
		return errors.New("database.keyring_service is not set")
	}
	u, err := url.Parse(c.DSN)
	if err != nil {
		return fmt.Errorf("invalid DSN: %w", err)
	}
	if u.User == nil || u.User.Username() == "" {
		return errors.New("DSN has no user name")
	}
	return keyring.Set(c.KeyringService, u.User.Username(), password)
}
