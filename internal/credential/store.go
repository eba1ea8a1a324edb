// Package credential holds the usernames and passwords accepted by the
// WS-Security UsernameToken check.
//
// Passwords are kept in plaintext. PasswordDigest verification recomputes
// SHA-1(nonce + created + password) on every request, so a one-way hash of
// the password cannot be used here.
package credential

import (
	"context"
	"errors"
	"fmt"
)

// MaxFieldLen bounds usernames and passwords. It matches the length at which
// inbound UsernameToken fields are truncated, so every stored credential can
// still be matched.
const MaxFieldLen = 64

// Credential is one configured user.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"-"`
	Enabled  bool   `json:"enabled"`
}

// Store is a credential store. Usernames are the lookup key but duplicates
// are not rejected; Find returns the first match.
type Store interface {
	Find(ctx context.Context, username string) (*Credential, error)
	Add(ctx context.Context, username, password string) error
	SetEnabled(ctx context.Context, username string, enabled bool) error
	List(ctx context.Context) ([]Credential, error)
}

// Validate checks a username and password before they are stored.
func Validate(username, password string) error {
	if username == "" || len(username) > MaxFieldLen {
		return fmt.Errorf("%w: username must be 1-%d bytes", ErrInvalidUser, MaxFieldLen)
	}
	if password == "" || len(password) > MaxFieldLen {
		return fmt.Errorf("%w: password must be 1-%d bytes", ErrInvalidUser, MaxFieldLen)
	}
	return nil
}

// Seed adds users to a store, disabling those configured as disabled.
// Users already present keep their stored password, so a persistent store
// can be seeded on every start.
func Seed(ctx context.Context, s Store, users []Credential) error {
	for _, u := range users {
		_, err := s.Find(ctx, u.Username)
		switch {
		case err == nil:
		case errors.Is(err, ErrUserNotFound):
			if err := s.Add(ctx, u.Username, u.Password); err != nil {
				return fmt.Errorf("failed to add user %q: %w", u.Username, err)
			}
		default:
			return fmt.Errorf("failed to look up user %q: %w", u.Username, err)
		}
		if err := s.SetEnabled(ctx, u.Username, u.Enabled); err != nil {
			return fmt.Errorf("failed to set user %q enabled=%t: %w", u.Username, u.Enabled, err)
		}
	}
	return nil
}
