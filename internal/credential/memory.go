package credential

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps credentials in process memory. Reads take a shared lock.
type MemoryStore struct {
	mu       sync.RWMutex
	users    []Credential
	maxUsers int
}

// NewMemoryStore creates an empty store holding at most maxUsers users.
// A maxUsers of zero or less means no limit.
func NewMemoryStore(maxUsers int) *MemoryStore {
	return &MemoryStore{maxUsers: maxUsers}
}

// Find returns a copy of the first credential with the given username.
func (s *MemoryStore) Find(_ context.Context, username string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.users {
		if s.users[i].Username == username {
			c := s.users[i]
			return &c, nil
		}
	}
	return nil, ErrUserNotFound
}

// Add appends an enabled user.
func (s *MemoryStore) Add(_ context.Context, username, password string) error {
	if err := Validate(username, password); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxUsers > 0 && len(s.users) >= s.maxUsers {
		return fmt.Errorf("%w: limit is %d users", ErrStoreFull, s.maxUsers)
	}
	s.users = append(s.users, Credential{Username: username, Password: password, Enabled: true})
	return nil
}

// SetEnabled updates every credential with the given username.
func (s *MemoryStore) SetEnabled(_ context.Context, username string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := range s.users {
		if s.users[i].Username == username {
			s.users[i].Enabled = enabled
			found = true
		}
	}
	if !found {
		return ErrUserNotFound
	}
	return nil
}

// List returns a snapshot of all credentials in insertion order.
func (s *MemoryStore) List(_ context.Context) ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Credential, len(s.users))
	copy(out, s.users)
	return out, nil
}
