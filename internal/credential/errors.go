package credential

import "errors"

var (
	// ErrUserNotFound is returned when no credential matches a username
	ErrUserNotFound = errors.New("user not found")

	// ErrStoreFull is returned by Add once the configured user limit is reached
	ErrStoreFull = errors.New("credential store is full")

	// ErrInvalidUser is returned for an empty or oversized username or password
	ErrInvalidUser = errors.New("invalid username or password")
)
