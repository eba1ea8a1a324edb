package auth

import (
	"context"
	"sync"
	"time"
)

// DefaultNonceCapacity is the number of nonces remembered by default.
const DefaultNonceCapacity = 100

// NonceGuard rejects nonces it has recently seen.
//
// CheckAndInsert must look up and record the nonce as one atomic step and
// reports true only when the nonce was not present. The error is reserved for
// backend failures.
type NonceGuard interface {
	CheckAndInsert(ctx context.Context, nonce string, now time.Time) (bool, error)
}

// NonceRecord is one remembered nonce.
type NonceRecord struct {
	Nonce  string
	SeenAt time.Time
}

// NonceCache is an in-memory NonceGuard over a fixed ring of slots. Once
// full, each insert overwrites the oldest record, so a nonce becomes
// acceptable again after capacity newer distinct nonces.
type NonceCache struct {
	mu     sync.Mutex
	slots  []NonceRecord
	cursor int
	count  int
}

// NewNonceCache creates a cache remembering capacity nonces.
func NewNonceCache(capacity int) *NonceCache {
	if capacity <= 0 {
		capacity = DefaultNonceCapacity
	}
	return &NonceCache{slots: make([]NonceRecord, capacity)}
}

// CheckAndInsert implements NonceGuard.
func (c *NonceCache) CheckAndInsert(_ context.Context, nonce string, now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < c.count; i++ {
		if c.slots[i].Nonce == nonce {
			return false, nil
		}
	}

	c.slots[c.cursor] = NonceRecord{Nonce: nonce, SeenAt: now}
	c.cursor = (c.cursor + 1) % len(c.slots)
	if c.count < len(c.slots) {
		c.count++
	}
	return true, nil
}

// Len returns the number of remembered nonces.
func (c *NonceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Capacity returns the ring size.
func (c *NonceCache) Capacity() int {
	return len(c.slots)
}
