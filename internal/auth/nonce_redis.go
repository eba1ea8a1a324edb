package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkAndInsertScript keeps KEYS[1] (a list, oldest first) and KEYS[2] (a
// set) in step. Returns 1 when ARGV[1] was newly recorded, 0 on a replay.
var checkAndInsertScript = redis.NewScript(`
if redis.call("SISMEMBER", KEYS[2], ARGV[1]) == 1 then
  return 0
end
redis.call("RPUSH", KEYS[1], ARGV[1])
redis.call("SADD", KEYS[2], ARGV[1])
if redis.call("LLEN", KEYS[1]) > tonumber(ARGV[2]) then
  local oldest = redis.call("LPOP", KEYS[1])
  redis.call("SREM", KEYS[2], oldest)
end
return 1
`)

// RedisNonceGuard shares the nonce ring between server instances. The
// lookup, insert and eviction run inside one Lua script, which Redis executes
// atomically.
type RedisNonceGuard struct {
	client   redis.UniversalClient
	orderKey string
	seenKey  string
	capacity int
}

// NewRedisNonceGuard creates a guard storing its ring under prefix.
func NewRedisNonceGuard(client redis.UniversalClient, prefix string, capacity int) *RedisNonceGuard {
	if capacity <= 0 {
		capacity = DefaultNonceCapacity
	}
	// shared hash tag keeps both keys in one cluster slot
	return &RedisNonceGuard{
		client:   client,
		orderKey: prefix + "{nonces}:order",
		seenKey:  prefix + "{nonces}:seen",
		capacity: capacity,
	}
}

// CheckAndInsert implements NonceGuard.
func (g *RedisNonceGuard) CheckAndInsert(ctx context.Context, nonce string, _ time.Time) (bool, error) {
	n, err := checkAndInsertScript.Run(ctx, g.client, []string{g.orderKey, g.seenKey}, nonce, g.capacity).Int()
	if err != nil {
		return false, fmt.Errorf("nonce check failed: %w", err)
	}
	return n == 1, nil
}

// Reset forgets every nonce.
func (g *RedisNonceGuard) Reset(ctx context.Context) error {
	return g.client.Del(ctx, g.orderKey, g.seenKey).Err()
}
