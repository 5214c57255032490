package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when this instance still owns it,
// so a lock that expired and was re-acquired elsewhere is never released
// out from under the new holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker on a shared Redis, making the sweep
// coordination work across service instances.
type RedisLocker struct {
	client *redis.Client
	owner  string
}

// NewRedisLocker creates a RedisLocker on the given client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client: client,
		owner:  uuid.NewString(),
	}
}

// Acquire attempts to acquire the lock with SET NX.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, l.owner, ttl).Result()
}

// Release releases the lock if this instance owns it.
func (l *RedisLocker) Release(ctx context.Context, key string) (bool, error) {
	n, err := releaseScript.Run(ctx, l.client, []string{key}, l.owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Ensure RedisLocker implements Locker.
var _ Locker = (*RedisLocker)(nil)
