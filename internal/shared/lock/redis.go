package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"document-backend/internal/shared/telemetry"
)

const (
	defaultTTL     = 5 * time.Minute
	releaseTimeout = 5 * time.Second
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker hands out expiring exclusive locks stored in Redis.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisLocker builds a locker. A non-positive ttl selects five minutes.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// TryLock acquires key without waiting. ok is false when another holder owns it.
// The lock expires after the configured TTL even if unlock is never called.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	if l == nil || l.client == nil {
		return nil, false, errors.New("redis locker not configured")
	}
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !acquired {
		return nil, false, nil
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			telemetry.Warn("lock.release_failed", map[string]any{"key": key, "error": err})
		}
	}
	return unlock, true, nil
}

// NewRedisClient builds a client from connection settings.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}
