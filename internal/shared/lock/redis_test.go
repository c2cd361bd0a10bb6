package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestLocker(t *testing.T, ttl time.Duration) *RedisLocker {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := NewRedisClient(addr, os.Getenv("REDIS_PASSWORD"), 0)
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	return NewRedisLocker(client, ttl)
}

func TestTryLockIsExclusive(t *testing.T) {
	l := newTestLocker(t, time.Minute)
	ctx := context.Background()
	key := "test:lock:" + uuid.NewString()

	unlock, ok, err := l.TryLock(ctx, key)
	if err != nil || !ok {
		t.Fatalf("first TryLock: ok=%v err=%v", ok, err)
	}

	if _, ok, err := l.TryLock(ctx, key); err != nil || ok {
		t.Fatalf("second TryLock should fail: ok=%v err=%v", ok, err)
	}

	unlock()

	unlock2, ok, err := l.TryLock(ctx, key)
	if err != nil || !ok {
		t.Fatalf("TryLock after unlock: ok=%v err=%v", ok, err)
	}
	unlock2()
}

func TestUnlockDoesNotReleaseForeignHolder(t *testing.T) {
	l := newTestLocker(t, 100*time.Millisecond)
	ctx := context.Background()
	key := "test:lock:" + uuid.NewString()

	staleUnlock, ok, err := l.TryLock(ctx, key)
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	time.Sleep(250 * time.Millisecond)

	freshUnlock, ok, err := l.TryLock(ctx, key)
	if err != nil || !ok {
		t.Fatalf("TryLock after expiry: ok=%v err=%v", ok, err)
	}
	defer freshUnlock()

	staleUnlock()
	if _, ok, _ := l.TryLock(ctx, key); ok {
		t.Fatalf("stale unlock released a lock it no longer owned")
	}
}

func TestTryLockWithoutClient(t *testing.T) {
	var l *RedisLocker
	if _, ok, err := l.TryLock(context.Background(), "k"); err == nil || ok {
		t.Fatalf("expected error from unconfigured locker")
	}
}
