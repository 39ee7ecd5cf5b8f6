package voice

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"voice-agent-platform/pkg/utils"
)

// SessionLocker serializes conversational turns for one call. Providers can
// deliver overlapping webhooks for the same call; without the lock two turns
// could interleave their model calls and speak out of order.
type SessionLocker interface {
	// Acquire returns a release token and whether the lock was obtained.
	Acquire(ctx context.Context, callSID string) (token string, ok bool, err error)
	Release(ctx context.Context, callSID, token string) error
}

const sessionLockTTL = 30 * time.Second

// RedisSessionLocker backs the lock with a redis key so serialization holds
// across API replicas.
type RedisSessionLocker struct {
	rdb *redis.Client
}

func NewRedisSessionLocker(rdb *redis.Client) *RedisSessionLocker {
	return &RedisSessionLocker{rdb: rdb}
}

func (l *RedisSessionLocker) Acquire(ctx context.Context, callSID string) (string, bool, error) {
	return utils.AcquireKeyedLock(ctx, l.rdb, "voice:turn:"+callSID, sessionLockTTL)
}

func (l *RedisSessionLocker) Release(ctx context.Context, callSID, token string) error {
	return utils.ReleaseKeyedLock(ctx, l.rdb, "voice:turn:"+callSID, token)
}

// MemorySessionLocker is a single-process lock for tests and local runs.
type MemorySessionLocker struct {
	mu    sync.Mutex
	held  map[string]string
	nextN int
}

func NewMemorySessionLocker() *MemorySessionLocker {
	return &MemorySessionLocker{held: make(map[string]string)}
}

func (l *MemorySessionLocker) Acquire(_ context.Context, callSID string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[callSID]; taken {
		return "", false, nil
	}
	l.nextN++
	token := "mem-" + strconv.Itoa(l.nextN)
	l.held[callSID] = token
	return token, true, nil
}

func (l *MemorySessionLocker) Release(_ context.Context, callSID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[callSID] == token {
		delete(l.held, callSID)
	}
	return nil
}
