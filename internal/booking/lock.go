package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/room-display/backend/internal/logging"
)

// Locker serializes check-then-commit sequences per room. Locks on
// different rooms never block each other. unlock must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, roomID string) (unlock func(), err error)
}

type roomLock struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker is an in-process Locker.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*roomLock)}
}

// Lock blocks until roomID is free or ctx is done.
func (m *MemoryLocker) Lock(ctx context.Context, roomID string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[roomID]
	if !ok {
		l = &roomLock{ch: make(chan struct{}, 1)}
		m.locks[roomID] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(roomID, l)
		return nil, fmt.Errorf("waiting for room lock: %w", ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			m.release(roomID, l)
		})
	}, nil
}

func (m *MemoryLocker) release(roomID string, l *roomLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, roomID)
	}
}

// held reports how many rooms currently have waiters or holders.
func (m *MemoryLocker) held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// releaseScript deletes the lock key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every server replica using the same Redis.
// Each lock is a lease that expires after ttl if its holder dies.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		prefix: "room-display:lock:room:",
		logger: logging.OrNop(logger),
	}
}

// Lock polls SET NX until the lease is acquired or ctx is done.
func (r *RedisLocker) Lock(ctx context.Context, roomID string) (func(), error) {
	key := r.prefix + roomID
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("acquiring room lock: %w", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("waiting for room lock: %w", ctx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				r.logger.Warn("releasing room lock", zap.String("room_id", roomID), zap.Error(err))
			}
		})
	}, nil
}
