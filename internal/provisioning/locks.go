package provisioning

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"voiceline-platform/pkg/utils"
)

// lockTTL bounds how long a crashed process can keep a number locked.
// Longer than any single pipeline run, short enough to self-heal.
const lockTTL = 60 * time.Second

// NumberLocker serializes assign/unassign/update pipelines per phone number.
// Acquire returns ErrBusy when another operation holds the number.
type NumberLocker interface {
	Acquire(ctx context.Context, numberID string) (release func(), err error)
}

// RedisLocker is the production locker, shared across API instances.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: lockTTL}
}

func (l *RedisLocker) Acquire(ctx context.Context, numberID string) (func(), error) {
	key := "provisioning:number:" + numberID
	token := uuid.NewString()

	ok, err := utils.AcquireAdvisoryLock(ctx, l.rdb, key, token, l.ttl)
	if err != nil {
		return nil, remoteErr("acquire number lock", err)
	}
	if !ok {
		return nil, ErrBusy
	}
	return func() {
		// Release runs on a fresh context; the request context may already
		// be canceled by the time the pipeline unwinds.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = utils.ReleaseAdvisoryLock(rctx, l.rdb, key, token)
	}, nil
}

// MemoryLocker is a single-process locker for tests and local development.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]struct{}{}}
}

func (l *MemoryLocker) Acquire(ctx context.Context, numberID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[numberID]; busy {
		return nil, ErrBusy
	}
	l.held[numberID] = struct{}{}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, numberID)
	}, nil
}
