package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RequestGuard serializes SendRequest calls for one user pair so the
// duplicate check and the write cannot interleave. Without a guard the
// check-then-write race of the friend graph remains, as documented there.
type RequestGuard interface {
	// Lock blocks until the key is held or ctx ends. The returned function
	// releases it.
	Lock(ctx context.Context, key string) (func(), error)
}

// LocalRequestGuard serializes callers within one process.
type LocalRequestGuard struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewLocalRequestGuard() *LocalRequestGuard {
	return &LocalRequestGuard{held: map[string]chan struct{}{}}
}

func (g *LocalRequestGuard) Lock(ctx context.Context, key string) (func(), error) {
	for {
		g.mu.Lock()
		wait, busy := g.held[key]
		if !busy {
			released := make(chan struct{})
			g.held[key] = released
			g.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					g.mu.Lock()
					delete(g.held, key)
					g.mu.Unlock()
					close(released)
				})
			}, nil
		}
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

const guardKeyPrefix = "panda:friend-guard:"

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock taken over by another caller is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisRequestGuard serializes callers across processes with a SETNX lock
// per pair. The TTL bounds how long a crashed holder blocks the pair.
type RedisRequestGuard struct {
	rdb *redis.Client

	TTL   time.Duration
	Wait  time.Duration
	Retry time.Duration
}

func NewRedisRequestGuard(rdb *redis.Client) *RedisRequestGuard {
	return &RedisRequestGuard{
		rdb:   rdb,
		TTL:   10 * time.Second,
		Wait:  5 * time.Second,
		Retry: 50 * time.Millisecond,
	}
}

func (g *RedisRequestGuard) Lock(ctx context.Context, key string) (func(), error) {
	k := guardKeyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(g.Wait)

	for {
		ok, err := g.rdb.SetNX(ctx, k, token, g.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: request guard: %w", ErrStoreUnavailable, err)
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				releaseScript.Run(ctx, g.rdb, []string{k}, token)
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: request guard for %q still held", ErrStoreUnavailable, key)
		}

		t := time.NewTimer(g.Retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}
