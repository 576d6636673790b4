package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"trustrails/pkg/platform/sentinel"
)

const leaseKeyPrefix = "rollover:lock:"

// releaseScript deletes the lease only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only if the caller still owns it.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLease is a Locker shared by every service instance. A held lease is
// renewed every ttl/3 until released, so a pass may outlive ttl; a crashed
// holder stops renewing and its lease expires after ttl.
type RedisLease struct {
	client *redis.Client
	ttl    time.Duration
	poll   time.Duration
	logger *slog.Logger
}

type RedisOption func(*RedisLease)

// WithPollInterval sets how often a waiter retries a held lease.
func WithPollInterval(d time.Duration) RedisOption {
	return func(l *RedisLease) { l.poll = d }
}

func WithLeaseLogger(logger *slog.Logger) RedisOption {
	return func(l *RedisLease) { l.logger = logger }
}

func NewRedisLease(client *redis.Client, ttl time.Duration, opts ...RedisOption) *RedisLease {
	l := &RedisLease{client: client, ttl: ttl, poll: 50 * time.Millisecond, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLease) Acquire(ctx context.Context, key string) (func(), error) {
	k := leaseKeyPrefix + key
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("acquire lease %s: %w", key, errors.Join(sentinel.ErrUnavailable, err))
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lease %s: %w", key, errors.Join(sentinel.ErrLockHeld, ctx.Err()))
		case <-time.After(l.poll):
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(k, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// release with a fresh context: the caller's may already be done
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(rctx, l.client, []string{k}, token).Err()
		})
	}, nil
}

// keepAlive renews the lease until stop closes or the lease is found to
// belong to someone else.
func (l *RedisLease) keepAlive(k, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	every := max(l.ttl/3, time.Millisecond)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), every)
		n, err := renewScript.Run(ctx, l.client, []string{k}, token, l.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			l.logger.Warn("lease renewal failed", "key", k, "error", err)
		case n == 0:
			l.logger.Warn("lease lost before release", "key", k)
			return
		}
	}
}
