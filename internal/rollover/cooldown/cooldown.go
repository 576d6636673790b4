// Package cooldown rate-limits recovery passes per transfer: at most one pass
// per window, so a persistent chain/log disagreement cannot make the service
// thrash.
package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Gate admits at most one caller per key per window.
//
//go:generate mockgen -source=cooldown.go -destination=mocks/mocks.go -package=mocks Gate
type Gate interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}

// InMemoryGate is a process-local Gate. Entries are dropped once their
// window has passed.
type InMemoryGate struct {
	mu      sync.Mutex
	until   map[string]time.Time
	sweepAt time.Time
	now     func() time.Time
}

type Option func(*InMemoryGate)

func WithClock(now func() time.Time) Option {
	return func(g *InMemoryGate) { g.now = now }
}

func NewInMemoryGate(opts ...Option) *InMemoryGate {
	g := &InMemoryGate{until: make(map[string]time.Time), now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *InMemoryGate) Allow(_ context.Context, key string, window time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.sweep(now, window)
	if until, ok := g.until[key]; ok && now.Before(until) {
		return false, nil
	}
	g.until[key] = now.Add(window)
	return true, nil
}

// sweep removes expired entries, at most once per window.
func (g *InMemoryGate) sweep(now time.Time, window time.Duration) {
	if now.Before(g.sweepAt) {
		return
	}
	for key, until := range g.until {
		if !now.Before(until) {
			delete(g.until, key)
		}
	}
	g.sweepAt = now.Add(window)
}

const cooldownKeyPrefix = "rollover:recovery:"

// RedisGate shares the cooldown across service instances using SET NX with expiry.
type RedisGate struct {
	client *redis.Client
}

func NewRedisGate(client *redis.Client) *RedisGate {
	return &RedisGate{client: client}
}

func (g *RedisGate) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	return g.client.SetNX(ctx, cooldownKeyPrefix+key, "1", window).Result()
}
