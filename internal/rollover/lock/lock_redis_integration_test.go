//go:build integration

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustrails/pkg/platform/sentinel"
	"trustrails/pkg/testutil/containers"
)

func TestRedisLease(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	lease := NewRedisLease(rc.Client, time.Minute, WithPollInterval(5*time.Millisecond))

	release, err := lease.Acquire(ctx, "t-1")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = lease.Acquire(waitCtx, "t-1")
	assert.ErrorIs(t, err, sentinel.ErrLockHeld)

	release()
	release2, err := lease.Acquire(ctx, "t-1")
	require.NoError(t, err)
	release2()
}

func TestRedisLease_RenewsWhileHeld(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	lease := NewRedisLease(rc.Client, 150*time.Millisecond, WithPollInterval(5*time.Millisecond))
	release, err := lease.Acquire(ctx, "t-1")
	require.NoError(t, err)

	// Hold well past the initial ttl, as a slow submission would.
	time.Sleep(500 * time.Millisecond)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = lease.Acquire(waitCtx, "t-1")
	assert.ErrorIs(t, err, sentinel.ErrLockHeld)

	ttl, err := rc.Client.PTTL(ctx, leaseKeyPrefix+"t-1").Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)

	release()
	n, err := rc.Client.Exists(ctx, leaseKeyPrefix+"t-1").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisLease_ReleaseDoesNotStealForeignLease(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	first := NewRedisLease(rc.Client, 60*time.Millisecond)
	release, err := first.Acquire(ctx, "t-1")
	require.NoError(t, err)

	// The key vanishes as it would after a network partition outlasting the ttl.
	require.NoError(t, rc.Client.Del(ctx, leaseKeyPrefix+"t-1").Err())
	other := NewRedisLease(rc.Client, time.Minute)
	otherRelease, err := other.Acquire(ctx, "t-1")
	require.NoError(t, err)
	defer otherRelease()

	// A renewal tick sees the foreign token and leaves it alone.
	time.Sleep(60 * time.Millisecond)
	release()
	n, err := rc.Client.Exists(ctx, leaseKeyPrefix+"t-1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	ttl, err := rc.Client.PTTL(ctx, leaseKeyPrefix+"t-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Second)
}
