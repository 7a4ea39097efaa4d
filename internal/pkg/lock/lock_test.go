package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return mr, client, cleanup
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	mr, client, cleanup := setupTestRedis(t)
	defer cleanup()

	locker := NewRedisLocker(client, "billing:lock:", time.Minute)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "parent:1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("billing:lock:parent:1"))

	_, err = locker.Acquire(ctx, "parent:1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	// different key is independent
	releaseOther, err := locker.Acquire(ctx, "parent:2")
	require.NoError(t, err)
	releaseOther()

	release()
	assert.False(t, mr.Exists("billing:lock:parent:1"))

	release, err = locker.Acquire(ctx, "parent:1")
	require.NoError(t, err)
	release()
}

func TestRedisLocker_Expires(t *testing.T) {
	mr, client, cleanup := setupTestRedis(t)
	defer cleanup()

	locker := NewRedisLocker(client, "billing:lock:", time.Second)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "parent:1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	release, err := locker.Acquire(ctx, "parent:1")
	require.NoError(t, err)
	release()
}

func TestRedisLocker_StaleReleaseKeepsNewHolder(t *testing.T) {
	mr, client, cleanup := setupTestRedis(t)
	defer cleanup()

	locker := NewRedisLocker(client, "billing:lock:", time.Second)
	ctx := context.Background()

	staleRelease, err := locker.Acquire(ctx, "parent:1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = locker.Acquire(ctx, "parent:1")
	require.NoError(t, err)

	staleRelease()
	assert.True(t, mr.Exists("billing:lock:parent:1"))
}

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "parent:1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "parent:1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	release()
	release()

	release, err = locker.Acquire(ctx, "parent:1")
	require.NoError(t, err)
	release()
}
