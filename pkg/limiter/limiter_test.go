package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client), mr
}

func TestAllowWithinLimit(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, IPKey("203.0.113.9"), 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}

	ok, err := l.Allow(ctx, IPKey("203.0.113.9"), 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllowResetsAfterWindow(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := l.Allow(ctx, IPKey("203.0.113.9"), 3, time.Minute)
		require.NoError(t, err)
	}

	mr.FastForward(time.Minute + time.Second)

	ok, err := l.Allow(ctx, IPKey("203.0.113.9"), 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	ok, err := l.Allow(ctx, IPKey("203.0.113.9"), 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.Allow(ctx, IPKey("203.0.113.9"), 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, IPKey("198.51.100.7"), 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(ctx, UserKey(42), 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCountDoesNotIncrement(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	key := LoginFailUserKey(42)

	n, err := l.Count(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, l.Record(ctx, key, 15*time.Minute))
	require.NoError(t, l.Record(ctx, key, 15*time.Minute))

	n, err = l.Count(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Reads leave the counter alone.
	n, err = l.Count(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRecordExpires(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	key := LoginFailIPUserKey("203.0.113.9", 42)

	require.NoError(t, l.Record(ctx, key, 2*time.Minute))
	mr.FastForward(3 * time.Minute)

	n, err := l.Count(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestClear(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, LoginFailUserKey(42), time.Minute))
	require.NoError(t, l.Record(ctx, LoginFailIPUserKey("203.0.113.9", 42), time.Minute))

	require.NoError(t, l.Clear(ctx, LoginFailUserKey(42), LoginFailIPUserKey("203.0.113.9", 42)))

	n, err := l.Count(ctx, LoginFailUserKey(42))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	n, err = l.Count(ctx, LoginFailIPUserKey("203.0.113.9", 42))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
