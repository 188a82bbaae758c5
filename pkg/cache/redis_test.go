package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*LinkCache, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLinkCache(client), mr, client
}

func TestGetLongURLMissIsNotAnError(t *testing.T) {
	c, _, _ := newTestCache(t)

	val, err := c.GetLongURL(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestIncrClickArmsTTLOnFirstHit(t *testing.T) {
	c, mr, client := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.IncrClick(ctx, "abc", time.Hour))
	assert.Greater(t, client.TTL(ctx, "clicks:abc").Val(), time.Duration(0))

	// Later hits must not extend the window.
	mr.FastForward(30 * time.Minute)
	require.NoError(t, c.IncrClick(ctx, "abc", time.Hour))
	assert.LessOrEqual(t, client.TTL(ctx, "clicks:abc").Val(), 30*time.Minute)

	n, err := c.ClickCount(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestIncrClickRearmsAfterReset(t *testing.T) {
	c, _, client := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.IncrClick(ctx, "abc", time.Hour))
	require.NoError(t, c.ResetClickCount(ctx, "abc"))

	// Reset leaves the value at 0 with no TTL; the next increment observes 1
	// and arms a fresh window.
	assert.Negative(t, client.TTL(ctx, "clicks:abc").Val())
	require.NoError(t, c.IncrClick(ctx, "abc", time.Hour))
	assert.Greater(t, client.TTL(ctx, "clicks:abc").Val(), time.Duration(0))

	n, err := c.ClickCount(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInitClickCounterNeverClobbers(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.IncrClick(ctx, "abc", time.Hour))
	require.NoError(t, c.IncrClick(ctx, "abc", time.Hour))
	require.NoError(t, c.InitClickCounter(ctx, "abc", time.Hour))

	n, err := c.ClickCount(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestScanClickCountersWalksAllKeys(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	expected := make(map[string]bool)
	for i := 0; i < 25; i++ {
		code := fmt.Sprintf("code%d", i)
		expected[code] = true
		require.NoError(t, c.IncrClick(ctx, code, time.Hour))
	}
	// Unrelated keys must not surface as codes.
	require.NoError(t, c.SetLink(ctx, "code0", "https://example.com", time.Hour))

	found := make(map[string]bool)
	var cursor uint64
	for {
		codes, next, err := c.ScanClickCounters(ctx, cursor, 10)
		require.NoError(t, err)
		for _, code := range codes {
			found[code] = true
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	assert.Equal(t, expected, found)
}

func TestVisitStreamRoundTrip(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	visitTime := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.AppendVisit(ctx, &VisitEvent{
		ShortCode: "abc",
		LongURL:   "https://example.com",
		IP:        "203.0.113.9",
		UserAgent: "curl",
		Referer:   "https://ref.example.com",
		VisitTime: visitTime,
	}))

	entries, err := c.ReadVisits(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.Equal(t, "abc", entries[0].Event.ShortCode)
	assert.Equal(t, "203.0.113.9", entries[0].Event.IP)
	assert.True(t, entries[0].Event.VisitTime.Equal(visitTime))

	require.NoError(t, c.DeleteVisit(ctx, entries[0].ID))
	entries, err = c.ReadVisits(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadVisitsPreservesArrivalOrder(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.AppendVisit(ctx, &VisitEvent{
			ShortCode: fmt.Sprintf("code%d", i),
			VisitTime: time.Now(),
		}))
	}

	entries, err := c.ReadVisits(ctx, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		assert.Equal(t, fmt.Sprintf("code%d", i), entry.Event.ShortCode)
	}
}

func TestDeleteDropsEntryAndCounter(t *testing.T) {
	c, mr, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetLink(ctx, "abc", "https://example.com", time.Hour))
	require.NoError(t, c.IncrClick(ctx, "abc", time.Hour))
	require.NoError(t, c.SetLink(ctx, "def", "https://example.org", time.Hour))

	require.NoError(t, c.Delete(ctx, "abc"))

	assert.False(t, mr.Exists("link:abc"))
	assert.False(t, mr.Exists("clicks:abc"))
	assert.True(t, mr.Exists("link:def"))
}
