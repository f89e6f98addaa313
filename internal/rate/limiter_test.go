package rate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(w *Window, start time.Time) *time.Time {
	now := start
	w.nowFunc = func() time.Time { return now }
	return &now
}

func TestWindow_HundredthAllowedHundredFirstRejected(t *testing.T) {
	w := NewWindow(100, 15*time.Minute)
	fixedClock(w, time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		d, err := w.Allow(ctx, "198.51.100.7")
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 100-i, d.Remaining)
	}

	d, err := w.Allow(ctx, "198.51.100.7")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 101, d.Count)
	assert.Zero(t, d.Remaining)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, 15*time.Minute)

	// Other clients have their own budget
	d, _ = w.Allow(ctx, "203.0.113.9")
	assert.True(t, d.Allowed)
}

func TestWindow_RequestsAgeOut(t *testing.T) {
	w := NewWindow(2, 15*time.Second) // 1s buckets
	now := fixedClock(w, time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	w.Allow(ctx, "k")
	*now = now.Add(5 * time.Second)
	w.Allow(ctx, "k")
	d, _ := w.Allow(ctx, "k")
	require.False(t, d.Allowed)
	// The oldest request leaves the window 10s from here.
	assert.Equal(t, 10*time.Second, d.RetryAfter)

	*now = now.Add(10 * time.Second)
	d, _ = w.Allow(ctx, "k")
	assert.False(t, d.Allowed, "rejected requests still count against the window")
	assert.Equal(t, 3, d.Count, "first request should have aged out")

	*now = now.Add(5 * time.Second)
	d, _ = w.Allow(ctx, "k")
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Count)

	*now = now.Add(15 * time.Second)
	d, _ = w.Allow(ctx, "k")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}

func TestWindow_SweepEvictsIdleKeys(t *testing.T) {
	w := NewWindow(10, 15*time.Second)
	now := fixedClock(w, time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		w.Allow(ctx, fmt.Sprintf("client-%d", i))
	}
	assert.Equal(t, 20, w.Sweep())

	*now = now.Add(10 * time.Second)
	w.Allow(ctx, "client-0")

	*now = now.Add(6 * time.Second)
	assert.Equal(t, 1, w.Sweep(), "only the recently active key survives")
}

func TestWindow_CapacityBound(t *testing.T) {
	w := NewWindowWithCapacity(5, time.Minute, 3)
	fixedClock(w, time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c", "d"} {
		w.Allow(ctx, k)
	}
	assert.Equal(t, 3, w.Len())

	// "a" was the least recent and was evicted, so it starts fresh
	d, _ := w.Allow(ctx, "a")
	assert.Equal(t, 1, d.Count)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisWindow_FixedWindow(t *testing.T) {
	mr, client := newRedis(t)
	rl := NewRedisWindow(client, "test:rl:", 3, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := rl.Allow(ctx, "ip")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := rl.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)
	assert.True(t, mr.Exists("test:rl:ip"))

	mr.FastForward(61 * time.Second)
	d, err = rl.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}

func TestRedisWindow_RepairsMissingTTL(t *testing.T) {
	mr, client := newRedis(t)
	rl := NewRedisWindow(client, "test:rl:", 3, time.Minute)
	ctx := context.Background()

	// Counter left behind without an expiry
	require.NoError(t, mr.Set("test:rl:ip", "7"))

	d, err := rl.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 8, d.Count)
	assert.Equal(t, time.Minute, mr.TTL("test:rl:ip"))

	mr.FastForward(61 * time.Second)
	d, err = rl.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}

func TestRedisWindow_Unavailable(t *testing.T) {
	mr, client := newRedis(t)
	rl := NewRedisWindow(client, "", 3, time.Minute)
	mr.Close()

	_, err := rl.Allow(context.Background(), "ip")
	assert.True(t, errors.Is(err, ErrUnavailable))
}
