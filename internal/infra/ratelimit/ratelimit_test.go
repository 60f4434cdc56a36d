package ratelimit_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestFixedWindow_AllowsUpToLimit(t *testing.T) {
	clock := newClock()
	l := ratelimit.NewFixedWindow(3, time.Minute, ratelimit.WithClock(clock.Now))
	defer l.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "chat:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 3, d.Limit)
		assert.Equal(t, 2-i, d.Remaining)
	}

	clock.Advance(20 * time.Second)
	d, err := l.Allow(ctx, "chat:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 40*time.Second, d.RetryAfter)
}

func TestFixedWindow_ResetsAfterPeriod(t *testing.T) {
	clock := newClock()
	l := ratelimit.NewFixedWindow(1, time.Minute, ratelimit.WithClock(clock.Now))
	defer l.Close()
	ctx := context.Background()

	d, _ := l.Allow(ctx, "k")
	require.True(t, d.Allowed)
	d, _ = l.Allow(ctx, "k")
	require.False(t, d.Allowed)

	clock.Advance(time.Minute)
	d, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

func TestFixedWindow_KeysAreIndependent(t *testing.T) {
	l := ratelimit.NewFixedWindow(1, time.Minute)
	defer l.Close()
	ctx := context.Background()

	a, _ := l.Allow(ctx, "chat:a")
	b, _ := l.Allow(ctx, "chat:b")
	assert.True(t, a.Allowed)
	assert.True(t, b.Allowed)
	assert.Equal(t, 2, l.Len())
}

func TestFixedWindow_ConcurrentCallersNeverExceedLimit(t *testing.T) {
	l := ratelimit.NewFixedWindow(20, time.Minute)
	defer l.Close()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(context.Background(), "shared")
			if err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), allowed.Load())
}

func TestFixedWindow_SweepEvictsExpiredKeys(t *testing.T) {
	clock := newClock()
	l := ratelimit.NewFixedWindow(5, 10*time.Millisecond, ratelimit.WithClock(clock.Now))
	defer l.Close()

	for i := 0; i < 5; i++ {
		_, err := l.Allow(context.Background(), fmt.Sprintf("k%d", i))
		require.NoError(t, err)
	}
	require.Equal(t, 5, l.Len())

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestFixedWindow_CloseIsIdempotent(t *testing.T) {
	l := ratelimit.NewFixedWindow(1, time.Minute)
	l.Close()
	l.Close()
}

// Needs a running Redis; REDIS_ADDR=localhost:6379 go test ./...
func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	rdb, err := ratelimit.OpenRedis(ctx, ratelimit.RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer rdb.Close()

	key := fmt.Sprintf("test:%d", time.Now().UnixNano())
	l := ratelimit.NewRedisLimiter(rdb, 2, time.Minute)

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 1-i, d.Remaining)
	}

	d, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)

	require.NoError(t, rdb.Del(ctx, "ratelimit:"+key).Err())
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	_, err := ratelimit.OpenRedis(context.Background(), ratelimit.RedisConfig{})
	require.Error(t, err)
}
