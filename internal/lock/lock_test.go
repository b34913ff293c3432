package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, "test:"), mr
}

func TestLockers(t *testing.T) {
	r, _ := newRedis(t)
	for name, l := range map[string]Locker{"redis": r, "memory": NewMemory()} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			lease, err := l.Acquire(ctx, "followups", time.Minute)
			require.NoError(t, err)

			_, err = l.Acquire(ctx, "followups", time.Minute)
			assert.ErrorIs(t, err, ErrLeaseHeld)

			require.NoError(t, lease.Release(ctx))
			require.NoError(t, lease.Release(ctx))

			again, err := l.Acquire(ctx, "followups", time.Minute)
			require.NoError(t, err)
			require.NoError(t, again.Release(ctx))

			first, err := l.MarkPeriod(ctx, "period:2025-01-08", time.Hour)
			require.NoError(t, err)
			assert.True(t, first)
			second, err := l.MarkPeriod(ctx, "period:2025-01-08", time.Hour)
			require.NoError(t, err)
			assert.False(t, second)
		})
	}
}

func TestRedisLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedis(t)

	stale, err := r.Acquire(ctx, "followups", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := r.Acquire(ctx, "followups", time.Minute)
	require.NoError(t, err)

	// the expired holder must not release its successor's lease
	require.NoError(t, stale.Release(ctx))
	_, err = r.Acquire(ctx, "followups", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	require.NoError(t, fresh.Release(ctx))
	assert.False(t, mr.Exists("test:followups"))
}

func TestMemoryLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 8, 3, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	stale, err := m.Acquire(ctx, "followups", time.Second)
	require.NoError(t, err)
	now = now.Add(2 * time.Second)

	fresh, err := m.Acquire(ctx, "followups", time.Minute)
	require.NoError(t, err)
	require.NoError(t, stale.Release(ctx))

	_, err = m.Acquire(ctx, "followups", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)
	require.NoError(t, fresh.Release(ctx))
}
