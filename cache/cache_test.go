package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, "timesheet:config:", time.Minute), mr
}

func TestMemory_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", "v"))
	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	now = now.Add(2 * time.Minute)
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok, "entry should expire")
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	require.NoError(t, m.Set(ctx, "a", "1"))
	require.NoError(t, m.Set(ctx, "b", "2"))
	require.NoError(t, m.Delete(ctx, "a", "b"))

	_, ok, _ := m.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "b")
	assert.False(t, ok)
}

func TestRedis_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	_, ok, err := r.Get(ctx, "TIME_ENTRY_FUTURE_DAYS")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, "TIME_ENTRY_FUTURE_DAYS", "7"))
	assert.True(t, mr.Exists("timesheet:config:TIME_ENTRY_FUTURE_DAYS"), "key should be prefixed")

	v, ok, err := r.Get(ctx, "TIME_ENTRY_FUTURE_DAYS")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "7", v)

	mr.FastForward(2 * time.Minute)
	_, ok, err = r.Get(ctx, "TIME_ENTRY_FUTURE_DAYS")
	require.NoError(t, err)
	assert.False(t, ok, "redis TTL should expire the key")

	require.NoError(t, r.Set(ctx, "k", "v"))
	require.NoError(t, r.Delete(ctx, "k"))
	_, ok, _ = r.Get(ctx, "k")
	assert.False(t, ok)
}

func TestLayered_BackfillsL1AndSurvivesL2Outage(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemory(time.Minute)
	l2, mr := newTestRedis(t)
	c := NewLayered(l1, l2, nil)

	// Value present only in L2 is back-filled into L1.
	require.NoError(t, l2.Set(ctx, "k", "v"))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	v, ok, _ = l1.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	// With Redis gone, L1 still answers and misses degrade gracefully.
	mr.Close()
	v, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
