package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetSet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "k", "v1", 0))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	require.NoError(t, store.Set(ctx, "k", "v2", 0))
	got, _ = store.Get(ctx, "k")
	assert.Equal(t, "v2", got)
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now()
	now := base
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))

	now = base.Add(59 * time.Second)
	_, err := store.Get(ctx, "k")
	assert.NoError(t, err)

	now = base.Add(61 * time.Second)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreSetNX(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now()
	now := base
	store.SetClock(func() time.Time { return now })

	set, err := store.SetNX(ctx, "lock", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, set, "first writer wins")

	set, err = store.SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, set, "second writer loses while the key lives")

	got, _ := store.Get(ctx, "lock")
	assert.Equal(t, "a", got)

	// After expiry the key is claimable again.
	now = base.Add(2 * time.Minute)
	set, err = store.SetNX(ctx, "lock", "c", time.Minute)
	require.NoError(t, err)
	assert.True(t, set)
}

func TestMemoryStoreExistsAndDel(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ok, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", "v", 0))
	ok, _ = store.Exists(ctx, "k")
	assert.True(t, ok)

	require.NoError(t, store.Del(ctx, "k"))
	ok, _ = store.Exists(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryStoreZCountWindow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.ZAdd(ctx, "z", "a", 100))
	require.NoError(t, store.ZAdd(ctx, "z", "b", 200))
	require.NoError(t, store.ZAdd(ctx, "z", "c", 300))

	n, err := store.ZCount(ctx, "z", 150, 350)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Bounds are inclusive.
	n, _ = store.ZCount(ctx, "z", 100, 300)
	assert.Equal(t, int64(3), n)

	// Re-adding a member updates its score instead of duplicating it.
	require.NoError(t, store.ZAdd(ctx, "z", "a", 400))
	n, _ = store.ZCount(ctx, "z", 0, 1000)
	assert.Equal(t, int64(3), n)

	n, err = store.ZCount(ctx, "empty", 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestMemoryStoreZSetExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now()
	now := base
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.ZAdd(ctx, "z", "a", 100))
	require.NoError(t, store.Expire(ctx, "z", 15*time.Minute))

	now = base.Add(14 * time.Minute)
	n, _ := store.ZCount(ctx, "z", 0, 1000)
	assert.Equal(t, int64(1), n)

	now = base.Add(16 * time.Minute)
	n, _ = store.ZCount(ctx, "z", 0, 1000)
	assert.Equal(t, int64(0), n)
}
