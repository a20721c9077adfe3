package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	exists, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemory_GetMissing(t *testing.T) {
	store := NewMemory()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := store.Exists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.Set(ctx, "k", "v", 10*time.Minute))

	// One second before the deadline the key is still there.
	now = now.Add(10*time.Minute - time.Second)
	store.SetClock(func() time.Time { return now })
	_, err := store.Get(ctx, "k")
	require.NoError(t, err)

	// At the deadline it is gone.
	now = now.Add(time.Second)
	store.SetClock(func() time.Time { return now })
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.Set(ctx, "k", "first", time.Minute))
	require.NoError(t, store.Set(ctx, "k", "second", time.Minute))

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "second", value)
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, store.Delete(ctx, "k"))

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is fine.
	require.NoError(t, store.Delete(ctx, "k"))
}

func TestMemory_RejectsNonPositiveTTL(t *testing.T) {
	store := NewMemory()
	assert.Error(t, store.Set(context.Background(), "k", "v", 0))
	assert.Error(t, store.Set(context.Background(), "k", "v", -time.Second))
}
