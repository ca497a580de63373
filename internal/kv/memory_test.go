package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.Put(ctx, "idempotency:abc", "idempotency", time.Now(), []byte("done"), time.Hour)
	require.NoError(t, err)

	value, ok, err := s.Get(ctx, "idempotency:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("done"), value)

	_, ok, err = s.Get(ctx, "idempotency:missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, "idempotency:abc"))
	_, ok, err = s.Get(ctx, "idempotency:abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_Get_ExpiredTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, "idempotency:abc", "idempotency", time.Now(), []byte("done"), -time.Second))

	_, ok, err := s.Get(ctx, "idempotency:abc")
	require.NoError(t, err)
	assert.False(t, ok, "expired item must not be returned")
}

func TestMemoryStore_ListDue(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.Put(ctx, "pipedrive_sync:1", "pipedrive_sync", now.Add(-2*time.Minute), []byte("1"), time.Hour))
	require.NoError(t, s.Put(ctx, "pipedrive_sync:2", "pipedrive_sync", now.Add(-1*time.Minute), []byte("2"), time.Hour))
	require.NoError(t, s.Put(ctx, "pipedrive_sync:3", "pipedrive_sync", now.Add(5*time.Minute), []byte("3"), time.Hour))
	require.NoError(t, s.Put(ctx, "idempotency:other", "idempotency", now.Add(-time.Minute), []byte("x"), time.Hour))

	items, err := s.ListDue(ctx, "pipedrive_sync", now, 50, 10)
	require.NoError(t, err)
	require.Len(t, items, 2, "only due items from the matching group prefix")
	assert.Equal(t, "pipedrive_sync:1", items[0].Key, "oldest due item first")
	assert.Equal(t, "pipedrive_sync:2", items[1].Key)
}

func TestMemoryStore_ListDue_CapsAtPageLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	for i := 0; i < 25; i++ {
		key := "pipedrive_sync:" + time.Duration(i).String()
		require.NoError(t, s.Put(ctx, key, "pipedrive_sync", now.Add(-time.Minute), []byte("x"), time.Hour))
	}

	items, err := s.ListDue(ctx, "pipedrive_sync", now, 5, 2)
	require.NoError(t, err)
	assert.Len(t, items, 10, "bounded by pageSize*maxPages")
}
