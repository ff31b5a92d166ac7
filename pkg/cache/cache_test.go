package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	t.Run("miss", func(t *testing.T) {
		_, err := s.Get(ctx, "nope")
		require.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("set get delete", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)

		require.NoError(t, s.Delete(ctx, "k"))
		_, err = s.Get(ctx, "k")
		require.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("expiry", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "ttl", []byte("v"), time.Minute))
		_, err := s.Get(ctx, "ttl")
		require.NoError(t, err)

		now = now.Add(time.Minute)
		_, err = s.Get(ctx, "ttl")
		require.ErrorIs(t, err, ErrKeyNotFound)
	})
}

func TestRedisStore_Key(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "bots:1", NewRedisStore(nil, "bots").key("1"))
	assert.Equal(t, "1", NewRedisStore(nil, "").key("1"))
}
