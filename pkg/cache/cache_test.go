package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T, ttl time.Duration) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemory(ttl),
	}
}

func TestStore_SetAndGet(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t, 0) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "translate:nl:en", "Halfvolle melk")
			assert.ErrorIs(t, err, ErrMiss)

			require.NoError(t, s.Set(ctx, "translate:nl:en", "Halfvolle melk", "Semi-skimmed milk"))
			got, err := s.Get(ctx, "translate:nl:en", "Halfvolle melk")
			require.NoError(t, err)
			assert.Equal(t, "Semi-skimmed milk", got)

			require.NoError(t, s.Set(ctx, "translate:nl:en", "Halfvolle melk", "Half-fat milk"))
			got, err = s.Get(ctx, "translate:nl:en", "Halfvolle melk")
			require.NoError(t, err)
			assert.Equal(t, "Half-fat milk", got)

			_, err = s.Get(ctx, "translate:nl:de", "Halfvolle melk")
			assert.ErrorIs(t, err, ErrMiss)
		})
	}
}

func TestStore_Expiry(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t, 10*time.Millisecond) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "ns", "k", "v"))
			time.Sleep(50 * time.Millisecond)

			_, err := s.Get(ctx, "ns", "k")
			assert.ErrorIs(t, err, ErrMiss)
		})
	}
}

func TestSQLite_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := NewSQLite(path, 0)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "ns", "k", "v"))
	require.NoError(t, c.Close())

	c, err = NewSQLite(path, 0)
	require.NoError(t, err)
	defer c.Close()

	got, err := c.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestMemory_Close(t *testing.T) {
	m := NewMemory(0)
	require.NoError(t, m.Set(context.Background(), "ns", "k", "v"))
	assert.Equal(t, 1, m.Len())
	require.NoError(t, m.Close())
	assert.Equal(t, 0, m.Len())
}
