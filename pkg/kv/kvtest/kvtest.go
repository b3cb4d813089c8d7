// Package kvtest provides a conformance suite every kv.Store backend must pass.
package kvtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arcana/pkg/kv"
)

// Factory returns a fresh, empty store for a single subtest.
type Factory func(t *testing.T) kv.Store

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("missing scalar keys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetString(ctx, "missing")
		assert.ErrorIs(t, err, kv.ErrNotFound)

		_, err = s.GetInt(ctx, "missing")
		assert.ErrorIs(t, err, kv.ErrNotFound)

		list, err := s.GetStrings(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("string round trip and overwrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SetString(ctx, "greeting", "hello"))
		v, err := s.GetString(ctx, "greeting")
		require.NoError(t, err)
		assert.Equal(t, "hello", v)

		require.NoError(t, s.SetString(ctx, "greeting", "bye"))
		v, err = s.GetString(ctx, "greeting")
		require.NoError(t, err)
		assert.Equal(t, "bye", v)
	})

	t.Run("int round trip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SetInt(ctx, "count", 42))
		n, err := s.GetInt(ctx, "count")
		require.NoError(t, err)
		assert.Equal(t, int64(42), n)
	})

	t.Run("string list round trip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SetStrings(ctx, "list", []string{"a", "b", "c"}))
		list, err := s.GetStrings(ctx, "list")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, list)

		require.NoError(t, s.SetStrings(ctx, "list", []string{"z"}))
		list, err = s.GetStrings(ctx, "list")
		require.NoError(t, err)
		assert.Equal(t, []string{"z"}, list)

		require.NoError(t, s.SetStrings(ctx, "list", nil))
		list, err = s.GetStrings(ctx, "list")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SetString(ctx, "a", "1"))
		require.NoError(t, s.SetInt(ctx, "b", 2))
		require.NoError(t, s.Delete(ctx, "a", "b", "never-existed"))

		_, err := s.GetString(ctx, "a")
		assert.ErrorIs(t, err, kv.ErrNotFound)
		_, err = s.GetInt(ctx, "b")
		assert.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("incr is atomic", func(t *testing.T) {
		s := newStore(t)
		inc, ok := s.(kv.Incrementer)
		if !ok {
			t.Skip("store does not implement kv.Incrementer")
		}
		ctx := context.Background()

		const workers, perWorker = 8, 25
		var wg sync.WaitGroup
		for w := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range perWorker {
					_, err := inc.Incr(ctx, "hits", 1)
					assert.NoError(t, err, fmt.Sprintf("worker %d", w))
				}
			}()
		}
		wg.Wait()

		n, err := s.GetInt(ctx, "hits")
		require.NoError(t, err)
		assert.Equal(t, int64(workers*perWorker), n)

		n, err = inc.Incr(ctx, "hits", -1)
		require.NoError(t, err)
		assert.Equal(t, int64(workers*perWorker-1), n)
	})
}
