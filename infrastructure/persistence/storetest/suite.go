// Package storetest holds the behavior every ports.BlobStore backend must share.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluent-backend/application/ports"
)

// Run exercises store against the BlobStore contract
func Run(t *testing.T, store ports.BlobStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "absent")
		assert.True(t, errors.Is(err, ports.ErrNotFound), "got %v", err)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "currentGraph", []byte(`{"nodes":[]}`)))
		got, err := store.Get(ctx, "currentGraph")
		require.NoError(t, err)
		assert.Equal(t, `{"nodes":[]}`, string(got))
	})

	t.Run("put overwrites", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "overwrite", []byte("one")))
		require.NoError(t, store.Put(ctx, "overwrite", []byte("two")))
		got, err := store.Get(ctx, "overwrite")
		require.NoError(t, err)
		assert.Equal(t, "two", string(got))
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "copy", []byte("abc")))
		got, err := store.Get(ctx, "copy")
		require.NoError(t, err)
		got[0] = 'z'
		again, err := store.Get(ctx, "copy")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(again))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "gone", []byte("x")))
		require.NoError(t, store.Delete(ctx, "gone"))
		_, err := store.Get(ctx, "gone")
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("delete missing key", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "never-written"))
	})
}
