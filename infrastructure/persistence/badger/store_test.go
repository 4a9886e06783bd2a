package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluent-backend/infrastructure/persistence/storetest"
)

func TestStore(t *testing.T) {
	store, err := Open(Options{Dir: t.TempDir(), Namespace: "fluent-graph"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	storetest.Run(t, store)
}

func TestInMemory(t *testing.T) {
	store, err := Open(Options{InMemory: true, Namespace: "ns"})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", []byte("v")))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}
