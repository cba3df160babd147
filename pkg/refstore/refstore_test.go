package refstore_test

import (
	"context"
	"testing"

	"github.com/cuemby/odf/pkg/multihash"
	"github.com/cuemby/odf/pkg/objectrepo"
	"github.com/cuemby/odf/pkg/refstore"
	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := refstore.New(objectrepo.NewMemoryNamedStore())

	_, err := store.Get(ctx, refstore.Head)
	var notFound *refstore.ErrRefNotFound
	require.ErrorAs(t, err, &notFound)

	h := multihash.SumDefault([]byte("block-1"))
	require.NoError(t, store.Set(ctx, refstore.Head, h))

	got, err := store.Get(ctx, refstore.Head)
	require.NoError(t, err)
	require.True(t, h.Equal(got))

	require.NoError(t, store.Delete(ctx, refstore.Head))
	_, err = store.Get(ctx, refstore.Head)
	require.ErrorAs(t, err, &notFound)
}
