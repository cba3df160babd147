package objectrepo_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/odf/pkg/multihash"
	"github.com/cuemby/odf/pkg/objectrepo"
	"github.com/stretchr/testify/require"
)

// storeFactories enumerates the backends that must satisfy the common
// contract of spec.md §8: insert/get round-trip, idempotent insert, and
// hash-mismatch rejection.
func storeFactories(t *testing.T) map[string]objectrepo.Store {
	t.Helper()
	dir := t.TempDir()
	fs, err := objectrepo.NewLocalFS(dir)
	require.NoError(t, err)

	return map[string]objectrepo.Store{
		"memory":  objectrepo.NewMemoryStore(),
		"localfs": fs,
	}
}

func TestStoreInsertGetRoundTrip(t *testing.T) {
	for name, store := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			data := []byte("hello world")

			res, err := store.InsertBytes(ctx, data, objectrepo.InsertOpts{})
			require.NoError(t, err)
			require.False(t, res.AlreadyExisted)

			got, err := store.GetBytes(ctx, res.Hash)
			require.NoError(t, err)
			require.Equal(t, data, got)

			ok, err := store.Contains(ctx, res.Hash)
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}

func TestStoreInsertIsIdempotent(t *testing.T) {
	for name, store := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			data := []byte("repeat me")

			res1, err := store.InsertBytes(ctx, data, objectrepo.InsertOpts{})
			require.NoError(t, err)
			require.False(t, res1.AlreadyExisted)

			res2, err := store.InsertBytes(ctx, data, objectrepo.InsertOpts{})
			require.NoError(t, err)
			require.True(t, res2.AlreadyExisted)
			require.True(t, res1.Hash.Equal(res2.Hash))
		})
	}
}

func TestStoreInsertHashMismatchIsRejected(t *testing.T) {
	for name, store := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			wrong := multihash.SumDefault([]byte("world"))

			_, err := store.InsertBytes(ctx, []byte("hello"), objectrepo.InsertOpts{ExpectedHash: &wrong})
			require.Error(t, err)

			var mismatch *objectrepo.ErrHashMismatch
			require.ErrorAs(t, err, &mismatch)
			require.True(t, mismatch.Expected.Equal(wrong))

			ok, err := store.Contains(ctx, wrong)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestStoreGetMissingIsNotFound(t *testing.T) {
	for name, store := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetBytes(context.Background(), multihash.SumDefault([]byte("never inserted")))
			var notFound *objectrepo.ErrNotFound
			require.ErrorAs(t, err, &notFound)
		})
	}
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	for name, store := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			hash := multihash.SumDefault([]byte("never inserted"))
			require.NoError(t, store.Delete(ctx, hash))
			require.NoError(t, store.Delete(ctx, hash))
		})
	}
}

func TestLocalFSInsertFileMove(t *testing.T) {
	dir := t.TempDir()
	store, err := objectrepo.NewLocalFS(dir)
	require.NoError(t, err)

	srcPath := dir + "/source-file"
	require.NoError(t, os.WriteFile(srcPath, []byte("moved bytes"), 0o644))

	res, err := store.InsertFileMove(context.Background(), srcPath, objectrepo.InsertOpts{})
	require.NoError(t, err)
	require.False(t, res.AlreadyExisted)

	_, statErr := os.Stat(srcPath)
	require.True(t, os.IsNotExist(statErr), "source file should have been moved away")

	got, err := store.GetBytes(context.Background(), res.Hash)
	require.NoError(t, err)
	require.Equal(t, "moved bytes", string(got))
}

func TestNamedStoreLastWriterWins(t *testing.T) {
	ctx := context.Background()
	for name, store := range map[string]objectrepo.NamedStore{
		"memory":  objectrepo.NewMemoryNamedStore(),
		"localfs": mustNamedFS(t),
		"bolt":    mustBoltNamedFS(t),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Set(ctx, "head", []byte("v1")))
			require.NoError(t, store.Set(ctx, "head", []byte("v2")))

			got, err := store.Get(ctx, "head")
			require.NoError(t, err)
			require.Equal(t, "v2", string(got))
		})
	}
}

func mustNamedFS(t *testing.T) objectrepo.NamedStore {
	t.Helper()
	store, err := objectrepo.NewLocalNamedFS(t.TempDir())
	require.NoError(t, err)
	return store
}

func mustBoltNamedFS(t *testing.T) objectrepo.NamedStore {
	t.Helper()
	store, err := objectrepo.NewBoltNamedFS(filepath.Join(t.TempDir(), "refs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltNamedStoreMissingIsNotFound(t *testing.T) {
	store := mustBoltNamedFS(t)
	_, err := store.Get(context.Background(), "nope")
	var notFound *objectrepo.ErrNameNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestBoltNamedStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := mustBoltNamedFS(t)

	require.NoError(t, store.Set(ctx, "head", []byte("v1")))
	require.NoError(t, store.Set(ctx, "cache-entry", []byte("v2")))

	names, err := store.List(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"head", "cache-entry"}, names)

	require.NoError(t, store.Delete(ctx, "head"))
	names, err = store.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"cache-entry"}, names)
}
