package dataset_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/odf/pkg/dataset"
	"github.com/cuemby/odf/pkg/odf"
)

func TestCreateResolveRenameDelete(t *testing.T) {
	ctx := context.Background()
	repo, err := dataset.NewRepository(t.TempDir())
	require.NoError(t, err)

	id, err := repo.Create(ctx, dataset.DatasetSnapshot{
		Kind: odf.DatasetKindRoot,
		Name: "my.root.dataset",
		Events: []dataset.EventManifest{
			{Kind: "SetInfo", Spec: map[string]interface{}{"description": "a test dataset"}},
		},
	})
	require.NoError(t, err)
	require.False(t, id.IsZero())

	names, err := repo.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []odf.DatasetName{"my.root.dataset"}, names)

	ref, err := odf.ParseDatasetRefAny("my.root.dataset")
	require.NoError(t, err)
	gotID, gotName, err := repo.Resolve(ctx, ref)
	require.NoError(t, err)
	require.True(t, gotID.Equal(id))
	require.Equal(t, odf.DatasetName("my.root.dataset"), gotName)

	ds, err := repo.Open(ctx, "my.root.dataset")
	require.NoError(t, err)
	summary, err := ds.GetSummary(ctx, dataset.SummaryOpts{})
	require.NoError(t, err)
	require.True(t, summary.ID.Equal(id))
	require.Equal(t, odf.DatasetKindRoot, summary.Kind)
	require.EqualValues(t, 2, summary.NumBlocks)

	require.NoError(t, repo.Rename(ctx, "my.root.dataset", "renamed.dataset"))
	_, _, err = repo.Resolve(ctx, ref)
	require.Error(t, err)

	renamedRef, err := odf.ParseDatasetRefAny("renamed.dataset")
	require.NoError(t, err)
	gotID, _, err = repo.Resolve(ctx, renamedRef)
	require.NoError(t, err)
	require.True(t, gotID.Equal(id))

	require.NoError(t, repo.Delete(ctx, "renamed.dataset"))
	names, err = repo.List(ctx)
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestOpenOrCreateBareThenRegisterExisting(t *testing.T) {
	ctx := context.Background()
	repo, err := dataset.NewRepository(t.TempDir())
	require.NoError(t, err)

	ds, created, err := repo.OpenOrCreateBare(ctx, "mirror")
	require.NoError(t, err)
	require.True(t, created)
	require.NotNil(t, ds)

	// A second bare open of the same still-unregistered name creates a
	// fresh directory handle again rather than reusing a catalog entry,
	// since none exists yet.
	_, created, err = repo.OpenOrCreateBare(ctx, "mirror")
	require.NoError(t, err)
	require.True(t, created)

	donorID, err := repo.Create(ctx, dataset.DatasetSnapshot{Kind: odf.DatasetKindRoot, Name: "donor"})
	require.NoError(t, err)

	require.NoError(t, repo.RegisterExisting(ctx, "mirror", donorID))

	names, err := repo.List(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []odf.DatasetName{"donor", "mirror"}, names)

	gotID, gotName, err := repo.Resolve(ctx, odf.DatasetRef{Kind: odf.DatasetRefKindLocalName, Name: "mirror"})
	require.NoError(t, err)
	require.True(t, gotID.Equal(donorID))
	require.Equal(t, odf.DatasetName("mirror"), gotName)

	// Re-registering the same name/id pair is a no-op.
	require.NoError(t, repo.RegisterExisting(ctx, "mirror", donorID))

	// Re-opening a now-registered name returns created=false.
	_, created, err = repo.OpenOrCreateBare(ctx, "mirror")
	require.NoError(t, err)
	require.False(t, created)

	otherID, err := repo.Create(ctx, dataset.DatasetSnapshot{Kind: odf.DatasetKindRoot, Name: "other"})
	require.NoError(t, err)
	err = repo.RegisterExisting(ctx, "mirror", otherID)
	require.Error(t, err)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	repo, err := dataset.NewRepository(t.TempDir())
	require.NoError(t, err)

	snapshot := dataset.DatasetSnapshot{Kind: odf.DatasetKindRoot, Name: "dup"}
	_, err = repo.Create(ctx, snapshot)
	require.NoError(t, err)

	_, err = repo.Create(ctx, snapshot)
	require.Error(t, err)
}
