package syncsvc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/odf/internal/odferr"
	"github.com/cuemby/odf/pkg/chain"
	"github.com/cuemby/odf/pkg/dataset"
	"github.com/cuemby/odf/pkg/multihash"
	"github.com/cuemby/odf/pkg/objectrepo"
	"github.com/cuemby/odf/pkg/odf"
	"github.com/cuemby/odf/pkg/refstore"
	"github.com/cuemby/odf/pkg/syncsvc"
)

// appendAddData inserts payload into ds's data store and appends an
// AddData block recording it, returning the new head. offsetBase is the
// starting offset of this batch.
func appendAddData(t *testing.T, ds *dataset.Dataset, payload []byte, offsetBase int64) multihash.Multihash {
	t.Helper()
	ctx := context.Background()

	insert, err := ds.Data.InsertBytes(ctx, payload, objectrepo.InsertOpts{})
	require.NoError(t, err)

	head, err := ds.Chain.GetRef(ctx, refstore.Head)
	require.NoError(t, err)
	prior, err := ds.Chain.GetBlock(ctx, head)
	require.NoError(t, err)

	newHead, err := ds.Chain.Append(ctx, odf.MetadataBlock{
		SystemTime:     prior.SystemTime.Add(time.Second),
		PrevBlockHash:  head,
		SequenceNumber: prior.SequenceNumber + 1,
		Event: odf.AddData{
			OutputData: &odf.DataSlice{
				LogicalHash:  insert.Hash,
				PhysicalHash: insert.Hash,
				Interval:     odf.OffsetInterval{Start: offsetBase, End: offsetBase + int64(len(payload)) - 1},
				Size:         int64(len(payload)),
			},
		},
	}, chain.AppendOpts{})
	require.NoError(t, err)
	return newHead
}

func TestSyncCreatesAndAdvancesDestination(t *testing.T) {
	ctx := context.Background()
	repo, err := dataset.NewRepository(t.TempDir())
	require.NoError(t, err)

	_, err = repo.Create(ctx, dataset.DatasetSnapshot{Kind: odf.DatasetKindRoot, Name: "source"})
	require.NoError(t, err)
	src, err := repo.Open(ctx, "source")
	require.NoError(t, err)
	appendAddData(t, src, []byte("hello"), 0)

	svc := &syncsvc.Service{Repo: repo}
	srcRef, err := odf.ParseDatasetRefAny("source")
	require.NoError(t, err)

	result, err := svc.Sync(ctx, srcRef, "mirror", syncsvc.SyncOpts{CreateIfNotExists: true}, nil)
	require.NoError(t, err)
	require.Equal(t, syncsvc.SyncUpdated, result.Outcome)
	require.Equal(t, 2, result.BlocksAdded) // Seed + one AddData

	mirror, err := repo.Open(ctx, "mirror")
	require.NoError(t, err)
	mirrorHead, err := mirror.Chain.GetRef(ctx, refstore.Head)
	require.NoError(t, err)
	srcHead, err := src.Chain.GetRef(ctx, refstore.Head)
	require.NoError(t, err)
	require.True(t, mirrorHead.Equal(srcHead))

	// Syncing again with no new source data is a no-op.
	result, err = svc.Sync(ctx, srcRef, "mirror", syncsvc.SyncOpts{}, nil)
	require.NoError(t, err)
	require.Equal(t, syncsvc.SyncUpToDate, result.Outcome)

	// New data on the source advances the mirror incrementally.
	appendAddData(t, src, []byte("world!"), 5)
	result, err = svc.Sync(ctx, srcRef, "mirror", syncsvc.SyncOpts{}, nil)
	require.NoError(t, err)
	require.Equal(t, syncsvc.SyncUpdated, result.Outcome)
	require.Equal(t, 1, result.BlocksAdded)
}

func TestSyncDivergenceRequiresForce(t *testing.T) {
	ctx := context.Background()
	repo, err := dataset.NewRepository(t.TempDir())
	require.NoError(t, err)

	_, err = repo.Create(ctx, dataset.DatasetSnapshot{Kind: odf.DatasetKindRoot, Name: "source"})
	require.NoError(t, err)
	src, err := repo.Open(ctx, "source")
	require.NoError(t, err)
	appendAddData(t, src, []byte("hello"), 0)

	svc := &syncsvc.Service{Repo: repo}
	srcRef, err := odf.ParseDatasetRefAny("source")
	require.NoError(t, err)

	_, err = svc.Sync(ctx, srcRef, "mirror", syncsvc.SyncOpts{CreateIfNotExists: true}, nil)
	require.NoError(t, err)

	// The mirror drifts ahead on its own, independent of the source.
	mirror, err := repo.Open(ctx, "mirror")
	require.NoError(t, err)
	appendAddData(t, mirror, []byte("local-only"), 5)

	_, err = svc.Sync(ctx, srcRef, "mirror", syncsvc.SyncOpts{}, nil)
	require.Error(t, err)
	var destAhead *odferr.DestinationAhead
	require.ErrorAs(t, err, &destAhead)
	require.Equal(t, 1, destAhead.AheadBlocks)

	// The source also moves on, so now neither side is an ancestor of
	// the other: genuine divergence, not just "destination ahead".
	appendAddData(t, src, []byte("upstream-only"), 5)
	_, err = svc.Sync(ctx, srcRef, "mirror", syncsvc.SyncOpts{}, nil)
	require.Error(t, err)
	var diverged *odferr.DatasetsDiverged
	require.ErrorAs(t, err, &diverged)

	// Force discards the mirror's own history and replays the source's.
	result, err := svc.Sync(ctx, srcRef, "mirror", syncsvc.SyncOpts{Force: true}, nil)
	require.NoError(t, err)
	require.Equal(t, syncsvc.SyncUpdated, result.Outcome)

	srcHead, err := src.Chain.GetRef(ctx, refstore.Head)
	require.NoError(t, err)
	mirrorHead, err := mirror.Chain.GetRef(ctx, refstore.Head)
	require.NoError(t, err)
	require.True(t, mirrorHead.Equal(srcHead))
}

func TestIPFSAddIsDeterministic(t *testing.T) {
	ctx := context.Background()
	repo, err := dataset.NewRepository(t.TempDir())
	require.NoError(t, err)

	_, err = repo.Create(ctx, dataset.DatasetSnapshot{Kind: odf.DatasetKindRoot, Name: "source"})
	require.NoError(t, err)
	src, err := repo.Open(ctx, "source")
	require.NoError(t, err)
	appendAddData(t, src, []byte("hello"), 0)

	cid1, err := syncsvc.IPFSAdd(ctx, src)
	require.NoError(t, err)
	cid2, err := syncsvc.IPFSAdd(ctx, src)
	require.NoError(t, err)
	require.Equal(t, cid1, cid2)
	require.NotEmpty(t, cid1)
}
