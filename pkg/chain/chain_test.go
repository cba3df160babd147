package chain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/odf/pkg/chain"
	"github.com/cuemby/odf/pkg/identity"
	"github.com/cuemby/odf/pkg/multihash"
	"github.com/cuemby/odf/pkg/objectrepo"
	"github.com/cuemby/odf/pkg/odf"
	"github.com/cuemby/odf/pkg/refstore"
)

func newTestChain(t *testing.T) *chain.Chain {
	t.Helper()
	blocks := objectrepo.NewMemoryStore()
	refs := refstore.New(objectrepo.NewMemoryNamedStore())
	return chain.New(blocks, refs)
}

func newTestDatasetID(t *testing.T) identity.DatasetID {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	return kp.DatasetID()
}

func TestAppendSeedThenAddDataHappyPath(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	seedHash, err := c.Append(ctx, odf.MetadataBlock{
		SystemTime:     now,
		SequenceNumber: 0,
		Event:          odf.Seed{DatasetID: newTestDatasetID(t), Kind: odf.DatasetKindRoot},
	}, chain.AppendOpts{})
	require.NoError(t, err)

	head, err := c.GetRef(ctx, refstore.Head)
	require.NoError(t, err)
	require.True(t, head.Equal(seedHash))

	dataHash, err := c.Append(ctx, odf.MetadataBlock{
		SystemTime:     now.Add(time.Second),
		PrevBlockHash:  seedHash,
		SequenceNumber: 1,
		Event: odf.AddData{
			OutputData: &odf.DataSlice{
				LogicalHash:  multihash.SumDefault([]byte("l")),
				PhysicalHash: multihash.SumDefault([]byte("p")),
				Interval:     odf.OffsetInterval{Start: 0, End: 9},
				Size:         10,
			},
		},
	}, chain.AppendOpts{})
	require.NoError(t, err)

	head, err = c.GetRef(ctx, refstore.Head)
	require.NoError(t, err)
	require.True(t, head.Equal(dataHash))

	blocks, err := c.IterBlocks(ctx)
	require.NoError(t, err)
	collected, err := blocks.Collect()
	require.NoError(t, err)
	require.Len(t, collected, 2)
	require.True(t, collected[0].IsGenesis() == false)
	require.True(t, collected[1].IsGenesis())
}

func TestAppendRejectsSecondSeed(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	seedHash, err := c.Append(ctx, odf.MetadataBlock{
		SystemTime: now,
		Event:      odf.Seed{DatasetID: newTestDatasetID(t), Kind: odf.DatasetKindRoot},
	}, chain.AppendOpts{})
	require.NoError(t, err)

	_, err = c.Append(ctx, odf.MetadataBlock{
		SystemTime:     now.Add(time.Second),
		PrevBlockHash:  seedHash,
		SequenceNumber: 1,
		Event:          odf.Seed{DatasetID: newTestDatasetID(t), Kind: odf.DatasetKindRoot},
	}, chain.AppendOpts{})
	var invalid *chain.InvalidBlock
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, chain.ReasonEventVariantIllegal, invalid.Reason)
}

func TestAppendRejectsWrongPrevBlockHash(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	_, err := c.Append(ctx, odf.MetadataBlock{
		SystemTime: now,
		Event:      odf.Seed{DatasetID: newTestDatasetID(t), Kind: odf.DatasetKindRoot},
	}, chain.AppendOpts{})
	require.NoError(t, err)

	_, err = c.Append(ctx, odf.MetadataBlock{
		SystemTime:     now.Add(time.Second),
		PrevBlockHash:  multihash.SumDefault([]byte("not-head")),
		SequenceNumber: 1,
		Event: odf.AddData{
			OutputData: &odf.DataSlice{Interval: odf.OffsetInterval{Start: 0, End: 0}},
		},
	}, chain.AppendOpts{})
	var invalid *chain.InvalidBlock
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, chain.ReasonPrevBlockNotFound, invalid.Reason)
}

func TestAppendRejectsNonContiguousOffsets(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	seedHash, err := c.Append(ctx, odf.MetadataBlock{
		SystemTime: now,
		Event:      odf.Seed{DatasetID: newTestDatasetID(t), Kind: odf.DatasetKindRoot},
	}, chain.AppendOpts{})
	require.NoError(t, err)

	_, err = c.Append(ctx, odf.MetadataBlock{
		SystemTime:     now.Add(time.Second),
		PrevBlockHash:  seedHash,
		SequenceNumber: 1,
		Event: odf.AddData{
			OutputData: &odf.DataSlice{Interval: odf.OffsetInterval{Start: 5, End: 9}},
		},
	}, chain.AppendOpts{})
	var invalid *chain.InvalidBlock
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, chain.ReasonOffsetsNotContiguous, invalid.Reason)
}

func TestAppendRejectsExecuteQueryOnRootDataset(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	seedHash, err := c.Append(ctx, odf.MetadataBlock{
		SystemTime: now,
		Event:      odf.Seed{DatasetID: newTestDatasetID(t), Kind: odf.DatasetKindRoot},
	}, chain.AppendOpts{})
	require.NoError(t, err)

	_, err = c.Append(ctx, odf.MetadataBlock{
		SystemTime:     now.Add(time.Second),
		PrevBlockHash:  seedHash,
		SequenceNumber: 1,
		Event:          odf.ExecuteQuery{},
	}, chain.AppendOpts{})
	var invalid *chain.InvalidBlock
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, chain.ReasonEventVariantIllegal, invalid.Reason)
}

func TestAppendRejectsSequenceMismatch(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	seedHash, err := c.Append(ctx, odf.MetadataBlock{
		SystemTime: now,
		Event:      odf.Seed{DatasetID: newTestDatasetID(t), Kind: odf.DatasetKindRoot},
	}, chain.AppendOpts{})
	require.NoError(t, err)

	_, err = c.Append(ctx, odf.MetadataBlock{
		SystemTime:     now.Add(time.Second),
		PrevBlockHash:  seedHash,
		SequenceNumber: 5,
		Event: odf.AddData{
			OutputData: &odf.DataSlice{Interval: odf.OffsetInterval{Start: 0, End: 0}},
		},
	}, chain.AppendOpts{})
	var invalid *chain.InvalidBlock
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, chain.ReasonSequenceMismatch, invalid.Reason)
}

func TestAppendRejectsSecondSetTransform(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	seedHash, err := c.Append(ctx, odf.MetadataBlock{
		SystemTime: now,
		Event:      odf.Seed{DatasetID: newTestDatasetID(t), Kind: odf.DatasetKindDerivative},
	}, chain.AppendOpts{})
	require.NoError(t, err)

	transformHash, err := c.Append(ctx, odf.MetadataBlock{
		SystemTime:     now.Add(time.Second),
		PrevBlockHash:  seedHash,
		SequenceNumber: 1,
		Event:          odf.SetTransform{},
	}, chain.AppendOpts{})
	require.NoError(t, err)

	_, err = c.Append(ctx, odf.MetadataBlock{
		SystemTime:     now.Add(2 * time.Second),
		PrevBlockHash:  transformHash,
		SequenceNumber: 2,
		Event:          odf.SetTransform{},
	}, chain.AppendOpts{})
	var invalid *chain.InvalidBlock
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, chain.ReasonEventVariantIllegal, invalid.Reason)
}

func TestSetRefCASFailsAgainstWrongExpectedValue(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)

	wrong := multihash.SumDefault([]byte("wrong"))
	err := c.SetRef(ctx, refstore.Head, multihash.SumDefault([]byte("new")), chain.SetRefOpts{CheckRefIs: &wrong})
	var cas *chain.RefCASFailed
	require.ErrorAs(t, err, &cas)
}
