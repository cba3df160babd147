package transform_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/odf/pkg/chain"
	"github.com/cuemby/odf/pkg/dataset"
	"github.com/cuemby/odf/pkg/engine"
	"github.com/cuemby/odf/pkg/multihash"
	"github.com/cuemby/odf/pkg/objectrepo"
	"github.com/cuemby/odf/pkg/odf"
	"github.com/cuemby/odf/pkg/refstore"
	"github.com/cuemby/odf/pkg/transform"
)

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func hashOf(s string) multihash.Multihash {
	return multihash.SumDefault([]byte(s))
}

// fakeEngine simulates a query engine that, given an ExecuteQueryRequest,
// writes a fixed byte payload to OutDataPath and reports success. It is
// deterministic across calls so VerifyTransform's re-execution reproduces
// the same result.
type fakeEngine struct {
	t       *testing.T
	payload []byte
}

func (f *fakeEngine) ExecuteQuery(_ context.Context, req engine.ExecuteQueryRequest) (<-chan engine.Response, error) {
	f.t.Helper()
	require.NoError(f.t, writeFile(req.OutDataPath, f.payload))

	ch := make(chan engine.Response, 1)
	interval := &odf.OffsetInterval{Start: req.OffsetBase, End: req.OffsetBase + int64(len(f.payload)) - 1}
	ch <- engine.Response{Kind: engine.ResponseSuccess, DataInterval: interval}
	close(ch)
	return ch, nil
}

func (f *fakeEngine) Close() error { return nil }

func setupSourceAndDerived(t *testing.T) (*dataset.Repository, string) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	repo, err := dataset.NewRepository(dir)
	require.NoError(t, err)

	_, err = repo.Create(ctx, dataset.DatasetSnapshot{Kind: odf.DatasetKindRoot, Name: "source"})
	require.NoError(t, err)

	src, err := repo.Open(ctx, "source")
	require.NoError(t, err)

	insert, err := src.Data.InsertBytes(ctx, []byte("hello"), objectrepo.InsertOpts{})
	require.NoError(t, err)

	head, err := src.Chain.GetRef(ctx, refstore.Head)
	require.NoError(t, err)
	seedBlock, err := src.Chain.GetBlock(ctx, head)
	require.NoError(t, err)

	_, err = src.Chain.Append(ctx, odf.MetadataBlock{
		SystemTime:     seedBlock.SystemTime,
		PrevBlockHash:  head,
		SequenceNumber: seedBlock.SequenceNumber + 1,
		Event: odf.AddData{
			OutputData: &odf.DataSlice{
				LogicalHash:  insert.Hash,
				PhysicalHash: insert.Hash,
				Interval:     odf.OffsetInterval{Start: 0, End: 4},
				Size:         5,
			},
		},
	}, chain.AppendOpts{})
	require.NoError(t, err)

	_, err = repo.Create(ctx, dataset.DatasetSnapshot{
		Kind: odf.DatasetKindDerivative,
		Name: "derived",
		Events: []dataset.EventManifest{
			{Kind: "SetTransform", Spec: map[string]interface{}{
				"inputs": []interface{}{
					map[string]interface{}{"dataset": "source", "alias": "src"},
				},
				"querySteps": []interface{}{
					map[string]interface{}{"query": "select * from src"},
				},
			}},
		},
	})
	require.NoError(t, err)

	return repo, dir
}

func TestTransformPlanExecuteCommitVerify(t *testing.T) {
	ctx := context.Background()
	repo, dir := setupSourceAndDerived(t)

	svc := &transform.Service{
		Repo:          repo,
		Engine:        &fakeEngine{t: t, payload: []byte("out12")},
		HostRoot:      dir,
		ContainerRoot: dir,
	}

	ref, err := odf.ParseDatasetRefAny("derived")
	require.NoError(t, err)

	op, err := svc.GetNextOperation(ctx, ref)
	require.NoError(t, err)
	require.NotNil(t, op)
	require.Len(t, op.Inputs, 1)
	require.NotNil(t, op.Inputs[0].DataInterval)
	require.EqualValues(t, 0, op.Inputs[0].DataInterval.Start)
	require.EqualValues(t, 4, op.Inputs[0].DataInterval.End)

	resp, err := svc.Execute(ctx, op)
	require.NoError(t, err)
	require.Equal(t, engine.ResponseSuccess, resp.Kind)

	name, ds, err := repo.OpenByRef(ctx, ref)
	require.NoError(t, err)

	blockHash, err := svc.Commit(ctx, name, ds, op, resp)
	require.NoError(t, err)

	committed, err := ds.Chain.GetBlock(ctx, blockHash)
	require.NoError(t, err)
	executeQuery, ok := committed.Event.(odf.ExecuteQuery)
	require.True(t, ok)
	require.NotNil(t, executeQuery.OutputData)
	require.EqualValues(t, 0, executeQuery.OutputData.Interval.Start)
	require.EqualValues(t, 4, executeQuery.OutputData.Interval.End)

	require.NoError(t, svc.VerifyTransform(ctx, ref, blockHash))

	// A second planning pass finds nothing new: source hasn't grown.
	next, err := svc.GetNextOperation(ctx, ref)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestTransformConvenienceEntrypoint(t *testing.T) {
	ctx := context.Background()
	repo, dir := setupSourceAndDerived(t)

	svc := &transform.Service{
		Repo:          repo,
		Engine:        &fakeEngine{t: t, payload: []byte("out12")},
		HostRoot:      dir,
		ContainerRoot: dir,
	}

	ref, err := odf.ParseDatasetRefAny("derived")
	require.NoError(t, err)

	outcome, blockHash, err := svc.Transform(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, transform.TransformExecuted, outcome)
	require.False(t, blockHash.IsZero())

	outcome, _, err = svc.Transform(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, transform.TransformUpToDate, outcome)
}

func TestCompareBlocksIgnoresCheckpointHash(t *testing.T) {
	a := odf.ExecuteQuery{
		OutputData:       &odf.DataSlice{LogicalHash: hashOf("x"), Interval: odf.OffsetInterval{Start: 0, End: 0}},
		OutputCheckpoint: &odf.Checkpoint{PhysicalHash: hashOf("checkpoint-a")},
	}
	b := odf.ExecuteQuery{
		OutputData:       &odf.DataSlice{LogicalHash: hashOf("x"), Interval: odf.OffsetInterval{Start: 0, End: 0}},
		OutputCheckpoint: &odf.Checkpoint{PhysicalHash: hashOf("checkpoint-b")},
	}
	require.NoError(t, transform.CompareBlocks(a, b))
}

func TestCompareBlocksDetectsDataDivergence(t *testing.T) {
	a := odf.ExecuteQuery{OutputData: &odf.DataSlice{LogicalHash: hashOf("x"), Interval: odf.OffsetInterval{Start: 0, End: 0}}}
	b := odf.ExecuteQuery{OutputData: &odf.DataSlice{LogicalHash: hashOf("y"), Interval: odf.OffsetInterval{Start: 0, End: 0}}}
	require.Error(t, transform.CompareBlocks(a, b))
}
