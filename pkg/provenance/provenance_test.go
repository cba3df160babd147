package provenance_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/odf/pkg/dataset"
	"github.com/cuemby/odf/pkg/odf"
	"github.com/cuemby/odf/pkg/provenance"
)

func TestTraceRootDatasetHasNoInputs(t *testing.T) {
	ctx := context.Background()
	repo, err := dataset.NewRepository(t.TempDir())
	require.NoError(t, err)

	_, err = repo.Create(ctx, dataset.DatasetSnapshot{Kind: odf.DatasetKindRoot, Name: "raw.prices"})
	require.NoError(t, err)

	ref, err := odf.ParseDatasetRefAny("raw.prices")
	require.NoError(t, err)

	lineage, err := provenance.Trace(ctx, repo, ref)
	require.NoError(t, err)
	require.Equal(t, odf.DatasetName("raw.prices"), lineage.DatasetName)
	require.Equal(t, odf.DatasetKindRoot, lineage.Kind)
	require.Empty(t, lineage.Inputs)
}

func TestTraceDerivativeWalksInputsTransitively(t *testing.T) {
	ctx := context.Background()
	repo, err := dataset.NewRepository(t.TempDir())
	require.NoError(t, err)

	_, err = repo.Create(ctx, dataset.DatasetSnapshot{Kind: odf.DatasetKindRoot, Name: "raw.prices"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, dataset.DatasetSnapshot{Kind: odf.DatasetKindRoot, Name: "raw.volumes"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, dataset.DatasetSnapshot{
		Kind: odf.DatasetKindDerivative,
		Name: "daily.summary",
		Events: []dataset.EventManifest{
			{Kind: "SetTransform", Spec: map[string]interface{}{
				"inputs": []interface{}{
					map[string]interface{}{"dataset": "raw.prices", "alias": "p"},
					map[string]interface{}{"dataset": "raw.volumes", "alias": "v"},
				},
				"querySteps": []interface{}{
					map[string]interface{}{"query": "select * from p join v on p.day = v.day"},
				},
			}},
		},
	})
	require.NoError(t, err)

	ref, err := odf.ParseDatasetRefAny("daily.summary")
	require.NoError(t, err)

	lineage, err := provenance.Trace(ctx, repo, ref)
	require.NoError(t, err)
	require.Equal(t, odf.DatasetKindDerivative, lineage.Kind)
	require.Len(t, lineage.Inputs, 2)

	var names []string
	for _, in := range lineage.Inputs {
		require.Equal(t, odf.DatasetKindRoot, in.Kind)
		names = append(names, string(in.DatasetName))
	}
	require.ElementsMatch(t, []string{"raw.prices", "raw.volumes"}, names)

	roots := provenance.Roots(lineage)
	require.Len(t, roots, 2)
}

func TestTraceDerivativeWithoutTransformIsLeaf(t *testing.T) {
	ctx := context.Background()
	repo, err := dataset.NewRepository(t.TempDir())
	require.NoError(t, err)

	_, err = repo.Create(ctx, dataset.DatasetSnapshot{Kind: odf.DatasetKindDerivative, Name: "pending.derivative"})
	require.NoError(t, err)

	ref, err := odf.ParseDatasetRefAny("pending.derivative")
	require.NoError(t, err)

	lineage, err := provenance.Trace(ctx, repo, ref)
	require.NoError(t, err)
	require.Empty(t, lineage.Inputs)
}
