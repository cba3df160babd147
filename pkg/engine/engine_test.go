package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/odf/pkg/identity"
	"github.com/cuemby/odf/pkg/odf"
)

func TestTranslatePathExistingFile(t *testing.T) {
	hostRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(hostRoot, "data"), 0o755))
	file := filepath.Join(hostRoot, "data", "part-0.parquet")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	got, err := TranslatePath(hostRoot, "/opt/engine/volume", file)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/opt/engine/volume", "data", "part-0.parquet"), got)
}

func TestTranslatePathNotYetCreated(t *testing.T) {
	hostRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(hostRoot, "out"), 0o755))
	staged := filepath.Join(hostRoot, "out", "new-block.parquet")

	got, err := TranslatePath(hostRoot, "/opt/engine/volume", staged)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/opt/engine/volume", "out", "new-block.parquet"), got)
}

func TestTranslatePathRejectsOutsideRoot(t *testing.T) {
	hostRoot := t.TempDir()
	_, err := TranslatePath(hostRoot, "/opt/engine/volume", "/etc/passwd")
	assert.Error(t, err)
}

func TestWireRequestRoundTrip(t *testing.T) {
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	id := kp.DatasetID()
	now := time.Now().UTC()

	req := ExecuteQueryRequest{
		DatasetID:   id,
		DatasetName: "my.derivative",
		SystemTime:  now,
		OffsetBase:  10,
		Vocab:       odf.SetVocab{OffsetColumn: "offset"},
		Transform:   odf.SetTransform{QuerySteps: []odf.SqlQueryStep{{Query: "select 1"}}},
		Inputs: []ExecuteQueryInput{
			{
				DatasetID:    id,
				DataPaths:    []string{"/opt/engine/volume/in/part-0.parquet"},
				DataInterval: &odf.OffsetInterval{Start: 0, End: 9},
			},
		},
		OutDataPath: "/opt/engine/volume/out/part-1.parquet",
	}

	wire := toWireRequest(req)
	got, err := fromWireRequest(wire)
	require.NoError(t, err)

	assert.True(t, got.DatasetID.Equal(id))
	assert.Equal(t, req.DatasetName, got.DatasetName)
	assert.Equal(t, req.OffsetBase, got.OffsetBase)
	assert.Equal(t, req.Transform.QuerySteps, got.Transform.QuerySteps)
	require.Len(t, got.Inputs, 1)
	assert.True(t, got.Inputs[0].DatasetID.Equal(id))
	assert.Equal(t, *req.Inputs[0].DataInterval, *got.Inputs[0].DataInterval)
}

func TestWireResponseRoundTrip(t *testing.T) {
	watermark := time.Now().UTC()
	resp := Response{
		Kind:            ResponseSuccess,
		DataInterval:    &odf.OffsetInterval{Start: 10, End: 19},
		OutputWatermark: &watermark,
	}
	got := fromWireResponse(toWireResponse(resp))
	assert.Equal(t, resp.Kind, got.Kind)
	assert.Equal(t, *resp.DataInterval, *got.DataInterval)
	assert.True(t, resp.OutputWatermark.Equal(*got.OutputWatermark))
}

func TestWireResponseErrorKinds(t *testing.T) {
	resp := Response{Kind: ResponseInvalidQuery, Message: "unknown column foo"}
	got := fromWireResponse(toWireResponse(resp))
	assert.Equal(t, ResponseInvalidQuery, got.Kind)
	assert.Equal(t, "unknown column foo", got.Message)
}
