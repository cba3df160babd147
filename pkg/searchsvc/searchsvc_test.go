package searchsvc_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/odf/pkg/searchsvc"
)

func mustMkdirs(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name), 0o755))
	}
}

func TestSearchFileListsMatchingSubdirectories(t *testing.T) {
	root := t.TempDir()
	mustMkdirs(t, root, "raw.prices", "raw.volumes", "daily.summary")
	require.NoError(t, os.WriteFile(filepath.Join(root, ".index.yaml"), []byte("name: x"), 0o644))

	svc := &searchsvc.Service{}

	names, err := svc.Search(context.Background(), "file://"+root, "raw.")
	require.NoError(t, err)
	require.Equal(t, []string{"raw.prices", "raw.volumes"}, names)
}

func TestSearchFileEmptyPrefixMatchesAll(t *testing.T) {
	root := t.TempDir()
	mustMkdirs(t, root, "a", "b")

	svc := &searchsvc.Service{}
	names, err := svc.Search(context.Background(), "file://"+root, "")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, names)
}

func TestSearchFileIgnoresPlainFiles(t *testing.T) {
	root := t.TempDir()
	mustMkdirs(t, root, "real.dataset")
	require.NoError(t, os.WriteFile(filepath.Join(root, "notadataset.txt"), []byte("x"), 0o644))

	svc := &searchsvc.Service{}
	names, err := svc.Search(context.Background(), "file://"+root, "")
	require.NoError(t, err)
	require.Equal(t, []string{"real.dataset"}, names)
}

func TestSearchUnsupportedSchemeErrors(t *testing.T) {
	svc := &searchsvc.Service{}
	_, err := svc.Search(context.Background(), "gs://bucket/prefix", "")
	require.Error(t, err)
}
