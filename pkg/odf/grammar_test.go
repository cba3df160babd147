package odf_test

import (
	"testing"

	"github.com/cuemby/odf/pkg/identity"
	"github.com/cuemby/odf/pkg/odf"
	"github.com/stretchr/testify/require"
)

func TestParseDatasetName(t *testing.T) {
	ok := []string{"foo", "foo-bar", "foo.bar", "a1-b2.c3-d4"}
	for _, s := range ok {
		_, err := odf.ParseDatasetName(s)
		require.NoError(t, err, s)
	}

	bad := []string{"", "-foo", "foo-", "foo..bar", "foo_bar", "foo bar"}
	for _, s := range bad {
		_, err := odf.ParseDatasetName(s)
		require.Error(t, err, s)
	}
}

func TestParseRemoteDatasetName(t *testing.T) {
	r, err := odf.ParseRemoteDatasetName("myrepo/myaccount/mydataset")
	require.NoError(t, err)
	require.Equal(t, odf.RepositoryName("myrepo"), r.Repository)
	require.Equal(t, odf.AccountName("myaccount"), r.Account)
	require.Equal(t, odf.DatasetName("mydataset"), r.Name)

	r2, err := odf.ParseRemoteDatasetName("myrepo/mydataset")
	require.NoError(t, err)
	require.Empty(t, r2.Account)
}

func TestParseDatasetRefAnyPrecedence(t *testing.T) {
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	id := kp.DatasetID()

	ref, err := odf.ParseDatasetRefAny(id.String())
	require.NoError(t, err)
	require.Equal(t, odf.DatasetRefKindID, ref.Kind)

	ref, err = odf.ParseDatasetRefAny("file:///tmp/repo/bar")
	require.NoError(t, err)
	require.Equal(t, odf.DatasetRefKindURL, ref.Kind)

	ref, err = odf.ParseDatasetRefAny("myrepo/mydataset")
	require.NoError(t, err)
	require.Equal(t, odf.DatasetRefKindRemote, ref.Kind)

	ref, err = odf.ParseDatasetRefAny("mydataset")
	require.NoError(t, err)
	require.Equal(t, odf.DatasetRefKindLocalName, ref.Kind)
}

func TestParseDatasetRefAnyInvalid(t *testing.T) {
	_, err := odf.ParseDatasetRefAny("not valid!!")
	require.Error(t, err)
}
