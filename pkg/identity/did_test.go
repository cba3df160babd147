package identity_test

import (
	"testing"

	"github.com/cuemby/odf/pkg/identity"
	"github.com/stretchr/testify/require"
)

func TestDatasetIDStableAcrossRename(t *testing.T) {
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	id1 := kp.DatasetID()
	id2 := DatasetIDFromSamePublicKey(t, kp)

	require.True(t, id1.Equal(id2))
	require.Contains(t, id1.String(), identity.DIDPrefix)
}

func DatasetIDFromSamePublicKey(t *testing.T, kp identity.KeyPair) identity.DatasetID {
	t.Helper()
	return identity.DatasetIDFromPublicKey(kp.Public)
}

func TestParseDatasetIDRoundTrip(t *testing.T) {
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	id := kp.DatasetID()

	parsed, err := identity.ParseDatasetID(id.String())
	require.NoError(t, err)
	require.True(t, id.Equal(parsed))
}

func TestParseDatasetIDRejectsBadInput(t *testing.T) {
	_, err := identity.ParseDatasetID("not-a-did")
	require.Error(t, err)

	_, err = identity.ParseDatasetID("did:odf:")
	require.Error(t, err)
}

func TestDifferentKeysYieldDifferentIDs(t *testing.T) {
	kp1, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	kp2, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	require.False(t, kp1.DatasetID().Equal(kp2.DatasetID()))
}
