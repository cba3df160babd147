package multihash_test

import (
	"testing"

	"github.com/cuemby/odf/pkg/multihash"
	"github.com/stretchr/testify/require"
)

func TestSumAndParseRoundTrip(t *testing.T) {
	h := multihash.SumDefault([]byte("hello"))
	require.Equal(t, multihash.DefaultCodec, h.Codec)

	s := h.String()
	require.NotEmpty(t, s)

	parsed, err := multihash.Parse(s)
	require.NoError(t, err)
	require.True(t, h.Equal(parsed))
}

func TestSumIsDeterministic(t *testing.T) {
	a := multihash.SumDefault([]byte("same bytes"))
	b := multihash.SumDefault([]byte("same bytes"))
	require.True(t, a.Equal(b))
}

func TestSumDiffersOnDifferentInput(t *testing.T) {
	a := multihash.SumDefault([]byte("hello"))
	b := multihash.SumDefault([]byte("world"))
	require.False(t, a.Equal(b))
}

func TestUnsupportedCodec(t *testing.T) {
	_, err := multihash.Sum([]byte("x"), multihash.Codec(0xDEAD))
	require.Error(t, err)
}
