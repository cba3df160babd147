package objectrepo

import (
	"golang.org/x/crypto/sha3"

	"github.com/cuemby/odf/pkg/multihash"
)

// streamHasher incrementally digests a stream being copied to staging,
// so InsertStream never has to buffer the whole value in memory just to
// compute its hash.
type streamHasher struct {
	h       interface{ Write([]byte) (int, error) }
	sum     func() multihash.Multihash
	trusted bool // true when a precomputed hash means we can skip using the digest
}

func newStreamHasher(opts InsertOpts) *streamHasher {
	hasher := sha3.New256()
	return &streamHasher{
		h: hasher,
		sum: func() multihash.Multihash {
			return multihash.Multihash{Codec: multihash.DefaultCodec, Digest: hasher.Sum(nil)}
		},
		trusted: opts.PrecomputedHash != nil,
	}
}

func (s *streamHasher) Write(p []byte) (int, error) { return s.h.Write(p) }

// resolve returns the hash to use for the just-copied content,
// following the same precedence as resolveHash: a precomputed hash is
// trusted unless an expected hash is also given, in which case the
// digest actually computed while streaming is authoritative.
func (s *streamHasher) resolve(opts InsertOpts) (multihash.Multihash, error) {
	computed := s.sum()
	if opts.ExpectedHash != nil {
		if !computed.Equal(*opts.ExpectedHash) {
			return multihash.Multihash{}, &ErrHashMismatch{Expected: *opts.ExpectedHash, Actual: computed}
		}
		return *opts.ExpectedHash, nil
	}
	if opts.PrecomputedHash != nil {
		return *opts.PrecomputedHash, nil
	}
	return computed, nil
}
