// Package multihash wraps the self-describing digest format used to name
// every object in the system: a multihash identifies the hash algorithm
// (codec) alongside the digest bytes, and renders to a multibase string
// for display and on-disk filenames.
package multihash

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/multiformats/go-multibase"
	mh "github.com/multiformats/go-multihash"
	"golang.org/x/crypto/sha3"
)

// Codec identifies the digest algorithm. The system fixes SHA3-256 as its
// canonical codec (spec.md §3); other codecs are accepted on decode so
// older or foreign blobs remain addressable.
type Codec uint64

// Known codecs, values taken from the multicodec table.
const (
	CodecSHA2_256 Codec = Codec(mh.SHA2_256)
	CodecSHA3_256 Codec = Codec(mh.SHA3_256)
)

// DefaultCodec is used whenever a new digest is computed by this module.
const DefaultCodec = CodecSHA3_256

// Multihash is a self-describing digest: codec plus raw digest bytes.
type Multihash struct {
	Codec  Codec
	Digest []byte
}

// Sum computes the multihash of data using the given codec.
func Sum(data []byte, codec Codec) (Multihash, error) {
	digest, err := digestFor(codec, data)
	if err != nil {
		return Multihash{}, err
	}
	return Multihash{Codec: codec, Digest: digest}, nil
}

// SumDefault computes the multihash of data using DefaultCodec.
func SumDefault(data []byte) Multihash {
	h, err := Sum(data, DefaultCodec)
	if err != nil {
		// DefaultCodec is always supported; a failure here is a programmer error.
		panic(fmt.Sprintf("multihash: default codec unsupported: %v", err))
	}
	return h
}

func digestFor(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case CodecSHA3_256:
		sum := sha3.Sum256(data)
		return sum[:], nil
	case CodecSHA2_256:
		sum := sha256.Sum256(data)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("multihash: unsupported codec %#x", uint64(codec))
	}
}

// Bytes returns the canonical multihash-encoded byte representation
// (`<codec><length><digest>`, varint-prefixed) using go-multihash.
func (h Multihash) Bytes() ([]byte, error) {
	encoded, err := mh.Encode(h.Digest, uint64(h.Codec))
	if err != nil {
		return nil, fmt.Errorf("multihash: encode: %w", err)
	}
	return encoded, nil
}

// String renders the multihash as a multibase string (base32, lowercase,
// no padding — matches the filenames used by the local object store).
func (h Multihash) String() string {
	raw, err := h.Bytes()
	if err != nil {
		return fmt.Sprintf("<invalid-multihash:%v>", err)
	}
	s, err := multibase.Encode(multibase.Base32, raw)
	if err != nil {
		return fmt.Sprintf("<invalid-multibase:%v>", err)
	}
	return s
}

// Equal reports whether two multihashes have the same codec and digest.
func (h Multihash) Equal(other Multihash) bool {
	return h.Codec == other.Codec && bytes.Equal(h.Digest, other.Digest)
}

// IsZero reports whether h is the zero value (no digest set).
func (h Multihash) IsZero() bool {
	return len(h.Digest) == 0
}

// Parse decodes a multibase-rendered multihash string, as produced by String.
func Parse(s string) (Multihash, error) {
	_, raw, err := multibase.Decode(s)
	if err != nil {
		return Multihash{}, fmt.Errorf("multihash: decode multibase: %w", err)
	}
	decoded, err := mh.Decode(raw)
	if err != nil {
		return Multihash{}, fmt.Errorf("multihash: decode multihash: %w", err)
	}
	return Multihash{Codec: Codec(decoded.Code), Digest: decoded.Digest}, nil
}

// FromBytes decodes the canonical multihash-encoded byte representation
// produced by Bytes, without going through multibase text rendering.
func FromBytes(raw []byte) (Multihash, error) {
	decoded, err := mh.Decode(raw)
	if err != nil {
		return Multihash{}, fmt.Errorf("multihash: decode multihash: %w", err)
	}
	return Multihash{Codec: Codec(decoded.Code), Digest: decoded.Digest}, nil
}

// MustParse is like Parse but panics on error; for tests and fixed vectors.
func MustParse(s string) Multihash {
	h, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return h
}
