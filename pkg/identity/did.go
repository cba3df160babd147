// Package identity derives and parses dataset identities.
//
// A DatasetID is stable across renames and repository moves because it is
// derived purely from an Ed25519 public key, never from a name or a
// storage location, generated the same way any other keypair-backed
// identity is, minus certificate-authority machinery this system has no
// use for.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/cuemby/odf/pkg/multihash"
)

// DIDPrefix is the fixed scheme prefix for dataset identifiers.
const DIDPrefix = "did:odf:"

// KeyPair holds an Ed25519 identity key. The private key is only ever
// needed at dataset-creation time; it is not retained by any long-lived
// component.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 key pair for a new dataset.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("identity: generate key: %w", err)
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// DatasetID renders the DID for this key pair's public key.
func (kp KeyPair) DatasetID() DatasetID {
	return DatasetIDFromPublicKey(kp.Public)
}

// DatasetID is a stable identity derived from an Ed25519 public key,
// rendered "did:odf:<multibase>". It never changes across renames or
// repository moves.
type DatasetID struct {
	raw string // full "did:odf:..." string, validated at construction
}

// DatasetIDFromPublicKey derives a DatasetID from a raw Ed25519 public key.
func DatasetIDFromPublicKey(pub ed25519.PublicKey) DatasetID {
	h := multihash.SumDefault(pub)
	return DatasetID{raw: DIDPrefix + h.String()}
}

// ParseDatasetID validates and wraps an existing "did:odf:..." string.
func ParseDatasetID(s string) (DatasetID, error) {
	if !strings.HasPrefix(s, DIDPrefix) {
		return DatasetID{}, fmt.Errorf("identity: %q is not a valid DatasetID: missing %q prefix", s, DIDPrefix)
	}
	tail := strings.TrimPrefix(s, DIDPrefix)
	if tail == "" {
		return DatasetID{}, fmt.Errorf("identity: %q is not a valid DatasetID: empty multibase suffix", s)
	}
	if _, err := multihash.Parse(tail); err != nil {
		return DatasetID{}, fmt.Errorf("identity: %q is not a valid DatasetID: %w", s, err)
	}
	return DatasetID{raw: s}, nil
}

// String returns the "did:odf:<multibase>" representation.
func (id DatasetID) String() string { return id.raw }

// IsZero reports whether id is the unset zero value.
func (id DatasetID) IsZero() bool { return id.raw == "" }

// Equal reports whether two DatasetIDs are the same identity.
func (id DatasetID) Equal(other DatasetID) bool { return id.raw == other.raw }
