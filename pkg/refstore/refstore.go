// Package refstore implements the ReferenceRepository layer of spec.md
// §4.2: named pointers (the only standard one is "head") to block
// hashes, built on top of a NamedStore by serializing the hash as its
// multibase string.
package refstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/odf/pkg/multihash"
	"github.com/cuemby/odf/pkg/objectrepo"
)

// Head is the only standard reference name.
const Head = "head"

// ErrRefNotFound is returned when a reference has no value set.
type ErrRefNotFound struct {
	Ref string
}

func (e *ErrRefNotFound) Error() string {
	return fmt.Sprintf("refstore: ref not found: %s", e.Ref)
}

// Store maps reference names to block hashes.
type Store struct {
	named objectrepo.NamedStore
}

// New wraps a NamedStore as a reference store.
func New(named objectrepo.NamedStore) *Store {
	return &Store{named: named}
}

// Get returns the hash currently bound to ref.
func (s *Store) Get(ctx context.Context, ref string) (multihash.Multihash, error) {
	raw, err := s.named.Get(ctx, ref)
	if err != nil {
		var notFound *objectrepo.ErrNameNotFound
		if errors.As(err, &notFound) {
			return multihash.Multihash{}, &ErrRefNotFound{Ref: ref}
		}
		return multihash.Multihash{}, err
	}
	return multihash.Parse(string(raw))
}

// Set binds ref to hash.
func (s *Store) Set(ctx context.Context, ref string, hash multihash.Multihash) error {
	return s.named.Set(ctx, ref, []byte(hash.String()))
}

// Delete removes a reference.
func (s *Store) Delete(ctx context.Context, ref string) error {
	return s.named.Delete(ctx, ref)
}
