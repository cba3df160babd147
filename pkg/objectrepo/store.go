package objectrepo

import (
	"context"
	"fmt"
	"io"

	"github.com/cuemby/odf/pkg/multihash"
)

// InsertOpts controls how Store.Insert* computes and verifies the hash
// of inserted content.
type InsertOpts struct {
	// PrecomputedHash, when set, is trusted as the content's hash and
	// the digest computation is skipped. Only use this when the caller
	// already verified the bytes (e.g. moving an object transferred by
	// SimpleTransferProtocol with trust_source_hashes).
	PrecomputedHash *multihash.Multihash
	// ExpectedHash, when set, is compared against the computed digest;
	// a mismatch fails with ErrHashMismatch and nothing is persisted.
	ExpectedHash *multihash.Multihash
	// SizeHint, when known, lets streaming backends size internal
	// buffers or multipart thresholds; purely an optimization.
	SizeHint int64
}

// InsertResult reports the outcome of an insert.
type InsertResult struct {
	Hash           multihash.Multihash
	AlreadyExisted bool
}

// ErrNotFound is returned when a requested object does not exist.
type ErrNotFound struct {
	Hash multihash.Multihash
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("objectrepo: object not found: %s", e.Hash)
}

// ErrHashMismatch is returned when ExpectedHash was supplied and the
// computed digest disagrees with it. No object is persisted.
type ErrHashMismatch struct {
	Expected multihash.Multihash
	Actual   multihash.Multihash
}

func (e *ErrHashMismatch) Error() string {
	return fmt.Sprintf("objectrepo: hash mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// ErrUnsupported is returned by read-only backends (e.g. HTTP) for
// write operations, or by backends lacking a particular primitive.
type ErrUnsupported struct {
	Op     string
	Reason string
}

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("objectrepo: unsupported operation %q: %s", e.Op, e.Reason)
}

// Store is a content-addressed key/value store. Keys are multihashes of
// the value's bytes.
type Store interface {
	// Contains reports whether an object with the given hash is present.
	Contains(ctx context.Context, hash multihash.Multihash) (bool, error)

	// GetBytes returns the full contents of an object. Fails with
	// *ErrNotFound if absent.
	GetBytes(ctx context.Context, hash multihash.Multihash) ([]byte, error)

	// GetStream returns a reader over an object's contents, for large
	// values. The caller must Close it. Fails with *ErrNotFound if absent.
	GetStream(ctx context.Context, hash multihash.Multihash) (io.ReadCloser, error)

	// InsertBytes stores data, returning its hash. Idempotent: inserting
	// the same bytes twice reports AlreadyExisted=true on the second call.
	InsertBytes(ctx context.Context, data []byte, opts InsertOpts) (InsertResult, error)

	// InsertStream stores the contents of r, returning its hash.
	InsertStream(ctx context.Context, r io.Reader, opts InsertOpts) (InsertResult, error)

	// InsertFileMove atomically moves an existing local file into the
	// store. Backends that cannot move across filesystems fall back to
	// stream-and-delete with equivalent semantics. Local-filesystem
	// backends implement a true rename.
	InsertFileMove(ctx context.Context, path string, opts InsertOpts) (InsertResult, error)

	// Delete removes an object. Idempotent: deleting an absent object
	// is not an error.
	Delete(ctx context.Context, hash multihash.Multihash) error
}
