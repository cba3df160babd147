package objectrepo

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"

	"github.com/cuemby/odf/pkg/multihash"
)

// MemoryStore is an in-memory Store, for tests and transient workspaces,
// backed by a plain mutex-guarded map.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Contains(_ context.Context, hash multihash.Multihash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[hash.String()]
	return ok, nil
}

func (s *MemoryStore) GetBytes(_ context.Context, hash multihash.Multihash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[hash.String()]
	if !ok {
		return nil, &ErrNotFound{Hash: hash}
	}
	// Return a copy: callers must not be able to mutate stored bytes.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryStore) GetStream(ctx context.Context, hash multihash.Multihash) (io.ReadCloser, error) {
	data, err := s.GetBytes(ctx, hash)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) InsertBytes(_ context.Context, data []byte, opts InsertOpts) (InsertResult, error) {
	hash, err := resolveHash(data, opts)
	if err != nil {
		return InsertResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := hash.String()
	if _, exists := s.objects[key]; exists {
		return InsertResult{Hash: hash, AlreadyExisted: true}, nil
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[key] = stored
	return InsertResult{Hash: hash}, nil
}

func (s *MemoryStore) InsertStream(_ context.Context, r io.Reader, opts InsertOpts) (InsertResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return InsertResult{}, err
	}
	return s.InsertBytes(context.Background(), data, opts)
}

func (s *MemoryStore) InsertFileMove(_ context.Context, path string, opts InsertOpts) (InsertResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return InsertResult{}, err
	}
	res, err := s.InsertBytes(context.Background(), data, opts)
	if err != nil {
		return InsertResult{}, err
	}
	_ = os.Remove(path)
	return res, nil
}

func (s *MemoryStore) Delete(_ context.Context, hash multihash.Multihash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, hash.String())
	return nil
}

// resolveHash computes or trusts the hash of data according to opts,
// shared by every backend's insert path.
func resolveHash(data []byte, opts InsertOpts) (multihash.Multihash, error) {
	var hash multihash.Multihash
	if opts.PrecomputedHash != nil {
		hash = *opts.PrecomputedHash
	} else {
		hash = multihash.SumDefault(data)
	}
	if opts.ExpectedHash != nil {
		actual := hash
		if opts.PrecomputedHash != nil {
			// A precomputed hash is a claim, not a guarantee: still
			// verify against an explicit expectation if one was given.
			actual = multihash.SumDefault(data)
		}
		if !actual.Equal(*opts.ExpectedHash) {
			return multihash.Multihash{}, &ErrHashMismatch{Expected: *opts.ExpectedHash, Actual: actual}
		}
		hash = *opts.ExpectedHash
	}
	return hash, nil
}
