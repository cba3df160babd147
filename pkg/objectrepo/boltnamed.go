package objectrepo

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var refsBucket = []byte("refs")

// BoltNamedFS is a NamedStore backed by a single bbolt file instead of
// LocalNamedFS's one-file-per-name directory. It exists for deployments
// that want the workspace's mutable state (HEAD pointers, cache
// entries) collapsed into one file — a sandboxed engine mount, a single
// artifact to back up — rather than a directory of loose files.
//
// Reads and writes are single-key bbolt transactions; there is no
// cross-name atomicity requirement here since spec.md §4.2 only ever
// asks for one name at a time (the chain's own HEAD CAS lives in
// chain.Chain, layered on top of this store's single-key Set).
type BoltNamedFS struct {
	db *bolt.DB
}

// NewBoltNamedFS opens (creating if necessary) a bbolt-backed named store.
func NewBoltNamedFS(path string) (*BoltNamedFS, error) {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("objectrepo: open bolt db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(refsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("objectrepo: init bolt db %s: %w", path, err)
	}
	return &BoltNamedFS{db: db}, nil
}

func (s *BoltNamedFS) Close() error {
	return s.db.Close()
}

func (s *BoltNamedFS) Get(_ context.Context, name string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(refsBucket).Get([]byte(name))
		if v == nil {
			return &ErrNameNotFound{Name: name}
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltNamedFS) Set(_ context.Context, name string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(refsBucket).Put([]byte(name), data)
	})
}

func (s *BoltNamedFS) Delete(_ context.Context, name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(refsBucket).Delete([]byte(name))
	})
}

func (s *BoltNamedFS) List(_ context.Context) ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(refsBucket).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
