package objectrepo

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/cuemby/odf/pkg/multihash"
)

// LocalFS is a flat-directory, content-addressed store. Filenames are
// the multibase rendering of the object's hash. Inserts stage into a
// per-store ".staging" directory and rename into place, so readers
// always see either the whole object or nothing — spec.md §4.1's
// atomicity contract.
type LocalFS struct {
	root    string
	staging string
}

// NewLocalFS opens (creating if necessary) a local filesystem object
// store rooted at dir.
func NewLocalFS(dir string) (*LocalFS, error) {
	staging := filepath.Join(dir, ".staging")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectrepo: create root %s: %w", dir, err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("objectrepo: create staging dir %s: %w", staging, err)
	}
	return &LocalFS{root: dir, staging: staging}, nil
}

func (s *LocalFS) pathFor(hash multihash.Multihash) string {
	return filepath.Join(s.root, hash.String())
}

// LocalPath returns the on-disk path an object would occupy, without
// requiring it to exist. Callers that need a real filesystem path to
// hand to an out-of-process engine (spec.md §6) use this instead of
// GetStream/GetBytes, which would otherwise require staging a copy.
func (s *LocalFS) LocalPath(hash multihash.Multihash) string {
	return s.pathFor(hash)
}

// StagingDir returns the store's staging directory, the conventional
// home for not-yet-committed files a caller builds before InsertFileMove
// (spec.md §5's `data/.pending`, `checkpoints/.pending`).
func (s *LocalFS) StagingDir() string {
	return s.staging
}

func (s *LocalFS) Contains(_ context.Context, hash multihash.Multihash) (bool, error) {
	_, err := os.Stat(s.pathFor(hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *LocalFS) GetBytes(_ context.Context, hash multihash.Multihash) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(hash))
	if os.IsNotExist(err) {
		return nil, &ErrNotFound{Hash: hash}
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *LocalFS) GetStream(_ context.Context, hash multihash.Multihash) (io.ReadCloser, error) {
	f, err := os.Open(s.pathFor(hash))
	if os.IsNotExist(err) {
		return nil, &ErrNotFound{Hash: hash}
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *LocalFS) InsertBytes(ctx context.Context, data []byte, opts InsertOpts) (InsertResult, error) {
	hash, err := resolveHash(data, opts)
	if err != nil {
		return InsertResult{}, err
	}
	if ok, err := s.Contains(ctx, hash); err != nil {
		return InsertResult{}, err
	} else if ok {
		return InsertResult{Hash: hash, AlreadyExisted: true}, nil
	}

	stagePath := filepath.Join(s.staging, uuid.NewString())
	if err := os.WriteFile(stagePath, data, 0o644); err != nil {
		return InsertResult{}, fmt.Errorf("objectrepo: stage write: %w", err)
	}
	if err := s.commitStaged(stagePath, hash); err != nil {
		return InsertResult{}, err
	}
	return InsertResult{Hash: hash}, nil
}

func (s *LocalFS) InsertStream(ctx context.Context, r io.Reader, opts InsertOpts) (InsertResult, error) {
	stagePath := filepath.Join(s.staging, uuid.NewString())
	f, err := os.Create(stagePath)
	if err != nil {
		return InsertResult{}, fmt.Errorf("objectrepo: create staging file: %w", err)
	}

	hasher := newStreamHasher(opts)
	_, copyErr := io.Copy(io.MultiWriter(f, hasher), r)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(stagePath)
		return InsertResult{}, copyErr
	}
	if closeErr != nil {
		_ = os.Remove(stagePath)
		return InsertResult{}, closeErr
	}

	hash, err := hasher.resolve(opts)
	if err != nil {
		_ = os.Remove(stagePath)
		return InsertResult{}, err
	}

	if ok, err := s.Contains(ctx, hash); err != nil {
		_ = os.Remove(stagePath)
		return InsertResult{}, err
	} else if ok {
		_ = os.Remove(stagePath)
		return InsertResult{Hash: hash, AlreadyExisted: true}, nil
	}

	if err := s.commitStaged(stagePath, hash); err != nil {
		return InsertResult{}, err
	}
	return InsertResult{Hash: hash}, nil
}

// InsertFileMove atomically renames path into the store when it lives
// on the same filesystem (the common case: staging directories under
// dataset data/.pending are always inside the workspace). It falls back
// to copy-then-delete across filesystems.
func (s *LocalFS) InsertFileMove(ctx context.Context, path string, opts InsertOpts) (InsertResult, error) {
	var hash multihash.Multihash
	if opts.PrecomputedHash != nil && opts.ExpectedHash == nil {
		hash = *opts.PrecomputedHash
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return InsertResult{}, err
		}
		computed, err := resolveHash(data, opts)
		if err != nil {
			return InsertResult{}, err
		}
		hash = computed
	}

	if ok, err := s.Contains(ctx, hash); err != nil {
		return InsertResult{}, err
	} else if ok {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return InsertResult{}, err
		}
		return InsertResult{Hash: hash, AlreadyExisted: true}, nil
	}

	dest := s.pathFor(hash)
	if err := os.Rename(path, dest); err != nil {
		// Cross-device rename: fall back to copy + remove.
		if err := copyFile(path, dest); err != nil {
			return InsertResult{}, fmt.Errorf("objectrepo: move %s: %w", path, err)
		}
		if err := os.Remove(path); err != nil {
			return InsertResult{}, err
		}
	}
	return InsertResult{Hash: hash}, nil
}

func (s *LocalFS) Delete(_ context.Context, hash multihash.Multihash) error {
	err := os.Remove(s.pathFor(hash))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// commitStaged renames a staged file into its final content-addressed
// location, the atomicity primitive every insert path funnels through.
func (s *LocalFS) commitStaged(stagePath string, hash multihash.Multihash) error {
	dest := s.pathFor(hash)
	if err := os.Rename(stagePath, dest); err != nil {
		_ = os.Remove(stagePath)
		return fmt.Errorf("objectrepo: commit staged object: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
