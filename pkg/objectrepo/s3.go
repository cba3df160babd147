package objectrepo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	minio "github.com/minio/minio-go/v6"

	"github.com/cuemby/odf/pkg/multihash"
)

// S3Config configures an S3-compatible backend (endpoint + bucket +
// key-prefix, per spec.md §4.1).
type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	KeyPrefix       string
}

// S3Store is an S3-backed Store via minio-go, grounded on the `minio-go`
// dependency pinned by storj-storj's object-storage stack.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Store creates an S3-backed object store.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.UseSSL)
	if err != nil {
		return nil, fmt.Errorf("objectrepo: create s3 client: %w", err)
	}
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.KeyPrefix}, nil
}

func (s *S3Store) key(hash multihash.Multihash) string {
	return s.prefix + hash.String()
}

func (s *S3Store) Contains(_ context.Context, hash multihash.Multihash) (bool, error) {
	_, err := s.client.StatObject(s.bucket, s.key(hash), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3Store) GetStream(_ context.Context, hash multihash.Multihash) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(s.bucket, s.key(hash), minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, &ErrNotFound{Hash: hash}
		}
		return nil, err
	}
	// minio-go's GetObject is lazy; force a Stat to surface NotFound
	// immediately rather than on first Read, matching the other
	// backends' synchronous contract.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, &ErrNotFound{Hash: hash}
		}
		return nil, err
	}
	return obj, nil
}

func (s *S3Store) GetBytes(ctx context.Context, hash multihash.Multihash) ([]byte, error) {
	rc, err := s.GetStream(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *S3Store) InsertBytes(ctx context.Context, data []byte, opts InsertOpts) (InsertResult, error) {
	hash, err := resolveHash(data, opts)
	if err != nil {
		return InsertResult{}, err
	}
	if ok, err := s.Contains(ctx, hash); err != nil {
		return InsertResult{}, err
	} else if ok {
		return InsertResult{Hash: hash, AlreadyExisted: true}, nil
	}

	// Single-part PUT: S3's PUT semantics are already all-or-nothing
	// from a reader's point of view (spec.md §4.1's atomicity contract).
	_, err = s.client.PutObject(s.bucket, s.key(hash), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return InsertResult{}, fmt.Errorf("objectrepo: s3 put: %w", err)
	}
	return InsertResult{Hash: hash}, nil
}

func (s *S3Store) InsertStream(ctx context.Context, r io.Reader, opts InsertOpts) (InsertResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return InsertResult{}, err
	}
	return s.InsertBytes(ctx, data, opts)
}

// InsertFileMove has no move primitive on S3; it falls back to
// stream-and-delete, matching spec.md §9's documented fallback for
// backends that cannot move.
func (s *S3Store) InsertFileMove(ctx context.Context, path string, opts InsertOpts) (InsertResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return InsertResult{}, err
	}
	res, err := s.InsertBytes(ctx, data, opts)
	if err != nil {
		return InsertResult{}, err
	}
	if err := os.Remove(path); err != nil {
		return InsertResult{}, err
	}
	return res, nil
}

func (s *S3Store) Delete(_ context.Context, hash multihash.Multihash) error {
	err := s.client.RemoveObject(s.bucket, s.key(hash))
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func isNotFound(err error) bool {
	if errResp, ok := err.(minio.ErrorResponse); ok {
		return errResp.Code == "NoSuchKey" || errResp.Code == "NotFound"
	}
	return false
}
