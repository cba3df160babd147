package objectrepo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cuemby/odf/pkg/multihash"
)

// HTTPStore is a read-only Store fronting a plain HTTP(S) object
// layout: GET <baseURL>/<hash> returns the object bytes, HEAD reports
// existence. Matches spec.md §6's http(s):// scheme (read-only).
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStore creates a read-only store rooted at baseURL.
func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{baseURL: strings.TrimSuffix(baseURL, "/"), client: http.DefaultClient}
}

func (s *HTTPStore) url(hash multihash.Multihash) string {
	return s.baseURL + "/" + hash.String()
}

func (s *HTTPStore) Contains(ctx context.Context, hash multihash.Multihash) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.url(hash), nil)
	if err != nil {
		return false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (s *HTTPStore) GetStream(ctx context.Context, hash multihash.Multihash) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(hash), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, &ErrNotFound{Hash: hash}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("objectrepo: http GET %s: unexpected status %d", s.url(hash), resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *HTTPStore) GetBytes(ctx context.Context, hash multihash.Multihash) ([]byte, error) {
	rc, err := s.GetStream(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *HTTPStore) InsertBytes(context.Context, []byte, InsertOpts) (InsertResult, error) {
	return InsertResult{}, &ErrUnsupported{Op: "InsertBytes", Reason: "HTTP backend is read-only"}
}

func (s *HTTPStore) InsertStream(context.Context, io.Reader, InsertOpts) (InsertResult, error) {
	return InsertResult{}, &ErrUnsupported{Op: "InsertStream", Reason: "HTTP backend is read-only"}
}

func (s *HTTPStore) InsertFileMove(context.Context, string, InsertOpts) (InsertResult, error) {
	return InsertResult{}, &ErrUnsupported{Op: "InsertFileMove", Reason: "HTTP backend is read-only"}
}

func (s *HTTPStore) Delete(context.Context, multihash.Multihash) error {
	return &ErrUnsupported{Op: "Delete", Reason: "HTTP backend is read-only"}
}
