// Package searchsvc implements the repository-search traversal primitive
// of spec.md §8 scenario 3: given a repository URL and an optional name
// prefix, list the dataset names found directly under that root. It
// covers only the traversal itself; the GraphQL/HTTP search surface a
// real deployment would put in front of it is out of scope.
package searchsvc

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"

	minio "github.com/minio/minio-go/v6"

	"github.com/cuemby/odf/pkg/objectrepo"
)

// Service searches one or more dataset repositories by URL. Repository
// roots are treated the same way objectrepo treats object stores: a
// bare directory tree for file:// and a bucket+prefix for s3://, one
// sub-directory (or common S3 prefix) per dataset name.
type Service struct {
	// S3 supplies credentials for s3:// repository URLs. Nil means
	// anonymous access, which is sufficient for a public bucket.
	S3 *objectrepo.S3Config
}

// Search lists dataset names found directly under repoURL whose name
// starts with namePrefix (an empty prefix matches everything),
// returned in lexical order.
func (s *Service) Search(ctx context.Context, repoURL, namePrefix string) ([]string, error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return nil, fmt.Errorf("searchsvc: parse repository URL %q: %w", repoURL, err)
	}

	switch u.Scheme {
	case "file", "":
		return searchFile(u.Path, namePrefix)
	case "s3":
		return s.searchS3(u, namePrefix)
	default:
		return nil, fmt.Errorf("searchsvc: unsupported repository scheme %q", u.Scheme)
	}
}

func searchFile(root, namePrefix string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("searchsvc: list %s: %w", root, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), ".") {
			continue // catalog/index files live as dotfiles alongside dataset dirs
		}
		if strings.HasPrefix(e.Name(), namePrefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Service) searchS3(u *url.URL, namePrefix string) ([]string, error) {
	bucket := u.Host
	basePrefix := strings.TrimPrefix(u.Path, "/")
	if basePrefix != "" && !strings.HasSuffix(basePrefix, "/") {
		basePrefix += "/"
	}

	var accessKey, secretKey string
	useSSL := true
	endpoint := "s3.amazonaws.com"
	if s.S3 != nil {
		accessKey, secretKey = s.S3.AccessKeyID, s.S3.SecretAccessKey
		useSSL = s.S3.UseSSL
		if s.S3.Endpoint != "" {
			endpoint = s.S3.Endpoint
		}
	}

	client, err := minio.New(endpoint, accessKey, secretKey, useSSL)
	if err != nil {
		return nil, fmt.Errorf("searchsvc: create s3 client: %w", err)
	}

	doneCh := make(chan struct{})
	defer close(doneCh)

	seen := map[string]bool{}
	var names []string
	for obj := range client.ListObjects(bucket, basePrefix+namePrefix, false, doneCh) {
		if obj.Err != nil {
			return nil, fmt.Errorf("searchsvc: list bucket %s: %w", bucket, obj.Err)
		}
		// With a non-recursive listing, minio-go reports each
		// immediate sub-"directory" as a zero-size object whose key
		// ends in "/" — the S3 CommonPrefixes idiom.
		if !strings.HasSuffix(obj.Key, "/") {
			continue
		}
		rel := strings.TrimSuffix(strings.TrimPrefix(obj.Key, basePrefix), "/")
		rel = path.Base(rel)
		if rel == "" || seen[rel] {
			continue
		}
		seen[rel] = true
		names = append(names, rel)
	}
	sort.Strings(names)
	return names, nil
}
