package odf

import (
	"fmt"
	"strings"

	"github.com/cuemby/odf/pkg/identity"
)

// This file hand-rolls a small recursive-descent parser for the
// identifier grammar of spec.md §6, rather than reaching for a regex or
// a parser-combinator library: the grammar is five tiny productions and
// the original source (opendatafabric/src/identity/grammar.rs) takes
// the same approach.

// isSubdomainChar reports whether r is a valid subdomain character:
// ASCII letters or digits.
func isSubdomainChar(r byte) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// validateSubdomain checks s against `[A-Za-z0-9]+ ("-" [A-Za-z0-9]+)*`.
func validateSubdomain(s string) error {
	if s == "" {
		return fmt.Errorf("odf: empty subdomain")
	}
	segments := strings.Split(s, "-")
	for _, seg := range segments {
		if seg == "" {
			return fmt.Errorf("odf: %q is not a valid subdomain: empty segment around '-'", s)
		}
		for i := 0; i < len(seg); i++ {
			if !isSubdomainChar(seg[i]) {
				return fmt.Errorf("odf: %q is not a valid subdomain: invalid character %q", s, seg[i])
			}
		}
	}
	return nil
}

// validateHostname checks s against `Subdomain ("." Subdomain)*`.
func validateHostname(s string) error {
	if s == "" {
		return fmt.Errorf("odf: empty hostname")
	}
	for _, part := range strings.Split(s, ".") {
		if err := validateSubdomain(part); err != nil {
			return fmt.Errorf("odf: %q is not a valid hostname: %w", s, err)
		}
	}
	return nil
}

// DatasetName is a human-readable, workspace/repository-scoped alias.
// It follows the Hostname production.
type DatasetName string

// ParseDatasetName validates s as a DatasetName.
func ParseDatasetName(s string) (DatasetName, error) {
	if err := validateHostname(s); err != nil {
		return "", err
	}
	return DatasetName(s), nil
}

func (n DatasetName) String() string { return string(n) }

// RepositoryName identifies a remote repository; same grammar as
// DatasetName.
type RepositoryName string

// AccountName identifies an account within a remote repository; a
// single Subdomain.
type AccountName string

// RemoteDatasetName is `RepositoryName "/" (AccountName "/")? DatasetName`.
type RemoteDatasetName struct {
	Repository RepositoryName
	Account    AccountName // empty if not present
	Name       DatasetName
}

func (r RemoteDatasetName) String() string {
	if r.Account == "" {
		return fmt.Sprintf("%s/%s", r.Repository, r.Name)
	}
	return fmt.Sprintf("%s/%s/%s", r.Repository, r.Account, r.Name)
}

// ParseRemoteDatasetName parses "repo/name" or "repo/account/name".
func ParseRemoteDatasetName(s string) (RemoteDatasetName, error) {
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 2:
		if err := validateHostname(parts[0]); err != nil {
			return RemoteDatasetName{}, err
		}
		name, err := ParseDatasetName(parts[1])
		if err != nil {
			return RemoteDatasetName{}, err
		}
		return RemoteDatasetName{Repository: RepositoryName(parts[0]), Name: name}, nil
	case 3:
		if err := validateHostname(parts[0]); err != nil {
			return RemoteDatasetName{}, err
		}
		if err := validateSubdomain(parts[1]); err != nil {
			return RemoteDatasetName{}, err
		}
		name, err := ParseDatasetName(parts[2])
		if err != nil {
			return RemoteDatasetName{}, err
		}
		return RemoteDatasetName{Repository: RepositoryName(parts[0]), Account: AccountName(parts[1]), Name: name}, nil
	default:
		return RemoteDatasetName{}, fmt.Errorf("odf: %q is not a valid remote dataset name", s)
	}
}

// isValidScheme checks s against `[A-Za-z0-9]+ ("+" [A-Za-z0-9]+)*`.
func isValidScheme(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, "+") {
		if part == "" {
			return false
		}
		for i := 0; i < len(part); i++ {
			if !isSubdomainChar(part[i]) {
				return false
			}
		}
	}
	return true
}

// DatasetRefKind distinguishes the four syntactic forms a DatasetRefAny
// can take.
type DatasetRefKind int

const (
	DatasetRefKindLocalName DatasetRefKind = iota
	DatasetRefKindID
	DatasetRefKindRemote
	DatasetRefKindURL
)

// DatasetRef is a resolved reference to a dataset, in any of its
// syntactic forms.
type DatasetRef struct {
	Kind   DatasetRefKind
	Name   DatasetName        // set iff Kind == DatasetRefKindLocalName
	ID     identity.DatasetID // set iff Kind == DatasetRefKindID
	Remote RemoteDatasetName  // set iff Kind == DatasetRefKindRemote
	URL    string             // set iff Kind == DatasetRefKindURL
}

func (r DatasetRef) String() string {
	switch r.Kind {
	case DatasetRefKindLocalName:
		return r.Name.String()
	case DatasetRefKindID:
		return r.ID.String()
	case DatasetRefKindRemote:
		return r.Remote.String()
	case DatasetRefKindURL:
		return r.URL
	default:
		return ""
	}
}

// ParseDatasetRefAny matches any DatasetRef by trying, in order: DID,
// URL, RemoteDatasetName, DatasetName — exactly the precedence spec.md
// §6 specifies.
func ParseDatasetRefAny(s string) (DatasetRef, error) {
	if strings.HasPrefix(s, identity.DIDPrefix) {
		id, err := identity.ParseDatasetID(s)
		if err == nil {
			return DatasetRef{Kind: DatasetRefKindID, ID: id}, nil
		}
	}

	if idx := strings.Index(s, "://"); idx > 0 && isValidScheme(s[:idx]) {
		return DatasetRef{Kind: DatasetRefKindURL, URL: s}, nil
	}

	if strings.Contains(s, "/") {
		remote, err := ParseRemoteDatasetName(s)
		if err == nil {
			return DatasetRef{Kind: DatasetRefKindRemote, Remote: remote}, nil
		}
	}

	name, err := ParseDatasetName(s)
	if err != nil {
		return DatasetRef{}, fmt.Errorf("odf: %q does not match DID, URL, remote name, or local name: %w", s, err)
	}
	return DatasetRef{Kind: DatasetRefKindLocalName, Name: name}, nil
}
