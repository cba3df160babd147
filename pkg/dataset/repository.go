package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/odf/pkg/chain"
	"github.com/cuemby/odf/pkg/identity"
	"github.com/cuemby/odf/pkg/objectrepo"
	"github.com/cuemby/odf/pkg/odf"
	"github.com/cuemby/odf/pkg/refstore"
)

// indexEntry is one row of the workspace's name→identity catalog,
// persisted as YAML so the catalog survives process restarts without
// needing a database.
type indexEntry struct {
	Name odf.DatasetName `yaml:"name"`
	ID   string          `yaml:"id"` // identity.DatasetID's "did:odf:..." string form
}

// Repository is the workspace-level DatasetRepository of spec.md §4.4:
// it owns the `<workspace>/datasets/<name>/` layout and the name↔DID
// catalog, and constructs Dataset bundles over it.
type Repository struct {
	mu   sync.Mutex
	root string
}

// NewRepository opens (creating if necessary) the dataset catalog rooted
// at workspaceRoot/datasets.
func NewRepository(workspaceRoot string) (*Repository, error) {
	root := filepath.Join(workspaceRoot, "datasets")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("dataset: create workspace root %s: %w", root, err)
	}
	return &Repository{root: root}, nil
}

func (r *Repository) indexPath() string { return filepath.Join(r.root, ".index.yaml") }

func (r *Repository) loadIndex() ([]indexEntry, error) {
	raw, err := os.ReadFile(r.indexPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dataset: read index: %w", err)
	}
	var entries []indexEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("dataset: parse index: %w", err)
	}
	return entries, nil
}

func (r *Repository) saveIndex(entries []indexEntry) error {
	raw, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("dataset: encode index: %w", err)
	}
	if err := os.WriteFile(r.indexPath(), raw, 0o644); err != nil {
		return fmt.Errorf("dataset: write index: %w", err)
	}
	return nil
}

func (r *Repository) datasetDir(name odf.DatasetName) string {
	return filepath.Join(r.root, string(name))
}

// Create builds a new dataset from a snapshot: a fresh identity key
// pair, a Seed block, and the snapshot's subsequent events, appended in
// one atomic build (spec.md §4.4). On any failure the partially created
// directory is removed.
func (r *Repository) Create(ctx context.Context, snapshot DatasetSnapshot) (identity.DatasetID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.loadIndex()
	if err != nil {
		return identity.DatasetID{}, err
	}
	for _, e := range entries {
		if e.Name == snapshot.Name {
			return identity.DatasetID{}, fmt.Errorf("dataset: name %q already exists", snapshot.Name)
		}
	}

	keyPair, err := identity.GenerateKeyPair()
	if err != nil {
		return identity.DatasetID{}, fmt.Errorf("dataset: generate identity: %w", err)
	}
	id := keyPair.DatasetID()

	dir := r.datasetDir(snapshot.Name)
	ds, err := openDatasetDir(dir)
	if err != nil {
		return identity.DatasetID{}, err
	}

	now := func() time.Time { return time.Now().UTC() }
	seedTime := now()
	if _, err := ds.Chain.Append(ctx, odf.MetadataBlock{
		SystemTime:     seedTime,
		SequenceNumber: 0,
		Event:          odf.Seed{DatasetID: id, Kind: snapshot.Kind},
	}, chain.AppendOpts{}); err != nil {
		_ = os.RemoveAll(dir)
		return identity.DatasetID{}, fmt.Errorf("dataset: append seed: %w", err)
	}

	prevHash, err := ds.Chain.GetRef(ctx, refstore.Head)
	if err != nil {
		_ = os.RemoveAll(dir)
		return identity.DatasetID{}, fmt.Errorf("dataset: read head after seed: %w", err)
	}

	for i, em := range snapshot.Events {
		event, err := toEvent(em)
		if err != nil {
			_ = os.RemoveAll(dir)
			return identity.DatasetID{}, fmt.Errorf("dataset: event %d: %w", i, err)
		}
		hash, err := ds.Chain.Append(ctx, odf.MetadataBlock{
			SystemTime:     now(),
			PrevBlockHash:  prevHash,
			SequenceNumber: int64(i) + 1,
			Event:          event,
		}, chain.AppendOpts{})
		if err != nil {
			_ = os.RemoveAll(dir)
			return identity.DatasetID{}, fmt.Errorf("dataset: append event %d: %w", i, err)
		}
		prevHash = hash
	}

	entries = append(entries, indexEntry{Name: snapshot.Name, ID: id.String()})
	if err := r.saveIndex(entries); err != nil {
		_ = os.RemoveAll(dir)
		return identity.DatasetID{}, err
	}
	return id, nil
}

// Resolve maps any DatasetRef form to the dataset's (id, name) handle.
func (r *Repository) Resolve(ctx context.Context, ref odf.DatasetRef) (identity.DatasetID, odf.DatasetName, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.loadIndex()
	if err != nil {
		return identity.DatasetID{}, "", err
	}

	switch ref.Kind {
	case odf.DatasetRefKindLocalName:
		for _, e := range entries {
			if e.Name == ref.Name {
				id, err := identity.ParseDatasetID(e.ID)
				if err != nil {
					return identity.DatasetID{}, "", fmt.Errorf("dataset: corrupt index entry for %q: %w", e.Name, err)
				}
				return id, e.Name, nil
			}
		}
		return identity.DatasetID{}, "", fmt.Errorf("dataset: no dataset named %q", ref.Name)
	case odf.DatasetRefKindID:
		for _, e := range entries {
			if e.ID == ref.ID.String() {
				return ref.ID, e.Name, nil
			}
		}
		return identity.DatasetID{}, "", fmt.Errorf("dataset: no dataset with id %q", ref.ID)
	default:
		return identity.DatasetID{}, "", fmt.Errorf("dataset: ref kind %v is not resolvable against the local workspace catalog", ref.Kind)
	}
}

// Rename moves a dataset's directory to a new name, detecting name
// collisions. The dataset's DID is unchanged, so renames never break
// references held by external repositories.
func (r *Repository) Rename(ctx context.Context, oldName, newName odf.DatasetName) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.loadIndex()
	if err != nil {
		return err
	}

	idx := -1
	for i, e := range entries {
		if e.Name == newName {
			return fmt.Errorf("dataset: name %q already exists", newName)
		}
		if e.Name == oldName {
			idx = i
		}
	}
	if idx == -1 {
		return fmt.Errorf("dataset: no dataset named %q", oldName)
	}

	if err := os.Rename(r.datasetDir(oldName), r.datasetDir(newName)); err != nil {
		return fmt.Errorf("dataset: rename directory: %w", err)
	}
	entries[idx].Name = newName
	return r.saveIndex(entries)
}

// Delete removes a dataset's directory and catalog entry.
func (r *Repository) Delete(ctx context.Context, name odf.DatasetName) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.loadIndex()
	if err != nil {
		return err
	}

	out := entries[:0]
	found := false
	for _, e := range entries {
		if e.Name == name {
			found = true
			continue
		}
		out = append(out, e)
	}
	if !found {
		return fmt.Errorf("dataset: no dataset named %q", name)
	}

	if err := os.RemoveAll(r.datasetDir(name)); err != nil {
		return fmt.Errorf("dataset: remove directory: %w", err)
	}
	return r.saveIndex(out)
}

// List enumerates every dataset name in the catalog.
func (r *Repository) List(ctx context.Context) ([]odf.DatasetName, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.loadIndex()
	if err != nil {
		return nil, err
	}
	names := make([]odf.DatasetName, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names, nil
}

// Open returns a Dataset bundle for an existing catalog entry.
func (r *Repository) Open(ctx context.Context, name odf.DatasetName) (*Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.loadIndex()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Name == name {
			return openDatasetDir(r.datasetDir(name))
		}
	}
	return nil, fmt.Errorf("dataset: no dataset named %q", name)
}

// OpenByRef resolves any DatasetRef form and opens the resulting
// dataset, combining Resolve and Open for callers (transform, sync,
// provenance) that only have a reference, not a bare local name.
func (r *Repository) OpenByRef(ctx context.Context, ref odf.DatasetRef) (odf.DatasetName, *Dataset, error) {
	_, name, err := r.Resolve(ctx, ref)
	if err != nil {
		return "", nil, err
	}
	ds, err := r.Open(ctx, name)
	if err != nil {
		return "", nil, err
	}
	return name, ds, nil
}

// OpenOrCreateBare opens name's existing directory, or — if the catalog
// has no entry for it — creates an empty <dataset>/{blocks,data,...}
// layout on disk without writing a Seed block or a catalog entry.
//
// It exists for syncsvc's destination side: when pulling into a dataset
// name that doesn't exist locally yet, the DID is only known once the
// source's Seed block has actually been transferred, so Create's
// atomic "generate identity, then append Seed" sequence doesn't apply.
// Callers that get created=true must follow up with RegisterExisting
// once the transferred Seed block reveals the real DatasetID, or leave
// the directory orphaned (unreachable by name, but harmless) on failure.
func (r *Repository) OpenOrCreateBare(ctx context.Context, name odf.DatasetName) (ds *Dataset, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.loadIndex()
	if err != nil {
		return nil, false, err
	}
	for _, e := range entries {
		if e.Name == name {
			ds, err := openDatasetDir(r.datasetDir(name))
			return ds, false, err
		}
	}

	ds, err = openDatasetDir(r.datasetDir(name))
	if err != nil {
		return nil, false, err
	}
	return ds, true, nil
}

// RegisterExisting adds name→id to the catalog for a dataset directory
// that was created bare via OpenOrCreateBare and has since had its real
// Seed block written into it out of band. It is a no-op if the entry
// already exists with the same id, and an error if name is already
// bound to a different id (the catalog never silently rebinds a name).
func (r *Repository) RegisterExisting(ctx context.Context, name odf.DatasetName, id identity.DatasetID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.loadIndex()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name == name {
			if e.ID == id.String() {
				return nil
			}
			return fmt.Errorf("dataset: name %q is already bound to a different id", name)
		}
	}
	entries = append(entries, indexEntry{Name: name, ID: id.String()})
	return r.saveIndex(entries)
}

// openDatasetDir realizes the <dataset>/{blocks,data,checkpoints,refs,cache}
// layout of spec.md §6 under dir, creating directories as needed.
func openDatasetDir(dir string) (*Dataset, error) {
	blocks, err := objectrepo.NewLocalFS(filepath.Join(dir, "blocks"))
	if err != nil {
		return nil, fmt.Errorf("dataset: open blocks store: %w", err)
	}
	data, err := objectrepo.NewLocalFS(filepath.Join(dir, "data"))
	if err != nil {
		return nil, fmt.Errorf("dataset: open data store: %w", err)
	}
	checkpoints, err := objectrepo.NewLocalFS(filepath.Join(dir, "checkpoints"))
	if err != nil {
		return nil, fmt.Errorf("dataset: open checkpoints store: %w", err)
	}
	refs, err := objectrepo.NewLocalNamedFS(filepath.Join(dir, "refs"))
	if err != nil {
		return nil, fmt.Errorf("dataset: open refs store: %w", err)
	}
	cache, err := objectrepo.NewLocalNamedFS(filepath.Join(dir, "cache"))
	if err != nil {
		return nil, fmt.Errorf("dataset: open cache store: %w", err)
	}

	return &Dataset{
		Chain:       chain.New(blocks, refstore.New(refs)),
		Data:        data,
		Checkpoints: checkpoints,
		Cache:       cache,
	}, nil
}
