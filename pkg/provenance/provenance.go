// Package provenance walks a derivative dataset's declared transform
// inputs transitively, reconstructing the DAG of datasets a given
// dataset's data was derived from. It shares the chain-scan approach
// pkg/transform uses to locate a dataset's SetTransform declaration,
// but never dispatches anything to an engine: this is a read-only
// traversal over already-committed metadata.
package provenance

import (
	"context"
	"fmt"

	"github.com/cuemby/odf/pkg/chain"
	"github.com/cuemby/odf/pkg/dataset"
	"github.com/cuemby/odf/pkg/identity"
	"github.com/cuemby/odf/pkg/odf"
)

// Lineage is one node of a dataset's derivation DAG: the dataset
// itself, plus the lineage of every dataset its SetTransform declares
// as an input. Root datasets are always leaves.
type Lineage struct {
	DatasetID   identity.DatasetID
	DatasetName odf.DatasetName
	Kind        odf.DatasetKind
	Inputs      []*Lineage
}

// Trace resolves ref and walks its transform inputs transitively,
// returning the full lineage DAG rooted at ref. A dataset reachable
// through more than one path is traced once per occurrence: lineage is
// a tree over the input declarations as written, not a deduplicated
// set of dataset identities, so the shape mirrors how many times a
// dataset was actually named as an input somewhere upstream.
func Trace(ctx context.Context, repo *dataset.Repository, ref odf.DatasetRef) (*Lineage, error) {
	return trace(ctx, repo, ref, map[identity.DatasetID]bool{})
}

func trace(ctx context.Context, repo *dataset.Repository, ref odf.DatasetRef, onPath map[identity.DatasetID]bool) (*Lineage, error) {
	name, ds, err := repo.OpenByRef(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("provenance: open %s: %w", ref, err)
	}
	id, _, err := repo.Resolve(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("provenance: resolve %s: %w", ref, err)
	}

	if onPath[id] {
		return nil, fmt.Errorf("provenance: cycle detected at dataset %s", name)
	}

	seedIter, err := ds.Chain.IterBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("provenance: iterate %s: %w", name, err)
	}
	seedBlocks, err := chain.IntoVariant[odf.Seed](seedIter)
	if err != nil {
		return nil, fmt.Errorf("provenance: scan %s for Seed: %w", name, err)
	}
	if len(seedBlocks) == 0 {
		return nil, fmt.Errorf("provenance: dataset %s has no Seed event", name)
	}
	kind := seedBlocks[0].Event.(odf.Seed).Kind

	node := &Lineage{DatasetID: id, DatasetName: name, Kind: kind}
	if kind != odf.DatasetKindDerivative {
		return node, nil
	}

	transformIter, err := ds.Chain.IterBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("provenance: iterate %s: %w", name, err)
	}
	transformBlocks, err := chain.IntoVariant[odf.SetTransform](transformIter)
	if err != nil {
		return nil, fmt.Errorf("provenance: scan %s for SetTransform: %w", name, err)
	}
	if len(transformBlocks) == 0 {
		// A derivative dataset that hasn't had its transform declared
		// yet (or ever) has no resolvable upstream; it's still a valid
		// leaf for the purposes of lineage.
		return node, nil
	}
	decl := transformBlocks[0].Event.(odf.SetTransform)

	onPath[id] = true
	defer delete(onPath, id)

	for _, in := range decl.Inputs {
		child, err := trace(ctx, repo, in.DatasetRef, onPath)
		if err != nil {
			return nil, err
		}
		node.Inputs = append(node.Inputs, child)
	}
	return node, nil
}

// Roots returns the set of root datasets (Kind == DatasetKindRoot)
// reachable from l, deduplicated by dataset ID, in the order first
// encountered by a depth-first walk.
func Roots(l *Lineage) []*Lineage {
	var out []*Lineage
	seen := map[identity.DatasetID]bool{}
	var walk func(*Lineage)
	walk = func(n *Lineage) {
		if n.Kind == odf.DatasetKindRoot {
			if !seen[n.DatasetID] {
				seen[n.DatasetID] = true
				out = append(out, n)
			}
			return
		}
		for _, in := range n.Inputs {
			walk(in)
		}
	}
	walk(l)
	return out
}
