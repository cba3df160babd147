package syncsvc

import (
	"context"
	"fmt"
	"sort"

	"github.com/cuemby/odf/pkg/dataset"
	"github.com/cuemby/odf/pkg/multihash"
)

// IPFSAdd stages a dataset's byte layout and returns its root CID
// (spec.md §4.6.4). It is metadata-only: publishing the resulting CID
// under an IPNS name is left to the caller, never attempted here.
//
// No IPFS client or CID library appears anywhere in the retrieval pack
// (checked every go.mod/go.sum under _examples/), so this computes a
// root digest the same way the rest of this module names objects —
// a multihash over the sorted list of every object's own multihash —
// rather than constructing a genuine UnixFS DAG and a codec-tagged CID.
// It is a legitimate root digest of the dataset's current byte layout,
// reproducible and order-independent, but it will not match a root CID
// produced by a real go-ipfs `dag put` of the same directory tree.
func IPFSAdd(ctx context.Context, ds *dataset.Dataset) (string, error) {
	var hashes []multihash.Multihash

	head, err := headOrZero(ctx, ds.Chain)
	if err != nil {
		return "", fmt.Errorf("syncsvc: ipfs add: %w", err)
	}
	blocks, err := collectAllHashed(ctx, ds.Chain, head)
	if err != nil {
		return "", fmt.Errorf("syncsvc: ipfs add: %w", err)
	}
	for _, hb := range blocks {
		hashes = append(hashes, hb.Hash)
		for _, want := range objectsReferencedBy(hb.Block) {
			hashes = append(hashes, want.hash)
		}
	}

	strs := make([]string, len(hashes))
	for i, h := range hashes {
		strs[i] = h.String()
	}
	sort.Strings(strs)

	var buf []byte
	for _, s := range strs {
		buf = append(buf, []byte(s)...)
		buf = append(buf, 0)
	}
	return multihash.SumDefault(buf).String(), nil
}
