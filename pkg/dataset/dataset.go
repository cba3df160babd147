// Package dataset implements the Dataset bundle and the workspace-level
// DatasetRepository catalog of spec.md §4.4.
package dataset

import (
	"context"
	"fmt"

	"github.com/cuemby/odf/pkg/chain"
	"github.com/cuemby/odf/pkg/identity"
	"github.com/cuemby/odf/pkg/objectrepo"
	"github.com/cuemby/odf/pkg/odf"
)

// Dataset bundles one MetadataChain with the three ObjectRepositories
// that complete it: data files, engine checkpoints, and an
// implementation-private cache.
type Dataset struct {
	Chain       *chain.Chain
	Data        objectrepo.Store
	Checkpoints objectrepo.Store
	Cache       objectrepo.NamedStore
}

// SummaryOpts controls how much of the chain GetSummary is willing to
// scan; by default it folds the entire chain.
type SummaryOpts struct {
	// MaxBlocksScanned caps the walk for very long chains; 0 means
	// unbounded. When the cap is hit, the returned summary is partial
	// and best-effort (dependencies/watermark reflect only the blocks
	// that were scanned).
	MaxBlocksScanned int64
}

// GetSummary folds the chain into a derived aggregate. Summaries are
// never persisted; they are recomputed from the chain on every call.
func (d *Dataset) GetSummary(ctx context.Context, opts SummaryOpts) (odf.DatasetSummary, error) {
	it, err := d.Chain.IterBlocks(ctx)
	if err != nil {
		return odf.DatasetSummary{}, fmt.Errorf("dataset: iterate chain: %w", err)
	}

	var (
		summary   odf.DatasetSummary
		sawSeed   bool
		dataSize  int64
		numBlocks int64
		deps      = map[identity.DatasetID]struct{}{}
	)

	for {
		if opts.MaxBlocksScanned > 0 && numBlocks >= opts.MaxBlocksScanned {
			break
		}
		block, ok, err := it.Next()
		if err != nil {
			return odf.DatasetSummary{}, fmt.Errorf("dataset: scan chain: %w", err)
		}
		if !ok {
			break
		}
		numBlocks++

		switch e := block.Event.(type) {
		case odf.Seed:
			summary.ID = e.DatasetID
			summary.Kind = e.Kind
			sawSeed = true
		case odf.SetTransform:
			for _, in := range e.Inputs {
				if in.DatasetRef.Kind == odf.DatasetRefKindID {
					deps[in.DatasetRef.ID] = struct{}{}
				}
			}
		case odf.SetWatermark:
			if summary.LastWatermark == nil {
				t := e.OutputWatermark
				summary.LastWatermark = &t
			}
		case odf.AddData:
			if e.OutputData != nil {
				dataSize += e.OutputData.Size
			}
			if summary.LastWatermark == nil && e.OutputWatermark != nil {
				summary.LastWatermark = e.OutputWatermark
			}
		case odf.ExecuteQuery:
			if e.OutputData != nil {
				dataSize += e.OutputData.Size
			}
			if summary.LastWatermark == nil && e.OutputWatermark != nil {
				summary.LastWatermark = e.OutputWatermark
			}
		}
	}

	if !sawSeed {
		return odf.DatasetSummary{}, fmt.Errorf("dataset: chain has no Seed block")
	}

	summary.DataSize = dataSize
	summary.NumBlocks = numBlocks
	for id := range deps {
		summary.Dependencies = append(summary.Dependencies, id)
	}
	return summary, nil
}
