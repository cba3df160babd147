// Package syncsvc implements the SyncService and SimpleTransferProtocol
// of spec.md §4.6: comparing two datasets' metadata chains, and — if
// one side is strictly ahead — moving the missing blocks and their
// referenced data/checkpoint objects across in a fail-safe order that
// never leaves the destination pointing at a ref it doesn't have the
// blocks for.
package syncsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/odf/internal/metrics"
	"github.com/cuemby/odf/internal/obslog"
	"github.com/cuemby/odf/internal/odferr"
	"github.com/cuemby/odf/pkg/blockcodec"
	"github.com/cuemby/odf/pkg/chain"
	"github.com/cuemby/odf/pkg/dataset"
	"github.com/cuemby/odf/pkg/identity"
	"github.com/cuemby/odf/pkg/multihash"
	"github.com/cuemby/odf/pkg/objectrepo"
	"github.com/cuemby/odf/pkg/odf"
	"github.com/cuemby/odf/pkg/refstore"
)

// SyncOpts controls one Sync call.
type SyncOpts struct {
	// Force allows a sync to proceed when the destination has diverged
	// from or is ahead of the source, discarding the destination's own
	// history and replacing it with the source's (spec.md §4.6.2).
	Force bool
	// CreateIfNotExists allows Sync to create the destination dataset
	// when dstName has no catalog entry yet.
	CreateIfNotExists bool
	// TrustSourceHashes skips recomputing a transferred object's hash
	// and trusts the hash the source chain already recorded for it
	// (spec.md §4.6.3 step 1).
	TrustSourceHashes bool
}

// SyncOutcome reports what Sync actually did.
type SyncOutcome int

const (
	// SyncUpToDate means source and destination already share the same
	// HEAD; nothing was transferred.
	SyncUpToDate SyncOutcome = iota
	// SyncUpdated means one or more blocks were appended to the
	// destination and its HEAD was advanced.
	SyncUpdated
)

// SyncResult is Sync's successful result.
type SyncResult struct {
	Outcome     SyncOutcome
	OldHead     multihash.Multihash // zero if the destination was newly created
	NewHead     multihash.Multihash
	BlocksAdded int
	Stats       Stats
}

// Service resolves dataset names through a Repository and runs syncs
// between them. It carries no transport concept of its own: both the
// source and destination datasets it's handed may be backed by a
// remote object store (S3, HTTP), the same way Dataset's
// ObjectRepository fields already abstract over local/remote storage.
type Service struct {
	Repo *dataset.Repository
}

// Sync implements the SimpleTransferProtocol of spec.md §4.6.3: it
// compares srcRef's chain against dstName's, and if srcRef is ahead (or
// opts.Force is set), transfers the missing objects and blocks and
// atomically advances dstName's HEAD to match.
func (s *Service) Sync(ctx context.Context, srcRef odf.DatasetRef, dstName odf.DatasetName, opts SyncOpts, listener Listener) (result *SyncResult, err error) {
	if listener == nil {
		listener = NullListener{}
	}

	start := time.Now()
	outcomeLabel := "error"
	defer func() {
		metrics.SyncDuration.WithLabelValues(outcomeLabel).Observe(time.Since(start).Seconds())
		if err != nil {
			listener.OnError(err)
		} else {
			listener.OnSuccess(result)
		}
	}()

	stats := &Stats{}
	listener.OnStageChanged(StageResolving, stats)

	_, srcName, err := s.Repo.Resolve(ctx, srcRef)
	if err != nil {
		return nil, fmt.Errorf("syncsvc: resolve source: %w", err)
	}
	src, err := s.Repo.Open(ctx, srcName)
	if err != nil {
		return nil, fmt.Errorf("syncsvc: open source %q: %w", srcName, err)
	}

	dst, created, err := s.openDestination(ctx, dstName, opts)
	if err != nil {
		return nil, err
	}

	listener.OnStageChanged(StageComparing, stats)

	cmp, err := CompareChains(ctx, src.Chain, dst.Chain, nil)
	if err != nil {
		return nil, fmt.Errorf("syncsvc: compare chains: %w", err)
	}

	var toTransfer []HashedBlock
	switch cmp.Outcome {
	case Equal:
		outcomeLabel = "up_to_date"
		obslog.WithComponent("syncsvc").Info().
			Str("src", string(srcName)).Str("dst", string(dstName)).
			Msg("already up to date")
		return &SyncResult{Outcome: SyncUpToDate}, nil
	case LhsAhead:
		toTransfer = cmp.LhsAheadBlocks
	case LhsBehind:
		if !opts.Force {
			outcomeLabel = "diverged"
			return nil, &odferr.DestinationAhead{AheadBlocks: cmp.UncommonRhs}
		}
		if toTransfer, err = srcChainReplay(ctx, src); err != nil {
			return nil, err
		}
	case Divergence:
		if !opts.Force {
			outcomeLabel = "diverged"
			return nil, &odferr.DatasetsDiverged{UncommonSrc: cmp.UncommonLhs, UncommonDst: cmp.UncommonRhs}
		}
		if toTransfer, err = srcChainReplay(ctx, src); err != nil {
			return nil, err
		}
	}

	oldHead, err := headOrZero(ctx, dst.Chain)
	if err != nil {
		return nil, err
	}

	listener.OnStageChanged(StageTransfer, stats)
	if err := transferObjects(ctx, src, dst, toTransfer, opts.TrustSourceHashes, stats, listener); err != nil {
		return nil, err
	}

	listener.OnStageChanged(StageCommitting, stats)
	newHead, err := commitBlocks(ctx, dst.Chain, toTransfer, oldHead)
	if err != nil {
		return nil, err
	}

	if created {
		id, seedErr := seedDatasetID(toTransfer)
		if seedErr != nil {
			return nil, seedErr
		}
		if err := s.Repo.RegisterExisting(ctx, dstName, id); err != nil {
			return nil, fmt.Errorf("syncsvc: register new dataset %q: %w", dstName, err)
		}
	}

	listener.OnStageChanged(StageCacheCopy, stats)
	if err := copyCacheFiles(ctx, src.Cache, dst.Cache); err != nil {
		// Best-effort: cache entries speed up the ingest/transform
		// pipelines but hold no authoritative state, so a copy failure
		// here never fails the sync itself.
		obslog.WithComponent("syncsvc").Warn().Err(err).Msg("cache copy incomplete")
	}

	outcomeLabel = "ahead"
	return &SyncResult{
		Outcome:     SyncUpdated,
		OldHead:     oldHead,
		NewHead:     newHead,
		BlocksAdded: len(toTransfer),
		Stats:       *stats,
	}, nil
}

func (s *Service) openDestination(ctx context.Context, name odf.DatasetName, opts SyncOpts) (*dataset.Dataset, bool, error) {
	if !opts.CreateIfNotExists {
		ds, err := s.Repo.Open(ctx, name)
		if err != nil {
			return nil, false, fmt.Errorf("syncsvc: open destination %q: %w", name, err)
		}
		return ds, false, nil
	}
	ds, created, err := s.Repo.OpenOrCreateBare(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("syncsvc: open or create destination %q: %w", name, err)
	}
	return ds, created, nil
}

// srcChainReplay collects the entire source chain oldest-first, for the
// forced-divergence/behind path where the destination's own history is
// discarded wholesale rather than reconciled against a common ancestor.
func srcChainReplay(ctx context.Context, src *dataset.Dataset) ([]HashedBlock, error) {
	head, err := headOrZero(ctx, src.Chain)
	if err != nil {
		return nil, err
	}
	blocks, err := collectAllHashed(ctx, src.Chain, head)
	if err != nil {
		return nil, fmt.Errorf("syncsvc: replay source chain: %w", err)
	}
	return blocks, nil
}

// wantedObject names one data or checkpoint object a block refers to.
type wantedObject struct {
	hash multihash.Multihash
	size int64
	kind string // "data" or "checkpoint"
}

func objectsReferencedBy(block odf.MetadataBlock) []wantedObject {
	var (
		data       *odf.DataSlice
		checkpoint *odf.Checkpoint
	)
	switch e := block.Event.(type) {
	case odf.AddData:
		data, checkpoint = e.OutputData, e.OutputCheckpoint
	case odf.ExecuteQuery:
		data, checkpoint = e.OutputData, e.OutputCheckpoint
	default:
		return nil
	}

	var out []wantedObject
	if data != nil {
		out = append(out, wantedObject{hash: data.PhysicalHash, size: data.Size, kind: "data"})
	}
	if checkpoint != nil {
		out = append(out, wantedObject{hash: checkpoint.PhysicalHash, size: checkpoint.Size, kind: "checkpoint"})
	}
	return out
}

// transferObjects moves every data and checkpoint object referenced by
// toTransfer from src to dst, oldest block first, per spec.md §4.6.3
// step 1. It never touches the metadata chain itself — that is
// commitBlocks' job — so a failure partway through leaves dst with a
// few extra unreferenced objects but no dangling block/ref pointing at
// missing data.
func transferObjects(ctx context.Context, src, dst *dataset.Dataset, blocks []HashedBlock, trustSourceHashes bool, stats *Stats, listener Listener) error {
	for _, hb := range blocks {
		for _, want := range objectsReferencedBy(hb.Block) {
			srcStore, dstStore := src.Data, dst.Data
			if want.kind == "checkpoint" {
				srcStore, dstStore = src.Checkpoints, dst.Checkpoints
			}
			if err := transferOne(ctx, srcStore, dstStore, want, trustSourceHashes, stats); err != nil {
				return err
			}
		}
		stats.Src.Blocks++
		stats.Dst.Blocks++
		listener.OnProgress(stats)
	}
	return nil
}

// transferOne moves a single object by hash, mapping a missing source
// object or a hash mismatch to odferr.CorruptedSource: either means the
// source's own chain recorded a reference its object store can't back
// up, which is the source's problem, not a transient transport error.
func transferOne(ctx context.Context, src, dst objectrepo.Store, want wantedObject, trustSourceHashes bool, stats *Stats) error {
	present, err := dst.Contains(ctx, want.hash)
	if err != nil {
		return fmt.Errorf("syncsvc: check destination for %s object %s: %w", want.kind, want.hash, err)
	}
	if present {
		return nil
	}

	r, err := src.GetStream(ctx, want.hash)
	if err != nil {
		var notFound *objectrepo.ErrNotFound
		if errors.As(err, &notFound) {
			return &odferr.CorruptedSource{Message: fmt.Sprintf("referenced %s object %s is missing from the source", want.kind, want.hash)}
		}
		return fmt.Errorf("syncsvc: read source %s object %s: %w", want.kind, want.hash, err)
	}
	defer r.Close()

	insertOpts := objectrepo.InsertOpts{SizeHint: want.size}
	if trustSourceHashes {
		insertOpts.PrecomputedHash = &want.hash
	} else {
		insertOpts.ExpectedHash = &want.hash
	}

	if _, err := dst.InsertStream(ctx, r, insertOpts); err != nil {
		var mismatch *objectrepo.ErrHashMismatch
		if errors.As(err, &mismatch) {
			return &odferr.CorruptedSource{Message: fmt.Sprintf("%s object %s does not hash to what the source chain recorded", want.kind, want.hash), Err: err}
		}
		return fmt.Errorf("syncsvc: write destination %s object %s: %w", want.kind, want.hash, err)
	}

	stats.Src.Bytes += want.size
	stats.Dst.Bytes += want.size
	metrics.BytesTransferredTotal.WithLabelValues("read").Add(float64(want.size))
	metrics.BytesTransferredTotal.WithLabelValues("written").Add(float64(want.size))
	return nil
}

// copyCacheFiles best-effort copies every named cache entry (fetch/prep/
// read/commit source-cache state written by the out-of-scope ingest
// pipeline) from src to dst, skipping entries the source never wrote.
func copyCacheFiles(ctx context.Context, src, dst objectrepo.NamedStore) error {
	names, err := src.List(ctx)
	if err != nil {
		return fmt.Errorf("syncsvc: list source cache: %w", err)
	}
	for _, name := range names {
		data, err := src.Get(ctx, name)
		if err != nil {
			var notFound *objectrepo.ErrNameNotFound
			if errors.As(err, &notFound) {
				continue
			}
			return fmt.Errorf("syncsvc: read cache entry %q: %w", name, err)
		}
		if err := dst.Set(ctx, name, data); err != nil {
			return fmt.Errorf("syncsvc: write cache entry %q: %w", name, err)
		}
	}
	return nil
}

// commitBlocks writes each transferred block's encoded bytes directly
// into the destination's block store via its raw objectrepo.Store,
// bypassing Chain.Append's per-block HEAD CAS entirely (spec.md §4.6.3
// step 2: blocks are appended with no ref update), then performs the
// single atomic HEAD CAS (step 3) once every block is in place. A CAS
// failure here means some other writer moved the destination's HEAD
// between this sync's comparison step and this commit, which is
// reported as odferr.UpdatedConcurrently rather than retried: spec.md
// §4.6 has no automatic-retry requirement, and a concurrent writer
// means the comparison this sync planned against is already stale.
func commitBlocks(ctx context.Context, dst *chain.Chain, blocks []HashedBlock, oldHead multihash.Multihash) (multihash.Multihash, error) {
	if len(blocks) == 0 {
		return oldHead, nil
	}

	for _, hb := range blocks {
		encoded, err := blockcodec.Encode(hb.Block)
		if err != nil {
			return multihash.Multihash{}, fmt.Errorf("syncsvc: encode block %s: %w", hb.Hash, err)
		}
		if _, err := dst.Blocks.InsertBytes(ctx, encoded, objectrepo.InsertOpts{PrecomputedHash: &hb.Hash}); err != nil {
			return multihash.Multihash{}, fmt.Errorf("syncsvc: store block %s: %w", hb.Hash, err)
		}
	}

	newHead := blocks[len(blocks)-1].Hash
	checkIs := oldHead
	if err := dst.SetRef(ctx, refstore.Head, newHead, chain.SetRefOpts{CheckRefIs: &checkIs}); err != nil {
		var casFailed *chain.RefCASFailed
		if errors.As(err, &casFailed) {
			return multihash.Multihash{}, &odferr.UpdatedConcurrently{}
		}
		return multihash.Multihash{}, fmt.Errorf("syncsvc: advance destination head: %w", err)
	}
	return newHead, nil
}

func seedDatasetID(blocks []HashedBlock) (identity.DatasetID, error) {
	for _, hb := range blocks {
		if seed, ok := hb.Block.Event.(odf.Seed); ok {
			return seed.DatasetID, nil
		}
	}
	return identity.DatasetID{}, fmt.Errorf("syncsvc: transferred block set has no Seed event")
}
